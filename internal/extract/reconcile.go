package extract

import (
	"github.com/jackzampolin/scrivener/internal/manifest"
)

// resumeState is what a run inherits from earlier runs.
type resumeState struct {
	Pages      []manifest.PageArtifact
	Reconciled int
	// ResumePage is the first page not yet captured; 0 when nothing was.
	ResumePage int
	// Rebuilt is true when the manifest page list was replaced from disk.
	Rebuilt bool
}

// reconcile merges the manifest page list with artifacts found on disk.
// Artifacts are ground truth: when there are more of them than manifest
// entries the page list is rebuilt from filenames, keeping Total from matching
// manifest entries and falling back to total.
func reconcile(manifestPages []manifest.PageArtifact, disk manifest.DiskArtifacts, total int) resumeState {
	rs := resumeState{
		Pages:      manifestPages,
		Reconciled: max(len(manifestPages), disk.FileCount),
	}

	if disk.FileCount > len(manifestPages) {
		known := make(map[string]manifest.PageArtifact, len(manifestPages))
		for _, p := range manifestPages {
			known[p.ImagePath] = p
		}
		rebuilt := make([]manifest.PageArtifact, 0, len(disk.Artifacts))
		for _, a := range disk.Artifacts {
			if prev, ok := known[a.ImagePath]; ok && prev.Total > 0 {
				a.Total = prev.Total
			} else {
				a.Total = total
			}
			rebuilt = append(rebuilt, a)
		}
		rs.Pages = rebuilt
		rs.Rebuilt = true
	}

	highest := 0
	for _, p := range rs.Pages {
		highest = max(highest, p.Page)
	}
	switch {
	case highest > 0:
		rs.ResumePage = highest + 1
	case rs.Reconciled > 0:
		rs.ResumePage = rs.Reconciled + 1
	}
	return rs
}
