package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// minArtifactWidth keeps short books' filenames sortable alongside longer ones.
const minArtifactWidth = 4

var artifactNamePattern = regexp.MustCompile(`^(\d+)-(\d+)\.png$`)

// ArtifactWidth returns the zero-padding width for artifact filenames, derived
// from the maximum expected capture count (twice the book's page total).
func ArtifactWidth(total int) int {
	width := len(strconv.Itoa(total * 2))
	if width < minArtifactWidth {
		width = minArtifactWidth
	}
	return width
}

// ArtifactName encodes a capture index and page number as "<index>-<page>.png".
func ArtifactName(index, page, width int) string {
	return fmt.Sprintf("%0*d-%0*d.png", width, index, width, page)
}

// ArtifactPath returns the book-relative path of an artifact.
func ArtifactPath(index, page, width int) string {
	return filepath.ToSlash(filepath.Join(PagesDirName, ArtifactName(index, page, width)))
}

// ParseArtifactName decodes an artifact filename. Padding width is ignored so
// names written with a different width still parse.
func ParseArtifactName(name string) (index, page int, ok bool) {
	m := artifactNamePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, 0, false
	}
	index, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, false
	}
	page, err = strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, false
	}
	return index, page, true
}

// DiskArtifacts describes the page artifacts found in a pages directory.
type DiskArtifacts struct {
	// Artifacts holds the entries whose names parsed, sorted by (Index, Page).
	Artifacts []PageArtifact
	// FileCount counts every .png file, parseable or not.
	FileCount int
}

// ScanArtifacts lists page artifacts under bookDir/pages. A missing directory is
// treated as empty. Total is left zero; it is not recoverable from filenames.
func ScanArtifacts(bookDir string) (DiskArtifacts, error) {
	var out DiskArtifacts

	entries, err := os.ReadDir(filepath.Join(bookDir, PagesDirName))
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return out, fmt.Errorf("failed to read pages directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".png") {
			continue
		}
		out.FileCount++

		index, page, ok := ParseArtifactName(entry.Name())
		if !ok {
			continue
		}
		out.Artifacts = append(out.Artifacts, PageArtifact{
			Index:     index,
			Page:      page,
			ImagePath: filepath.ToSlash(filepath.Join(PagesDirName, entry.Name())),
		})
	}

	SortArtifacts(out.Artifacts)
	return out, nil
}

// SortArtifacts orders artifacts by (Index, Page).
func SortArtifacts(pages []PageArtifact) {
	sort.SliceStable(pages, func(i, j int) bool {
		if pages[i].Index != pages[j].Index {
			return pages[i].Index < pages[j].Index
		}
		return pages[i].Page < pages[j].Page
	})
}

// UnionArtifacts merges manifest pages with artifacts found on disk, keyed by
// ImagePath. Manifest entries win because they carry Total.
func UnionArtifacts(manifestPages, disk []PageArtifact) []PageArtifact {
	seen := make(map[string]struct{}, len(manifestPages))
	out := make([]PageArtifact, 0, len(manifestPages)+len(disk))
	for _, p := range manifestPages {
		seen[p.ImagePath] = struct{}{}
		out = append(out, p)
	}
	for _, p := range disk {
		if _, ok := seen[p.ImagePath]; ok {
			continue
		}
		out = append(out, p)
	}
	SortArtifacts(out)
	return out
}
