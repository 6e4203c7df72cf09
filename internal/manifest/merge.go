package manifest

import "sort"

// MergeChunks concatenates existing and fresh chunks, keeps at most one chunk
// per SourceArtifact (the first seen, so existing wins) and sorts by
// (Index, Page). Inputs are not modified.
func MergeChunks(existing, fresh []ContentChunk) []ContentChunk {
	if len(existing) == 0 && len(fresh) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(existing)+len(fresh))
	out := make([]ContentChunk, 0, len(existing)+len(fresh))
	for _, group := range [][]ContentChunk{existing, fresh} {
		for _, c := range group {
			if _, dup := seen[c.SourceArtifact]; dup {
				continue
			}
			seen[c.SourceArtifact] = struct{}{}
			out = append(out, c)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Index != out[j].Index {
			return out[i].Index < out[j].Index
		}
		return out[i].Page < out[j].Page
	})
	return out
}

// TranscribedSet returns the SourceArtifact keys already present in chunks.
func TranscribedSet(chunks []ContentChunk) map[string]struct{} {
	set := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		set[c.SourceArtifact] = struct{}{}
	}
	return set
}
