package scan

import "github.com/user/portage/internal/model"

// topFiles keeps the N largest files seen so far, sorted descending by
// size. Inserts are O(N) over a small fixed bound.
type topFiles struct {
	limit   int
	entries []model.FileEntry
}

func newTopFiles(limit int) *topFiles {
	return &topFiles{limit: limit}
}

func (t *topFiles) Add(path string, size int64) {
	if t.limit == 0 {
		return
	}
	if len(t.entries) == t.limit && size <= t.entries[len(t.entries)-1].Size {
		return
	}
	pos := len(t.entries)
	for i, e := range t.entries {
		if size > e.Size {
			pos = i
			break
		}
	}
	t.entries = append(t.entries, model.FileEntry{})
	copy(t.entries[pos+1:], t.entries[pos:])
	t.entries[pos] = model.FileEntry{Path: path, Size: size}
	if len(t.entries) > t.limit {
		t.entries = t.entries[:t.limit]
	}
}

func (t *topFiles) List() []model.FileEntry {
	return t.entries
}
