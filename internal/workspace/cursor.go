package workspace

import (
	"github.com/aretw0/stepwise/pkg/domain"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Edit describes the region that changed between two snapshots of a file.
// Offsets are byte offsets into the new text.
type Edit struct {
	Offset   int
	Inserted string
	Removed  string

	// Cursor is where the caret sits after the edit: the end of the last insertion,
	// or the point of the last removal.
	Cursor domain.Position
}

// DeriveEdit recovers the most recent edit from two full snapshots.
// It returns false when the texts are identical.
func DeriveEdit(before, after string) (Edit, bool) {
	if before == after {
		return Edit{}, false
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)

	start, end, offset := -1, 0, 0
	var edit Edit
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			offset += len(d.Text)
		case diffmatchpatch.DiffInsert:
			if start < 0 {
				start = offset
			}
			edit.Inserted += d.Text
			offset += len(d.Text)
			end = offset
		case diffmatchpatch.DiffDelete:
			if start < 0 {
				start = offset
			}
			edit.Removed += d.Text
			end = offset
		}
	}

	if start < 0 {
		return Edit{}, false
	}
	edit.Offset = start
	edit.Cursor = domain.PositionAt(after, end)
	return edit, true
}
