package workspace

import (
	"testing"

	"github.com/aretw0/stepwise/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestDeriveEdit(t *testing.T) {
	t.Run("insertion", func(t *testing.T) {
		edit, ok := DeriveEdit("const a = 1;\n", "const a = 1;\nconsole.log(a)\n")
		assert.True(t, ok)
		assert.Equal(t, "console.log(a)\n", edit.Inserted)
		assert.Equal(t, domain.Position{Line: 3, Column: 1}, edit.Cursor)
	})

	t.Run("typing in the middle", func(t *testing.T) {
		edit, ok := DeriveEdit("hello world", "hello brave world")
		assert.True(t, ok)
		assert.Equal(t, 6, edit.Offset)
		assert.Equal(t, domain.Position{Line: 1, Column: 13}, edit.Cursor)
	})

	t.Run("deletion", func(t *testing.T) {
		edit, ok := DeriveEdit("abcdef", "abef")
		assert.True(t, ok)
		assert.Equal(t, "cd", edit.Removed)
		assert.Empty(t, edit.Inserted)
		assert.Equal(t, domain.Position{Line: 1, Column: 3}, edit.Cursor)
	})

	t.Run("identical", func(t *testing.T) {
		_, ok := DeriveEdit("same", "same")
		assert.False(t, ok)
	})
}
