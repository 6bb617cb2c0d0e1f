package registry

import (
	"testing"

	"github.com/aretw0/stepwise/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsure_KeepsIdentity(t *testing.T) {
	r := NewRegistry()
	r.Begin("step-1")

	h1, created := r.Ensure("/index.js", "a", domain.LanguageJavaScript)
	require.True(t, created)
	assert.Equal(t, "urn:step-1-/index.js", h1.Key())

	h2, created := r.Ensure("/index.js", "b", domain.LanguageJavaScript)
	assert.False(t, created)
	assert.Same(t, h1, h2)
	assert.Equal(t, "b", h1.Content())
	assert.Equal(t, 1, h1.Version())
}

func TestBegin_DisposesPreviousStep(t *testing.T) {
	r := NewRegistry()
	r.Begin("step-1")
	old, _ := r.Ensure("/index.js", "a", domain.LanguageJavaScript)
	require.True(t, r.Activate("/index.js"))

	r.Begin("step-2")
	assert.True(t, old.Disposed())
	assert.Empty(t, r.Handles())
	_, ok := r.Active()
	assert.False(t, ok)

	h, created := r.Ensure("/index.js", "a", domain.LanguageJavaScript)
	assert.True(t, created)
	assert.Equal(t, "urn:step-2-/index.js", h.Key())
}

func TestActivate_NotReady(t *testing.T) {
	r := NewRegistry()
	r.Begin("s")
	assert.False(t, r.Activate("/missing.js"))

	r.Ensure("/a.js", "", domain.LanguageJavaScript)
	assert.True(t, r.Activate("/a.js"))
	h, ok := r.Active()
	require.True(t, ok)
	assert.Equal(t, "/a.js", h.Path())
}

func TestDispose(t *testing.T) {
	r := NewRegistry()
	r.Begin("s")
	h, _ := r.Ensure("/a.js", "", domain.LanguageJavaScript)
	r.Ensure("/b.js", "", domain.LanguageJavaScript)
	r.Activate("/a.js")

	assert.True(t, r.Dispose("/a.js"))
	assert.False(t, r.Dispose("/a.js"))
	assert.True(t, h.Disposed())
	_, ok := r.Active()
	assert.False(t, ok)

	handles := r.Handles()
	require.Len(t, handles, 1)
	assert.Equal(t, "/b.js", handles[0].Path())
}
