package graphql_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/aretw0/stepwise/pkg/adapters/graphql"
	"github.com/aretw0/stepwise/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.Persistence = (*graphql.Bridge)(nil)

type recorded struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
	Auth      string         `json:"-"`
}

type fakeBackend struct {
	mu       sync.Mutex
	requests []recorded
	fail     bool
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req recorded
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.Auth = r.Header.Get("Authorization")

	f.mu.Lock()
	f.requests = append(f.requests, req)
	fail := f.fail
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if fail {
		_, _ = w.Write([]byte(`{"errors":[{"message":"checkpoint locked"}]}`))
		return
	}
	_, _ = w.Write([]byte(`{"data":{"result":{"id":"1"}}}`))
}

func (f *fakeBackend) last() recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func TestBridge_SendsMutations(t *testing.T) {
	backend := &fakeBackend{}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	bridge := graphql.New(srv.URL, graphql.WithToken("secret"))
	ctx := context.Background()

	require.NoError(t, bridge.CreateModule(ctx, "step-1", "/index.js", ""))
	req := backend.last()
	assert.Contains(t, req.Query, "createCodeModule")
	assert.Equal(t, map[string]any{"stepId": "step-1", "name": "/index.js", "value": ""}, req.Variables)
	assert.Equal(t, "Bearer secret", req.Auth)

	require.NoError(t, bridge.UpdateModule(ctx, "step-1", "/index.js", "let x;"))
	assert.Contains(t, backend.last().Query, "updateCodeModule")
	assert.Equal(t, "let x;", backend.last().Variables["value"])

	require.NoError(t, bridge.DeleteModule(ctx, "step-1", "/index.js"))
	assert.Contains(t, backend.last().Query, "deleteCodeModule")

	require.NoError(t, bridge.PassCheckpoint(ctx, "c1"))
	assert.Contains(t, backend.last().Query, "passCheckpoint")
	assert.Equal(t, map[string]any{"id": "c1"}, backend.last().Variables)

	require.NoError(t, bridge.CompleteCheckpoint(ctx, "c1"))
	assert.Contains(t, backend.last().Query, "completeCheckpoint")
}

func TestBridge_GraphQLErrors(t *testing.T) {
	backend := &fakeBackend{fail: true}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	bridge := graphql.New(srv.URL)
	err := bridge.PassCheckpoint(context.Background(), "c1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "passCheckpoint")
	assert.Contains(t, err.Error(), "checkpoint locked")
}
