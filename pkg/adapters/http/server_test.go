package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/stepwise"
	"github.com/aretw0/stepwise/pkg/adapters/memory"
	"github.com/aretw0/stepwise/pkg/domain"
	"github.com/aretw0/stepwise/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, opts ...stepwise.Option) (*stepwise.Engine, *memory.Store) {
	t.Helper()
	loader, err := memory.NewFromLessons(domain.Lesson{
		ID: "intro",
		Steps: []domain.Step{
			{
				ID:    "hello",
				Files: []domain.FileEntry{{Path: "/index.js", Content: "let x = 1;"}},
				Checkpoints: []domain.Checkpoint{
					{ID: "c1", Message: "Name it helloWorld", Test: domain.TestSpec{Pattern: "/helloWorld/"}},
				},
			},
			{
				ID:    "bye",
				Files: []domain.FileEntry{{Path: "/index.js"}},
			},
		},
	})
	require.NoError(t, err)

	store := memory.NewStore()
	sandbox := memory.NewSandbox()
	engine, err := stepwise.New("", append([]stepwise.Option{
		stepwise.WithLoader(loader),
		stepwise.WithStore(store),
		stepwise.WithSandboxes(func(string) ports.Sandbox { return sandbox }),
	}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Shutdown(context.Background()) })
	return engine, store
}

func newTestHandler(t *testing.T) (http.Handler, *stepwise.Engine, *memory.Store) {
	t.Helper()
	engine, store := newTestEngine(t)
	handler, err := NewHandler(engine)
	require.NoError(t, err)
	return handler, engine, store
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder) domain.View {
	t.Helper()
	var view domain.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view), w.Body.String())
	return view
}

func TestHealthAndInfo(t *testing.T) {
	h, _, _ := newTestHandler(t)

	w := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = do(t, h, http.MethodGet, "/info", "")
	require.Equal(t, http.StatusOK, w.Code)
	var info map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, stepwise.Version, info["version"])
	assert.Equal(t, "1.0.0", info["api_version"])

	w = do(t, h, http.MethodGet, "/openapi.yaml", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "openapi: 3.0.3")
}

func TestLessons(t *testing.T) {
	h, _, _ := newTestHandler(t)

	w := do(t, h, http.MethodGet, "/lessons", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `["intro"]`, w.Body.String())

	w = do(t, h, http.MethodGet, "/lessons/intro", "")
	require.Equal(t, http.StatusOK, w.Code)
	var lesson domain.Lesson
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &lesson))
	assert.Len(t, lesson.Steps, 2)

	w = do(t, h, http.MethodGet, "/lessons/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionLifecycle(t *testing.T) {
	h, _, store := newTestHandler(t)

	w := do(t, h, http.MethodPost, "/sessions", `{"session_id":"learner","lesson_id":"intro"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	view := decodeView(t, w)
	assert.Equal(t, "hello", view.StepID)
	assert.Equal(t, "/index.js", view.Active)

	w = do(t, h, http.MethodPost, "/sessions/learner/next", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, h, http.MethodPut, "/sessions/learner/files", `{"path":"/index.js","content":"let helloWorld = 1;"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decodeView(t, w).Complete)

	w = do(t, h, http.MethodPost, "/sessions/learner/next", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "bye", decodeView(t, w).StepID)

	w = do(t, h, http.MethodDelete, "/sessions/learner", "")
	require.Equal(t, http.StatusNoContent, w.Code)

	progress, err := store.Load(context.Background(), "learner")
	require.NoError(t, err)
	assert.Equal(t, 1, progress.StepIndex)

	// A closed session resumes from the store on the next request.
	w = do(t, h, http.MethodGet, "/sessions/learner", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "bye", decodeView(t, w).StepID)

	w = do(t, h, http.MethodDelete, "/sessions/learner?forget=true", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, h, http.MethodGet, "/sessions/learner", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionGeneratesID(t *testing.T) {
	h, _, _ := newTestHandler(t)

	w := do(t, h, http.MethodPost, "/sessions", `{"lesson_id":"intro"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotEmpty(t, decodeView(t, w).SessionID)
}

func TestFiles(t *testing.T) {
	h, _, _ := newTestHandler(t)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/sessions", `{"session_id":"s","lesson_id":"intro"}`).Code)

	w := do(t, h, http.MethodPost, "/sessions/s/files", `{"path":"/util.js"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	view := decodeView(t, w)
	assert.Equal(t, "/util.js", view.Active)
	assert.Contains(t, view.Paths, "/util.js")

	w = do(t, h, http.MethodPost, "/sessions/s/files", `{"path":"/util.js"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, h, http.MethodPut, "/sessions/s/active", `{"path":"/index.js"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/index.js", decodeView(t, w).Active)

	w = do(t, h, http.MethodDelete, "/sessions/s/files?path=/util.js", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotContains(t, decodeView(t, w).Paths, "/util.js")

	w = do(t, h, http.MethodDelete, "/sessions/s/files?path=/util.js", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRequestValidation(t *testing.T) {
	h, _, _ := newTestHandler(t)

	tests := []struct {
		name   string
		method string
		target string
		body   string
	}{
		{"missing lesson", http.MethodPost, "/sessions", `{"session_id":"s"}`},
		{"relative path", http.MethodPut, "/sessions/s/files", `{"path":"index.js","content":""}`},
		{"unknown component", http.MethodPost, "/sessions/s/ready", `{"component":"preview"}`},
		{"negative index", http.MethodPut, "/sessions/s/step", `{"index":-1}`},
		{"missing delete path", http.MethodDelete, "/sessions/s/files", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, tt.method, tt.target, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestUnknownSession(t *testing.T) {
	h, _, _ := newTestHandler(t)

	w := do(t, h, http.MethodGet, "/sessions/ghost", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodPost, "/sessions", `{"session_id":"s","lesson_id":"missing"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPostSandboxMessage(t *testing.T) {
	h, _, _ := newTestHandler(t)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/sessions", `{"session_id":"s","lesson_id":"intro"}`).Code)

	w := do(t, h, http.MethodPost, "/sessions/s/messages", `{"from":"editor","type":"test"}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var resp messageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ignored", resp.Outcome)
	assert.NotEmpty(t, resp.Reason)

	w = do(t, h, http.MethodPost, "/sessions/s/messages", `{"from":"preview","type":"test","result":"not a list"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/sessions/s/messages", `{"from":"preview","type":"test","stepId":"hello","result":[{"status":"pass"}]}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "report", resp.Outcome)
}

func TestReadyAndSuggest(t *testing.T) {
	h, _, _ := newTestHandler(t)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/sessions", `{"session_id":"s","lesson_id":"intro"}`).Code)

	w := do(t, h, http.MethodPost, "/sessions/s/ready", `{"component":"loader"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.False(t, decodeView(t, w).Ready)

	// No completer is configured, so no suggestion is produced.
	w = do(t, h, http.MethodPost, "/sessions/s/suggestions", `{"api_key":"k","line":1,"column":4}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp suggestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.OK)
}

func TestExplainHover(t *testing.T) {
	completer := memory.NewCompleter()
	completer.SetExplanation("It declares x.")
	engine, _ := newTestEngine(t, stepwise.WithCompleter(completer))
	h, err := NewHandler(engine)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/sessions", `{"session_id":"s","lesson_id":"intro"}`).Code)

	w := do(t, h, http.MethodPost, "/sessions/s/explanations", `{"api_key":"k","word":"x","in_selection":true,"selection":"let x"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"text":"It declares x."}`, w.Body.String())

	reqs := completer.ExplainRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "let x", reqs[0].HoverSelection)
	assert.Equal(t, "k", reqs[0].APIKey)

	w = do(t, h, http.MethodPost, "/sessions/s/explanations", `{"word":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "api_key is required")
}

func TestSubscribeEvents(t *testing.T) {
	h, engine, _ := newTestHandler(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx := context.Background()
	sess, err := engine.Open(ctx, "s", "intro")
	require.NoError(t, err)

	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, srv.URL+"/sessions/s/events?watch=checkpoints", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan string, 8)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if line := scanner.Text(); strings.HasPrefix(line, "data: ") {
				events <- strings.TrimPrefix(line, "data: ")
			}
		}
		close(events)
	}()

	next := func() string {
		select {
		case ev := <-events:
			return ev
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for event")
			return ""
		}
	}

	assert.Equal(t, "connected", next())

	var initial domain.ViewDiff
	require.NoError(t, json.Unmarshal([]byte(next()), &initial))
	require.NotNil(t, initial.StepID)
	assert.Equal(t, "hello", *initial.StepID)

	_, err = sess.Edit(ctx, "/index.js", "let helloWorld = 1;")
	require.NoError(t, err)

	var diff domain.ViewDiff
	require.NoError(t, json.Unmarshal([]byte(next()), &diff))
	require.NotNil(t, diff.Complete)
	assert.True(t, *diff.Complete)
}

func TestMatchesWatch(t *testing.T) {
	active := "/a.js"
	done := true
	files := &domain.ViewDiff{Active: &active}
	checkpoints := &domain.ViewDiff{Complete: &done}

	assert.True(t, matchesWatch(files, nil))
	assert.True(t, matchesWatch(files, []string{"files"}))
	assert.False(t, matchesWatch(files, []string{"checkpoints", "status"}))
	assert.True(t, matchesWatch(checkpoints, []string{" status", "checkpoints "}))
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("load: %w", domain.ErrSessionNotFound), http.StatusNotFound},
		{domain.ErrStepNotFound, http.StatusNotFound},
		{domain.ErrLessonNotFound, http.StatusNotFound},
		{domain.ErrFileNotFound, http.StatusNotFound},
		{domain.ErrStepIncomplete, http.StatusConflict},
		{domain.ErrFileExists, http.StatusConflict},
		{domain.ErrSessionClosed, http.StatusGone},
		{domain.ErrNotMounted, http.StatusServiceUnavailable},
		{domain.ErrMalformedMessage, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusOf(tt.err), tt.err.Error())
	}
}
