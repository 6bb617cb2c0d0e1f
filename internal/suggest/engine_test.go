package suggest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/stepwise/pkg/adapters/memory"
	"github.com/aretw0/stepwise/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func request() Request {
	return Request{
		APIKey:       "key",
		Instructions: "Say hi",
		Text:         "console.",
		Position:     domain.Position{Line: 1, Column: 9},
	}
}

func TestSuggest_FirstCandidate(t *testing.T) {
	c := memory.NewCompleter("log('hi')", "warn('hi')")
	e := New(c, WithDelay(time.Millisecond))

	text, ok := e.Suggest(context.Background(), request())
	require.True(t, ok)
	assert.Equal(t, "log('hi')", text)

	reqs := c.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "key", reqs[0].APIKey)
	assert.Empty(t, reqs[0].Suffix)
}

func TestSuggest_CompleteStepMakesNoCalls(t *testing.T) {
	c := memory.NewCompleter("x")
	e := New(c, WithDelay(time.Millisecond))

	req := request()
	req.Complete = true
	_, ok := e.Suggest(context.Background(), req)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Calls())
}

func TestSuggest_NewerCallSupersedes(t *testing.T) {
	c := memory.NewCompleter("x")
	e := New(c, WithDelay(30*time.Millisecond))

	var wg sync.WaitGroup
	results := make([]bool, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, results[i] = e.Suggest(context.Background(), request())
		}()
		time.Sleep(5 * time.Millisecond)
	}
	wg.Wait()

	assert.Equal(t, []bool{false, true}, results)
	assert.Equal(t, 1, c.Calls())
}

func TestSuggest_ActiveGuard(t *testing.T) {
	c := memory.NewCompleter("x")
	e := New(c, WithDelay(time.Millisecond))

	req := request()
	req.Active = func() bool { return false }
	_, ok := e.Suggest(context.Background(), req)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Calls())
}

func TestSuggest_FailureYieldsNothing(t *testing.T) {
	c := memory.NewCompleter("x")
	c.SetError(errors.New("network down"))

	var events []*domain.SuggestionEvent
	hooks := domain.LifecycleHooks{OnSuggestion: func(_ context.Context, e *domain.SuggestionEvent) { events = append(events, e) }}
	e := New(c, WithDelay(time.Millisecond), WithHooks("s", hooks))

	_, ok := e.Suggest(context.Background(), request())
	assert.False(t, ok)
	require.Len(t, events, 1)
	assert.Error(t, events[0].Err)
}

func TestSuggest_ContextCancelled(t *testing.T) {
	c := memory.NewCompleter("x")
	e := New(c, WithDelay(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := e.Suggest(ctx, request())
	assert.False(t, ok)
	assert.Equal(t, 0, c.Calls())
}

func TestExplain_Dedupes(t *testing.T) {
	c := memory.NewCompleter()
	c.SetExplanation("It prints text.")
	e := New(c)
	ctx := context.Background()

	text, err := e.Explain(ctx, ExplainRequest{Code: "console.log(1)", Hover: domain.Hover{Word: "console.log"}})
	require.NoError(t, err)
	assert.Equal(t, "It prints text.", text)

	text, err = e.Explain(ctx, ExplainRequest{Code: "console.log(1)", Hover: domain.Hover{Word: "console.log"}})
	require.NoError(t, err)
	assert.Equal(t, "It prints text.", text)
	assert.Equal(t, 1, c.Calls())

	reqs := c.ExplainRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, ExplainPrompt("console.log(1)", "console.log"), reqs[0].Prompt)

	e.Reset()
	_, _ = e.Explain(ctx, ExplainRequest{Code: "console.log(1)", Hover: domain.Hover{Word: "console.log"}})
	assert.Equal(t, 2, c.Calls())
}

func TestExplain_HoverTarget(t *testing.T) {
	c := memory.NewCompleter()
	c.SetExplanation("ok")
	e := New(c)
	ctx := context.Background()
	code := "const total = sum(a, b)"

	_, err := e.Explain(ctx, ExplainRequest{Code: code, Hover: domain.Hover{Word: "sum", InSelection: true, Selection: "sum(a, b)"}})
	require.NoError(t, err)
	_, err = e.Explain(ctx, ExplainRequest{Code: code, Hover: domain.Hover{Word: "total", Selection: "sum(a, b)"}})
	require.NoError(t, err)

	reqs := c.ExplainRequests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "sum(a, b)", reqs[0].HoverSelection, "inside the selection the selection wins")
	assert.Equal(t, "total", reqs[1].HoverSelection, "outside it the word wins")

	text, err := e.Explain(ctx, ExplainRequest{Code: code})
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Equal(t, 2, c.Calls(), "nothing hovered, nothing requested")
}
