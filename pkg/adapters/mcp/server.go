package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/stepwise"
	"github.com/aretw0/stepwise/internal/logging"
	"github.com/aretw0/stepwise/internal/runtime"
	"github.com/aretw0/stepwise/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const lessonURIPrefix = "stepwise://lessons/"

// Engine defines what the MCP server needs from the stepwise facade.
type Engine interface {
	Lessons(ctx context.Context) ([]string, error)
	Inspect(ctx context.Context, lessonID string) (domain.Lesson, error)
	Open(ctx context.Context, sessionID, lessonID string) (*runtime.Session, error)
	Get(sessionID string) (*runtime.Session, bool)
}

// Server exposes lesson sessions as MCP tools so an assistant can tutor a
// learner or walk through a lesson itself.
type Server struct {
	engine    Engine
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("stepwise-mcp", strings.TrimSpace(stepwise.Version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("shutting down MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ViewResponse is the structured result of every session tool.
type ViewResponse struct {
	View *domain.View `json:"view" jsonschema_description:"The session view after the operation"`
}

// SuggestResponse is the structured result of the suggest tool.
type SuggestResponse struct {
	Text string `json:"text" jsonschema_description:"The suggested completion"`
	OK   bool   `json:"ok" jsonschema_description:"False when no suggestion was produced"`
}

type sessionArgs struct {
	SessionID string `json:"session_id"`
}

type openArgs struct {
	SessionID string `json:"session_id"`
	LessonID  string `json:"lesson_id"`
}

type editArgs struct {
	SessionID string `json:"session_id"`
	Path      string `json:"path"`
	Content   string `json:"content"`
}

type navigateArgs struct {
	SessionID string `json:"session_id"`
	Direction string `json:"direction"`
}

type suggestArgs struct {
	SessionID string `json:"session_id"`
	APIKey    string `json:"api_key"`
}

type explainArgs struct {
	SessionID string `json:"session_id"`
	APIKey    string `json:"api_key"`
	domain.Hover
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_lessons",
		mcp.WithDescription("List the IDs of the available lessons."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ids, err := s.engine.Lessons(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
		}
		return mcp.NewToolResultText(strings.Join(ids, "\n")), nil
	})

	s.mcpServer.AddTool(mcp.NewTool("open_session",
		mcp.WithDescription("Open a learner session on a lesson, or resume it where it stopped."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Learner session ID")),
		mcp.WithString("lesson_id", mcp.Description("Lesson to start; omit to resume the stored one")),
		mcp.WithOutputSchema[ViewResponse](),
	), mcp.NewStructuredToolHandler(s.handleOpen))

	s.mcpServer.AddTool(mcp.NewTool("view",
		mcp.WithDescription("Show the current step, files and checkpoints of a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Learner session ID")),
		mcp.WithOutputSchema[ViewResponse](),
	), mcp.NewStructuredToolHandler(s.handleView))

	s.mcpServer.AddTool(mcp.NewTool("edit_file",
		mcp.WithDescription("Replace the content of a file in the current step. Regex checkpoints are graded immediately."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Learner session ID")),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute file path, e.g. /index.js")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Full new content of the file")),
		mcp.WithOutputSchema[ViewResponse](),
	), mcp.NewStructuredToolHandler(s.handleEdit))

	s.mcpServer.AddTool(mcp.NewTool("navigate",
		mcp.WithDescription("Move to the next or previous step. Moving forward requires every checkpoint to pass."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Learner session ID")),
		mcp.WithString("direction", mcp.Required(), mcp.Enum("next", "prev"), mcp.Description("next or prev")),
		mcp.WithOutputSchema[ViewResponse](),
	), mcp.NewStructuredToolHandler(s.handleNavigate))

	s.mcpServer.AddTool(mcp.NewTool("suggest",
		mcp.WithDescription("Ask for an inline code suggestion at the learner's cursor."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Learner session ID")),
		mcp.WithString("api_key", mcp.Required(), mcp.Description("Completion service key")),
		mcp.WithOutputSchema[SuggestResponse](),
	), mcp.NewStructuredToolHandler(s.handleSuggest))

	s.mcpServer.AddTool(mcp.NewTool("explain",
		mcp.WithDescription("Explain the hovered word, or the selection when the pointer lies inside it, for a beginner."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Learner session ID")),
		mcp.WithString("word", mcp.Description("Word under the pointer")),
		mcp.WithBoolean("in_selection", mcp.Description("Whether the pointer lies inside the selection")),
		mcp.WithString("selection", mcp.Description("Selected code")),
		mcp.WithString("api_key", mcp.Required(), mcp.Description("Completion service key")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args explainArgs
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		text, err := s.handleExplain(ctx, args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(text), nil
	})
}

// session returns the live session or resumes it from the store.
func (s *Server) session(ctx context.Context, id string) (*runtime.Session, error) {
	if id == "" {
		return nil, fmt.Errorf("session_id is required")
	}
	if sess, ok := s.engine.Get(id); ok {
		return sess, nil
	}
	return s.engine.Open(ctx, id, "")
}

func (s *Server) handleOpen(ctx context.Context, request mcp.CallToolRequest, args openArgs) (ViewResponse, error) {
	if args.SessionID == "" {
		return ViewResponse{}, fmt.Errorf("session_id is required")
	}
	sess, err := s.engine.Open(ctx, args.SessionID, args.LessonID)
	if err != nil {
		return ViewResponse{}, fmt.Errorf("open failed: %w", err)
	}
	return ViewResponse{View: sess.View()}, nil
}

func (s *Server) handleView(ctx context.Context, request mcp.CallToolRequest, args sessionArgs) (ViewResponse, error) {
	sess, err := s.session(ctx, args.SessionID)
	if err != nil {
		return ViewResponse{}, err
	}
	return ViewResponse{View: sess.View()}, nil
}

func (s *Server) handleEdit(ctx context.Context, request mcp.CallToolRequest, args editArgs) (ViewResponse, error) {
	sess, err := s.session(ctx, args.SessionID)
	if err != nil {
		return ViewResponse{}, err
	}
	view, err := sess.Edit(ctx, args.Path, args.Content)
	if err != nil {
		return ViewResponse{}, fmt.Errorf("edit failed: %w", err)
	}
	return ViewResponse{View: view}, nil
}

func (s *Server) handleNavigate(ctx context.Context, request mcp.CallToolRequest, args navigateArgs) (ViewResponse, error) {
	sess, err := s.session(ctx, args.SessionID)
	if err != nil {
		return ViewResponse{}, err
	}

	var view *domain.View
	switch args.Direction {
	case "next":
		view, err = sess.Next(ctx)
	case "prev":
		view, err = sess.Prev(ctx)
	default:
		return ViewResponse{}, fmt.Errorf("unknown direction %q", args.Direction)
	}
	if err != nil {
		s.logger.Debug("MCP navigate rejected", "session_id", args.SessionID, "direction", args.Direction, "err", err)
		return ViewResponse{}, fmt.Errorf("navigate failed: %w", err)
	}
	return ViewResponse{View: view}, nil
}

func (s *Server) handleSuggest(ctx context.Context, request mcp.CallToolRequest, args suggestArgs) (SuggestResponse, error) {
	sess, err := s.session(ctx, args.SessionID)
	if err != nil {
		return SuggestResponse{}, err
	}
	text, ok, err := sess.Suggest(ctx, nil, args.APIKey)
	if err != nil {
		return SuggestResponse{}, fmt.Errorf("suggest failed: %w", err)
	}
	return SuggestResponse{Text: text, OK: ok}, nil
}

func (s *Server) handleExplain(ctx context.Context, args explainArgs) (string, error) {
	sess, err := s.session(ctx, args.SessionID)
	if err != nil {
		return "", err
	}
	text, err := sess.Explain(ctx, args.Hover, args.APIKey)
	if err != nil {
		return "", fmt.Errorf("explain failed: %w", err)
	}
	return text, nil
}

func (s *Server) registerResources() {
	// EXPOSE: stepwise://lessons/{id}
	s.mcpServer.AddResourceTemplate(mcp.NewResourceTemplate(lessonURIPrefix+"{id}", "Lesson Definition",
		mcp.WithTemplateDescription("Steps, files and checkpoints of a lesson"),
		mcp.WithTemplateMIMEType("application/json"),
	), s.readLesson)
}

func (s *Server) readLesson(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := request.Params.URI
	id := strings.TrimPrefix(uri, lessonURIPrefix)
	if id == uri || id == "" {
		return nil, fmt.Errorf("unexpected resource %q", uri)
	}

	lesson, err := s.engine.Inspect(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect lesson: %w", err)
	}
	jsonBytes, err := json.Marshal(lesson)
	if err != nil {
		return nil, err
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(jsonBytes),
		},
	}, nil
}
