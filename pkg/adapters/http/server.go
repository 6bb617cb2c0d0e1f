package http

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/stepwise"
	"github.com/aretw0/stepwise/internal/logging"
	"github.com/aretw0/stepwise/internal/runtime"
	"github.com/aretw0/stepwise/pkg/adapters/websocket"
	"github.com/aretw0/stepwise/pkg/domain"
	"github.com/go-chi/chi/v5"
)

//go:embed openapi.yaml
var rawSpec []byte

// Engine is the part of the stepwise facade served over HTTP.
type Engine interface {
	Lessons(ctx context.Context) ([]string, error)
	Inspect(ctx context.Context, lessonID string) (domain.Lesson, error)
	Open(ctx context.Context, sessionID, lessonID string) (*runtime.Session, error)
	Get(sessionID string) (*runtime.Session, bool)
	Close(ctx context.Context, sessionID string) error
	Forget(ctx context.Context, sessionID string) error
}

// Server routes HTTP requests to an Engine.
type Server struct {
	engine  Engine
	hub     *websocket.Hub
	metrics http.Handler
	logger  *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithSandboxHub mounts GET /sessions/{sessionId}/sandbox on hub.
func WithSandboxHub(hub *websocket.Hub) Option {
	return func(s *Server) {
		s.hub = hub
	}
}

// WithMetrics serves h on GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler creates a new HTTP handler for the engine. Requests that match a
// documented operation are validated against the embedded OpenAPI document.
func NewHandler(engine Engine, opts ...Option) (http.Handler, error) {
	s := &Server{
		engine: engine,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	validator, err := newValidator(rawSpec, s.logger)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(validator.Middleware)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(rawSpec)
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(swaggerHTML))
	})
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.getInfo(validator.Version()))
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Get("/lessons", s.ListLessons)
	r.Get("/lessons/{lessonId}", s.GetLesson)

	r.Post("/sessions", s.OpenSession)
	r.Route("/sessions/{sessionId}", func(r chi.Router) {
		r.Get("/", s.GetSession)
		r.Delete("/", s.CloseSession)
		r.Put("/step", s.LoadStep)
		r.Post("/next", s.NextStep)
		r.Post("/prev", s.PrevStep)
		r.Put("/files", s.EditFile)
		r.Post("/files", s.CreateFile)
		r.Delete("/files", s.DeleteFile)
		r.Put("/active", s.SelectFile)
		r.Post("/ready", s.MarkReady)
		r.Post("/suggestions", s.Suggest)
		r.Post("/explanations", s.Explain)
		r.Post("/messages", s.PostSandboxMessage)
		r.Get("/events", s.SubscribeEvents)
		if s.hub != nil {
			r.Get("/sandbox", s.MountSandbox)
		}
	})

	return enableCORS(r), nil
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Stepwise API Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getInfo(apiVersion string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{
			"app":         "stepwise-http",
			"version":     strings.TrimSpace(stepwise.Version),
			"api_version": apiVersion,
		})
	}
}

// ListLessons handles the GET /lessons request.
func (s *Server) ListLessons(w http.ResponseWriter, r *http.Request) {
	ids, err := s.engine.Lessons(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	s.writeJSON(w, http.StatusOK, ids)
}

// GetLesson handles the GET /lessons/{lessonId} request.
func (s *Server) GetLesson(w http.ResponseWriter, r *http.Request) {
	lesson, err := s.engine.Inspect(r.Context(), chi.URLParam(r, "lessonId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, lesson)
}

// statusOf maps domain sentinels to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrLessonNotFound),
		errors.Is(err, domain.ErrStepNotFound),
		errors.Is(err, domain.ErrFileNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrStepIncomplete),
		errors.Is(err, domain.ErrFileExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, domain.ErrNotMounted):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrMalformedMessage), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

var errBadRequest = errors.New("bad request")

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	} else {
		s.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}
