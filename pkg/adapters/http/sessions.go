package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/aretw0/stepwise/internal/runtime"
	"github.com/aretw0/stepwise/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// maxMessageSize bounds sandbox messages posted over HTTP.
const maxMessageSize = 4 << 20

type openRequest struct {
	SessionID string `json:"session_id"`
	LessonID  string `json:"lesson_id"`
}

type stepRequest struct {
	Index int `json:"index"`
}

type fileRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type readyRequest struct {
	Component string `json:"component"`
}

type suggestRequest struct {
	APIKey string `json:"api_key"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

type explainRequest struct {
	APIKey string `json:"api_key"`
	domain.Hover
}

type suggestResponse struct {
	Text string `json:"text"`
	OK   bool   `json:"ok"`
}

type messageResponse struct {
	Outcome string       `json:"outcome"`
	Reason  string       `json:"reason,omitempty"`
	View    *domain.View `json:"view"`
}

// session returns the live session for the path parameter, resuming it from
// the progress store when this process does not hold it yet.
func (s *Server) session(r *http.Request) (*runtime.Session, error) {
	id := chi.URLParam(r, "sessionId")
	if sess, ok := s.engine.Get(id); ok {
		return sess, nil
	}
	return s.engine.Open(r.Context(), id, "")
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// viewHandler adapts a session operation that yields a view.
func (s *Server) viewHandler(status int, op func(r *http.Request, sess *runtime.Session) (*domain.View, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.session(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		view, err := op(r, sess)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, status, view)
	}
}

// OpenSession handles the POST /sessions request.
func (s *Server) OpenSession(w http.ResponseWriter, r *http.Request) {
	var body openRequest
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if body.SessionID == "" {
		body.SessionID = uuid.NewString()
	}

	sess, err := s.engine.Open(r.Context(), body.SessionID, body.LessonID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("session opened", "session_id", body.SessionID, "lesson_id", body.LessonID)
	s.writeJSON(w, http.StatusCreated, sess.View())
}

// GetSession handles the GET /sessions/{sessionId} request.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	s.viewHandler(http.StatusOK, func(r *http.Request, sess *runtime.Session) (*domain.View, error) {
		return sess.View(), nil
	})(w, r)
}

// CloseSession handles the DELETE /sessions/{sessionId} request. With
// forget=true the stored progress is dropped as well.
func (s *Server) CloseSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionId")
	var err error
	if r.URL.Query().Get("forget") == "true" {
		err = s.engine.Forget(r.Context(), id)
	} else {
		err = s.engine.Close(r.Context(), id)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LoadStep handles the PUT /sessions/{sessionId}/step request.
func (s *Server) LoadStep(w http.ResponseWriter, r *http.Request) {
	s.viewHandler(http.StatusOK, func(r *http.Request, sess *runtime.Session) (*domain.View, error) {
		var body stepRequest
		if err := decode(r, &body); err != nil {
			return nil, err
		}
		return sess.LoadStep(r.Context(), body.Index)
	})(w, r)
}

// NextStep handles the POST /sessions/{sessionId}/next request.
func (s *Server) NextStep(w http.ResponseWriter, r *http.Request) {
	s.viewHandler(http.StatusOK, func(r *http.Request, sess *runtime.Session) (*domain.View, error) {
		return sess.Next(r.Context())
	})(w, r)
}

// PrevStep handles the POST /sessions/{sessionId}/prev request.
func (s *Server) PrevStep(w http.ResponseWriter, r *http.Request) {
	s.viewHandler(http.StatusOK, func(r *http.Request, sess *runtime.Session) (*domain.View, error) {
		return sess.Prev(r.Context())
	})(w, r)
}

// EditFile handles the PUT /sessions/{sessionId}/files request.
func (s *Server) EditFile(w http.ResponseWriter, r *http.Request) {
	s.viewHandler(http.StatusOK, func(r *http.Request, sess *runtime.Session) (*domain.View, error) {
		var body fileRequest
		if err := decode(r, &body); err != nil {
			return nil, err
		}
		return sess.Edit(r.Context(), body.Path, body.Content)
	})(w, r)
}

// CreateFile handles the POST /sessions/{sessionId}/files request.
func (s *Server) CreateFile(w http.ResponseWriter, r *http.Request) {
	s.viewHandler(http.StatusCreated, func(r *http.Request, sess *runtime.Session) (*domain.View, error) {
		var body fileRequest
		if err := decode(r, &body); err != nil {
			return nil, err
		}
		return sess.CreateFile(r.Context(), body.Path)
	})(w, r)
}

// DeleteFile handles the DELETE /sessions/{sessionId}/files request.
func (s *Server) DeleteFile(w http.ResponseWriter, r *http.Request) {
	s.viewHandler(http.StatusOK, func(r *http.Request, sess *runtime.Session) (*domain.View, error) {
		return sess.DeleteFile(r.Context(), r.URL.Query().Get("path"))
	})(w, r)
}

// SelectFile handles the PUT /sessions/{sessionId}/active request.
func (s *Server) SelectFile(w http.ResponseWriter, r *http.Request) {
	s.viewHandler(http.StatusOK, func(r *http.Request, sess *runtime.Session) (*domain.View, error) {
		var body fileRequest
		if err := decode(r, &body); err != nil {
			return nil, err
		}
		return sess.SelectFile(body.Path)
	})(w, r)
}

// MarkReady handles the POST /sessions/{sessionId}/ready request.
func (s *Server) MarkReady(w http.ResponseWriter, r *http.Request) {
	s.viewHandler(http.StatusOK, func(r *http.Request, sess *runtime.Session) (*domain.View, error) {
		var body readyRequest
		if err := decode(r, &body); err != nil {
			return nil, err
		}
		return sess.MarkReady(body.Component)
	})(w, r)
}

// Suggest handles the POST /sessions/{sessionId}/suggestions request.
func (s *Server) Suggest(w http.ResponseWriter, r *http.Request) {
	var body suggestRequest
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var pos *domain.Position
	if body.Line > 0 && body.Column > 0 {
		pos = &domain.Position{Line: body.Line, Column: body.Column}
	}
	text, ok, err := sess.Suggest(r.Context(), pos, body.APIKey)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, suggestResponse{Text: text, OK: ok})
}

// Explain handles the POST /sessions/{sessionId}/explanations request.
func (s *Server) Explain(w http.ResponseWriter, r *http.Request) {
	var body explainRequest
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	text, err := sess.Explain(r.Context(), body.Hover, body.APIKey)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

// PostSandboxMessage handles the POST /sessions/{sessionId}/messages request,
// the polling alternative to the sandbox websocket.
func (s *Server) PostSandboxMessage(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxMessageSize))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	in, err := sess.HandleSandboxMessage(r.Context(), raw)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := messageResponse{View: sess.View()}
	switch msg := in.(type) {
	case domain.TestReport:
		resp.Outcome = "report"
	case domain.Ignored:
		resp.Outcome = "ignored"
		resp.Reason = msg.Reason
	case domain.Malformed:
		s.writeError(w, r, msg.Err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, resp)
}

// MountSandbox handles GET /sessions/{sessionId}/sandbox by upgrading the
// connection and attaching it as the session's sandbox.
func (s *Server) MountSandbox(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.hub.Serve(w, r, sess.ID(), sess); err != nil {
		s.logger.Debug("sandbox connection ended", "session_id", sess.ID(), "err", err)
	}
}
