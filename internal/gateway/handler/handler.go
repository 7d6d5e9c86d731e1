package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"codementor/internal/types/mentor"
)

const maxBodyBytes = 16 << 20

// Service is what the transport needs from the orchestrator.
type Service interface {
	HandleRequest(ctx context.Context, p mentor.RequestPayload) mentor.AgentResponse
	RunSandbox(ctx context.Context, files mentor.FileSet, command string) mentor.SandboxResult
	Chat(ctx context.Context, req mentor.ChatRequest) mentor.ChatAction
	ClearCache(ctx context.Context) error
}

// SandboxRunRequest is the body of a direct sandbox run.
type SandboxRunRequest struct {
	Files       mentor.FileSet `json:"files"`
	TestCommand string         `json:"test_command"`
}

type Handler struct {
	svc Service
	log *log.Logger
}

func New(svc Service, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{svc: svc, log: logger}
}

// Register mounts the REST, WebSocket and Connect endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/projects/analyze", h.handleAnalyze)
	mux.HandleFunc("POST /api/v1/sandbox/run", h.handleSandboxRun)
	mux.HandleFunc("POST /api/v1/chat", h.handleChat)
	mux.HandleFunc("GET /api/v1/chat/ws", h.handleChatWS)
	mux.HandleFunc("DELETE /api/v1/cache", h.handleClearCache)
	mux.HandleFunc("GET /healthz", h.handleHealth)
	h.registerConnect(mux)
}

type badRequest struct{ err error }

func (e badRequest) Error() string { return e.err.Error() }
func (e badRequest) Unwrap() error { return e.err }

func invalid(format string, args ...any) error {
	return badRequest{err: fmt.Errorf(format, args...)}
}

func isBadRequest(err error) bool {
	var br badRequest
	return errors.As(err, &br)
}

// prepareAnalyze fills defaults and validates the payload.
func prepareAnalyze(p *mentor.RequestPayload) error {
	if strings.TrimSpace(string(p.Intent)) == "" {
		p.Intent = mentor.IntentReview
	} else {
		intent, err := mentor.ParseIntent(string(p.Intent))
		if err != nil {
			return badRequest{err: err}
		}
		p.Intent = intent
	}
	if p.Files == nil {
		p.Files = mentor.FileSet{}
	}
	p.ActiveFile = strings.TrimSpace(p.ActiveFile)
	if p.ActiveFile == "" {
		if paths := p.Files.SortedPaths(); len(paths) > 0 {
			p.ActiveFile = paths[0]
		}
	}
	if err := p.Validate(); err != nil {
		return badRequest{err: err}
	}
	return nil
}

func prepareSandbox(req *SandboxRunRequest) error {
	req.TestCommand = strings.TrimSpace(req.TestCommand)
	if req.TestCommand == "" {
		return invalid("test_command is required")
	}
	if err := req.Files.Validate(); err != nil {
		return badRequest{err: err}
	}
	return nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return invalid("invalid JSON body: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if isBadRequest(err) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	h.log.Printf("gateway: internal error: %v", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}
