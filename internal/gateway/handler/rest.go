package handler

import (
	"net/http"

	"codementor/internal/types/mentor"
)

func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var p mentor.RequestPayload
	if err := decodeJSON(w, r, &p); err != nil {
		h.writeError(w, err)
		return
	}
	if err := prepareAnalyze(&p); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.HandleRequest(r.Context(), p))
}

func (h *Handler) handleSandboxRun(w http.ResponseWriter, r *http.Request) {
	var req SandboxRunRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if err := prepareSandbox(&req); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.RunSandbox(r.Context(), req.Files, req.TestCommand))
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req mentor.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Chat(r.Context(), req))
}

func (h *Handler) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearCache(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
