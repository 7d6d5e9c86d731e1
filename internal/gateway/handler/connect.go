package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"connectrpc.com/connect"

	"codementor/internal/types/mentor"
)

const (
	ServiceName         = "codementor.v1.MentorService"
	AnalyzeProcedure    = "/" + ServiceName + "/Analyze"
	RunSandboxProcedure = "/" + ServiceName + "/RunSandbox"
	ChatProcedure       = "/" + ServiceName + "/Chat"
)

// JSONCodec lets Connect carry plain Go structs as JSON.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (h *Handler) registerConnect(mux *http.ServeMux) {
	opts := []connect.HandlerOption{connect.WithCodec(JSONCodec{})}
	mux.Handle(AnalyzeProcedure, connect.NewUnaryHandler(AnalyzeProcedure, h.analyzeRPC, opts...))
	mux.Handle(RunSandboxProcedure, connect.NewUnaryHandler(RunSandboxProcedure, h.runSandboxRPC, opts...))
	mux.Handle(ChatProcedure, connect.NewUnaryHandler(ChatProcedure, h.chatRPC, opts...))
}

func (h *Handler) analyzeRPC(ctx context.Context, req *connect.Request[mentor.RequestPayload]) (*connect.Response[mentor.AgentResponse], error) {
	p := *req.Msg
	if err := prepareAnalyze(&p); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	resp := h.svc.HandleRequest(ctx, p)
	return connect.NewResponse(&resp), nil
}

func (h *Handler) runSandboxRPC(ctx context.Context, req *connect.Request[SandboxRunRequest]) (*connect.Response[mentor.SandboxResult], error) {
	in := *req.Msg
	if err := prepareSandbox(&in); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	res := h.svc.RunSandbox(ctx, in.Files, in.TestCommand)
	return connect.NewResponse(&res), nil
}

func (h *Handler) chatRPC(ctx context.Context, req *connect.Request[mentor.ChatRequest]) (*connect.Response[mentor.ChatAction], error) {
	act := h.svc.Chat(ctx, *req.Msg)
	return connect.NewResponse(&act), nil
}
