package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relaychat/relay/relay"
)

// Runner drives one chat request against its event sink. Satisfied by
// *relay.Relay.
type Runner interface {
	Run(ctx context.Context, req relay.Request, sink relay.EventSink)
}

// ChatHandler terminates the client boundary: it decodes the chat request,
// opens the server-push event stream and hands its sink to the relay.
type ChatHandler struct {
	runner Runner
	logger *zap.Logger
}

// NewChatHandler creates the handler for the chat stream endpoint.
func NewChatHandler(runner Runner, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{runner: runner, logger: logger}
}

func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(zap.String("requestID", uuid.NewString()))

	var req relay.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("Rejecting malformed chat request", zap.Error(err))
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		logger.Warn("Rejecting chat request without a message")
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.Error("Response writer does not support streaming")
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sink := newSSESink(w, flusher)
	stopKeepAlive := sink.startKeepAlive(r.Context(), keepAliveInterval)
	defer stopKeepAlive()

	logger.Info("Chat stream opened",
		zap.Bool("useSearch", req.UseSearch),
		zap.Int("historyLen", len(req.History)))

	// The relay owns the request from here; the stream closing is the
	// completion signal, no explicit done event is sent.
	h.runner.Run(r.Context(), req, sink)

	logger.Info("Chat stream closed")
}
