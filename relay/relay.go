package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/relaychat/relay/capability"
	"github.com/relaychat/relay/llm"
	"github.com/relaychat/relay/search"
)

// EventSink receives the ordered client-facing event sequence for one
// request. Sends start failing once the client is gone; that is what stops
// the relay from driving further rounds.
type EventSink interface {
	SendSources(results []search.Result) error
	SendContent(delta string) error
	SendError(message string) error
}

// Backend is the streaming completion client the relay drives each round.
type Backend interface {
	CreateChatStream(ctx context.Context, req llm.ChatRequest) (io.ReadCloser, error)
}

// Request is one incoming chat turn.
type Request struct {
	Message   string        `json:"message"`
	UseSearch bool          `json:"use_search"`
	History   []llm.Message `json:"history"`
}

// System prompts seeded at the head of every conversation. The search variant
// names the web_search capability and requires citing results by index.
const (
	plainSystemPrompt = "You are a helpful AI assistant. Answer as clearly as possible."

	searchSystemPrompt = "You are a helpful AI assistant with access to a web_search tool. " +
		"Call it when recent or factual web information is needed. " +
		"When you use search results, cite them by their index number, e.g. [1]."
)

const (
	defaultMaxRounds    = 8
	defaultRoundTimeout = 2 * time.Minute
)

// Client-facing diagnostics for the error event. Details stay in the logs.
const (
	errMsgBackend    = "LLM streaming error"
	errMsgStream     = "stream error (see server logs)"
	errMsgTimeout    = "LLM round timed out"
	errMsgToolCalls  = "model produced malformed tool calls"
	errMsgRoundLimit = "tool call round limit reached"
)

var (
	errSinkClosed    = errors.New("client event sink closed")
	errBackendStream = errors.New("backend stream failed")
)

// Options bound the round loop.
type Options struct {
	// MaxRounds caps how many backend rounds one request may take.
	MaxRounds int
	// RoundTimeout bounds one round including its tool executions. Zero
	// disables the bound.
	RoundTimeout time.Duration
}

// Relay owns one conversation per request and drives the round loop against
// the completion backend, executing tool invocations between rounds and
// emitting the client event sequence as it goes.
type Relay struct {
	backend      Backend
	capabilities *capability.Registry
	maxRounds    int
	roundTimeout time.Duration
	logger       *zap.Logger
}

// New creates a relay. Zero option fields fall back to defaults, except
// RoundTimeout where zero keeps rounds unbounded.
func New(backend Backend, caps *capability.Registry, opts Options, logger *zap.Logger) *Relay {
	maxRounds := opts.MaxRounds
	if maxRounds <= 0 {
		maxRounds = defaultMaxRounds
	}
	return &Relay{
		backend:      backend,
		capabilities: caps,
		maxRounds:    maxRounds,
		roundTimeout: opts.RoundTimeout,
		logger:       logger,
	}
}

// Run drives the full multi-round loop for one request. It returns once the
// final answer has been streamed, an error event has been sent, or the sink
// is gone. The conversation lives exactly as long as this call.
func (r *Relay) Run(ctx context.Context, req Request, sink EventSink) {
	conv := seedConversation(req)

	// Announce an empty result set up front so the client's source list is
	// in a known state even when no search happens.
	if err := sink.SendSources(nil); err != nil {
		r.logger.Debug("Client gone before first event", zap.Error(err))
		return
	}

	var tools []llm.ToolDefinition
	var toolChoice *llm.ToolChoice
	if req.UseSearch {
		tools = r.capabilities.Definitions()
		toolChoice = &llm.ToolChoice{Mode: llm.ToolChoiceAuto}
	}

	for round := 1; ; round++ {
		if round > r.maxRounds {
			r.logger.Warn("Round limit reached", zap.Int("maxRounds", r.maxRounds))
			sink.SendError(errMsgRoundLimit)
			return
		}
		logger := r.logger.With(zap.Int("round", round))

		next, done := r.runRound(ctx, conv, tools, toolChoice, sink, logger)
		if done {
			return
		}
		conv = next
	}
}

// runRound drives one backend round and the tool executions it produced,
// both under the same deadline. It returns the extended conversation, or
// done once the request is finished: answer streamed, error event sent, or
// client gone.
func (r *Relay) runRound(ctx context.Context, conv []llm.Message, tools []llm.ToolDefinition,
	toolChoice *llm.ToolChoice, sink EventSink, logger *zap.Logger) (next []llm.Message, done bool) {

	roundCtx := ctx
	if r.roundTimeout > 0 {
		var cancel context.CancelFunc
		roundCtx, cancel = context.WithTimeout(ctx, r.roundTimeout)
		defer cancel()
	}

	calls, err := r.streamRound(roundCtx, conv, tools, toolChoice, sink, logger)
	switch {
	case errors.Is(err, errSinkClosed):
		logger.Debug("Client disconnected, stopping relay")
		return nil, true
	case err != nil:
		logger.Error("Round failed", zap.Error(err))
		sink.SendError(clientMessage(err))
		return nil, true
	}

	if calls == nil {
		// No tool calls this round: the answer already streamed.
		logger.Debug("Round finished without tool calls")
		return nil, true
	}
	if len(calls) == 0 {
		// Tool calls were signaled but none survived finalization.
		// Ending silently here would close the stream with no answer
		// and no diagnostic, so surface it instead.
		logger.Error("Tool calls signaled but none were complete")
		sink.SendError(errMsgToolCalls)
		return nil, true
	}

	conv = append(conv, llm.Message{Role: llm.RoleAssistant, ToolCalls: calls})

	// Strictly sequential, in slot order, even when several invocations
	// arrived in one round. A deadline hit during execution surfaces as an
	// error payload in that call's tool message, not as a round failure.
	for _, call := range calls {
		outcome := r.capabilities.Execute(roundCtx, call)
		if outcome.Sources != nil {
			if err := sink.SendSources(outcome.Sources); err != nil {
				logger.Debug("Client disconnected during tool execution", zap.Error(err))
				return nil, true
			}
		}
		conv = append(conv, llm.Message{
			Role:       llm.RoleTool,
			Content:    outcome.Payload,
			ToolCallID: call.ID,
			Name:       call.Function.Name,
		})
	}
	return conv, false
}

// streamRound sends the conversation to the backend and consumes one streamed
// response. It returns nil when the round produced a plain streamed answer,
// or the finalized invocation list (possibly empty) when tool calls were
// signaled. Content forwarding is suppressed for the remainder of the round
// as soon as the first tool-call fragment is seen.
func (r *Relay) streamRound(ctx context.Context, conv []llm.Message, tools []llm.ToolDefinition,
	toolChoice *llm.ToolChoice, sink EventSink, logger *zap.Logger) ([]llm.ToolCall, error) {

	body, err := r.backend.CreateChatStream(ctx, llm.ChatRequest{
		Messages:       conv,
		Tools:          tools,
		ToolChoice:     toolChoice,
		ParseToolCalls: len(tools) > 0,
	})
	if err != nil {
		return nil, fmt.Errorf("backend request: %w", err)
	}
	defer body.Close()

	scanner := &llm.FrameScanner{}
	acc := llm.NewToolCallAccumulator()
	sawToolCalls := false
	buf := make([]byte, 4096)

read:
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			for _, payload := range scanner.Feed(buf[:n]) {
				// The sentinel is a bare token, checked before any parse.
				if payload == llm.DoneSentinel {
					break read
				}

				var chunk llm.StreamChunk
				if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
					logger.Debug("Skipping malformed stream payload", zap.String("payload", payload))
					continue
				}
				if len(chunk.Choices) == 0 {
					continue
				}

				delta := chunk.Choices[0].Delta
				if len(delta.ToolCalls) > 0 {
					sawToolCalls = true
					for _, frag := range delta.ToolCalls {
						acc.Add(frag)
					}
					continue
				}
				if !sawToolCalls && delta.Content != "" {
					if err := sink.SendContent(delta.Content); err != nil {
						return nil, errSinkClosed
					}
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("%w: %w", errBackendStream, readErr)
		}
	}

	if !sawToolCalls {
		return nil, nil
	}
	return acc.Finalize(), nil
}

// clientMessage maps an internal round error to the plain-text diagnostic
// sent on the error event.
func clientMessage(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return errMsgTimeout
	case errors.Is(err, errBackendStream):
		return errMsgStream
	default:
		return errMsgBackend
	}
}

func seedConversation(req Request) []llm.Message {
	prompt := plainSystemPrompt
	if req.UseSearch {
		prompt = searchSystemPrompt
	}

	conv := make([]llm.Message, 0, len(req.History)+2)
	conv = append(conv, llm.Message{Role: llm.RoleSystem, Content: prompt})
	conv = append(conv, req.History...)
	conv = append(conv, llm.Message{Role: llm.RoleUser, Content: req.Message})
	return conv
}
