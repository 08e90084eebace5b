package capability

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/relaychat/relay/llm"
	"github.com/relaychat/relay/search"
)

// Outcome is what one invocation produces: the payload placed in a tool-role
// message, plus any fresh result set to surface to the client. Sources is nil
// when the invocation has nothing to display.
type Outcome struct {
	Payload string
	Sources []search.Result
}

// Capability is one named action the completion backend may invoke. The raw
// argument text reaches Invoke unparsed; each implementation parses its own.
type Capability interface {
	Name() string
	Definition() llm.ToolDefinition
	Invoke(ctx context.Context, rawArgs string) (*Outcome, error)
}

// Registry is the closed set of supported capabilities and the execution
// point for the backend's finalized invocations. Execution failures are
// recovered here: they become an error payload that still forms a well-formed
// tool-role message, so the conversation stays valid and the backend can
// react in the next round.
type Registry struct {
	logger *zap.Logger
	caps   map[string]Capability
	order  []string
}

// NewRegistry builds a registry from the given capabilities. Duplicate names
// keep the first registration.
func NewRegistry(logger *zap.Logger, caps ...Capability) *Registry {
	r := &Registry{logger: logger, caps: make(map[string]Capability)}
	for _, c := range caps {
		if _, dup := r.caps[c.Name()]; dup {
			logger.Warn("Ignoring duplicate capability", zap.String("capability", c.Name()))
			continue
		}
		r.caps[c.Name()] = c
		r.order = append(r.order, c.Name())
	}
	return r
}

// Definitions returns the declarations sent to the backend, in registration
// order.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.caps[name].Definition())
	}
	return defs
}

// Execute dispatches one invocation by capability name. It never fails
// outright: an unknown capability or a failed invocation produces an error
// payload instead, and the caller appends it to the conversation like any
// other result.
func (r *Registry) Execute(ctx context.Context, call llm.ToolCall) Outcome {
	logger := r.logger.With(zap.String("capability", call.Function.Name), zap.String("callID", call.ID))

	c, ok := r.caps[call.Function.Name]
	if !ok {
		logger.Warn("Backend requested unknown capability")
		return errorOutcome(fmt.Sprintf("unknown capability: %s", call.Function.Name))
	}

	outcome, err := c.Invoke(ctx, call.Function.Arguments)
	if err != nil {
		logger.Warn("Capability invocation failed", zap.Error(err))
		return errorOutcome(err.Error())
	}
	logger.Debug("Capability invocation done", zap.Int("sources", len(outcome.Sources)))
	return *outcome
}

func errorOutcome(message string) Outcome {
	payload, _ := json.Marshal(map[string]string{"error": message})
	return Outcome{Payload: string(payload)}
}
