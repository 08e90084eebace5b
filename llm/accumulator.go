package llm

import "strings"

// partialToolCall collects one slot's fragments. The id and name are
// first-write-wins; argument text is append-only in arrival order, because
// the fragments are partial JSON that is only valid once fully concatenated.
type partialToolCall struct {
	id   string
	name string
	args strings.Builder
}

// ToolCallAccumulator reassembles tool-call fragments scattered across a
// round's payloads into complete invocations. Slots are addressed by the
// backend-assigned index and created on demand when a higher index is first
// observed; fragments for different slots may interleave arbitrarily.
type ToolCallAccumulator struct {
	slots []*partialToolCall
}

// NewToolCallAccumulator returns an empty accumulator scoped to one round.
func NewToolCallAccumulator() *ToolCallAccumulator {
	return &ToolCallAccumulator{}
}

// Add merges one fragment into its slot.
func (a *ToolCallAccumulator) Add(d ToolCallDelta) {
	if d.Index < 0 {
		return
	}
	for len(a.slots) <= d.Index {
		a.slots = append(a.slots, &partialToolCall{})
	}
	slot := a.slots[d.Index]
	if slot.id == "" {
		slot.id = d.ID
	}
	if slot.name == "" {
		slot.name = d.Function.Name
	}
	slot.args.WriteString(d.Function.Arguments)
}

// Finalize converts the slots into invocations, in slot order. A slot that
// never received an id or a name is dropped: it was signaled but never became
// executable.
func (a *ToolCallAccumulator) Finalize() []ToolCall {
	calls := make([]ToolCall, 0, len(a.slots))
	for _, slot := range a.slots {
		if slot.id == "" || slot.name == "" {
			continue
		}
		calls = append(calls, ToolCall{
			ID:   slot.id,
			Type: "function",
			Function: FunctionCall{
				Name:      slot.name,
				Arguments: slot.args.String(),
			},
		})
	}
	return calls
}
