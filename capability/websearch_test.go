package capability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relaychat/relay/llm"
	"github.com/relaychat/relay/search"
)

// fakeSearcher returns count canned results, or err.
type fakeSearcher struct {
	count     int
	err       error
	lastQuery string
}

func (f *fakeSearcher) Search(_ context.Context, query string) ([]search.Result, error) {
	f.lastQuery = query
	if f.err != nil {
		return nil, f.err
	}
	results := make([]search.Result, f.count)
	for i := range results {
		results[i] = search.Result{
			Title:   fmt.Sprintf("title %d", i),
			Snippet: fmt.Sprintf("snippet %d", i),
			URL:     fmt.Sprintf("https://example.com/%d", i),
		}
	}
	return results, nil
}

func TestWebSearchPayload(t *testing.T) {
	ws := NewWebSearch(&fakeSearcher{count: 3}, zap.NewNop())
	outcome, err := ws.Invoke(context.Background(), `{"query":"today's news"}`)
	require.NoError(t, err)

	var payload webSearchPayload
	require.NoError(t, json.Unmarshal([]byte(outcome.Payload), &payload))
	assert.Equal(t, "today's news", payload.Query)
	assert.Equal(t, citeInstruction, payload.Instructions)
	require.Len(t, payload.Results, 3)
	assert.Equal(t, 1, payload.Results[0].Index, "entries are 1-based")
	assert.Equal(t, 3, payload.Results[2].Index)
	assert.Equal(t, "title 0", payload.Results[0].Title)
	assert.Equal(t, "https://example.com/2", payload.Results[2].URL)

	require.Len(t, outcome.Sources, 3)
	assert.Equal(t, "title 0", outcome.Sources[0].Title)
}

func TestWebSearchClamp(t *testing.T) {
	tests := []struct {
		name string
		args string
		want int
	}{
		{"AbsentDefaultsTo5", `{"query":"q"}`, 5},
		{"HighClampsTo7", `{"query":"q","num_results":20}`, 7},
		{"ZeroClampsTo1", `{"query":"q","num_results":0}`, 1},
		{"NegativeClampsTo1", `{"query":"q","num_results":-3}`, 1},
		{"InRangeKept", `{"query":"q","num_results":3}`, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := NewWebSearch(&fakeSearcher{count: 10}, zap.NewNop())
			outcome, err := ws.Invoke(context.Background(), tt.args)
			require.NoError(t, err)
			assert.Len(t, outcome.Sources, tt.want)
		})
	}
}

func TestWebSearchBadArguments(t *testing.T) {
	ws := NewWebSearch(&fakeSearcher{count: 1}, zap.NewNop())

	_, err := ws.Invoke(context.Background(), `{"query":"   "}`)
	assert.Error(t, err, "whitespace-only query is rejected")

	_, err = ws.Invoke(context.Background(), `{"num_results":3}`)
	assert.Error(t, err, "missing query is rejected")

	_, err = ws.Invoke(context.Background(), `{"query":`)
	assert.Error(t, err, "truncated argument JSON is rejected")
}

func TestWebSearchProviderFailure(t *testing.T) {
	ws := NewWebSearch(&fakeSearcher{err: errors.New("aggregator down")}, zap.NewNop())
	_, err := ws.Invoke(context.Background(), `{"query":"q"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aggregator down")
}

func TestRegistryExecute(t *testing.T) {
	reg := NewRegistry(zap.NewNop(), NewWebSearch(&fakeSearcher{count: 2}, zap.NewNop()))

	call := llm.ToolCall{ID: "call-1", Type: "function"}
	call.Function.Name = WebSearchName
	call.Function.Arguments = `{"query":"q"}`

	outcome := reg.Execute(context.Background(), call)
	assert.Len(t, outcome.Sources, 2)
	assert.Contains(t, outcome.Payload, `"query":"q"`)
}

func TestRegistryUnknownCapability(t *testing.T) {
	reg := NewRegistry(zap.NewNop(), NewWebSearch(&fakeSearcher{count: 2}, zap.NewNop()))

	call := llm.ToolCall{ID: "call-1"}
	call.Function.Name = "get_weather"

	outcome := reg.Execute(context.Background(), call)
	assert.Nil(t, outcome.Sources, "no result set for a failed invocation")

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(outcome.Payload), &payload),
		"error payload must still be well-formed JSON")
	assert.Contains(t, payload["error"], "get_weather")
}

func TestRegistryWrapsInvokeError(t *testing.T) {
	reg := NewRegistry(zap.NewNop(), NewWebSearch(&fakeSearcher{err: errors.New("boom")}, zap.NewNop()))

	call := llm.ToolCall{ID: "call-1"}
	call.Function.Name = WebSearchName
	call.Function.Arguments = `{"query":"q"}`

	outcome := reg.Execute(context.Background(), call)
	assert.Nil(t, outcome.Sources)
	assert.Contains(t, outcome.Payload, "boom")
}

func TestRegistryDefinitions(t *testing.T) {
	reg := NewRegistry(zap.NewNop(), NewWebSearch(&fakeSearcher{}, zap.NewNop()))
	defs := reg.Definitions()
	require.Len(t, defs, 1)
	assert.Equal(t, WebSearchName, defs[0].Function.Name)
	assert.Equal(t, "function", defs[0].Type)
}
