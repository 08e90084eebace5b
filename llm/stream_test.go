package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStream = ": ping\n\n" +
	"event: message\ndata: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\ndata: {\"choices\":[{\"delta\":{\"content\":\"!\"}}]}\n\n" +
	"data: [DONE]\n\n"

var samplePayloads = []string{
	`{"choices":[{"delta":{"content":"Hel"}}]}`,
	`{"choices":[{"delta":{"content":"lo"}}]}`,
	`{"choices":[{"delta":{"content":"!"}}]}`,
	"[DONE]",
}

func feedAll(s *FrameScanner, input []byte, chunkSize int) []string {
	var payloads []string
	for len(input) > 0 {
		n := chunkSize
		if n > len(input) {
			n = len(input)
		}
		payloads = append(payloads, s.Feed(input[:n])...)
		input = input[n:]
	}
	return payloads
}

func TestFrameScannerExtractsPayloads(t *testing.T) {
	s := &FrameScanner{}
	payloads := s.Feed([]byte(sampleStream))
	require.Equal(t, samplePayloads, payloads)
}

func TestFrameScannerChunkBoundaryInvariance(t *testing.T) {
	want := (&FrameScanner{}).Feed([]byte(sampleStream))
	require.NotEmpty(t, want)

	// Every chunk size, down to one byte at a time, must yield the exact
	// same payload sequence.
	for chunkSize := 1; chunkSize <= len(sampleStream); chunkSize++ {
		got := feedAll(&FrameScanner{}, []byte(sampleStream), chunkSize)
		require.Equalf(t, want, got, "chunk size %d", chunkSize)
	}
}

func TestFrameScannerIgnoresNonDataLines(t *testing.T) {
	s := &FrameScanner{}
	payloads := s.Feed([]byte("event: sources\n: comment line\nid: 42\ndata: x\n\n"))
	assert.Equal(t, []string{"x"}, payloads)
}

func TestFrameScannerTrimsMarkerWhitespace(t *testing.T) {
	s := &FrameScanner{}
	payloads := s.Feed([]byte("data:   spaced   \n\ndata:[DONE]\n\n"))
	assert.Equal(t, []string{"spaced", "[DONE]"}, payloads)
}

func TestFrameScannerKeepsIncompleteFrameBuffered(t *testing.T) {
	s := &FrameScanner{}
	assert.Empty(t, s.Feed([]byte("data: {\"par")))
	assert.Empty(t, s.Feed([]byte("tial\":1}")))

	// The frame only completes once the delimiter arrives.
	assert.Equal(t, []string{`{"partial":1}`}, s.Feed([]byte("\n\n")))
}

func TestFrameScannerEmptyFrames(t *testing.T) {
	s := &FrameScanner{}
	assert.Empty(t, s.Feed([]byte("\n\n\n\n: keep-alive\n\n")))
}
