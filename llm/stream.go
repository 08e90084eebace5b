package llm

import "strings"

// DoneSentinel is the literal payload that ends a round's stream. It must be
// recognized before any JSON parse attempt.
const DoneSentinel = "[DONE]"

const (
	frameDelimiter = "\n\n"
	dataMarker     = "data:"
)

// FrameScanner splits an arbitrarily chunked byte stream into frame payloads.
// A single buffer survives across Feed calls, so the extracted payload
// sequence is identical no matter where the chunk boundaries fall.
type FrameScanner struct {
	buf string
}

// Feed appends one chunk and returns every payload completed by it, in
// arrival order. Within a frame only lines carrying the data marker yield
// payloads; comment and event-name lines are ignored. Bytes of a trailing
// incomplete frame stay buffered and are simply dropped if the source ends,
// since round termination is sentinel-driven rather than EOF-driven.
func (s *FrameScanner) Feed(chunk []byte) []string {
	s.buf += string(chunk)

	var payloads []string
	for {
		idx := strings.Index(s.buf, frameDelimiter)
		if idx < 0 {
			return payloads
		}
		frame := s.buf[:idx]
		s.buf = s.buf[idx+len(frameDelimiter):]

		for _, line := range strings.Split(frame, "\n") {
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, dataMarker) {
				continue
			}
			payloads = append(payloads, strings.TrimSpace(strings.TrimPrefix(line, dataMarker)))
		}
	}
}
