package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/relaychat/relay/search"
)

// Client event names. Content deltas go out unnamed, matching what chat
// frontends expect from completion streams.
const (
	eventSources = "sources"
	eventError   = "error"
)

const keepAliveInterval = 15 * time.Second

// contentEvent is the envelope for one content delta sent to the client.
type contentEvent struct {
	Choices []contentChoice `json:"choices"`
}

type contentChoice struct {
	Delta contentDelta `json:"delta"`
}

type contentDelta struct {
	Content string `json:"content"`
}

// sseSink writes the client-facing event stream onto an HTTP response. All
// writes go through one mutex so keep-alive comments cannot interleave with
// event frames; ordering of events is the caller's ordering.
type sseSink struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
}

func newSSESink(w io.Writer, flusher http.Flusher) *sseSink {
	return &sseSink{w: w, flusher: flusher}
}

func (s *sseSink) send(event, data string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	if event != "" {
		fmt.Fprintf(&b, "event: %s\n", event)
	}
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")

	if _, err := io.WriteString(s.w, b.String()); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// SendSources emits the current result set. A nil set goes out as an empty
// JSON array so the client's source list is always well-formed.
func (s *sseSink) SendSources(results []search.Result) error {
	if results == nil {
		results = []search.Result{}
	}
	data, err := json.Marshal(results)
	if err != nil {
		return err
	}
	return s.send(eventSources, string(data))
}

// SendContent emits one content delta wrapped in the completion-chunk
// envelope the client expects.
func (s *sseSink) SendContent(delta string) error {
	data, err := json.Marshal(contentEvent{Choices: []contentChoice{{Delta: contentDelta{Content: delta}}}})
	if err != nil {
		return err
	}
	return s.send("", string(data))
}

// SendError emits a plain-text diagnostic.
func (s *sseSink) SendError(message string) error {
	return s.send(eventError, message)
}

// startKeepAlive writes comment pings until the returned stop function is
// called or ctx ends, so idle proxies do not drop the stream while a slow
// backend round is in flight.
func (s *sseSink) startKeepAlive(ctx context.Context, interval time.Duration) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				s.mu.Lock()
				_, err := io.WriteString(s.w, ": keep-alive\n\n")
				if err == nil {
					s.flusher.Flush()
				}
				s.mu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
