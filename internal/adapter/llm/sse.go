package llm

import (
	"bufio"
	"bytes"
	"context"
	"io"

	"conductor/internal/domain"
)

// maxSSELine bounds a single event line. Model backends can put a whole
// completion chunk on one line.
const maxSSELine = 1024 * 1024

var sseDone = []byte("[DONE]")

// chunkParser converts one SSE data payload into a delta. A nil delta with a
// nil error means the payload carried nothing of interest.
type chunkParser func(data []byte) (*domain.StreamDelta, error)

// parseSSEStream reads server-sent events from body and forwards each parsed
// data payload. Multi-line data fields are joined with '\n' and dispatched at
// the blank line that ends the event. The channel always ends with a Done
// delta unless ctx is cancelled first; body is closed on return.
func parseSSEStream(ctx context.Context, body io.ReadCloser, parse chunkParser) <-chan domain.StreamDelta {
	ch := make(chan domain.StreamDelta, 16)
	go func() {
		defer close(ch)
		defer body.Close()

		send := func(d domain.StreamDelta) bool {
			select {
			case ch <- d:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var data [][]byte
		// dispatch returns false once the stream is finished.
		dispatch := func() bool {
			if len(data) == 0 {
				return true
			}
			payload := bytes.Join(data, []byte("\n"))
			data = data[:0]

			if bytes.Equal(payload, sseDone) {
				send(domain.StreamDelta{Done: true})
				return false
			}
			delta, err := parse(payload)
			if err != nil || delta == nil {
				return true
			}
			if !send(*delta) {
				return false
			}
			return !delta.Done
		}

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxSSELine)
		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}
			line := scanner.Bytes()
			if len(line) == 0 {
				if !dispatch() {
					return
				}
				continue
			}
			if line[0] == ':' {
				continue
			}
			field, value, _ := bytes.Cut(line, []byte(":"))
			if string(field) != "data" {
				continue
			}
			value = bytes.TrimPrefix(value, []byte(" "))
			data = append(data, append([]byte(nil), value...))
		}
		if !dispatch() {
			return
		}
		send(domain.StreamDelta{Done: true})
	}()
	return ch
}
