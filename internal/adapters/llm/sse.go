package llm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

const sseDone = "[DONE]"

type sseEvent struct {
	Event string
	Data  string
}

// sseReader pulls "data:" frames off a server-sent-event body.
type sseReader struct {
	reader *bufio.Reader
	event  string
}

func newSSEReader(body io.Reader) *sseReader {
	return &sseReader{reader: bufio.NewReader(body)}
}

// Next returns the next data frame, or io.EOF once the body is exhausted.
func (s *sseReader) Next() (sseEvent, error) {
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return sseEvent{}, fmt.Errorf("read sse line: %w", err)
			}
			if line == "" {
				return sseEvent{}, io.EOF
			}
		}

		line = strings.TrimSpace(line)
		switch {
		case line == "":
			// blank line ends an event block
			s.event = ""
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			s.event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			return sseEvent{
				Event: s.event,
				Data:  strings.TrimSpace(strings.TrimPrefix(line, "data:")),
			}, nil
		}
	}
}
