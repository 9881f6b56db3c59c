package llm

import (
	"bufio"
	"context"
	"io"
)

// lineStream exposes an HTTP event-stream body line by line.
type lineStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	cancel  context.CancelFunc
}

func newLineStream(body io.ReadCloser, cancel context.CancelFunc) *lineStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &lineStream{body: body, scanner: scanner, cancel: cancel}
}

func (s *lineStream) Next() (string, bool) {
	if !s.scanner.Scan() {
		return "", false
	}
	return s.scanner.Text(), true
}

func (s *lineStream) Err() error {
	return s.scanner.Err()
}

func (s *lineStream) Close() error {
	err := s.body.Close()
	if s.cancel != nil {
		s.cancel()
	}
	return err
}
