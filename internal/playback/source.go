package playback

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
)

const eventBufferSize = 16

// Source produces player events. Events arrive in the order the player
// emitted them; the channel is closed when the source is exhausted or closed.
type Source interface {
	Events() <-chan Event
	Close() error
}

// LineSource reads newline-delimited JSON events from a reader.
type LineSource struct {
	events chan Event
	done   chan struct{}
	once   sync.Once
	closer io.Closer
	logger *slog.Logger
}

// NewLineSource starts decoding events from r. Malformed lines are logged
// and skipped. If r is an io.Closer it is closed by Close.
func NewLineSource(r io.Reader, logger *slog.Logger) *LineSource {
	if logger == nil {
		logger = slog.Default()
	}
	s := &LineSource{
		events: make(chan Event, eventBufferSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	go s.read(r)
	return s
}

// Events implements Source.
func (s *LineSource) Events() <-chan Event {
	return s.events
}

// Close stops the reader.
func (s *LineSource) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		if s.closer != nil {
			err = s.closer.Close()
		}
	})
	return err
}

func (s *LineSource) read(r io.Reader) {
	defer close(s.events)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			s.logger.Warn("skipping malformed event", "error", err)
			continue
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		s.logger.Error("event stream read failed", "error", err)
	}
}

// ChanSource adapts a channel into a Source. Used by tests and by callers
// that already produce events on a channel.
type ChanSource struct {
	ch   chan Event
	once sync.Once
}

// NewChanSource creates a source with a buffered channel.
func NewChanSource() *ChanSource {
	return &ChanSource{ch: make(chan Event, eventBufferSize)}
}

// Send queues an event.
func (s *ChanSource) Send(e Event) {
	s.ch <- e
}

// Events implements Source.
func (s *ChanSource) Events() <-chan Event {
	return s.ch
}

// Close closes the event channel.
func (s *ChanSource) Close() error {
	s.once.Do(func() { close(s.ch) })
	return nil
}
