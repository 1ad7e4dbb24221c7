package serialscan

import (
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	maxPending = 1024
	maxFrames  = 64

	// idleBackoff applies when a read returns nothing at all, so ports that
	// do not block for ReadTimeout cannot spin the reader.
	idleBackoff = 20 * time.Millisecond
)

// Stream collects CR/LF terminated frames from an open serial port.
type Stream struct {
	id   string
	port io.ReadCloser

	running atomic.Bool
	closed  atomic.Bool
	done    chan struct{}

	mu     sync.Mutex
	frames []string
	err    error
}

func newStream(id string, port io.ReadCloser) *Stream {
	s := &Stream{
		id:   id,
		port: port,
		done: make(chan struct{}),
	}
	s.running.Store(true)
	go s.read()
	return s
}

func (s *Stream) DeviceID() string {
	return s.id
}

// Ready reports whether the reader goroutine is still consuming the port. A
// stream whose reader failed stays ready until Drain has returned the error.
func (s *Stream) Ready() bool {
	if s.running.Load() {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err != nil
}

// Close releases the port and waits for the reader to exit.
func (s *Stream) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := s.port.Close()
	<-s.done
	return err
}

// Drain returns the frames read since the last call. Once no frames are left
// it returns the read error that stopped the reader, exactly once.
func (s *Stream) Drain() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.frames) > 0 {
		frames := s.frames
		s.frames = nil
		return frames, nil
	}
	err := s.err
	s.err = nil
	return nil, err
}

func (s *Stream) read() {
	defer close(s.done)
	defer s.running.Store(false)

	buf := make([]byte, 256)
	pending := ""

	for {
		n, err := s.port.Read(buf)
		if s.closed.Load() {
			return
		}
		// VMIN=0 ports report an idle ReadTimeout as (0, io.EOF)
		if err != nil && !errors.Is(err, io.EOF) {
			log.Error().Err(err).Str("device", s.id).Msg("serial read error")
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			return
		}
		if n == 0 {
			time.Sleep(idleBackoff)
			continue
		}

		pending = appendRaw(pending, string(buf[:n]), maxPending)

		for {
			frame, rest, ok := popFrame(pending)
			if !ok {
				break
			}
			pending = rest

			code := strings.TrimSpace(frame)
			if code == "" {
				continue
			}
			log.Debug().Str("device", s.id).Str("frame", code).Msg("serial frame")
			s.push(code)
		}
	}
}

func (s *Stream) push(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frames = append(s.frames, code)
	if len(s.frames) > maxFrames {
		s.frames = s.frames[len(s.frames)-maxFrames:]
	}
}

// popFrame splits off the text before the first CR or LF and swallows the
// whole run of line endings after it.
func popFrame(buf string) (frame, rest string, ok bool) {
	idx := strings.IndexAny(buf, "\r\n")
	if idx < 0 {
		return "", buf, false
	}

	frame = buf[:idx]
	j := idx
	for j < len(buf) {
		if buf[j] != '\r' && buf[j] != '\n' {
			break
		}
		j++
	}
	rest = buf[j:]
	return frame, rest, true
}

func appendRaw(existing, chunk string, max int) string {
	combined := existing + chunk
	if len(combined) <= max {
		return combined
	}
	return combined[len(combined)-max:]
}
