package scanner

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// taskState is the single decode slot. A tick that finds it InFlight is skipped.
type taskState = int32

const (
	taskIdle taskState = iota
	taskInFlight
)

// scanLoop polls one stream. Each start of a session gets a fresh loop, so a
// decode left over from a previous stream never holds the new slot.
type scanLoop struct {
	s       *Session
	stream  Stream
	state   atomic.Int32
	pending chan *Confirmation
}

func (s *Session) newLoop(stream Stream) *scanLoop {
	return &scanLoop{
		s:      s,
		stream: stream,
		// buffered so a decode never blocks handing over a confirmation
		pending: make(chan *Confirmation, 1),
	}
}

func (l *scanLoop) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	s := l.s
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	lastEvict := s.now()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			l.tick(ctx)

			if now := s.now(); now.Sub(lastEvict) > s.record.Cooldown() {
				if n := s.record.Evict(now); n > 0 {
					log.Debug().Int("count", n).Msg("evicted stale scan records")
				}
				lastEvict = now
			}

		case c := <-l.pending:
			ticker.Stop()
			log.Debug().Str("barcode", c.Barcode).Msg("scan loop paused for confirmation")

			select {
			case <-ctx.Done():
				return
			case <-c.Done():
			}

			// the decode that opened the confirmation left the slot held
			l.state.Store(taskIdle)
			ticker.Reset(s.interval)
			log.Debug().Str("barcode", c.Barcode).Msg("scan loop resumed")
		}
	}
}

// tick starts one decode unless the previous one is still running or the
// stream has no frame yet. It reports whether a decode was started.
func (l *scanLoop) tick(ctx context.Context) bool {
	if !l.state.CompareAndSwap(taskIdle, taskInFlight) {
		return false
	}
	if !l.stream.Ready() {
		l.state.Store(taskIdle)
		return false
	}

	go l.decode(ctx)
	return true
}

func (l *scanLoop) decode(ctx context.Context) {
	s := l.s
	handedOff := false
	defer func() {
		if !handedOff {
			l.state.Store(taskIdle)
		}
	}()

	codes, err := s.decoder.Detect(ctx, l.stream)
	if err != nil {
		log.Error().Err(err).Str("deviceId", l.stream.DeviceID()).Msg("detection error")
		if errors.Is(err, ErrMediaAccess) {
			s.status("Error accessing camera: " + err.Error())
		}
		return
	}

	for _, code := range codes {
		if code == "" || !s.record.Observe(code, s.now()) {
			continue
		}

		log.Info().Str("barcode", code).Msg("barcode scanned")
		s.status("Scanned: " + code)

		if s.detailed.Load() && s.prompter != nil {
			c := newConfirmation(code, s.report, s.now)
			l.pending <- c
			handedOff = true
			go s.prompter.Prompt(ctx, c)
			// later codes in this batch stay unstamped and are picked up after resume
			return
		}

		s.report(ctx, Scan{Barcode: code})
	}
}

func (s *Session) report(ctx context.Context, scan Scan) error {
	start := time.Now()
	err := s.reporter.Report(ctx, scan)
	if err != nil {
		log.Error().
			Err(err).
			Str("barcode", scan.Barcode).
			Dur("elapsed", time.Since(start)).
			Msg("failed to post scan")
		s.status("Error posting scan: " + err.Error())
		return err
	}

	log.Info().
		Str("barcode", scan.Barcode).
		Str("price", scan.PriceString()).
		Dur("elapsed", time.Since(start)).
		Msg("scan reported")
	return nil
}
