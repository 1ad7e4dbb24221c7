package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultPollInterval = 40 * time.Millisecond

type Options struct {
	Platform Platform
	Decoder  Decoder
	Reporter Reporter
	// Prompter is required when Detailed is set.
	Prompter Prompter
	Detailed bool

	Cooldown     time.Duration
	PollInterval time.Duration
	Facing       FacingMode

	// OnStatus receives user-facing status lines.
	OnStatus func(string)
	// OnSelect is called with the device the platform granted after a start.
	OnSelect func(Device)

	Now func() time.Time
}

// Session owns the live stream and the scan loop reading from it. At most one
// stream is live at a time.
type Session struct {
	platform Platform
	decoder  Decoder
	reporter Reporter
	prompter Prompter
	interval time.Duration
	onStatus func(string)
	onSelect func(Device)
	now      func() time.Time

	record   *Record
	detailed atomic.Bool

	mu       sync.Mutex
	pref     Preference
	stream   Stream
	selected string
	cancel   context.CancelFunc
	loopDone chan struct{}
}

func NewSession(opts Options) (*Session, error) {
	if opts.Platform == nil {
		return nil, errors.New("scanner: platform is required")
	}
	if opts.Decoder == nil {
		return nil, ErrDecoderUnsupported
	}
	if opts.Reporter == nil {
		return nil, errors.New("scanner: reporter is required")
	}
	if opts.Detailed && opts.Prompter == nil {
		return nil, errors.New("scanner: detailed entry needs a prompter")
	}

	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	facing := opts.Facing
	if !facing.Valid() {
		facing = FacingEnvironment
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Session{
		platform: opts.Platform,
		decoder:  opts.Decoder,
		reporter: opts.Reporter,
		prompter: opts.Prompter,
		interval: interval,
		onStatus: opts.OnStatus,
		onSelect: opts.OnSelect,
		now:      now,
		record:   NewRecord(opts.Cooldown),
		pref:     Preference{Facing: facing},
	}
	s.detailed.Store(opts.Detailed)
	return s, nil
}

// Start acquires a stream for pref and begins scanning. Any live stream is
// stopped before the new one is requested. An empty facing in pref keeps the
// current facing mode.
func (s *Session) Start(ctx context.Context, pref Preference) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !pref.Facing.Valid() {
		pref.Facing = s.pref.Facing
	}
	s.pref = pref
	return s.startLocked(ctx)
}

// Restart stops the session and starts it again with the current preference.
func (s *Session) Restart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(ctx)
}

// SelectDevice switches to an explicit device.
func (s *Session) SelectDevice(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pref.DeviceID = id
	return s.startLocked(ctx)
}

// SwitchFacing flips between user and environment facing and restarts. The
// explicit device selection is dropped so the new facing hint takes effect.
func (s *Session) SwitchFacing(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pref = Preference{Facing: s.pref.Facing.Toggle()}
	return s.startLocked(ctx)
}

// Stop releases the stream and halts the scan loop. It is safe to call on a
// stopped session. A decode or report already in flight is not aborted.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Session) startLocked(ctx context.Context) error {
	s.stopLocked()

	stream, err := s.platform.Acquire(ctx, s.pref)
	if err != nil {
		if !errors.Is(err, ErrMediaAccess) {
			err = fmt.Errorf("%w: %v", ErrMediaAccess, err)
		}
		log.Error().Err(err).Str("preference", s.pref.String()).Msg("failed to acquire stream")
		s.status("Error accessing camera: " + err.Error())
		return err
	}

	s.stream = stream
	s.reconcileLocked(ctx, stream)

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.loopDone = make(chan struct{})
	go s.newLoop(stream).run(loopCtx, s.loopDone)

	log.Info().
		Str("preference", s.pref.String()).
		Str("deviceId", stream.DeviceID()).
		Dur("interval", s.interval).
		Msg("capture session started")
	s.status("")
	return nil
}

func (s *Session) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		<-s.loopDone
		s.cancel = nil
		s.loopDone = nil
	}
	if s.stream != nil {
		if err := s.stream.Close(); err != nil {
			log.Warn().Err(err).Str("deviceId", s.stream.DeviceID()).Msg("failed to close stream")
		}
		log.Info().Str("deviceId", s.stream.DeviceID()).Msg("capture session stopped")
		s.stream = nil
	}
}

// reconcileLocked records the device actually granted. Facing hints can
// resolve to any matching device, so this is best effort.
func (s *Session) reconcileLocked(ctx context.Context, stream Stream) {
	granted := stream.DeviceID()
	if granted == "" {
		return
	}
	devices, err := s.platform.Devices(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("device enumeration failed, skipping selection sync")
		return
	}
	for _, d := range devices {
		if d.ID == granted {
			s.selected = d.ID
			if s.onSelect != nil {
				s.onSelect(d)
			}
			return
		}
	}
}

func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream != nil
}

// Selected returns the ID of the device granted on the last successful start.
func (s *Session) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

func (s *Session) Preference() Preference {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pref
}

// SetDetailed toggles confirmation prompts for new scans. It is ignored when
// the session has no prompter.
func (s *Session) SetDetailed(on bool) {
	if on && s.prompter == nil {
		return
	}
	s.detailed.Store(on)
}

func (s *Session) Detailed() bool {
	return s.detailed.Load()
}

func (s *Session) status(msg string) {
	if s.onStatus != nil {
		s.onStatus(msg)
	}
}
