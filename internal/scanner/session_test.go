package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	id     string
	ready  atomic.Bool
	closed atomic.Bool
	onStop func()
}

func newFakeStream(id string) *fakeStream {
	s := &fakeStream{id: id}
	s.ready.Store(true)
	return s
}

func (s *fakeStream) DeviceID() string { return s.id }
func (s *fakeStream) Ready() bool      { return s.ready.Load() }

func (s *fakeStream) Close() error {
	if s.closed.CompareAndSwap(false, true) && s.onStop != nil {
		s.onStop()
	}
	return nil
}

type fakePlatform struct {
	mu       sync.Mutex
	devices  []Device
	grant    func(pref Preference) string
	err      error
	requests []Preference
	streams  []*fakeStream
	live     int
	maxLive  int
}

func (p *fakePlatform) Devices(ctx context.Context) ([]Device, error) {
	return p.devices, nil
}

func (p *fakePlatform) Acquire(ctx context.Context, pref Preference) (Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, pref)
	if p.err != nil {
		return nil, p.err
	}

	id := pref.DeviceID
	if p.grant != nil {
		id = p.grant(pref)
	}
	stream := newFakeStream(id)
	stream.onStop = func() {
		p.mu.Lock()
		p.live--
		p.mu.Unlock()
	}
	p.streams = append(p.streams, stream)
	p.live++
	if p.live > p.maxLive {
		p.maxLive = p.live
	}
	return stream, nil
}

type fakeDecoder struct {
	calls  atomic.Int32
	detect func(ctx context.Context, stream Stream) ([]string, error)
}

func (d *fakeDecoder) Detect(ctx context.Context, stream Stream) ([]string, error) {
	d.calls.Add(1)
	if d.detect == nil {
		return nil, nil
	}
	return d.detect(ctx, stream)
}

type recordingReporter struct {
	mu    sync.Mutex
	scans []Scan
	err   error
}

func (r *recordingReporter) Report(ctx context.Context, scan Scan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scans = append(r.scans, scan)
	return r.err
}

func (r *recordingReporter) Scans() []Scan {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Scan(nil), r.scans...)
}

type chanPrompter struct {
	opened chan *Confirmation
}

func (p *chanPrompter) Prompt(ctx context.Context, c *Confirmation) {
	p.opened <- c
}

type statusLog struct {
	mu    sync.Mutex
	lines []string
}

func (l *statusLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, s)
}

func (l *statusLog) contains(s string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if line == s {
			return true
		}
	}
	return false
}

func newTestSession(t *testing.T, opts Options) *Session {
	t.Helper()
	if opts.PollInterval == 0 {
		opts.PollInterval = 5 * time.Millisecond
	}
	s, err := NewSession(opts)
	require.NoError(t, err)
	t.Cleanup(s.Stop)
	return s
}

func TestNewSession_Validation(t *testing.T) {
	platform := &fakePlatform{}
	decoder := &fakeDecoder{}
	reporter := &recordingReporter{}

	_, err := NewSession(Options{Decoder: decoder, Reporter: reporter})
	assert.Error(t, err)

	_, err = NewSession(Options{Platform: platform, Reporter: reporter})
	assert.ErrorIs(t, err, ErrDecoderUnsupported)

	_, err = NewSession(Options{Platform: platform, Decoder: decoder})
	assert.Error(t, err)

	_, err = NewSession(Options{Platform: platform, Decoder: decoder, Reporter: reporter, Detailed: true})
	assert.Error(t, err)

	s, err := NewSession(Options{Platform: platform, Decoder: decoder, Reporter: reporter})
	require.NoError(t, err)
	assert.Equal(t, FacingEnvironment, s.Preference().Facing)
	assert.False(t, s.Active())
}

func TestSession_StartStop(t *testing.T) {
	t.Run("starting again stops the previous stream first", func(t *testing.T) {
		platform := &fakePlatform{}
		s := newTestSession(t, Options{Platform: platform, Decoder: &fakeDecoder{}, Reporter: &recordingReporter{}})

		require.NoError(t, s.Start(context.Background(), Preference{DeviceID: "cam-1"}))
		require.NoError(t, s.Start(context.Background(), Preference{DeviceID: "cam-2"}))
		require.NoError(t, s.SwitchFacing(context.Background()))

		platform.mu.Lock()
		defer platform.mu.Unlock()
		assert.Equal(t, 1, platform.maxLive)
		assert.Equal(t, 1, platform.live)
		require.Len(t, platform.streams, 3)
		assert.True(t, platform.streams[0].closed.Load())
		assert.True(t, platform.streams[1].closed.Load())
		assert.False(t, platform.streams[2].closed.Load())
	})

	t.Run("stop is idempotent", func(t *testing.T) {
		platform := &fakePlatform{}
		s := newTestSession(t, Options{Platform: platform, Decoder: &fakeDecoder{}, Reporter: &recordingReporter{}})

		s.Stop()
		require.NoError(t, s.Start(context.Background(), Preference{}))
		assert.True(t, s.Active())

		s.Stop()
		s.Stop()
		assert.False(t, s.Active())

		platform.mu.Lock()
		defer platform.mu.Unlock()
		assert.Equal(t, 0, platform.live)
	})

	t.Run("acquisition failure surfaces media access error", func(t *testing.T) {
		platform := &fakePlatform{err: errors.New("Permission denied")}
		status := &statusLog{}
		s := newTestSession(t, Options{
			Platform: platform,
			Decoder:  &fakeDecoder{},
			Reporter: &recordingReporter{},
			OnStatus: status.add,
		})

		err := s.Start(context.Background(), Preference{Facing: FacingUser})

		assert.ErrorIs(t, err, ErrMediaAccess)
		assert.Contains(t, err.Error(), "Permission denied")
		assert.False(t, s.Active())
		assert.True(t, status.contains("Error accessing camera: "+err.Error()))
	})

	t.Run("switch facing toggles and drops device selection", func(t *testing.T) {
		platform := &fakePlatform{}
		s := newTestSession(t, Options{Platform: platform, Decoder: &fakeDecoder{}, Reporter: &recordingReporter{}})

		require.NoError(t, s.Start(context.Background(), Preference{DeviceID: "cam-1"}))
		require.NoError(t, s.SwitchFacing(context.Background()))
		assert.Equal(t, Preference{Facing: FacingUser}, s.Preference())

		require.NoError(t, s.SwitchFacing(context.Background()))
		assert.Equal(t, Preference{Facing: FacingEnvironment}, s.Preference())

		require.NoError(t, s.SelectDevice(context.Background(), "cam-9"))
		assert.Equal(t, "cam-9", s.Preference().DeviceID)
	})

	t.Run("restart reacquires with the same preference", func(t *testing.T) {
		platform := &fakePlatform{}
		s := newTestSession(t, Options{Platform: platform, Decoder: &fakeDecoder{}, Reporter: &recordingReporter{}})

		pref := Preference{DeviceID: "cam-1", Facing: FacingEnvironment}
		require.NoError(t, s.Start(context.Background(), pref))
		require.NoError(t, s.Restart(context.Background()))

		platform.mu.Lock()
		defer platform.mu.Unlock()
		assert.Equal(t, []Preference{pref, pref}, platform.requests)
		assert.True(t, platform.streams[0].closed.Load())
		assert.Equal(t, 1, platform.live)
	})
}

func TestSession_Reconcile(t *testing.T) {
	devices := []Device{{ID: "front", Label: "Front"}, {ID: "back", Label: ""}}

	t.Run("facing request syncs selection to the granted device", func(t *testing.T) {
		var selected []Device
		platform := &fakePlatform{
			devices: devices,
			grant:   func(Preference) string { return "back" },
		}
		s := newTestSession(t, Options{
			Platform: platform,
			Decoder:  &fakeDecoder{},
			Reporter: &recordingReporter{},
			OnSelect: func(d Device) { selected = append(selected, d) },
		})

		require.NoError(t, s.Start(context.Background(), Preference{Facing: FacingEnvironment}))

		assert.Equal(t, "back", s.Selected())
		require.Len(t, selected, 1)
		assert.Equal(t, "Camera 2", selected[0].DisplayName(1))
	})

	t.Run("unknown granted device is skipped silently", func(t *testing.T) {
		platform := &fakePlatform{
			devices: devices,
			grant:   func(Preference) string { return "virtual" },
		}
		s := newTestSession(t, Options{Platform: platform, Decoder: &fakeDecoder{}, Reporter: &recordingReporter{}})

		require.NoError(t, s.Start(context.Background(), Preference{}))
		assert.Equal(t, "", s.Selected())
	})
}

func TestScanLoop_Tick(t *testing.T) {
	t.Run("overlapping tick is skipped while a decode is in flight", func(t *testing.T) {
		release := make(chan struct{})
		decoder := &fakeDecoder{detect: func(ctx context.Context, stream Stream) ([]string, error) {
			<-release
			return nil, nil
		}}
		s := newTestSession(t, Options{Platform: &fakePlatform{}, Decoder: decoder, Reporter: &recordingReporter{}})
		loop := s.newLoop(newFakeStream("cam"))

		assert.True(t, loop.tick(context.Background()))
		assert.False(t, loop.tick(context.Background()))
		assert.False(t, loop.tick(context.Background()))

		close(release)
		assert.Eventually(t, func() bool { return loop.tick(context.Background()) }, time.Second, time.Millisecond)
		assert.Eventually(t, func() bool { return decoder.calls.Load() == 2 }, time.Second, time.Millisecond)
	})

	t.Run("stream without frames is skipped", func(t *testing.T) {
		decoder := &fakeDecoder{}
		s := newTestSession(t, Options{Platform: &fakePlatform{}, Decoder: decoder, Reporter: &recordingReporter{}})
		stream := newFakeStream("cam")
		stream.ready.Store(false)
		loop := s.newLoop(stream)

		assert.False(t, loop.tick(context.Background()))
		assert.Equal(t, int32(0), decoder.calls.Load())

		stream.ready.Store(true)
		assert.True(t, loop.tick(context.Background()))
	})

	t.Run("decoder error releases the slot", func(t *testing.T) {
		decoder := &fakeDecoder{detect: func(ctx context.Context, stream Stream) ([]string, error) {
			return nil, errors.New("frame decode failed")
		}}
		reporter := &recordingReporter{}
		s := newTestSession(t, Options{Platform: &fakePlatform{}, Decoder: decoder, Reporter: reporter})
		loop := s.newLoop(newFakeStream("cam"))

		assert.True(t, loop.tick(context.Background()))
		assert.Eventually(t, func() bool { return loop.tick(context.Background()) }, time.Second, time.Millisecond)
		assert.Empty(t, reporter.Scans())
	})
}

func TestSession_ReportsNewCodesOnce(t *testing.T) {
	decoder := &fakeDecoder{detect: func(ctx context.Context, stream Stream) ([]string, error) {
		return []string{"012345", "012345", ""}, nil
	}}
	reporter := &recordingReporter{}
	status := &statusLog{}
	s := newTestSession(t, Options{
		Platform: &fakePlatform{},
		Decoder:  decoder,
		Reporter: reporter,
		Cooldown: time.Hour,
		OnStatus: status.add,
	})

	require.NoError(t, s.Start(context.Background(), Preference{}))
	require.Eventually(t, func() bool { return decoder.calls.Load() >= 5 }, time.Second, time.Millisecond)
	s.Stop()

	scans := reporter.Scans()
	require.Len(t, scans, 1)
	assert.Equal(t, Scan{Barcode: "012345"}, scans[0])
	assert.True(t, status.contains("Scanned: 012345"))
}

func TestSession_ReportFailureKeepsScanning(t *testing.T) {
	codes := make(chan string, 2)
	codes <- "A"
	codes <- "B"
	decoder := &fakeDecoder{detect: func(ctx context.Context, stream Stream) ([]string, error) {
		select {
		case c := <-codes:
			return []string{c}, nil
		default:
			return nil, nil
		}
	}}
	reporter := &recordingReporter{err: errors.New("Scan failed")}
	status := &statusLog{}
	s := newTestSession(t, Options{Platform: &fakePlatform{}, Decoder: decoder, Reporter: reporter, OnStatus: status.add})

	require.NoError(t, s.Start(context.Background(), Preference{}))
	require.Eventually(t, func() bool { return len(reporter.Scans()) == 2 }, time.Second, time.Millisecond)
	assert.True(t, status.contains("Error posting scan: Scan failed"))
}

func TestSession_LostStreamIsSurfaced(t *testing.T) {
	var failed atomic.Bool
	decoder := &fakeDecoder{detect: func(ctx context.Context, stream Stream) ([]string, error) {
		if failed.CompareAndSwap(false, true) {
			return nil, fmt.Errorf("%w: reader unplugged", ErrMediaAccess)
		}
		return nil, errors.New("blurry frame")
	}}
	status := &statusLog{}
	s := newTestSession(t, Options{Platform: &fakePlatform{}, Decoder: decoder, Reporter: &recordingReporter{}, OnStatus: status.add})

	require.NoError(t, s.Start(context.Background(), Preference{}))
	require.Eventually(t, func() bool { return decoder.calls.Load() >= 3 }, time.Second, time.Millisecond)

	assert.True(t, status.contains("Error accessing camera: media access error: reader unplugged"))
	assert.False(t, status.contains("Error accessing camera: blurry frame"), "plain decode failures are only logged")
}

func TestSession_DetailedEntry(t *testing.T) {
	today := time.Date(2026, 10, 17, 10, 0, 0, 0, time.Local)

	setup := func(t *testing.T) (*Session, *fakeDecoder, *recordingReporter, *chanPrompter) {
		decoder := &fakeDecoder{detect: func(ctx context.Context, stream Stream) ([]string, error) {
			return []string{"ABC"}, nil
		}}
		reporter := &recordingReporter{}
		prompter := &chanPrompter{opened: make(chan *Confirmation, 1)}
		s := newTestSession(t, Options{
			Platform: &fakePlatform{},
			Decoder:  decoder,
			Reporter: reporter,
			Prompter: prompter,
			Detailed: true,
			Cooldown: time.Hour,
			Now:      func() time.Time { return today },
		})
		require.NoError(t, s.Start(context.Background(), Preference{}))
		return s, decoder, reporter, prompter
	}

	waitPrompt := func(t *testing.T, p *chanPrompter) *Confirmation {
		select {
		case c := <-p.opened:
			return c
		case <-time.After(time.Second):
			t.Fatal("confirmation was not opened")
			return nil
		}
	}

	t.Run("confirmed scan reports details and loop pauses meanwhile", func(t *testing.T) {
		_, decoder, reporter, prompter := setup(t)
		c := waitPrompt(t, prompter)
		assert.Equal(t, "ABC", c.Barcode)

		paused := decoder.calls.Load()
		time.Sleep(30 * time.Millisecond)
		assert.Equal(t, paused, decoder.calls.Load(), "no decode ticks while awaiting input")

		assert.ErrorIs(t, c.Submit(context.Background(), "0", ""), ErrValidation)
		assert.Empty(t, reporter.Scans())

		require.NoError(t, c.Submit(context.Background(), "2.50", "2026-10-18"))
		scans := reporter.Scans()
		require.Len(t, scans, 1)
		assert.Equal(t, "ABC", scans[0].Barcode)
		assert.Equal(t, "2.5", scans[0].PriceString())
		require.NotNil(t, scans[0].BestBeforeInDays)
		assert.Equal(t, 1, *scans[0].BestBeforeInDays)

		assert.Eventually(t, func() bool { return decoder.calls.Load() > paused }, time.Second, time.Millisecond)
	})

	t.Run("cancelled scan is never reported", func(t *testing.T) {
		_, decoder, reporter, prompter := setup(t)
		c := waitPrompt(t, prompter)
		paused := decoder.calls.Load()

		c.Cancel()

		assert.Eventually(t, func() bool { return decoder.calls.Load() > paused }, time.Second, time.Millisecond)
		assert.Empty(t, reporter.Scans())
	})
}
