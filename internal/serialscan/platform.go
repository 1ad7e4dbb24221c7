package serialscan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tarm/serial"

	"github.com/bbuddy/scan-relay-go/internal/scanner"
)

const readTimeout = 250 * time.Millisecond

// OpenFunc opens a serial port.
type OpenFunc func(name string, baud int) (io.ReadCloser, error)

func openSerial(name string, baud int) (io.ReadCloser, error) {
	return serial.OpenPort(&serial.Config{Name: name, Baud: baud, ReadTimeout: readTimeout})
}

// Platform exposes USB/serial barcode readers as capture devices. Readers in
// keyboard-wedge mode are not visible here; they must be switched to serial
// (CDC-ACM) mode.
type Platform struct {
	baud     int
	open     OpenFunc
	byIDGlob string
	patterns []string
}

func NewPlatform(baud int) *Platform {
	return &Platform{
		baud:     baud,
		open:     openSerial,
		byIDGlob: defaultByIDGlob,
		patterns: defaultPatterns,
	}
}

func (p *Platform) candidates() []Candidate {
	return listCandidates(p.byIDGlob, p.patterns)
}

func (p *Platform) Devices(ctx context.Context) ([]scanner.Device, error) {
	candidates := p.candidates()
	devices := make([]scanner.Device, len(candidates))
	for i, c := range candidates {
		devices[i] = scanner.Device{ID: c.Path, Label: c.Label}
	}
	return devices, nil
}

// Acquire opens the requested port. Without an explicit device, the
// environment facing picks the first candidate and user facing the last.
func (p *Platform) Acquire(ctx context.Context, pref scanner.Preference) (scanner.Stream, error) {
	device := strings.TrimSpace(pref.DeviceID)
	if device == "" {
		candidates := p.candidates()
		if len(candidates) == 0 {
			return nil, fmt.Errorf("%w: no serial device found (/dev/ttyACM* or /dev/ttyUSB*)", scanner.ErrMediaAccess)
		}
		if pref.Facing == scanner.FacingUser {
			device = candidates[len(candidates)-1].Path
		} else {
			device = candidates[0].Path
		}
	}

	port, err := p.open(device, p.baud)
	if err != nil {
		if isBusyErr(err) {
			return nil, fmt.Errorf("%w: %s busy: %v", scanner.ErrMediaAccess, device, err)
		}
		return nil, fmt.Errorf("%w: open %s: %v", scanner.ErrMediaAccess, device, err)
	}

	log.Info().Str("device", device).Int("baud", p.baud).Msg("serial port opened")
	return newStream(device, port), nil
}

func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "resource busy") || strings.Contains(msg, "permission denied")
}

// ErrUnsupportedStream is returned when Detect is given a stream this
// package did not open.
var ErrUnsupportedStream = errors.New("serialscan: stream was not opened by this platform")

// Decoder reads codes the reader has already decoded in hardware.
type Decoder struct {
	formats []string
}

func NewDecoder(formats []string) *Decoder {
	return &Decoder{formats: formats}
}

func (d *Decoder) Detect(ctx context.Context, stream scanner.Stream) ([]string, error) {
	s, ok := stream.(*Stream)
	if !ok {
		return nil, ErrUnsupportedStream
	}
	codes, err := s.Drain()
	if err != nil {
		return codes, fmt.Errorf("%w: %s: %v", scanner.ErrMediaAccess, s.DeviceID(), err)
	}
	return codes, nil
}

// SupportedFormats reports the symbologies the reader is configured for.
func (d *Decoder) SupportedFormats(ctx context.Context) ([]string, error) {
	return d.formats, nil
}
