package scanner

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrMediaAccess is returned when the platform denies a stream or has no matching device.
	ErrMediaAccess = errors.New("media access error")
	// ErrDecoderUnsupported is returned when the decoder reports no usable formats.
	ErrDecoderUnsupported = errors.New("barcode decoder not supported")
)

type FacingMode string

const (
	FacingUser        FacingMode = "user"
	FacingEnvironment FacingMode = "environment"
)

// Toggle returns the opposite facing mode. Unknown values flip to user.
func (f FacingMode) Toggle() FacingMode {
	if f == FacingUser {
		return FacingEnvironment
	}
	return FacingUser
}

func (f FacingMode) Valid() bool {
	return f == FacingUser || f == FacingEnvironment
}

// Device describes an input device as enumerated by the platform. Label may be
// empty when the platform has not granted permission yet.
type Device struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// DisplayName returns the label, or "Camera N" for the device at the given
// zero-based position when the label is empty.
func (d Device) DisplayName(index int) string {
	if d.Label != "" {
		return d.Label
	}
	return fmt.Sprintf("Camera %d", index+1)
}

// Preference selects a device explicitly by ID, or falls back to a facing hint.
type Preference struct {
	DeviceID string
	Facing   FacingMode
}

func (p Preference) String() string {
	if p.DeviceID != "" {
		return "device:" + p.DeviceID
	}
	return "facing:" + string(p.Facing)
}

// Stream is a live frame source.
type Stream interface {
	// DeviceID reports the device the platform actually granted.
	DeviceID() string
	// Ready reports whether frames have non-zero dimensions yet.
	Ready() bool
	// Close releases the underlying hardware.
	Close() error
}

type Platform interface {
	Devices(ctx context.Context) ([]Device, error)
	Acquire(ctx context.Context, pref Preference) (Stream, error)
}

// Decoder extracts codes from the current frame of a stream. An empty result
// means nothing was found; an error means decoding itself failed.
type Decoder interface {
	Detect(ctx context.Context, stream Stream) ([]string, error)
}

// FormatLister is implemented by decoders that can report their supported
// symbologies.
type FormatLister interface {
	SupportedFormats(ctx context.Context) ([]string, error)
}

// CheckDecoder verifies the decoder is usable before a session is started.
// Decoders that do not implement FormatLister are assumed usable.
func CheckDecoder(ctx context.Context, d Decoder) ([]string, error) {
	if d == nil {
		return nil, ErrDecoderUnsupported
	}
	lister, ok := d.(FormatLister)
	if !ok {
		return nil, nil
	}
	formats, err := lister.SupportedFormats(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecoderUnsupported, err)
	}
	if len(formats) == 0 {
		return nil, fmt.Errorf("%w: no barcode formats supported", ErrDecoderUnsupported)
	}
	return formats, nil
}
