package scanner

import (
	"context"
	"strconv"
)

// Scan is a decoded value ready to be reported, with optional details
// entered during confirmation.
type Scan struct {
	Barcode          string
	Price            *float64
	BestBeforeInDays *int
}

func (s Scan) PriceString() string {
	if s.Price == nil {
		return ""
	}
	return strconv.FormatFloat(*s.Price, 'f', -1, 64)
}

type Reporter interface {
	Report(ctx context.Context, scan Scan) error
}

// Prompter collects details for a pending confirmation. It must eventually
// call Submit successfully or Cancel on the confirmation it is given.
type Prompter interface {
	Prompt(ctx context.Context, c *Confirmation)
}
