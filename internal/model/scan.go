package model

import (
	"encoding/json"
	"time"
)

// ScanEvent is one scan relayed to Barcode Buddy.
type ScanEvent struct {
	ID               string     `db:"id" json:"id"`
	Barcode          string     `db:"barcode" json:"barcode"`
	Price            *float64   `db:"price" json:"price,omitempty"`
	BestBeforeInDays *int       `db:"best_before_in_days" json:"bestBeforeInDays,omitempty"`
	Status           ScanStatus `db:"status" json:"status"`
	UpstreamStatus   int        `db:"upstream_status" json:"upstreamStatus"`
	ClientIP         string     `db:"client_ip" json:"-"`
	CreatedAt        time.Time  `db:"created_at" json:"createdAt"`
}

type CreateScanEventParams struct {
	ID               string
	Barcode          string
	Price            *float64
	BestBeforeInDays *int
	Status           ScanStatus
	UpstreamStatus   int
	ClientIP         string
}

// ToSSEEventData renders the event payload pushed to live listeners.
func (e *ScanEvent) ToSSEEventData() json.RawMessage {
	data, _ := json.Marshal(map[string]any{
		"id":               e.ID,
		"barcode":          e.Barcode,
		"price":            e.Price,
		"bestBeforeInDays": e.BestBeforeInDays,
		"status":           e.Status,
		"upstreamStatus":   e.UpstreamStatus,
		"createdAt":        e.CreatedAt.UnixMilli(),
	})
	return data
}
