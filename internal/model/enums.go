package model

type ScanStatus string

const (
	ScanStatusForwarded ScanStatus = "forwarded"
	ScanStatusRejected  ScanStatus = "rejected"
	ScanStatusFailed    ScanStatus = "failed"
)
