package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Barcode Buddy requests
const (
	UpstreamTimeout      = 10 * time.Second
	UpstreamMaxBodyBytes = 1 << 20
)

// Scanner client requests
const RelayTimeout = 10 * time.Second

const DBPingTimeout = 5 * time.Second

// Background job intervals
const CleanupJobInterval = 5 * time.Minute

const ScanRateLimitWindow = time.Minute
