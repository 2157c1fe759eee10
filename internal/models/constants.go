package models

import "time"

const (
	DefaultCartTTL            = 15 * time.Minute
	DefaultPaymentPendingTTL  = 20 * time.Minute
	DefaultApprovalPendingTTL = 48 * time.Hour

	// DefaultSweepInterval is how often the expiry sweeper runs.
	DefaultSweepInterval = 30 * time.Second
	// DefaultSweepBatchSize caps departures visited per sweep run.
	DefaultSweepBatchSize = 100

	DefaultMaxRetries = 3

	// CalendarDateLayout is used for calendar keys and API date params.
	CalendarDateLayout = "2006-01-02"

	CancelReasonHoldExpired        = "hold expired"
	CancelReasonDepartureCancelled = "departure cancelled"
)
