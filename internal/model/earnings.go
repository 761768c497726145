package model

import "time"

// Earnings is the aggregated payout view for a developer account.
type Earnings struct {
	DeveloperID  uint64
	TotalCents   int64
	Entries      int64
	LastEarnedAt *time.Time
}
