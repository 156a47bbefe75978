package directory

import (
	"time"
)

// TrustStatus classifies an account for anti-spam purposes.
type TrustStatus string

const (
	// TrustStatusNew accounts are subject to stricter rate limits.
	TrustStatusNew = TrustStatus("new")
	// TrustStatusEstablished accounts get the normal limits.
	TrustStatusEstablished = TrustStatus("established")
)

// StatusForAccountAge classifies an account by its genesis time. A nil
// createdAt means directory resolution failed; we fail open and treat the
// account as established rather than block ingestion.
func StatusForAccountAge(createdAt *time.Time, newAccountDays int64) TrustStatus {
	if createdAt == nil || newAccountDays <= 0 {
		return TrustStatusEstablished
	}
	if time.Since(*createdAt) < time.Duration(newAccountDays)*24*time.Hour {
		return TrustStatusNew
	}
	return TrustStatusEstablished
}
