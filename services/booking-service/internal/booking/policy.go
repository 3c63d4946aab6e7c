package booking

import "time"

// Policy holds the time buffers governing lifecycle guards. The three
// durations are deliberately independent knobs, not one shared constant.
type Policy struct {
	// NoShowGrace is how long after the scheduled start a no-show report
	// becomes eligible.
	NoShowGrace time.Duration
	// ProviderCancelLead is the minimum time before the scheduled start at
	// which a provider may still cancel.
	ProviderCancelLead time.Duration
	// ExpiryBuffer is how long after the scheduled end a still-booked row
	// is swept to expired.
	ExpiryBuffer time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		NoShowGrace:        20 * time.Minute,
		ProviderCancelLead: 2 * time.Hour,
		ExpiryBuffer:       15 * time.Hour,
	}
}
