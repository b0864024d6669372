package domain

import "time"

// Eligibility carries flags that can block a user from scheduled updates.
type Eligibility uint8

const (
	EligibilityPaused Eligibility = 1 << iota
	EligibilityDeleted
)

// Permits reports whether no blocking flag is set.
func (e Eligibility) Permits() bool {
	return e&(EligibilityPaused|EligibilityDeleted) == 0
}

// DueRecord is the per-user scheduling snapshot read once per cycle.
type DueRecord struct {
	UserID     string
	LastUpdate time.Time
	Interval   time.Duration
	Flags      Eligibility
}

// IsDue applies the inclusive interval rule. A zero LastUpdate means the user
// was never refreshed; a non-positive Interval means no schedule is configured.
func (r DueRecord) IsDue(now time.Time) bool {
	if !r.Flags.Permits() || r.Interval <= 0 {
		return false
	}
	if r.LastUpdate.IsZero() {
		return true
	}
	return now.Sub(r.LastUpdate) >= r.Interval
}

// Topic is a user-selected subject with the search queries that feed it.
type Topic struct {
	Name     string   `json:"name"`
	Queries  []string `json:"queries"`
	Provider string   `json:"provider,omitempty"`
}

// UserProfile holds the preferences stages need to build a digest.
type UserProfile struct {
	UserID        string
	Language      string
	Country       string
	PresenterName string
	VoiceID       string
	PushToken     string
	Topics        []Topic
}
