package domain

import "time"

// Credential is one pooled API key with a daily usage quota. All mutation
// happens inside the owning key pool under its lock.
type Credential struct {
	ID              int       `json:"id"`
	Secret          string    `json:"-"`
	DailyLimit      int64     `json:"daily_limit"`
	TokensUsedToday int64     `json:"tokens_used_today"`
	IsAvailable     bool      `json:"is_available"`
	IsDead          bool      `json:"is_dead"`
	AuthFailed      bool      `json:"auth_failed"`
	LastError       string    `json:"last_error,omitempty"`
	ResetAt         time.Time `json:"reset_at"`
}

// Remaining returns the credential's unused quota for the current UTC day.
func (c *Credential) Remaining() int64 {
	r := c.DailyLimit - c.TokensUsedToday
	if r < 0 {
		return 0
	}
	return r
}

// NextUTCMidnight returns the first instant of the next UTC day after now.
func NextUTCMidnight(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day()+1, 0, 0, 0, 0, time.UTC)
}

// SameUTCDay reports whether a and b fall on the same UTC calendar day.
func SameUTCDay(a, b time.Time) bool {
	au, bu := a.UTC(), b.UTC()
	return au.Year() == bu.Year() && au.YearDay() == bu.YearDay()
}
