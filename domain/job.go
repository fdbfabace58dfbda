package domain

import (
	"time"
)

// JobState tracks an enrichment job through its lifecycle.
type JobState string

const (
	JobStateWaiting   JobState = "waiting"
	JobStateActive    JobState = "active"
	JobStateDelayed   JobState = "delayed"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
)

// JobIDPrefix builds the idempotency key space for commentary jobs.
const JobIDPrefix = "commentary-"

// JobIDFor returns the idempotent job id for an article.
func JobIDFor(articleID string) string {
	return JobIDPrefix + articleID
}

// Queue priority bounds. 1 is highest, 10 lowest.
const (
	PriorityHighest = 1
	PriorityDefault = 5
	PriorityLowest  = 10
)

// EnrichmentJob is one unit of commentary work owned by the queue until it
// reaches a terminal state. The worker mutates Attempts and the final state
// only.
type EnrichmentJob struct {
	JobID       string    `json:"job_id"`
	ArticleID   string    `json:"article_id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Section     string    `json:"section"`
	Article     *Article  `json:"article,omitempty"`
	Priority    int       `json:"priority"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	State       JobState  `json:"state"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
	NextRunAt   time.Time `json:"next_run_at"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
	LastError   string    `json:"last_error,omitempty"`

	// LockExpiresAt guards against stalled workers. A job whose lock
	// expires without completion is re-enqueued.
	LockExpiresAt time.Time `json:"lock_expires_at,omitempty"`
}

// InFlight reports whether the job occupies the idempotency window:
// submitting the same job id again while InFlight is a no-op.
func (j *EnrichmentJob) InFlight() bool {
	switch j.State {
	case JobStateWaiting, JobStateActive, JobStateDelayed:
		return true
	}
	return false
}

// PriorityFor computes the admission priority from article age and section.
// Fresh articles and headline sections jump the queue; the result is
// clamped to [PriorityHighest, PriorityLowest].
func PriorityFor(publishedDate time.Time, section string, now time.Time) int {
	p := PriorityDefault

	if !publishedDate.IsZero() {
		age := now.Sub(publishedDate)
		switch {
		case age < 6*time.Hour:
			p = 1
		case age < 24*time.Hour:
			p = 2
		case age < 48*time.Hour:
			p = 3
		}
	}

	if IsPrioritySection(section) {
		p--
	}

	if p < PriorityHighest {
		p = PriorityHighest
	}
	if p > PriorityLowest {
		p = PriorityLowest
	}
	return p
}
