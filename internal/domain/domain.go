package domain

import (
	"strings"
	"time"
)

type Role string

const (
	RoleCandidate Role = "candidate"
	RoleRecruiter Role = "recruiter"
)

// ParseRole matches s against the known roles, ignoring case and surrounding spaces.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleCandidate, RoleRecruiter:
		return r, true
	default:
		return "", false
	}
}

// Identity is who a verified token belongs to.
type Identity struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
}

// User is a registered account as kept by the user store.
type User struct {
	UserID       string
	Email        string
	PasswordHash string
	Role         Role
	CreateTime   time.Time
}

func (u User) Identity() Identity {
	return Identity{
		UserID: u.UserID,
		Email:  u.Email,
		Role:   u.Role,
	}
}

// Outcome tells how a question was resolved.
type Outcome string

const (
	OutcomeSubmitted Outcome = "submitted"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeTimedOut  Outcome = "timed_out"
)

// HistoryEntry is one resolved question. Entries are never modified after
// they are appended to a session history.
type HistoryEntry struct {
	Question  string   `json:"question"`
	Answer    string   `json:"answer"`
	TimeTaken int      `json:"time_taken"`
	Outcome   Outcome  `json:"outcome"`
	Feedback  string   `json:"feedback"`
	Score     *float64 `json:"score"`
}

type Summary struct {
	AnsweredCount    int     `json:"answered_count"`
	TotalCount       int     `json:"total_count"`
	AverageTimeTaken float64 `json:"average_time_taken"`
}

// Result is a completed interview as shown to recruiters.
type Result struct {
	SessionID    string         `json:"session_id"`
	Email        string         `json:"email"`
	Summary      Summary        `json:"summary"`
	History      []HistoryEntry `json:"history"`
	CompleteTime time.Time      `json:"complete_time"`
}
