package model

import "time"

type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

type Session struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	UserID         uint          `gorm:"not null;index" json:"user_id"`
	Title          string        `gorm:"size:128;not null" json:"title"`
	Status         SessionStatus `gorm:"size:16;not null;default:'active';index" json:"status"`
	MessageCount   int           `gorm:"not null;default:0" json:"message_count"`
	ReportCount    int           `gorm:"not null;default:0" json:"report_count"`
	LastActivityAt time.Time     `gorm:"not null;index" json:"last_activity_at"`
	EndedAt        *time.Time    `json:"ended_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

func (s *Session) Active() bool {
	return s.Status == SessionActive
}

// SessionSummary is the list-view projection of a session, including a short
// preview of its most recent message.
type SessionSummary struct {
	SessionID      uint          `json:"session_id"`
	Title          string        `json:"title"`
	Status         SessionStatus `json:"status"`
	MessageCount   int           `json:"message_count"`
	ReportCount    int           `json:"report_count"`
	LastActivityAt time.Time     `json:"last_activity_at"`
	LastMessage    string        `json:"last_message"`
}
