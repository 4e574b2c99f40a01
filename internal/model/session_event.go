package model

import "time"

const (
	EventSessionStarted = "session_started"
	EventTurnCompleted  = "turn_completed"
	EventReportAnalyzed = "report_analyzed"
	EventSessionEnded   = "session_ended"
)

// SessionEvent is an audit record of session activity. Events travel through
// the broker and are persisted by the event worker; they are advisory only,
// the transcript remains the source of truth.
type SessionEvent struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SessionID  uint      `gorm:"not null;index" json:"session_id"`
	UserID     uint      `gorm:"not null;index" json:"user_id"`
	Type       string    `gorm:"size:32;not null" json:"type"`
	OccurredAt time.Time `gorm:"not null" json:"occurred_at"`
	CreatedAt  time.Time `json:"created_at"`
}
