package model

import "time"

// Report records one uploaded-and-analyzed document. The analysis itself
// lives in the transcript as a file_analysis message.
type Report struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	SessionID uint      `gorm:"not null;index" json:"session_id"`
	FileName  string    `gorm:"size:256;not null" json:"file_name"`
	FileKey   string    `gorm:"size:64;not null;uniqueIndex" json:"file_key"`
	SizeBytes int64     `gorm:"not null" json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}
