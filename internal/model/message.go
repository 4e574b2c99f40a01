package model

import "time"

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

type MessageType string

const (
	MessageText         MessageType = "text"
	MessageFileAnalysis MessageType = "file_analysis"
)

// Message is one immutable transcript entry. Ordinal is the 1-based position
// within the session; appends never leave gaps.
type Message struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	SessionID   uint        `gorm:"not null;index:idx_session_ordinal,unique" json:"session_id"`
	UserID      uint        `gorm:"not null;index" json:"user_id"`
	Ordinal     int         `gorm:"not null;index:idx_session_ordinal,unique" json:"ordinal"`
	Role        MessageRole `gorm:"size:16;not null" json:"role"`
	MessageType MessageType `gorm:"size:16;not null;default:'text'" json:"message_type"`
	Content     string      `gorm:"type:text;not null" json:"content"`
	CreatedAt   time.Time   `json:"created_at"`
}
