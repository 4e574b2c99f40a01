package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"medichat/internal/model"
)

// SessionRepository is the durable session store. All transcript mutations go
// through it and run inside a transaction that locks the session row, so
// ordinals stay gap-free and counters stay consistent with the message rows.
type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// CreateWithGreeting creates an active session together with its assistant
// greeting as one unit.
func (r *SessionRepository) CreateWithGreeting(session *model.Session, greeting *model.Message) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		session.Status = model.SessionActive
		session.MessageCount = 1
		if session.LastActivityAt.IsZero() {
			session.LastActivityAt = time.Now()
		}
		if err := tx.Create(session).Error; err != nil {
			return err
		}

		greeting.SessionID = session.ID
		greeting.UserID = session.UserID
		greeting.Ordinal = 1
		if err := tx.Create(greeting).Error; err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("create session failed: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetByIDAndUserID(sessionID, userID uint) (*model.Session, error) {
	var session model.Session
	if err := r.db.Where("id = ? AND user_id = ?", sessionID, userID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session failed: %w", err)
	}
	return &session, nil
}

// ListSummaries returns the user's most recently active sessions with the
// content of each session's last message.
func (r *SessionRepository) ListSummaries(userID uint, limit int) ([]model.SessionSummary, error) {
	var sessions []model.Session
	if err := r.db.Where("user_id = ?", userID).
		Order("last_activity_at DESC").
		Limit(limit).
		Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list sessions failed: %w", err)
	}

	summaries := make([]model.SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		var last model.Message
		lastContent := ""
		err := r.db.Where("session_id = ?", s.ID).Order("ordinal DESC").First(&last).Error
		switch {
		case err == nil:
			lastContent = last.Content
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return nil, fmt.Errorf("load last message failed: %w", err)
		}

		summaries = append(summaries, model.SessionSummary{
			SessionID:      s.ID,
			Title:          s.Title,
			Status:         s.Status,
			MessageCount:   s.MessageCount,
			ReportCount:    s.ReportCount,
			LastActivityAt: s.LastActivityAt,
			LastMessage:    lastContent,
		})
	}
	return summaries, nil
}

// AppendTurn appends a user/assistant message pair atomically, assigning the
// next two ordinals and bumping the session counters. A non-empty title
// renames the session in the same transaction.
func (r *SessionRepository) AppendTurn(sessionID uint, userMsg, assistantMsg model.Message, title string) (*model.Session, error) {
	var session model.Session
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&session, sessionID).Error; err != nil {
			return err
		}

		userMsg.SessionID = sessionID
		userMsg.Ordinal = session.MessageCount + 1
		assistantMsg.SessionID = sessionID
		assistantMsg.Ordinal = session.MessageCount + 2
		if err := tx.Create(&userMsg).Error; err != nil {
			return err
		}
		if err := tx.Create(&assistantMsg).Error; err != nil {
			return err
		}

		session.MessageCount += 2
		session.LastActivityAt = time.Now()
		if title != "" {
			session.Title = title
		}
		return tx.Save(&session).Error
	})
	if err != nil {
		return nil, fmt.Errorf("append turn failed: %w", err)
	}
	return &session, nil
}

// AppendReport appends the upload notice and analysis pair atomically,
// records the report row, and bumps both counters.
func (r *SessionRepository) AppendReport(sessionID uint, report *model.Report, notice, analysis model.Message) (*model.Session, error) {
	var session model.Session
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&session, sessionID).Error; err != nil {
			return err
		}

		report.SessionID = sessionID
		if err := tx.Create(report).Error; err != nil {
			return err
		}

		notice.SessionID = sessionID
		notice.Ordinal = session.MessageCount + 1
		analysis.SessionID = sessionID
		analysis.Ordinal = session.MessageCount + 2
		if err := tx.Create(&notice).Error; err != nil {
			return err
		}
		if err := tx.Create(&analysis).Error; err != nil {
			return err
		}

		session.MessageCount += 2
		session.ReportCount++
		session.LastActivityAt = time.Now()
		return tx.Save(&session).Error
	})
	if err != nil {
		return nil, fmt.Errorf("append report failed: %w", err)
	}
	return &session, nil
}

// End marks the session ended. Sessions are never deleted; history stays
// retrievable.
func (r *SessionRepository) End(sessionID uint) error {
	now := time.Now()
	err := r.db.Model(&model.Session{}).
		Where("id = ? AND status = ?", sessionID, model.SessionActive).
		Updates(map[string]interface{}{
			"status":           model.SessionEnded,
			"ended_at":         now,
			"last_activity_at": now,
		}).Error
	if err != nil {
		return fmt.Errorf("end session failed: %w", err)
	}
	return nil
}

// Transcript returns the full ordered transcript of a session.
func (r *SessionRepository) Transcript(sessionID uint) ([]model.Message, error) {
	var messages []model.Message
	if err := r.db.Where("session_id = ?", sessionID).Order("ordinal ASC").Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("load transcript failed: %w", err)
	}
	return messages, nil
}

// RecentWindow returns the last n messages in ascending order.
func (r *SessionRepository) RecentWindow(sessionID uint, n int) ([]model.Message, error) {
	var messages []model.Message
	if err := r.db.Where("session_id = ?", sessionID).Order("ordinal DESC").Limit(n).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("load recent messages failed: %w", err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
