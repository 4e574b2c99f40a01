// Package apptest provides in-memory fakes for the app services' storage and
// engine dependencies, shared by service and handler tests.
package apptest

import (
	"errors"
	"sort"
	"sync"
	"time"

	"medichat/internal/model"
)

// MemoryStore mirrors the gorm repository semantics in memory. It satisfies
// both the session store and the report store.
type MemoryStore struct {
	mu       sync.Mutex
	nextID   uint
	sessions map[uint]*model.Session
	messages map[uint][]model.Message
	reports  []model.Report
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[uint]*model.Session),
		messages: make(map[uint][]model.Message),
	}
}

func (s *MemoryStore) CreateWithGreeting(session *model.Session, greeting *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	session.ID = s.nextID
	session.Status = model.SessionActive
	session.MessageCount = 1
	if session.LastActivityAt.IsZero() {
		session.LastActivityAt = time.Now()
	}
	session.CreatedAt = time.Now()
	s.sessions[session.ID] = session

	greeting.SessionID = session.ID
	greeting.Ordinal = 1
	greeting.CreatedAt = time.Now()
	s.messages[session.ID] = []model.Message{*greeting}
	return nil
}

func (s *MemoryStore) GetByIDAndUserID(sessionID, userID uint) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok || session.UserID != userID {
		return nil, nil
	}
	copied := *session
	return &copied, nil
}

func (s *MemoryStore) ListSummaries(userID uint, limit int) ([]model.SessionSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var owned []*model.Session
	for _, session := range s.sessions {
		if session.UserID == userID {
			owned = append(owned, session)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		return owned[i].LastActivityAt.After(owned[j].LastActivityAt)
	})
	if len(owned) > limit {
		owned = owned[:limit]
	}

	summaries := make([]model.SessionSummary, 0, len(owned))
	for _, session := range owned {
		last := ""
		if msgs := s.messages[session.ID]; len(msgs) > 0 {
			last = msgs[len(msgs)-1].Content
		}
		summaries = append(summaries, model.SessionSummary{
			SessionID:      session.ID,
			Title:          session.Title,
			Status:         session.Status,
			MessageCount:   session.MessageCount,
			ReportCount:    session.ReportCount,
			LastActivityAt: session.LastActivityAt,
			LastMessage:    last,
		})
	}
	return summaries, nil
}

func (s *MemoryStore) AppendTurn(sessionID uint, userMsg, assistantMsg model.Message, title string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, errors.New("session not found")
	}

	userMsg.SessionID = sessionID
	userMsg.Ordinal = session.MessageCount + 1
	userMsg.CreatedAt = time.Now()
	assistantMsg.SessionID = sessionID
	assistantMsg.Ordinal = session.MessageCount + 2
	assistantMsg.CreatedAt = time.Now()
	s.messages[sessionID] = append(s.messages[sessionID], userMsg, assistantMsg)

	session.MessageCount += 2
	session.LastActivityAt = time.Now()
	if title != "" {
		session.Title = title
	}
	copied := *session
	return &copied, nil
}

func (s *MemoryStore) AppendReport(sessionID uint, report *model.Report, notice, analysis model.Message) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, errors.New("session not found")
	}

	report.SessionID = sessionID
	report.CreatedAt = time.Now()
	s.reports = append(s.reports, *report)

	notice.SessionID = sessionID
	notice.Ordinal = session.MessageCount + 1
	notice.CreatedAt = time.Now()
	analysis.SessionID = sessionID
	analysis.Ordinal = session.MessageCount + 2
	analysis.CreatedAt = time.Now()
	s.messages[sessionID] = append(s.messages[sessionID], notice, analysis)

	session.MessageCount += 2
	session.ReportCount++
	session.LastActivityAt = time.Now()
	copied := *session
	return &copied, nil
}

// Session returns a copy of the stored session row, or nil.
func (s *MemoryStore) Session(sessionID uint) *model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	copied := *session
	return &copied
}

// SetLastActivity backdates a session for ordering tests.
func (s *MemoryStore) SetLastActivity(sessionID uint, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.sessions[sessionID]; ok {
		session.LastActivityAt = t
	}
}

func (s *MemoryStore) End(sessionID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return errors.New("session not found")
	}
	now := time.Now()
	session.Status = model.SessionEnded
	session.EndedAt = &now
	session.LastActivityAt = now
	return nil
}

func (s *MemoryStore) Transcript(sessionID uint) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Message(nil), s.messages[sessionID]...), nil
}

func (s *MemoryStore) RecentWindow(sessionID uint, n int) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[sessionID]
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return append([]model.Message(nil), msgs...), nil
}

func (s *MemoryStore) ListByUserID(userID uint) ([]model.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Report
	for _, r := range s.reports {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListBySessionID(sessionID, userID uint) ([]model.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Report
	for _, r := range s.reports {
		if r.SessionID == sessionID && r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}
