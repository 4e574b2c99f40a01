package app

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"medichat/internal/ai"
	"medichat/internal/model"
	"medichat/internal/pkg/sessionlock"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionEnded    = errors.New("session has ended")
	ErrMessageEmpty    = errors.New("message content is empty")
)

const (
	greetingMessage = "Hello! I'm your medical assistant. I can answer general health questions, " +
		"talk through symptoms, and review uploaded medical reports. How can I help you today?"

	fallbackReply = "I'm sorry, I'm having trouble responding right now. Please try again in a moment."

	chatSystemPrompt = "You are a careful medical assistant for a patient-facing healthcare service. " +
		"Give clear, general health information, ask clarifying questions where useful, and remind " +
		"the user to consult a clinician for diagnosis or treatment decisions. Never prescribe medication."

	defaultSessionTitle = "New Consultation"

	// The derived title may still change while the session has this many
	// messages or fewer; afterwards it is frozen.
	titleFreezeCount = 4

	titleMaxRunes   = 48
	previewMaxRunes = 80

	listDefaultLimit = 20
	listMaxLimit     = 50
)

// SessionStore is the durable session/transcript store. Implemented by
// repository.SessionRepository; tests use an in-memory fake.
type SessionStore interface {
	CreateWithGreeting(session *model.Session, greeting *model.Message) error
	GetByIDAndUserID(sessionID, userID uint) (*model.Session, error)
	ListSummaries(userID uint, limit int) ([]model.SessionSummary, error)
	AppendTurn(sessionID uint, userMsg, assistantMsg model.Message, title string) (*model.Session, error)
	AppendReport(sessionID uint, report *model.Report, notice, analysis model.Message) (*model.Session, error)
	End(sessionID uint) error
	Transcript(sessionID uint) ([]model.Message, error)
	RecentWindow(sessionID uint, n int) ([]model.Message, error)
}

type HistoryCache interface {
	GetFresh(ctx context.Context, sessionID uint) ([]model.Message, bool, error)
	Store(ctx context.Context, sessionID uint, messages []model.Message) error
	Invalidate(ctx context.Context, sessionID uint) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event model.SessionEvent) error
}

type CompletionClient interface {
	Complete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage) (string, error)
	StreamComplete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage, onChunk func(string) error) (string, error)
}

type ChatService struct {
	store        SessionStore
	historyCache HistoryCache
	events       EventPublisher
	llm          CompletionClient
	locks        *sessionlock.KeyedMutex
	chatCfg      ai.ChatConfig
	maxContext   int
}

func NewChatService(
	store SessionStore,
	historyCache HistoryCache,
	events EventPublisher,
	llm CompletionClient,
	locks *sessionlock.KeyedMutex,
	chatCfg ai.ChatConfig,
	maxContext int,
) *ChatService {
	if maxContext <= 0 {
		maxContext = 20
	}
	if locks == nil {
		locks = sessionlock.New()
	}
	return &ChatService{
		store:        store,
		historyCache: historyCache,
		events:       events,
		llm:          llm,
		locks:        locks,
		chatCfg:      chatCfg,
		maxContext:   maxContext,
	}
}

// StartSession creates an active session seeded with the assistant greeting.
func (s *ChatService) StartSession(userID uint) (*model.Session, *model.Message, error) {
	if userID == 0 {
		return nil, nil, ErrInvalidInput
	}

	session := &model.Session{
		UserID:         userID,
		Title:          defaultSessionTitle,
		LastActivityAt: time.Now(),
	}
	greeting := &model.Message{
		UserID:      userID,
		Role:        model.RoleAssistant,
		MessageType: model.MessageText,
		Content:     greetingMessage,
	}
	if err := s.store.CreateWithGreeting(session, greeting); err != nil {
		return nil, nil, err
	}

	s.publishEvent(model.EventSessionStarted, session.ID, userID)
	return session, greeting, nil
}

type SendMessageInput struct {
	UserID    uint
	SessionID uint
	Content   string
}

type TurnResult struct {
	Reply       string
	MessageType model.MessageType
	FollowUps   []string
	Fallback    bool
}

// SendMessage runs one conversation turn: it appends the user message and the
// assistant reply as a single unit. If the reasoning engine fails or times
// out, a fixed apology is persisted instead and the turn still succeeds.
func (s *ChatService) SendMessage(input SendMessageInput) (*TurnResult, error) {
	session, content, err := s.prepareTurn(input)
	if err != nil {
		return nil, err
	}
	defer s.locks.Unlock(input.SessionID)

	prompt, err := s.buildPrompt(session.ID, content)
	if err != nil {
		return nil, err
	}

	// The turn runs on a detached context: a client disconnect must not stop
	// an in-flight turn from completing and persisting.
	reply, llmErr := s.llm.Complete(context.Background(), s.chatCfg, prompt)
	return s.completeTurn(session, content, reply, llmErr)
}

// StreamMessage is SendMessage over a chunk callback. The completed turn is
// persisted only after the stream finishes; a mid-stream failure falls back
// to the apology reply like a failed non-streaming turn.
func (s *ChatService) StreamMessage(input SendMessageInput, onChunk func(string) error) (*TurnResult, error) {
	session, content, err := s.prepareTurn(input)
	if err != nil {
		return nil, err
	}
	defer s.locks.Unlock(input.SessionID)

	prompt, err := s.buildPrompt(session.ID, content)
	if err != nil {
		return nil, err
	}

	reply, llmErr := s.llm.StreamComplete(context.Background(), s.chatCfg, prompt, onChunk)
	return s.completeTurn(session, content, reply, llmErr)
}

// prepareTurn validates the request and locks the session. On success the
// caller holds the session lock.
func (s *ChatService) prepareTurn(input SendMessageInput) (*model.Session, string, error) {
	if input.UserID == 0 || input.SessionID == 0 {
		return nil, "", ErrInvalidInput
	}
	// Whitespace-only input is rejected, but accepted content is stored
	// byte-for-byte: history must return exactly what the caller sent.
	if strings.TrimSpace(input.Content) == "" {
		return nil, "", ErrMessageEmpty
	}
	content := input.Content

	s.locks.Lock(input.SessionID)
	session, err := s.store.GetByIDAndUserID(input.SessionID, input.UserID)
	if err != nil {
		s.locks.Unlock(input.SessionID)
		return nil, "", err
	}
	if session == nil {
		s.locks.Unlock(input.SessionID)
		return nil, "", ErrSessionNotFound
	}
	if !session.Active() {
		s.locks.Unlock(input.SessionID)
		return nil, "", ErrSessionEnded
	}
	return session, content, nil
}

func (s *ChatService) completeTurn(session *model.Session, content, reply string, llmErr error) (*TurnResult, error) {
	fallback := false
	if llmErr != nil {
		log.Printf("reasoning engine failed for session %d: %v", session.ID, llmErr)
		reply = fallbackReply
		fallback = true
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		reply = fallbackReply
		fallback = true
	}

	userMsg := model.Message{
		UserID:      session.UserID,
		Role:        model.RoleUser,
		MessageType: model.MessageText,
		Content:     content,
	}
	assistantMsg := model.Message{
		UserID:      session.UserID,
		Role:        model.RoleAssistant,
		MessageType: model.MessageText,
		Content:     reply,
	}

	if _, err := s.store.AppendTurn(session.ID, userMsg, assistantMsg, s.deriveTitle(session, content)); err != nil {
		return nil, err
	}
	s.invalidateHistory(session.ID)
	s.publishEvent(model.EventTurnCompleted, session.ID, session.UserID)

	result := &TurnResult{
		Reply:       reply,
		MessageType: model.MessageText,
		Fallback:    fallback,
	}
	if !fallback {
		result.FollowUps = SuggestFollowUps(reply)
	}
	return result, nil
}

// EndSession transitions active -> ended. Ending an already ended session is
// a no-op success.
func (s *ChatService) EndSession(sessionID, userID uint) error {
	if sessionID == 0 || userID == 0 {
		return ErrInvalidInput
	}

	s.locks.Lock(sessionID)
	defer s.locks.Unlock(sessionID)

	session, err := s.store.GetByIDAndUserID(sessionID, userID)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionNotFound
	}
	if !session.Active() {
		return nil
	}

	if err := s.store.End(sessionID); err != nil {
		return err
	}
	s.invalidateHistory(sessionID)
	s.publishEvent(model.EventSessionEnded, sessionID, userID)
	return nil
}

// ListSessions returns the user's most recently active sessions, previews
// truncated. The limit is clamped to [1, 50]; zero means the default of 20.
func (s *ChatService) ListSessions(userID uint, limit int) ([]model.SessionSummary, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	if limit <= 0 {
		limit = listDefaultLimit
	}
	if limit > listMaxLimit {
		limit = listMaxLimit
	}

	summaries, err := s.store.ListSummaries(userID, limit)
	if err != nil {
		return nil, err
	}
	for i := range summaries {
		summaries[i].LastMessage = truncateRunes(summaries[i].LastMessage, previewMaxRunes)
	}
	return summaries, nil
}

// GetHistory returns the full ordered transcript of an owned session.
func (s *ChatService) GetHistory(userID, sessionID uint) ([]model.Message, error) {
	if userID == 0 || sessionID == 0 {
		return nil, ErrInvalidInput
	}

	session, err := s.store.GetByIDAndUserID(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	ctx := context.Background()
	if s.historyCache != nil {
		if cached, hit, cacheErr := s.historyCache.GetFresh(ctx, sessionID); cacheErr == nil && hit {
			return cached, nil
		}
	}

	messages, err := s.store.Transcript(sessionID)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		_ = s.historyCache.Store(ctx, sessionID, messages)
	}
	return messages, nil
}

func (s *ChatService) buildPrompt(sessionID uint, currentUserInput string) ([]ai.ChatMessage, error) {
	recent, err := s.store.RecentWindow(sessionID, s.maxContext)
	if err != nil {
		return nil, err
	}

	messages := make([]ai.ChatMessage, 0, len(recent)+2)
	messages = append(messages, ai.ChatMessage{
		Role:    "system",
		Content: chatSystemPrompt,
	})
	for _, item := range recent {
		messages = append(messages, ai.ChatMessage{
			Role:    string(item.Role),
			Content: item.Content,
		})
	}
	messages = append(messages, ai.ChatMessage{
		Role:    "user",
		Content: currentUserInput,
	})
	return messages, nil
}

// deriveTitle returns a new session title while the session is young enough
// to retitle, empty string otherwise.
func (s *ChatService) deriveTitle(session *model.Session, userContent string) string {
	if session.MessageCount > titleFreezeCount {
		return ""
	}
	title := strings.Join(strings.Fields(userContent), " ")
	if title == "" {
		return ""
	}
	return truncateRunes(title, titleMaxRunes)
}

func (s *ChatService) invalidateHistory(sessionID uint) {
	if s.historyCache == nil {
		return
	}
	_ = s.historyCache.Invalidate(context.Background(), sessionID)
}

func (s *ChatService) publishEvent(eventType string, sessionID, userID uint) {
	if s.events == nil {
		return
	}
	event := model.SessionEvent{
		SessionID:  sessionID,
		UserID:     userID,
		Type:       eventType,
		OccurredAt: time.Now(),
	}
	if err := s.events.Publish(context.Background(), event); err != nil {
		log.Printf("publish %s event for session %d failed: %v", eventType, sessionID, err)
	}
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
