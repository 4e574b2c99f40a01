package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"medichat/internal/ai"
	"medichat/internal/model"
	"medichat/internal/pkg/pdfextract"
	"medichat/internal/pkg/sessionlock"
)

var (
	ErrFileEmpty      = errors.New("uploaded file is empty")
	ErrFileUnreadable = errors.New("could not extract text from file")
	ErrAnalysisFailed = errors.New("report analysis failed")
)

const (
	analysisSystemPrompt = "You are a medical report analyst. Summarize the uploaded document for the " +
		"patient in plain language: key findings, values outside reference ranges, and sensible next " +
		"steps. Do not diagnose; recommend discussing results with the treating clinician."

	// Extracted text beyond this is dropped before the analyzer call.
	maxAnalysisRunes = 20000
)

type ReportStore interface {
	ListByUserID(userID uint) ([]model.Report, error)
	ListBySessionID(sessionID, userID uint) ([]model.Report, error)
}

// IntakeService binds uploaded documents to a session. A successful upload
// appends exactly two messages (system notice + assistant analysis) and one
// report row as a single unit; a failed analysis writes nothing.
type IntakeService struct {
	store        SessionStore
	reports      ReportStore
	historyCache HistoryCache
	events       EventPublisher
	llm          CompletionClient
	locks        *sessionlock.KeyedMutex
	analysisCfg  ai.ChatConfig
}

func NewIntakeService(
	store SessionStore,
	reports ReportStore,
	historyCache HistoryCache,
	events EventPublisher,
	llm CompletionClient,
	locks *sessionlock.KeyedMutex,
	analysisCfg ai.ChatConfig,
) *IntakeService {
	if locks == nil {
		locks = sessionlock.New()
	}
	return &IntakeService{
		store:        store,
		reports:      reports,
		historyCache: historyCache,
		events:       events,
		llm:          llm,
		locks:        locks,
		analysisCfg:  analysisCfg,
	}
}

type UploadInput struct {
	UserID    uint
	SessionID uint
	FileName  string
	Data      []byte
}

type AnalysisResult struct {
	FileName string
	Analysis string
}

func (s *IntakeService) UploadAndAnalyze(input UploadInput) (*AnalysisResult, error) {
	if input.UserID == 0 || input.SessionID == 0 {
		return nil, ErrInvalidInput
	}
	if len(input.Data) == 0 {
		return nil, ErrFileEmpty
	}
	fileName := strings.TrimSpace(input.FileName)
	if fileName == "" {
		fileName = "report"
	}

	text, err := extractText(input.Data)
	if err != nil {
		return nil, err
	}

	s.locks.Lock(input.SessionID)
	defer s.locks.Unlock(input.SessionID)

	session, err := s.store.GetByIDAndUserID(input.SessionID, input.UserID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if !session.Active() {
		return nil, ErrSessionEnded
	}

	prompt := []ai.ChatMessage{
		{Role: "system", Content: analysisSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("File name: %s\n\nDocument content:\n%s", fileName, text)},
	}

	// Detached context: the analysis persists even if the uploader disconnects.
	analysis, err := s.llm.Complete(context.Background(), s.analysisCfg, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}
	analysis = strings.TrimSpace(analysis)
	if analysis == "" {
		return nil, fmt.Errorf("%w: analyzer returned empty result", ErrAnalysisFailed)
	}

	report := &model.Report{
		UserID:    input.UserID,
		FileName:  fileName,
		FileKey:   uuid.NewString(),
		SizeBytes: int64(len(input.Data)),
	}
	notice := model.Message{
		UserID:      input.UserID,
		Role:        model.RoleSystem,
		MessageType: model.MessageText,
		Content:     fmt.Sprintf("Uploaded report: %s", fileName),
	}
	analysisMsg := model.Message{
		UserID:      input.UserID,
		Role:        model.RoleAssistant,
		MessageType: model.MessageFileAnalysis,
		Content:     analysis,
	}

	if _, err := s.store.AppendReport(input.SessionID, report, notice, analysisMsg); err != nil {
		return nil, err
	}
	s.invalidateHistory(input.SessionID)
	s.publishEvent(model.EventReportAnalyzed, input.SessionID, input.UserID)

	return &AnalysisResult{
		FileName: fileName,
		Analysis: analysis,
	}, nil
}

// ListReports returns the user's uploaded reports, optionally narrowed to
// one session. A sessionID of zero means all sessions.
func (s *IntakeService) ListReports(userID, sessionID uint) ([]model.Report, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	if sessionID != 0 {
		return s.reports.ListBySessionID(sessionID, userID)
	}
	return s.reports.ListByUserID(userID)
}

// extractText pulls plain text out of the upload: PDFs go through the PDF
// extractor, anything else must already be UTF-8 text.
func extractText(data []byte) (string, error) {
	if pdfextract.IsPDF(data) {
		text, err := pdfextract.ExtractText(data)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrFileUnreadable, err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return "", ErrFileUnreadable
		}
		return truncateRunes(text, maxAnalysisRunes), nil
	}

	if !utf8.Valid(data) {
		return "", ErrFileUnreadable
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", ErrFileEmpty
	}
	return truncateRunes(text, maxAnalysisRunes), nil
}

func (s *IntakeService) invalidateHistory(sessionID uint) {
	if s.historyCache == nil {
		return
	}
	_ = s.historyCache.Invalidate(context.Background(), sessionID)
}

func (s *IntakeService) publishEvent(eventType string, sessionID, userID uint) {
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
