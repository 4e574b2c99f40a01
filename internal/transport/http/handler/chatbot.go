package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"medichat/internal/app"
	"medichat/internal/model"
	"medichat/internal/transport/http/middleware"
	"medichat/internal/transport/http/response"
)

const maxUploadSize = 10 << 20 // 10 MB

type ChatbotHandler struct {
	chatService   *app.ChatService
	intakeService *app.IntakeService
}

func NewChatbotHandler(chatService *app.ChatService, intakeService *app.IntakeService) *ChatbotHandler {
	return &ChatbotHandler{
		chatService:   chatService,
		intakeService: intakeService,
	}
}

type SendMessageRequest struct {
	SessionID uint   `json:"sessionId" binding:"required,gt=0"`
	Message   string `json:"message" binding:"required"`
}

type messagePayload struct {
	Role        model.MessageRole `json:"role"`
	Content     string            `json:"content"`
	MessageType model.MessageType `json:"messageType"`
	Timestamp   time.Time         `json:"timestamp"`
	Ordinal     int               `json:"ordinal"`
}

type sessionPayload struct {
	SessionID    uint                `json:"sessionId"`
	SessionTitle string              `json:"sessionTitle"`
	Status       model.SessionStatus `json:"status"`
	LastActivity time.Time           `json:"lastActivity"`
	MessageCount int                 `json:"messageCount"`
	ReportCount  int                 `json:"reportCount"`
	LastMessage  string              `json:"lastMessage"`
}

// StartSession creates a new active session with its greeting.
func (h *ChatbotHandler) StartSession(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "invalid token payload")
		return
	}

	session, greeting, err := h.chatService.StartSession(userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "start session failed")
		return
	}

	response.OK(c, gin.H{
		"sessionId":      session.ID,
		"initialMessage": greeting.Content,
	})
}

// ListSessions returns the caller's sessions, most recently active first.
func (h *ChatbotHandler) ListSessions(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "invalid token payload")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	summaries, err := h.chatService.ListSessions(userID, limit)
	if err != nil {
		h.mapServiceError(c, err, "list sessions failed")
		return
	}

	sessions := make([]sessionPayload, 0, len(summaries))
	for _, s := range summaries {
		sessions = append(sessions, sessionPayload{
			SessionID:    s.SessionID,
			SessionTitle: s.Title,
			Status:       s.Status,
			LastActivity: s.LastActivityAt,
			MessageCount: s.MessageCount,
			ReportCount:  s.ReportCount,
			LastMessage:  s.LastMessage,
		})
	}
	response.OK(c, gin.H{"sessions": sessions})
}

// GetHistory returns the full transcript of one owned session.
func (h *ChatbotHandler) GetHistory(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "invalid token payload")
		return
	}

	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	history, err := h.chatService.GetHistory(userID, sessionID)
	if err != nil {
		h.mapServiceError(c, err, "get history failed")
		return
	}

	messages := make([]messagePayload, 0, len(history))
	for _, m := range history {
		messages = append(messages, messagePayload{
			Role:        m.Role,
			Content:     m.Content,
			MessageType: m.MessageType,
			Timestamp:   m.CreatedAt,
			Ordinal:     m.Ordinal,
		})
	}
	response.OK(c, gin.H{"messages": messages})
}

// SendMessage runs one conversation turn.
func (h *ChatbotHandler) SendMessage(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "invalid token payload")
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request payload")
		return
	}

	result, err := h.chatService.SendMessage(app.SendMessageInput{
		UserID:    userID,
		SessionID: req.SessionID,
		Content:   req.Message,
	})
	if err != nil {
		h.mapServiceError(c, err, "send message failed")
		return
	}

	followUps := result.FollowUps
	if followUps == nil {
		followUps = []string{}
	}
	response.OK(c, gin.H{
		"response":          result.Reply,
		"messageType":       result.MessageType,
		"followUpQuestions": followUps,
	})
}

// StreamMessage runs one conversation turn over SSE. The turn persists after
// the stream completes, even when the client goes away mid-stream.
func (h *ChatbotHandler) StreamMessage(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "invalid token payload")
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request payload")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, "stream not supported")
		return
	}

	result, err := h.chatService.StreamMessage(app.SendMessageInput{
		UserID:    userID,
		SessionID: req.SessionID,
		Content:   req.Message,
	}, func(chunk string) error {
		if _, writeErr := c.Writer.Write([]byte("data: " + sanitizeSSE(chunk) + "\n\n")); writeErr != nil {
			return writeErr
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		if _, writeErr := c.Writer.Write([]byte("event: error\ndata: " + sanitizeSSE(err.Error()) + "\n\n")); writeErr == nil {
			flusher.Flush()
		}
		return
	}

	if _, writeErr := c.Writer.Write([]byte("event: done\ndata: " + sanitizeSSE(result.Reply) + "\n\n")); writeErr == nil {
		flusher.Flush()
	}
}

// UploadReport accepts a multipart document, analyzes it, and appends the
// notice/analysis pair to the transcript.
func (h *ChatbotHandler) UploadReport(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "invalid token payload")
		return
	}

	sessionID64, err := strconv.ParseUint(c.PostForm("sessionId"), 10, 64)
	if err != nil || sessionID64 == 0 {
		response.Error(c, http.StatusBadRequest, "invalid sessionId")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, "missing file (form field 'file')")
		return
	}
	if fileHeader.Size > maxUploadSize {
		response.Error(c, http.StatusBadRequest, "file too large (max 10MB)")
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, "failed to open uploaded file")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "failed to read uploaded file")
		return
	}

	result, err := h.intakeService.UploadAndAnalyze(app.UploadInput{
		UserID:    userID,
		SessionID: uint(sessionID64),
		FileName:  fileHeader.Filename,
		Data:      data,
	})
	if err != nil {
		h.mapServiceError(c, err, "upload failed")
		return
	}

	response.OK(c, gin.H{
		"fileName": result.FileName,
		"analysis": result.Analysis,
	})
}

// EndSession transitions the session to its terminal state.
func (h *ChatbotHandler) EndSession(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "invalid token payload")
		return
	}

	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	if err := h.chatService.EndSession(sessionID, userID); err != nil {
		h.mapServiceError(c, err, "end session failed")
		return
	}
	response.OK(c, gin.H{})
}

// ListReports returns the caller's uploaded reports, filtered to one session
// when a sessionId query parameter is present.
func (h *ChatbotHandler) ListReports(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "invalid token payload")
		return
	}

	var sessionID uint
	if raw := c.Query("sessionId"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || parsed == 0 {
			response.Error(c, http.StatusBadRequest, "invalid sessionId")
			return
		}
		sessionID = uint(parsed)
	}

	reports, err := h.intakeService.ListReports(userID, sessionID)
	if err != nil {
		h.mapServiceError(c, err, "list reports failed")
		return
	}
	response.OK(c, gin.H{"reports": reports})
}

func (h *ChatbotHandler) mapServiceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput),
		errors.Is(err, app.ErrMessageEmpty),
		errors.Is(err, app.ErrFileEmpty),
		errors.Is(err, app.ErrFileUnreadable):
		response.Error(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrSessionNotFound):
		response.Error(c, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrSessionEnded):
		response.Error(c, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrAnalysisFailed):
		response.Error(c, http.StatusBadGateway, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, fallback)
	}
}

func sessionIDParam(c *gin.Context) (uint, bool) {
	sessionID64, err := strconv.ParseUint(c.Param("sessionId"), 10, 64)
	if err != nil || sessionID64 == 0 {
		response.Error(c, http.StatusBadRequest, "invalid session id")
		return 0, false
	}
	return uint(sessionID64), true
}

func getUserIDFromContext(c *gin.Context) (uint, bool) {
	userIDAny, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}
	userID, ok := userIDAny.(uint)
	return userID, ok
}

func sanitizeSSE(input string) string {
	replaced := strings.ReplaceAll(input, "\r\n", "\\n")
	replaced = strings.ReplaceAll(replaced, "\n", "\\n")
	return replaced
}
