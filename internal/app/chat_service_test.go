package app_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medichat/internal/ai"
	"medichat/internal/app"
	"medichat/internal/app/apptest"
	"medichat/internal/model"
)

func newChatService(store *apptest.MemoryStore, engine *apptest.ScriptedEngine) *app.ChatService {
	return app.NewChatService(store, nil, nil, engine, nil, ai.ChatConfig{Model: "test"}, 20)
}

func TestStartSession(t *testing.T) {
	store := apptest.NewMemoryStore()
	svc := newChatService(store, &apptest.ScriptedEngine{Reply: "hi"})

	session, greeting, err := svc.StartSession(1)
	require.NoError(t, err)

	assert.Equal(t, model.SessionActive, session.Status)
	assert.Equal(t, 1, session.MessageCount)
	assert.Equal(t, model.RoleAssistant, greeting.Role)
	assert.NotEmpty(t, greeting.Content)

	transcript, err := store.Transcript(session.ID)
	require.NoError(t, err)
	require.Len(t, transcript, 1)
	assert.Equal(t, 1, transcript[0].Ordinal)
}

func TestSendMessageAppendsTurn(t *testing.T) {
	store := apptest.NewMemoryStore()
	engine := &apptest.ScriptedEngine{Reply: "Drink fluids and rest. See a doctor if the fever persists."}
	svc := newChatService(store, engine)

	session, _, err := svc.StartSession(1)
	require.NoError(t, err)
	before := store.Session(session.ID).LastActivityAt

	result, err := svc.SendMessage(app.SendMessageInput{
		UserID:    1,
		SessionID: session.ID,
		Content:   "I have a fever",
	})
	require.NoError(t, err)
	assert.False(t, result.Fallback)
	assert.Equal(t, engine.Reply, result.Reply)
	assert.Equal(t, model.MessageText, result.MessageType)
	assert.NotEmpty(t, result.FollowUps)

	transcript, err := store.Transcript(session.ID)
	require.NoError(t, err)
	require.Len(t, transcript, 3)
	assert.Equal(t, model.RoleUser, transcript[1].Role)
	assert.Equal(t, "I have a fever", transcript[1].Content)
	assert.Equal(t, model.RoleAssistant, transcript[2].Role)

	updated := store.Session(session.ID)
	assert.Equal(t, 3, updated.MessageCount)
	assert.False(t, updated.LastActivityAt.Before(before))
}

func TestSendMessageKeepsContentVerbatim(t *testing.T) {
	store := apptest.NewMemoryStore()
	svc := newChatService(store, &apptest.ScriptedEngine{Reply: "ok"})

	session, _, err := svc.StartSession(1)
	require.NoError(t, err)

	const padded = "  hello there  "
	_, err = svc.SendMessage(app.SendMessageInput{
		UserID:    1,
		SessionID: session.ID,
		Content:   padded,
	})
	require.NoError(t, err)

	// History returns exactly the bytes the caller sent, padding included.
	history, err := svc.GetHistory(1, session.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, padded, history[1].Content)
}

func TestSendMessageOrdinalsHaveNoGaps(t *testing.T) {
	store := apptest.NewMemoryStore()
	svc := newChatService(store, &apptest.ScriptedEngine{Reply: "ok"})

	session, _, err := svc.StartSession(1)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := svc.SendMessage(app.SendMessageInput{
			UserID:    1,
			SessionID: session.ID,
			Content:   fmt.Sprintf("message %d", i),
		})
		require.NoError(t, err)
	}

	transcript, err := store.Transcript(session.ID)
	require.NoError(t, err)
	require.Len(t, transcript, 9)
	for i, msg := range transcript {
		assert.Equal(t, i+1, msg.Ordinal)
	}
}

func TestSendMessageEngineFailureFallsBack(t *testing.T) {
	store := apptest.NewMemoryStore()
	engine := &apptest.ScriptedEngine{Err: errors.New("upstream timeout")}
	svc := newChatService(store, engine)

	session, _, err := svc.StartSession(1)
	require.NoError(t, err)

	result, err := svc.SendMessage(app.SendMessageInput{
		UserID:    1,
		SessionID: session.ID,
		Content:   "hello",
	})
	require.NoError(t, err)
	assert.True(t, result.Fallback)
	assert.NotEmpty(t, result.Reply)
	assert.Empty(t, result.FollowUps)

	// The apology turn is persisted like any other.
	transcript, err := store.Transcript(session.ID)
	require.NoError(t, err)
	require.Len(t, transcript, 3)
	assert.Equal(t, result.Reply, transcript[2].Content)
}

func TestSendMessageValidation(t *testing.T) {
	store := apptest.NewMemoryStore()
	svc := newChatService(store, &apptest.ScriptedEngine{Reply: "ok"})

	session, _, err := svc.StartSession(1)
	require.NoError(t, err)

	_, err = svc.SendMessage(app.SendMessageInput{UserID: 1, SessionID: session.ID, Content: "   "})
	assert.ErrorIs(t, err, app.ErrMessageEmpty)

	_, err = svc.SendMessage(app.SendMessageInput{UserID: 1, SessionID: 999, Content: "hi"})
	assert.ErrorIs(t, err, app.ErrSessionNotFound)

	// Another user's session must be indistinguishable from a missing one.
	_, err = svc.SendMessage(app.SendMessageInput{UserID: 2, SessionID: session.ID, Content: "hi"})
	assert.ErrorIs(t, err, app.ErrSessionNotFound)

	transcript, _ := store.Transcript(session.ID)
	assert.Len(t, transcript, 1)
}

func TestEndSessionIsTerminalAndIdempotent(t *testing.T) {
	store := apptest.NewMemoryStore()
	svc := newChatService(store, &apptest.ScriptedEngine{Reply: "ok"})

	session, _, err := svc.StartSession(1)
	require.NoError(t, err)

	require.NoError(t, svc.EndSession(session.ID, 1))
	require.NoError(t, svc.EndSession(session.ID, 1))

	_, err = svc.SendMessage(app.SendMessageInput{UserID: 1, SessionID: session.ID, Content: "hi"})
	assert.ErrorIs(t, err, app.ErrSessionEnded)

	transcript, _ := store.Transcript(session.ID)
	assert.Len(t, transcript, 1)
	assert.Equal(t, model.SessionEnded, store.Session(session.ID).Status)

	err = svc.EndSession(999, 1)
	assert.ErrorIs(t, err, app.ErrSessionNotFound)
}

func TestListSessionsBoundAndOrder(t *testing.T) {
	store := apptest.NewMemoryStore()
	svc := newChatService(store, &apptest.ScriptedEngine{Reply: "ok"})

	base := time.Now()
	for i := 0; i < 8; i++ {
		session, _, err := svc.StartSession(1)
		require.NoError(t, err)
		store.SetLastActivity(session.ID, base.Add(time.Duration(i)*time.Minute))
	}

	summaries, err := svc.ListSessions(1, 5)
	require.NoError(t, err)
	require.Len(t, summaries, 5)
	for i := 1; i < len(summaries); i++ {
		assert.True(t, summaries[i].LastActivityAt.Before(summaries[i-1].LastActivityAt))
	}

	// Limit is clamped, not trusted.
	summaries, err = svc.ListSessions(1, 500)
	require.NoError(t, err)
	assert.Len(t, summaries, 8)
}

func TestDerivedTitleFreezes(t *testing.T) {
	store := apptest.NewMemoryStore()
	svc := newChatService(store, &apptest.ScriptedEngine{Reply: "ok"})

	session, _, err := svc.StartSession(1)
	require.NoError(t, err)

	_, err = svc.SendMessage(app.SendMessageInput{UserID: 1, SessionID: session.ID, Content: "persistent headaches"})
	require.NoError(t, err)
	assert.Equal(t, "persistent headaches", store.Session(session.ID).Title)

	_, err = svc.SendMessage(app.SendMessageInput{UserID: 1, SessionID: session.ID, Content: "and back pain"})
	require.NoError(t, err)
	assert.Equal(t, "and back pain", store.Session(session.ID).Title)

	// Past the freeze point the title stops tracking new messages.
	_, err = svc.SendMessage(app.SendMessageInput{UserID: 1, SessionID: session.ID, Content: "different topic"})
	require.NoError(t, err)
	assert.Equal(t, "and back pain", store.Session(session.ID).Title)
}

func TestGetHistoryOwnership(t *testing.T) {
	store := apptest.NewMemoryStore()
	svc := newChatService(store, &apptest.ScriptedEngine{Reply: "ok"})

	session, _, err := svc.StartSession(1)
	require.NoError(t, err)

	history, err := svc.GetHistory(1, session.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	_, err = svc.GetHistory(2, session.ID)
	assert.ErrorIs(t, err, app.ErrSessionNotFound)
}

func TestStreamMessagePersistsAfterChunks(t *testing.T) {
	store := apptest.NewMemoryStore()
	engine := &apptest.ScriptedEngine{Reply: "streamed reply"}
	svc := newChatService(store, engine)

	session, _, err := svc.StartSession(1)
	require.NoError(t, err)

	var chunks []string
	result, err := svc.StreamMessage(app.SendMessageInput{
		UserID:    1,
		SessionID: session.ID,
		Content:   "hello",
	}, func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"streamed reply"}, chunks)
	assert.Equal(t, "streamed reply", result.Reply)

	transcript, _ := store.Transcript(session.ID)
	assert.Len(t, transcript, 3)
}

func TestStreamMessageClientGoneStillPersists(t *testing.T) {
	store := apptest.NewMemoryStore()
	engine := &apptest.ScriptedEngine{Reply: "streamed reply"}
	svc := newChatService(store, engine)

	session, _, err := svc.StartSession(1)
	require.NoError(t, err)

	result, err := svc.StreamMessage(app.SendMessageInput{
		UserID:    1,
		SessionID: session.ID,
		Content:   "hello",
	}, func(string) error {
		return errors.New("client went away")
	})
	require.NoError(t, err)
	assert.True(t, result.Fallback)

	// The turn still landed in the transcript.
	transcript, _ := store.Transcript(session.ID)
	assert.Len(t, transcript, 3)
}

func TestPromptIncludesWindowAndNewMessage(t *testing.T) {
	store := apptest.NewMemoryStore()
	engine := &apptest.ScriptedEngine{Reply: "ok"}
	svc := newChatService(store, engine)

	session, _, err := svc.StartSession(1)
	require.NoError(t, err)

	_, err = svc.SendMessage(app.SendMessageInput{UserID: 1, SessionID: session.ID, Content: "first question"})
	require.NoError(t, err)

	// system prompt + greeting + new user message
	prompt := engine.LastPrompt()
	require.Len(t, prompt, 3)
	assert.Equal(t, "system", prompt[0].Role)
	assert.Equal(t, "first question", prompt[2].Content)
}
