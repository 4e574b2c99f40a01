package app_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medichat/internal/ai"
	"medichat/internal/app"
	"medichat/internal/app/apptest"
	"medichat/internal/model"
)

func newIntakeFixture(engine *apptest.ScriptedEngine) (*apptest.MemoryStore, *app.ChatService, *app.IntakeService) {
	store := apptest.NewMemoryStore()
	chatSvc := newChatService(store, engine)
	intakeSvc := app.NewIntakeService(store, store, nil, nil, engine, nil, ai.ChatConfig{Model: "test"})
	return store, chatSvc, intakeSvc
}

func TestUploadAndAnalyzeAppendsPair(t *testing.T) {
	engine := &apptest.ScriptedEngine{Reply: "Cholesterol slightly elevated; discuss with your clinician."}
	store, chatSvc, intakeSvc := newIntakeFixture(engine)

	session, _, err := chatSvc.StartSession(1)
	require.NoError(t, err)

	result, err := intakeSvc.UploadAndAnalyze(app.UploadInput{
		UserID:    1,
		SessionID: session.ID,
		FileName:  "lipid-panel.txt",
		Data:      []byte("Total cholesterol: 215 mg/dL\nHDL: 48 mg/dL"),
	})
	require.NoError(t, err)
	assert.Equal(t, "lipid-panel.txt", result.FileName)
	assert.Equal(t, engine.Reply, result.Analysis)

	transcript, err := store.Transcript(session.ID)
	require.NoError(t, err)
	require.Len(t, transcript, 3)
	assert.Equal(t, model.RoleSystem, transcript[1].Role)
	assert.Equal(t, model.MessageText, transcript[1].MessageType)
	assert.Contains(t, transcript[1].Content, "lipid-panel.txt")
	assert.Equal(t, model.RoleAssistant, transcript[2].Role)
	assert.Equal(t, model.MessageFileAnalysis, transcript[2].MessageType)

	updated := store.Session(session.ID)
	assert.Equal(t, 3, updated.MessageCount)
	assert.Equal(t, 1, updated.ReportCount)

	reports, err := intakeSvc.ListReports(1, 0)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "lipid-panel.txt", reports[0].FileName)
	assert.NotEmpty(t, reports[0].FileKey)
}

func TestListReportsScopedToSession(t *testing.T) {
	engine := &apptest.ScriptedEngine{Reply: "within normal range"}
	_, chatSvc, intakeSvc := newIntakeFixture(engine)

	first, _, err := chatSvc.StartSession(1)
	require.NoError(t, err)
	second, _, err := chatSvc.StartSession(1)
	require.NoError(t, err)

	for _, target := range []uint{first.ID, first.ID, second.ID} {
		_, err := intakeSvc.UploadAndAnalyze(app.UploadInput{
			UserID:    1,
			SessionID: target,
			FileName:  "panel.txt",
			Data:      []byte("HGB 14.2"),
		})
		require.NoError(t, err)
	}

	all, err := intakeSvc.ListReports(1, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	scoped, err := intakeSvc.ListReports(1, first.ID)
	require.NoError(t, err)
	require.Len(t, scoped, 2)
	for _, r := range scoped {
		assert.Equal(t, first.ID, r.SessionID)
	}

	// A session the caller does not own yields nothing.
	foreign, err := intakeSvc.ListReports(2, first.ID)
	require.NoError(t, err)
	assert.Empty(t, foreign)
}

func TestUploadAnalyzerFailureWritesNothing(t *testing.T) {
	engine := &apptest.ScriptedEngine{Err: errors.New("analyzer unavailable")}
	store, chatSvc, intakeSvc := newIntakeFixture(engine)

	session, _, err := chatSvc.StartSession(1)
	require.NoError(t, err)

	_, err = intakeSvc.UploadAndAnalyze(app.UploadInput{
		UserID:    1,
		SessionID: session.ID,
		FileName:  "report.txt",
		Data:      []byte("some findings"),
	})
	assert.ErrorIs(t, err, app.ErrAnalysisFailed)

	transcript, _ := store.Transcript(session.ID)
	assert.Len(t, transcript, 1)
	assert.Equal(t, 0, store.Session(session.ID).ReportCount)

	reports, err := intakeSvc.ListReports(1, 0)
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func TestUploadPreconditions(t *testing.T) {
	engine := &apptest.ScriptedEngine{Reply: "ok"}
	store, chatSvc, intakeSvc := newIntakeFixture(engine)

	session, _, err := chatSvc.StartSession(1)
	require.NoError(t, err)

	_, err = intakeSvc.UploadAndAnalyze(app.UploadInput{UserID: 1, SessionID: session.ID})
	assert.ErrorIs(t, err, app.ErrFileEmpty)

	_, err = intakeSvc.UploadAndAnalyze(app.UploadInput{
		UserID:    1,
		SessionID: session.ID,
		Data:      []byte{0xff, 0xfe, 0x00, 0x01},
	})
	assert.ErrorIs(t, err, app.ErrFileUnreadable)

	_, err = intakeSvc.UploadAndAnalyze(app.UploadInput{
		UserID:    2,
		SessionID: session.ID,
		Data:      []byte("text"),
	})
	assert.ErrorIs(t, err, app.ErrSessionNotFound)

	require.NoError(t, chatSvc.EndSession(session.ID, 1))
	_, err = intakeSvc.UploadAndAnalyze(app.UploadInput{
		UserID:    1,
		SessionID: session.ID,
		Data:      []byte("text"),
	})
	assert.ErrorIs(t, err, app.ErrSessionEnded)

	transcript, _ := store.Transcript(session.ID)
	assert.Len(t, transcript, 1)
}
