package sqlite_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/adapter/outbound/persistence/sqlite"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.NewStore(context.Background(), sqlite.Config{
		Path:              ":memory:",
		MaxOpenConns:      1,
		PragmaJournalMode: "WAL",
		PragmaBusyTimeout: 5000,
	}, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func makeSession(t *testing.T, trigger string, created time.Time) model.AlertSession {
	t.Helper()
	event, err := model.NewAlertEvent(model.AlertDraft{
		TriggerName: trigger,
		HostName:    "web-01",
		Severity:    "High",
	})
	require.NoError(t, err)
	analysis := model.AnalysisResult{
		Fingerprint: event.Fingerprint(),
		Summary:     "CPU saturated by java",
		ProducedBy:  "gemini",
		Confidence:  0.8,
		CreatedAt:   created,
	}
	ref := model.MessageRef{Transport: "telegram", ChatID: "-100123", MessageID: "42"}
	return model.NewAlertSession(event, analysis, ref, created)
}

func TestNewStore_InvalidJournalMode(t *testing.T) {
	_, err := sqlite.NewStore(context.Background(), sqlite.Config{Path: ":memory:", PragmaJournalMode: "yolo"}, discardLogger())
	require.Error(t, err)
}

func TestNewStore_ReopenSkipsAppliedMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zabbix-ai.db")
	cfg := sqlite.Config{Path: path}

	first, err := sqlite.NewStore(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	require.NoError(t, sqlite.NewSessionRepo(first).Create(context.Background(), makeSession(t, "High CPU", time.Now())))
	require.NoError(t, first.Close())

	second, err := sqlite.NewStore(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	defer second.Close()

	var versions int
	require.NoError(t, second.DB.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&versions))
	require.Equal(t, 1, versions)

	var sessions int
	require.NoError(t, second.DB.QueryRow(`SELECT COUNT(*) FROM alert_sessions`).Scan(&sessions))
	require.Equal(t, 1, sessions)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStore_Ping(t *testing.T) {
	require.NoError(t, newTestStore(t).Ping(context.Background()))
}
