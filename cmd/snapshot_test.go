package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hscore/internal/config"
	"github.com/sells-group/hscore/internal/model"
	"github.com/sells-group/hscore/internal/store"
)

func withSQLiteConfig(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "hscore.db")
	prev := cfg
	cfg = &config.Config{Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: dbPath}}
	t.Cleanup(func() { cfg = prev })
	return dbPath
}

func TestFormatSnapshotList(t *testing.T) {
	snaps := []model.Snapshot{
		{ID: "0f8fad5b-d9cb-469f-a165-70867728950e", CreatedAt: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), CreatedBy: "ops", Note: "weekly", IsCurrent: true, Subzones: 332},
		{ID: "7c9e6679-7425-40de-944b-e07fc1f90ae7", CreatedAt: time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC), Note: strings.Repeat("x", 50), Subzones: 330},
	}
	var buf bytes.Buffer
	formatSnapshotList(&buf, snaps)
	out := buf.String()

	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "0f8fad5b")
	assert.NotContains(t, out, "0f8fad5b-d9cb")
	assert.Contains(t, out, "2026-03-01 08:00")
	assert.Contains(t, out, "332")
	assert.Contains(t, out, strings.Repeat("x", 37)+"...")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[2], "*")
	assert.NotContains(t, lines[3], "*")
}

func TestFormatSnapshot(t *testing.T) {
	snap := &model.Snapshot{ID: "abc", CreatedAt: time.Now().Add(-2 * time.Hour), Note: "census 2020", IsCurrent: true, Subzones: 332}
	rows := []model.ScoredSubzone{
		{Subzone: "TAMPINES EAST", PlanningArea: "TAMPINES", Population: 52000, Hawker: 1, MRT: 2, Bus: 40, HScore: 1, HRank: 1},
	}
	var buf bytes.Buffer
	formatSnapshot(&buf, snap, rows)
	out := buf.String()

	assert.Contains(t, out, "census 2020")
	assert.Contains(t, out, "2 hours ago")
	assert.Contains(t, out, "1/332")
	assert.Contains(t, out, "52,000")
	assert.Contains(t, out, "1.000")
	assert.NotContains(t, out, "By:")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "12345678", truncateID("1234567890"))
	assert.Equal(t, "abc", truncateID("abc"))
}

func TestSnapshotIngestAndRestore(t *testing.T) {
	dbPath := withSQLiteConfig(t)
	ctx := context.Background()

	var fc bytes.Buffer
	require.NoError(t, model.EncodeFeatureCollection(&fc, []model.ScoredSubzone{
		{Subzone: "BEDOK NORTH", PlanningArea: "BEDOK", HScore: 1, HRank: 1},
		{Subzone: "", PlanningArea: "NOWHERE"},
	}))
	file := filepath.Join(t.TempDir(), "export.geojson")
	require.NoError(t, os.WriteFile(file, fc.Bytes(), 0o644))

	snapshotIngestCmd.SetContext(ctx)
	require.NoError(t, snapshotIngestCmd.Flags().Set("note", "from file"))
	require.NoError(t, snapshotIngestCmd.RunE(snapshotIngestCmd, []string{file}))

	st, err := store.NewSQLite(dbPath)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	cur, err := st.CurrentSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "from file", cur.Note)
	assert.Equal(t, 1, cur.Subzones)
	assert.Equal(t, "file", cur.Meta["source"])

	snapshotRestoreCmd.SetContext(ctx)
	err = snapshotRestoreCmd.RunE(snapshotRestoreCmd, []string{"does-not-exist"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSnapshotIngest_BadFile(t *testing.T) {
	withSQLiteConfig(t)
	snapshotIngestCmd.SetContext(context.Background())

	err := snapshotIngestCmd.RunE(snapshotIngestCmd, []string{filepath.Join(t.TempDir(), "missing.geojson")})
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.geojson")
	require.NoError(t, os.WriteFile(bad, []byte(`{"type":"Feature"}`), 0o644))
	err = snapshotIngestCmd.RunE(snapshotIngestCmd, []string{bad})
	assert.ErrorContains(t, err, "expected FeatureCollection")
}

func TestInitStore_Validates(t *testing.T) {
	prev := cfg
	t.Cleanup(func() { cfg = prev })

	cfg = &config.Config{Store: config.StoreConfig{Driver: "postgres"}}
	_, err := initStore(context.Background())
	assert.ErrorContains(t, err, "database_url")

	cfg = &config.Config{Store: config.StoreConfig{Driver: "mysql"}}
	_, err = initStore(context.Background())
	assert.ErrorContains(t, err, "unsupported store driver")
}

func TestInitAssistant_RequiresKey(t *testing.T) {
	prev := cfg
	t.Cleanup(func() { cfg = prev })

	cfg = &config.Config{}
	_, err := initAssistant(nil)
	assert.ErrorContains(t, err, "anthropic.key")

	cfg = &config.Config{Anthropic: config.AnthropicConfig{Key: "k"}}
	a, err := initAssistant(nil)
	require.NoError(t, err)
	assert.NotNil(t, a)
}
