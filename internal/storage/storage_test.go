package storage

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "feedbackbot/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(id, outcome string) Delivery {
	return Delivery{
		At:         time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
		RunID:      "run-" + id,
		FeedbackID: id,
		Category:   "BUG",
		Outcome:    outcome,
		TookMS:     12,
	}
}

func TestOpenDisabled(t *testing.T) {
	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		assert.ErrorIs(t, err, ErrDisabled)
		assert.Nil(t, st)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "postgres", Path: "x"}, logx.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres")
}

func TestFileStoreAppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "deliveries.jsonl")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, st.AppendDelivery(ctx, sample("f1", "forwarded")))
	failed := sample("f2", "card_failed")
	failed.Error = "create card: rejected"
	require.NoError(t, st.AppendDelivery(ctx, failed))
	require.NoError(t, st.Close())
	require.NoError(t, st.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var got []Delivery
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var d Delivery
		require.NoError(t, json.Unmarshal(sc.Bytes(), &d))
		got = append(got, d)
	}
	require.NoError(t, sc.Err())
	require.Len(t, got, 2)
	assert.Equal(t, "f1", got[0].FeedbackID)
	assert.Equal(t, "card_failed", got[1].Outcome)
	assert.Equal(t, "create card: rejected", got[1].Error)

	assert.Error(t, st.AppendDelivery(ctx, sample("f3", "skipped")))
}

func TestSQLiteStoreInsertsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedbackbot.db")
	st, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, st.AppendDelivery(ctx, sample("f1", "forwarded")))
	require.NoError(t, st.AppendDelivery(ctx, sample("f2", "send_failed")))
	require.NoError(t, st.Close())

	// Reopening must not fail on the existing schema.
	st, err = Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.Close())

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM deliveries`).Scan(&n))
	assert.Equal(t, 2, n)

	var outcome string
	var cardURL sql.NullString
	require.NoError(t, db.QueryRow(`SELECT outcome, card_url FROM deliveries WHERE feedback_id = ?`, "f2").Scan(&outcome, &cardURL))
	assert.Equal(t, "send_failed", outcome)
	assert.False(t, cardURL.Valid)
}
