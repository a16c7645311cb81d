// File: internal/records/records_test.go
package records

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testRecord(email string) Record {
	return Record{
		Timestamp: time.Date(2026, 2, 14, 9, 30, 0, 123456789, time.UTC),
		Email:     email,
		Name:      "Jane Q",
		Password:  "s3cret!Pass",
		Status:    "pending_challenge",
		SessionID: "sess-1",
		RunID:     "run-1",
	}
}

func TestJournalAppendAndList(t *testing.T) {
	t.Parallel()

	// A nested path checks that Append creates missing directories.
	path := filepath.Join(t.TempDir(), "out", "registrations.csv")
	j := NewJournal(path, zaptest.NewLogger(t))
	assert.Equal(t, path, j.Path())

	first := testRecord("first@example.com")
	second := testRecord("second@example.com")
	second.Status = "completed"
	second.RunID = "run-2"

	require.NoError(t, j.Append(first))
	require.NoError(t, j.Append(second))

	recs, err := j.List()
	require.NoError(t, err)
	if diff := cmp.Diff([]Record{first, second}, recs); diff != "" {
		t.Errorf("round trip mismatch. Diff:\n%s", diff)
	}

	// The header must be written exactly once even across appends.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(raw), "timestamp,email,name,password,status"))
}

func TestJournalListMissingFile(t *testing.T) {
	t.Parallel()

	j := NewJournal(filepath.Join(t.TempDir(), "never-written.csv"), zaptest.NewLogger(t))
	recs, err := j.List()
	require.NoError(t, err)
	assert.Nil(t, recs)
}

func TestJournalListSkipsMalformedRows(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "registrations.csv")
	content := strings.Join([]string{
		"timestamp,email,name,password,status,session_id,run_id",
		"2026-02-14T09:30:00Z,good@example.com,Jane Q,pw,completed,s1,r1",
		"too,few,fields",
		"not-a-timestamp,bad@example.com,Jane Q,pw,completed,s1,r1",
		"2026-02-14T10:00:00Z,also-good@example.com,Jane Q,pw,failed,s2,r2",
	}, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	j := NewJournal(path, zaptest.NewLogger(t))
	recs, err := j.List()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "good@example.com", recs[0].Email)
	assert.Equal(t, "also-good@example.com", recs[1].Email)
}

func TestJournalDefaultPath(t *testing.T) {
	t.Parallel()

	j := NewJournal("", nil)
	assert.Equal(t, "registrations.csv", j.Path())
}

func TestJournalWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registrations.csv")
	j := NewJournal(path, zaptest.NewLogger(t))

	// Seed the file so the tailer has something to seek to the end of. The
	// seeded row must not be replayed to the callback.
	require.NoError(t, j.Append(testRecord("seed@example.com")))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	got := make(chan Record, 10)
	watchDone := make(chan error, 1)
	go func() {
		watchDone <- j.Watch(ctx, func(rec Record) { got <- rec })
	}()
	time.Sleep(100 * time.Millisecond) // Allow tailer to initialize

	second := testRecord("second@example.com")
	third := testRecord("third@example.com")
	third.Status = "completed"
	require.NoError(t, j.Append(second))
	require.NoError(t, j.Append(third))

	var received []Record
	for len(received) < 2 {
		select {
		case rec := <-got:
			received = append(received, rec)
		case <-ctx.Done():
			t.Fatalf("Timed out waiting for journal records, received %d/2", len(received))
		}
	}

	assert.Equal(t, second.Email, received[0].Email)
	assert.Equal(t, third.Email, received[1].Email)
	assert.Equal(t, "completed", received[1].Status)

	cancel()
	select {
	case err := <-watchDone:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after context cancellation")
	}

	// Nothing beyond the two appended records should have been delivered.
	select {
	case rec := <-got:
		t.Fatalf("Unexpected extra record for %s", rec.Email)
	default:
	}
}
