package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryJournalApproval(t *testing.T) {
	t.Parallel()

	m := NewMemoryManager()

	_, ok, err := m.Last()
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, m.Begin(Record{Era: 41, BlockHash: "0x01"}))
	require.NoError(t, m.Approve())
	require.NoError(t, m.Begin(Record{Era: 42, BlockHash: "0x02"}))

	last, ok, err := m.Last()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(42), last.Era)
	require.False(t, last.Approved)

	approved, ok, err := m.LastApproved()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(41), approved.Era)
}

func TestFileJournalRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "journal.txt")
	f := NewFileManager(path)

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, f.Begin(Record{Era: 41, BlockHash: "0xaabb", Timestamp: ts}))
	require.NoError(t, f.Approve())
	require.NoError(t, f.Begin(Record{Era: 42, BlockHash: "0xccdd", Timestamp: ts}))

	last, ok, err := f.Last()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(42), last.Era)
	require.Equal(t, "0xccdd", last.BlockHash)
	require.False(t, last.Approved)

	approved, ok, err := f.LastApproved()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(41), approved.Era)
	require.Equal(t, "0xaabb", approved.BlockHash)
	require.True(t, approved.Approved)
	require.Equal(t, ts, approved.Timestamp)
}

func TestFileJournalMissingFile(t *testing.T) {
	t.Parallel()

	f := NewFileManager(filepath.Join(t.TempDir(), "absent.txt"))
	_, ok, err := f.Last()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFileJournalSkipsMalformedLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "journal.txt")
	content := "garbage line\nera=41\nblock=0x01\n---\nera=42\nblock=0x02\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	f := NewFileManager(path)
	last, ok, err := f.Last()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(42), last.Era)
	require.False(t, last.Approved)
}
