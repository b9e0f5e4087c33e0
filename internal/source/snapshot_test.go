package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	v1 "github.com/checkline-lab/checkline/internal/api/v1"
)

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const checkSnapshot = `{
  "data": {
    "id": "check-42",
    "type": "checks",
    "attributes": {
      "number": 12,
      "created_at": "2024-05-01T12:00:00Z",
      "paid_at": "2024-05-01T13:00:00Z",
      "total_cents": 1200,
      "currency": "GBP"
    }
  }
}`

const paymentsSnapshot = `{
  "payments": [
    {"created_at": "2024-05-01T12:50:00Z", "captured_at": "2024-05-01T12:51:00Z", "amount_cents": 1200}
  ]
}`

func TestSnapshotAdapter_Availability(t *testing.T) {
	dir := t.TempDir()

	empty := NewSnapshotAdapter("snap", filepath.Join(dir, "*.json"), "GBP")
	require.False(t, empty.Available())

	writeFixture(t, dir, "check.json", checkSnapshot)
	require.True(t, empty.Available())
}

func TestSnapshotAdapter_FetchCheckDocument(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "check.json", checkSnapshot)

	adapter := NewSnapshotAdapter("snap", filepath.Join(dir, "*.json"), "GBP")
	events, err := adapter.Fetch(context.Background())
	require.NoError(t, err)

	types := make([]string, len(events))
	for i, evt := range events {
		types[i] = evt.Type
	}
	require.Contains(t, types, "check.created")
	require.Contains(t, types, "check.paid")

	total := adapter.AuthoritativeTotalCents()
	require.NotNil(t, total)
	require.Equal(t, int64(1200), *total)
}

func TestSnapshotAdapter_FetchPaymentsDocument(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "payments.json", paymentsSnapshot)

	adapter := NewSnapshotAdapter("snap", filepath.Join(dir, "*.json"), "GBP")
	events, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, v1.CategoryPayment, events[0].Category)
	require.Nil(t, adapter.AuthoritativeTotalCents())
}

func TestSnapshotAdapter_CorruptFileIsSkipped(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "bad.json", "{not json")
	writeFixture(t, dir, "check.json", checkSnapshot)

	adapter := NewSnapshotAdapter("snap", filepath.Join(dir, "*.json"), "GBP")
	events, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, events)
}

func TestSnapshotAdapter_AllFilesCorruptIsAnError(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "bad.json", "{not json")

	adapter := NewSnapshotAdapter("snap", filepath.Join(dir, "*.json"), "GBP")
	_, err := adapter.Fetch(context.Background())
	require.Error(t, err)
}

func TestSnapshotAdapter_FirstTotalWinsAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "a.json", checkSnapshot)
	writeFixture(t, dir, "b.json", `{
  "data": {"id": "check-42", "type": "checks", "attributes": {"created_at": "2024-05-02T12:00:00Z", "total_cents": 9999}}
}`)

	adapter := NewSnapshotAdapter("snap", filepath.Join(dir, "*.json"), "GBP")
	_, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	// Glob order is lexicographic: a.json's total lands first and sticks.
	require.Equal(t, int64(1200), *adapter.AuthoritativeTotalCents())
}
