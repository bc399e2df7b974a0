package eventlog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fenrir/internal/domain"
)

func waitForFile(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("file %s never appeared", path)
}

func TestCreateInstrument_WritesHeaders(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, 1, zerolog.Nop())
	require.NoError(t, err)
	defer w.Stop()

	w.CreateInstrument(1)
	waitForFile(t, filepath.Join(dir, "orders_1.csv"))
	waitForFile(t, filepath.Join(dir, "trades_1.csv"))
	waitForFile(t, filepath.Join(dir, "cancels_1.csv"))
	waitForFile(t, filepath.Join(dir, "live_events_1.csv"))
}

func TestRecordOrder_AppendsRow(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, 1, zerolog.Nop())
	require.NoError(t, err)

	order := &domain.Order{OrderID: 1, InstrumentID: 1, Quantity: 5, RemainingQuantity: 5, PartyID: "alice"}
	w.RecordOrder(order)
	require.NoError(t, w.Stop())

	path := filepath.Join(dir, "orders_1.csv")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "order_type,side,instrument_id")
	assert.Contains(t, string(data), "alice")
}

func TestRebuildSideMethods_ReturnEmpty(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, 1, zerolog.Nop())
	require.NoError(t, err)
	defer w.Stop()

	assert.Nil(t, w.ListInstruments())
	assert.Nil(t, w.IterOrders(1))
}
