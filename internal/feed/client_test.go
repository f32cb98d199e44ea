package feed

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absfi/vaultd/internal/events"
)

func newTestClient() (*Client, *events.Bus) {
	bus := events.NewBus()
	manager := events.NewManager(bus, zerolog.Nop())
	return NewClient("ws://localhost:0/feed", manager, zerolog.Nop()), bus
}

func TestHandleMessage_MarketData(t *testing.T) {
	c, bus := newTestClient()

	var got *events.Event
	bus.Subscribe(events.MarketDataUpdated, func(event *events.Event) { got = event })

	payload := []byte(`{
		"type": "market_data_update",
		"data": {"asset_id": "101", "apy": 0.052, "tvl": 1200000, "timestamp": "2026-08-20T12:00:00Z"}
	}`)
	require.NoError(t, c.handleMessage(payload))

	require.NotNil(t, got)
	data, ok := got.Data.(*events.MarketDataUpdateData)
	require.True(t, ok)
	assert.Equal(t, "101", data.AssetID)
	assert.Equal(t, 0.052, data.APY)
	assert.Equal(t, "feed", got.Module)
}

func TestHandleMessage_LedgerEntryKeepsRawTimestamp(t *testing.T) {
	c, bus := newTestClient()

	var got *events.Event
	bus.Subscribe(events.LedgerEntryRecorded, func(event *events.Event) { got = event })

	payload := []byte(`{
		"type": "ledger_entry",
		"data": {"vault_id": "1", "asset_id": "101", "amount": -25.5, "status": "confirmed", "timestamp": "definitely-not-a-date"}
	}`)
	require.NoError(t, c.handleMessage(payload))

	require.NotNil(t, got)
	data, ok := got.Data.(*events.LedgerEntryData)
	require.True(t, ok)
	assert.Equal(t, -25.5, data.Amount)
	assert.Equal(t, "definitely-not-a-date", data.Timestamp, "malformed timestamps pass through untouched")
}

func TestHandleMessage_VaultConfig(t *testing.T) {
	c, bus := newTestClient()

	var got *events.Event
	bus.Subscribe(events.VaultConfigChanged, func(event *events.Event) { got = event })

	payload := []byte(`{
		"type": "vault_config_change",
		"data": {
			"vault_id": "3",
			"strategy": "max_sharpe",
			"allowed_pools": ["101", "102"],
			"adaptors": [{"name": "curve", "members": ["101"], "cap": 0.4}]
		}
	}`)
	require.NoError(t, c.handleMessage(payload))

	require.NotNil(t, got)
	data, ok := got.Data.(*events.VaultConfigData)
	require.True(t, ok)
	assert.Equal(t, "max_sharpe", data.Strategy)
	require.Len(t, data.Adaptors, 1)
	assert.Equal(t, 0.4, data.Adaptors[0].Cap)
}

func TestHandleMessage_UnknownTypeIgnored(t *testing.T) {
	c, bus := newTestClient()

	var count int
	bus.SubscribeAll(func(event *events.Event) { count++ })

	require.NoError(t, c.handleMessage([]byte(`{"type": "heartbeat", "data": {}}`)))
	assert.Zero(t, count)
}

func TestHandleMessage_MalformedEnvelope(t *testing.T) {
	c, _ := newTestClient()

	require.Error(t, c.handleMessage([]byte(`not json`)))
	require.Error(t, c.handleMessage([]byte(`{"type": "market_data_update", "data": "nope"}`)))
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 5*time.Second, backoff(1))
	assert.Equal(t, 10*time.Second, backoff(2))
	assert.Equal(t, 5*time.Minute, backoff(20), "capped at max delay")
}
