package events

import (
	"time"

	"github.com/absfi/vaultd/internal/domain"
)

// EventData is the interface that all event data types must implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// MarketDataUpdateData contains data for MarketDataUpdated events.
// AssetID arrives in wire form; handlers normalize it via domain.ParseAssetID.
type MarketDataUpdateData struct {
	AssetID   string    `json:"asset_id"`
	APY       float64   `json:"apy"`
	TVL       float64   `json:"tvl"`
	Timestamp time.Time `json:"timestamp"`
}

// EventType returns the event type for MarketDataUpdateData
func (d *MarketDataUpdateData) EventType() EventType {
	return MarketDataUpdated
}

// LedgerEntryData contains data for LedgerEntryRecorded events.
// Timestamp is kept verbatim; unparsable values are handled downstream.
type LedgerEntryData struct {
	VaultID   string  `json:"vault_id"`
	AssetID   string  `json:"asset_id"`
	Amount    float64 `json:"amount"`
	Status    string  `json:"status"`
	Timestamp string  `json:"timestamp"`
}

// EventType returns the event type for LedgerEntryData
func (d *LedgerEntryData) EventType() EventType {
	return LedgerEntryRecorded
}

// AdaptorConfigData mirrors domain.Adaptor in wire form.
type AdaptorConfigData struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
	Cap     float64  `json:"cap"`
}

// VaultConfigData contains data for VaultConfigChanged events.
type VaultConfigData struct {
	VaultID      string              `json:"vault_id"`
	Strategy     string              `json:"strategy"`
	AllowedPools []string            `json:"allowed_pools"`
	Adaptors     []AdaptorConfigData `json:"adaptors"`
}

// EventType returns the event type for VaultConfigData
func (d *VaultConfigData) EventType() EventType {
	return VaultConfigChanged
}

// VaultReconciledData contains data for VaultReconciled events.
type VaultReconciledData struct {
	VaultID      domain.VaultID `json:"vault_id"`
	Assets       int            `json:"assets"`
	DroppedRows  int            `json:"dropped_rows"`
	FromSnapshot bool           `json:"from_snapshot"`
}

// EventType returns the event type for VaultReconciledData
func (d *VaultReconciledData) EventType() EventType {
	return VaultReconciled
}

// OutcomeData contains data for ReallocationOutcome events. One is emitted
// per decision cycle, including no-change cycles, so consumers can alert on
// error/partial without polling.
type OutcomeData struct {
	Outcome domain.Outcome `json:"outcome"`
}

// EventType returns the event type for OutcomeData
func (d *OutcomeData) EventType() EventType {
	return ReallocationOutcome
}

// CascadeCompletedData contains data for CascadeCompleted events.
type CascadeCompletedData struct {
	AssetID  domain.AssetID   `json:"asset_id"`
	VaultIDs []domain.VaultID `json:"vault_ids"`
	Skipped  []domain.VaultID `json:"skipped,omitempty"`
}

// EventType returns the event type for CascadeCompletedData
func (d *CascadeCompletedData) EventType() EventType {
	return CascadeCompleted
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
