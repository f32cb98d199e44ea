// Package events provides event management functionality.
package events

// EventType represents different event types
type EventType string

const (
	// Inbound change-feed events
	MarketDataUpdated   EventType = "MARKET_DATA_UPDATED"
	LedgerEntryRecorded EventType = "LEDGER_ENTRY_RECORDED"
	VaultConfigChanged  EventType = "VAULT_CONFIG_CHANGED"

	// Engine lifecycle events
	VaultReconciled     EventType = "VAULT_RECONCILED"
	ReallocationOutcome EventType = "REALLOCATION_OUTCOME"
	CascadeCompleted    EventType = "CASCADE_COMPLETED"
	ErrorOccurred       EventType = "ERROR_OCCURRED"
)
