package engine

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/absfi/vaultd/internal/domain"
	"github.com/absfi/vaultd/internal/events"
	"github.com/absfi/vaultd/internal/modules/cascade"
	"github.com/absfi/vaultd/internal/modules/ledger"
	"github.com/absfi/vaultd/internal/modules/registry"
	"github.com/absfi/vaultd/internal/modules/returns"
)

// Handlers wires inbound feed events to the engine. Each handler validates
// identifiers at the boundary, persists what the event carries, then drives
// the pipeline.
type Handlers struct {
	engine     *Engine
	registry   *registry.Service
	cache      *returns.Cache
	ledgerRepo *ledger.Repository
	cascade    *cascade.Coordinator
	manager    *events.Manager
	log        zerolog.Logger
}

// NewHandlers creates the event handler set.
func NewHandlers(
	eng *Engine,
	reg *registry.Service,
	cache *returns.Cache,
	ledgerRepo *ledger.Repository,
	coordinator *cascade.Coordinator,
	manager *events.Manager,
	log zerolog.Logger,
) *Handlers {
	return &Handlers{
		engine:     eng,
		registry:   reg,
		cache:      cache,
		ledgerRepo: ledgerRepo,
		cascade:    coordinator,
		manager:    manager,
		log:        log.With().Str("component", "engine_handlers").Logger(),
	}
}

// Register subscribes the handlers on the bus.
func (h *Handlers) Register(bus *events.Bus) {
	bus.Subscribe(events.MarketDataUpdated, func(event *events.Event) {
		if data, ok := event.Data.(*events.MarketDataUpdateData); ok {
			h.HandleMarketData(context.Background(), data)
		}
	})
	bus.Subscribe(events.LedgerEntryRecorded, func(event *events.Event) {
		if data, ok := event.Data.(*events.LedgerEntryData); ok {
			h.HandleLedgerEntry(context.Background(), data)
		}
	})
	bus.Subscribe(events.VaultConfigChanged, func(event *events.Event) {
		if data, ok := event.Data.(*events.VaultConfigData); ok {
			h.HandleVaultConfig(context.Background(), data)
		}
	})
}

// HandleMarketData records the observation and cascades to every vault
// whose allowed pools contain the asset.
func (h *Handlers) HandleMarketData(ctx context.Context, data *events.MarketDataUpdateData) {
	assetID, err := domain.ParseAssetID(data.AssetID)
	if err != nil {
		h.manager.EmitError("engine", err, map[string]interface{}{"asset_id": data.AssetID})
		return
	}

	obs := domain.ReturnObservation{
		AssetID:   assetID,
		APY:       data.APY,
		Timestamp: data.Timestamp.UTC(),
	}
	if err := h.cache.Record(obs, data.TVL); err != nil {
		h.manager.EmitError("engine", err, map[string]interface{}{"asset_id": data.AssetID})
		return
	}

	result := h.cascade.OnMarketUpdate(ctx, assetID)

	vaultIDs := make([]domain.VaultID, 0, len(result.Outcomes))
	for vaultID := range result.Outcomes {
		vaultIDs = append(vaultIDs, vaultID)
	}
	h.manager.Emit("engine", &events.CascadeCompletedData{
		AssetID:  assetID,
		VaultIDs: vaultIDs,
		Skipped:  result.Skipped,
	})
}

// HandleLedgerEntry appends the entry and re-runs the pipeline for its
// vault. The feed delivers at least once; the reconciler is insensitive to
// replays at the same timestamp because identical groups resolve the same
// way.
func (h *Handlers) HandleLedgerEntry(ctx context.Context, data *events.LedgerEntryData) {
	vaultID, err := domain.ParseVaultID(data.VaultID)
	if err != nil {
		h.manager.EmitError("engine", err, map[string]interface{}{"vault_id": data.VaultID})
		return
	}
	assetID, err := domain.ParseAssetID(data.AssetID)
	if err != nil {
		h.manager.EmitError("engine", err, map[string]interface{}{"asset_id": data.AssetID})
		return
	}

	entry := domain.LedgerEntry{
		VaultID:   vaultID,
		AssetID:   assetID,
		Amount:    data.Amount,
		Status:    data.Status,
		Timestamp: data.Timestamp,
	}
	if err := h.ledgerRepo.Append(entry); err != nil {
		h.manager.EmitError("engine", err, map[string]interface{}{"vault_id": data.VaultID})
		return
	}

	h.engine.RunVault(ctx, vaultID)
}

// HandleVaultConfig registers or reconfigures the vault, then runs a cycle
// so the new configuration takes effect immediately.
func (h *Handlers) HandleVaultConfig(ctx context.Context, data *events.VaultConfigData) {
	vault, err := VaultFromConfig(data)
	if err != nil {
		h.manager.EmitError("engine", err, map[string]interface{}{"vault_id": data.VaultID})
		return
	}

	if err := h.registry.Register(vault); err != nil {
		h.manager.EmitError("engine", err, map[string]interface{}{"vault_id": data.VaultID})
		return
	}

	h.engine.RunVault(ctx, vault.ID)
}

// VaultFromConfig validates the wire form into a domain vault.
func VaultFromConfig(data *events.VaultConfigData) (*domain.Vault, error) {
	vaultID, err := domain.ParseVaultID(data.VaultID)
	if err != nil {
		return nil, err
	}

	strategy, err := domain.ParseStrategy(data.Strategy)
	if err != nil {
		return nil, err
	}

	vault := &domain.Vault{
		ID:           vaultID,
		Strategy:     strategy,
		AllowedPools: make(map[domain.AssetID]bool, len(data.AllowedPools)),
	}
	for _, raw := range data.AllowedPools {
		assetID, err := domain.ParseAssetID(raw)
		if err != nil {
			return nil, err
		}
		vault.AllowedPools[assetID] = true
	}

	for _, rawAdaptor := range data.Adaptors {
		adaptor := domain.Adaptor{
			Name:    rawAdaptor.Name,
			Members: make(map[domain.AssetID]bool, len(rawAdaptor.Members)),
			Cap:     rawAdaptor.Cap,
		}
		for _, raw := range rawAdaptor.Members {
			assetID, err := domain.ParseAssetID(raw)
			if err != nil {
				return nil, err
			}
			adaptor.Members[assetID] = true
		}
		vault.Adaptors = append(vault.Adaptors, adaptor)
	}

	return vault, nil
}
