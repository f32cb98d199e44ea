package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/absfi/vaultd/internal/domain"
	"github.com/absfi/vaultd/internal/engine"
	"github.com/absfi/vaultd/internal/events"
	"github.com/absfi/vaultd/internal/modules/evaluation"
)

// handleIngestMarketData handles POST /api/market-data. The observation goes
// onto the bus and takes the same path as feed messages, cascade included.
func (s *Server) handleIngestMarketData(w http.ResponseWriter, r *http.Request) {
	var data events.MarketDataUpdateData
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		http.Error(w, "Invalid market data payload", http.StatusBadRequest)
		return
	}
	if _, err := domain.ParseAssetID(data.AssetID); err != nil {
		http.Error(w, "Invalid asset ID", http.StatusBadRequest)
		return
	}

	s.manager.Emit("server", &data)
	s.writeData(w, http.StatusAccepted, map[string]interface{}{
		"asset_id": data.AssetID,
	})
}

// handleIngestLedgerEntry handles POST /api/ledger. Identifiers are validated
// here; the timestamp is deliberately not, malformed timestamps are recorded
// verbatim and counted during reconciliation.
func (s *Server) handleIngestLedgerEntry(w http.ResponseWriter, r *http.Request) {
	var data events.LedgerEntryData
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		http.Error(w, "Invalid ledger entry payload", http.StatusBadRequest)
		return
	}
	if _, err := domain.ParseVaultID(data.VaultID); err != nil {
		http.Error(w, "Invalid vault ID", http.StatusBadRequest)
		return
	}
	if _, err := domain.ParseAssetID(data.AssetID); err != nil {
		http.Error(w, "Invalid asset ID", http.StatusBadRequest)
		return
	}

	s.manager.Emit("server", &data)
	s.writeData(w, http.StatusAccepted, map[string]interface{}{
		"vault_id": data.VaultID,
		"asset_id": data.AssetID,
	})
}

// handlePutVault handles PUT /api/vaults/{id}.
func (s *Server) handlePutVault(w http.ResponseWriter, r *http.Request) {
	var data events.VaultConfigData
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		http.Error(w, "Invalid vault config payload", http.StatusBadRequest)
		return
	}
	// The path parameter wins over whatever the body carries.
	data.VaultID = chi.URLParam(r, "id")

	vault, err := engine.VaultFromConfig(&data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.registry.Register(vault); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	outcome := s.engine.RunVault(r.Context(), vault.ID)

	registered, err := s.registry.Get(vault.ID)
	if err != nil {
		http.Error(w, "Failed to load vault", http.StatusInternalServerError)
		return
	}

	s.writeData(w, http.StatusOK, map[string]interface{}{
		"vault":   registered,
		"outcome": outcome,
	})
}

// handleListVaults handles GET /api/vaults.
func (s *Server) handleListVaults(w http.ResponseWriter, r *http.Request) {
	vaults := s.registry.GetAll()
	s.writeData(w, http.StatusOK, map[string]interface{}{
		"vaults": vaults,
		"count":  len(vaults),
	})
}

// handleGetVault handles GET /api/vaults/{id}.
func (s *Server) handleGetVault(w http.ResponseWriter, r *http.Request) {
	vault, ok := s.vaultFromPath(w, r)
	if !ok {
		return
	}
	s.writeData(w, http.StatusOK, map[string]interface{}{
		"vault": vault,
	})
}

// handleGetUtilization handles GET /api/vaults/{id}/utilization. The current
// allocation is reconciled from the ledger on the spot; the target comes from
// a fresh optimization run.
func (s *Server) handleGetUtilization(w http.ResponseWriter, r *http.Request) {
	vault, ok := s.vaultFromPath(w, r)
	if !ok {
		return
	}

	result, err := s.reconciler.ReconcileVault(vault.ID)
	if err != nil {
		s.log.Error().Err(err).Stringer("vault_id", vault.ID).Msg("Reconciliation failed")
		http.Error(w, "Failed to reconcile vault", http.StatusInternalServerError)
		return
	}
	vault.CurrentAllocation = result.Allocation

	target, err := s.optimizer.Optimize(r.Context(), vault)
	if err != nil {
		if errors.Is(err, domain.ErrDataUnavailable) || errors.Is(err, domain.ErrDataQuality) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		s.log.Error().Err(err).Stringer("vault_id", vault.ID).Msg("Optimization failed")
		http.Error(w, "Optimization failed", http.StatusInternalServerError)
		return
	}

	report := evaluation.Utilization(result.Allocation, target.TargetAllocation)
	s.writeData(w, http.StatusOK, map[string]interface{}{
		"vault_id":    vault.ID,
		"utilization": report,
	})
}

// handleReallocate handles POST /api/vaults/{id}/reallocate, a manual
// trigger for one full decision cycle.
func (s *Server) handleReallocate(w http.ResponseWriter, r *http.Request) {
	vault, ok := s.vaultFromPath(w, r)
	if !ok {
		return
	}

	outcome := s.engine.RunVault(r.Context(), vault.ID)
	s.writeData(w, http.StatusOK, map[string]interface{}{
		"outcome": outcome,
	})
}

// vaultFromPath resolves the {id} path parameter to a registered vault,
// writing the error response itself when resolution fails.
func (s *Server) vaultFromPath(w http.ResponseWriter, r *http.Request) (*domain.Vault, bool) {
	vaultID, err := domain.ParseVaultID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid vault ID", http.StatusBadRequest)
		return nil, false
	}

	vault, err := s.registry.Get(vaultID)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownVault) {
			http.Error(w, "Vault not found", http.StatusNotFound)
			return nil, false
		}
		http.Error(w, "Failed to load vault", http.StatusInternalServerError)
		return nil, false
	}
	return vault, true
}
