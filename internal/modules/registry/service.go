package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/absfi/vaultd/internal/domain"
)

// Service is the process-wide vault table. Reads hand out deep copies so no
// caller can mutate registry state except through ReplaceAllocation or
// Register. LockVault provides the per-vault mutual exclusion the decision
// pipeline runs under.
type Service struct {
	repo *Repository
	log  zerolog.Logger

	mu     sync.RWMutex
	vaults map[domain.VaultID]*domain.Vault
	locks  map[domain.VaultID]*sync.Mutex
}

// NewService creates a new registry service
func NewService(repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		log:    log.With().Str("service", "registry").Logger(),
		vaults: make(map[domain.VaultID]*domain.Vault),
		locks:  make(map[domain.VaultID]*sync.Mutex),
	}
}

// LoadAll hydrates the in-memory table from config.db. Called once at
// startup, before the event loop begins.
func (s *Service) LoadAll() error {
	vaults, err := s.repo.GetAll()
	if err != nil {
		return fmt.Errorf("failed to load vaults: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, vault := range vaults {
		s.vaults[vault.ID] = vault
		if _, ok := s.locks[vault.ID]; !ok {
			s.locks[vault.ID] = &sync.Mutex{}
		}
	}

	s.log.Info().Int("vaults", len(vaults)).Msg("Vault registry loaded")
	return nil
}

// Register creates or replaces a vault's configuration. An existing vault
// keeps its current allocation; only configuration fields change.
func (s *Service) Register(vault *domain.Vault) error {
	if err := vault.Validate(); err != nil {
		return err
	}

	if err := s.repo.Upsert(vault); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := copyVault(vault)
	stored.UpdatedAt = time.Now().UTC()
	if existing, ok := s.vaults[vault.ID]; ok {
		stored.CurrentAllocation = copyAllocation(existing.CurrentAllocation)
	}
	s.vaults[vault.ID] = stored
	if _, ok := s.locks[vault.ID]; !ok {
		s.locks[vault.ID] = &sync.Mutex{}
	}

	s.log.Info().
		Int64("vault_id", int64(vault.ID)).
		Str("strategy", string(vault.Strategy)).
		Msg("Vault registered")

	return nil
}

// Get returns a deep copy of one vault.
func (s *Service) Get(id domain.VaultID) (*domain.Vault, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vault, ok := s.vaults[id]
	if !ok {
		return nil, fmt.Errorf("%w: vault %s", domain.ErrUnknownVault, id)
	}
	return copyVault(vault), nil
}

// GetAll returns deep copies of every vault, ordered by id.
func (s *Service) GetAll() []*domain.Vault {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Vault, 0, len(s.vaults))
	for _, vault := range s.vaults {
		out = append(out, copyVault(vault))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// VaultsAllowingAsset returns the ids of vaults whose allowed pools contain
// the asset. This is the cascade fan-out query.
func (s *Service) VaultsAllowingAsset(asset domain.AssetID) []domain.VaultID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []domain.VaultID
	for id, vault := range s.vaults {
		if vault.AllowedPools[asset] {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ReplaceAllocation overwrites a vault's current allocation wholesale. There
// is deliberately no way to patch a single asset's amount.
func (s *Service) ReplaceAllocation(id domain.VaultID, allocation map[domain.AssetID]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vault, ok := s.vaults[id]
	if !ok {
		return fmt.Errorf("%w: vault %s", domain.ErrUnknownVault, id)
	}

	vault.CurrentAllocation = copyAllocation(allocation)
	vault.UpdatedAt = time.Now().UTC()

	s.log.Debug().
		Int64("vault_id", int64(id)).
		Int("assets", len(allocation)).
		Msg("Vault allocation replaced")

	return nil
}

// LockVault acquires the per-vault mutex and returns its unlock function.
// The decision pipeline holds this for the whole reconcile-optimize-
// evaluate-execute pass so cascading events touching the same vault
// serialize.
func (s *Service) LockVault(id domain.VaultID) (func(), error) {
	s.mu.Lock()
	lock, ok := s.locks[id]
	if !ok {
		if _, known := s.vaults[id]; !known {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: vault %s", domain.ErrUnknownVault, id)
		}
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock, nil
}

func copyVault(v *domain.Vault) *domain.Vault {
	out := &domain.Vault{
		ID:                v.ID,
		Strategy:          v.Strategy,
		AllowedPools:      make(map[domain.AssetID]bool, len(v.AllowedPools)),
		CurrentAllocation: copyAllocation(v.CurrentAllocation),
		UpdatedAt:         v.UpdatedAt,
	}
	for asset := range v.AllowedPools {
		out.AllowedPools[asset] = true
	}
	for _, a := range v.Adaptors {
		adaptor := domain.Adaptor{
			Name:    a.Name,
			Members: make(map[domain.AssetID]bool, len(a.Members)),
			Cap:     a.Cap,
		}
		for asset := range a.Members {
			adaptor.Members[asset] = true
		}
		out.Adaptors = append(out.Adaptors, adaptor)
	}
	return out
}

func copyAllocation(allocation map[domain.AssetID]float64) map[domain.AssetID]float64 {
	out := make(map[domain.AssetID]float64, len(allocation))
	for asset, amount := range allocation {
		out[asset] = amount
	}
	return out
}
