package domain

import (
	"fmt"
	"time"
)

// Strategy selects the objective for target-allocation optimization.
type Strategy string

const (
	// StrategyMinRisk minimizes portfolio variance.
	StrategyMinRisk Strategy = "min_risk"
	// StrategyMaxSharpe maximizes risk-adjusted return.
	StrategyMaxSharpe Strategy = "max_sharpe"
)

// ParseStrategy validates a wire-form strategy string.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyMinRisk, StrategyMaxSharpe:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("%w: unknown strategy %q", ErrConfiguration, s)
	}
}

// Adaptor groups a subset of a vault's allowed pools under an aggregate
// weight cap.
type Adaptor struct {
	Name    string           `json:"name"`
	Members map[AssetID]bool `json:"members"`
	Cap     float64          `json:"cap"` // [0,1]
}

// Vault is a fund-of-funds pool that allocates deposited capital across a
// fixed set of underlying pools. Owned exclusively by the registry;
// CurrentAllocation is only ever replaced wholesale after a full
// reconciliation or a successful reallocation.
type Vault struct {
	ID                VaultID             `json:"id"`
	Strategy          Strategy            `json:"strategy"`
	AllowedPools      map[AssetID]bool    `json:"allowed_pools"`
	Adaptors          []Adaptor           `json:"adaptors"`
	CurrentAllocation map[AssetID]float64 `json:"current_allocation"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// TotalAllocated returns the sum of currently allocated amounts.
func (v *Vault) TotalAllocated() float64 {
	var total float64
	for _, amount := range v.CurrentAllocation {
		total += amount
	}
	return total
}

// AllowsAsset reports whether the asset belongs to the vault's allowed set.
func (v *Vault) AllowsAsset(asset AssetID) bool {
	return v.AllowedPools[asset]
}

// Validate checks structural invariants of the vault configuration.
func (v *Vault) Validate() error {
	if v.ID <= 0 {
		return fmt.Errorf("%w: vault id missing", ErrConfiguration)
	}
	if _, err := ParseStrategy(string(v.Strategy)); err != nil {
		return err
	}
	if len(v.AllowedPools) == 0 {
		return fmt.Errorf("%w: vault %s has no allowed pools", ErrConfiguration, v.ID)
	}
	for _, a := range v.Adaptors {
		if a.Name == "" {
			return fmt.Errorf("%w: vault %s has unnamed adaptor", ErrConfiguration, v.ID)
		}
		if a.Cap < 0 || a.Cap > 1 {
			return fmt.Errorf("%w: adaptor %s cap %.4f outside [0,1]", ErrConfiguration, a.Name, a.Cap)
		}
		for member := range a.Members {
			if !v.AllowedPools[member] {
				return fmt.Errorf("%w: adaptor %s member %s not in allowed pools", ErrConfiguration, a.Name, member)
			}
		}
	}
	return nil
}

// LedgerEntry is one append-only allocation change record. The ledger is the
// sole source of truth for a vault's current allocation; the engine never
// mutates or deletes entries.
// Timestamp is kept in verbatim wire form: rows with unparsable timestamps
// must survive to reconciliation, where they are counted and skipped.
type LedgerEntry struct {
	ID        int64   `json:"id"`
	VaultID   VaultID `json:"vault_id"`
	AssetID   AssetID `json:"asset_id"`
	Amount    float64 `json:"amount"` // signed: deposits positive, withdrawals negative
	Status    string  `json:"status"`
	Timestamp string  `json:"timestamp"`
}

// ReturnObservation is a single APY observation for an asset. Irregular and
// missing observations are expected, not exceptional.
type ReturnObservation struct {
	AssetID   AssetID   `json:"asset_id"`
	Timestamp time.Time `json:"timestamp"`
	APY       float64   `json:"apy"`
}

// OptimizationResult is the target allocation computed for a vault. Never
// partially populated: a failed optimization returns an error, not a result.
type OptimizationResult struct {
	VaultID          VaultID             `json:"vault_id"`
	TargetAllocation map[AssetID]float64 `json:"target_allocation"`
	Weights          map[AssetID]float64 `json:"weights"`
	ComputedAt       time.Time           `json:"computed_at"`
}

// AssetUtilization is the current/target ratio for one asset.
type AssetUtilization struct {
	AssetID AssetID `json:"asset_id"`
	Ratio   float64 `json:"ratio"` // +Inf when target is zero and current is not
}

// UtilizationReport holds per-asset utilization ratios and the overall
// median of the finite ratios.
type UtilizationReport struct {
	PerAsset []AssetUtilization `json:"per_asset"`
	Overall  float64            `json:"overall"`
}

// ReallocationAction is the signed delta required to move one asset from
// current to target allocation.
type ReallocationAction struct {
	AssetID AssetID `json:"asset_id"`
	Delta   float64 `json:"delta"` // target - current
}

// ReallocationPlan is the evaluator's decision for one cycle.
type ReallocationPlan struct {
	VaultID           VaultID              `json:"vault_id"`
	NeedsReallocation bool                 `json:"needs_reallocation"`
	Utilization       UtilizationReport    `json:"utilization"`
	Actions           []ReallocationAction `json:"actions"`
}

// ActionLiquidity records the liquidity lookup result for one withdrawal.
type ActionLiquidity struct {
	AssetID   AssetID `json:"asset_id"`
	Requested float64 `json:"requested"`
	Available float64 `json:"available"`
}

// LiquidityAssessment summarizes withdrawal feasibility for a plan.
// HasLiquidity is false only when the lookup capability itself failed;
// insufficient funds produce a shortfall with HasLiquidity still true.
type LiquidityAssessment struct {
	HasLiquidity  bool              `json:"has_liquidity"`
	FullyMatched  bool              `json:"fully_matched"`
	Shortfall     float64           `json:"shortfall"`
	TotalWithdraw float64           `json:"total_withdraw"`
	TotalDeposit  float64           `json:"total_deposit"`
	PerAction     []ActionLiquidity `json:"per_action"`
}

// SummaryStatus classifies an executed reallocation.
type SummaryStatus string

const (
	// SummaryMatched means every withdrawal was fully covered.
	SummaryMatched SummaryStatus = "MATCHED"
	// SummaryPartial means at least one withdrawal had a shortfall.
	SummaryPartial SummaryStatus = "PARTIAL"
)

// ReallocationSummary is the final execution record for one decision cycle.
type ReallocationSummary struct {
	ID                    string               `json:"id"`
	VaultID               VaultID              `json:"vault_id"`
	Status                SummaryStatus        `json:"status"`
	Actions               []ReallocationAction `json:"actions"`
	Liquidity             LiquidityAssessment  `json:"liquidity"`
	TotalReallocation     float64              `json:"total_reallocation_amount"` // Σ|delta|
	EstimatedMarketImpact float64              `json:"estimated_market_impact"`
	Timestamp             time.Time            `json:"timestamp"`
}

// OutcomeClass classifies a decision-cycle outcome for downstream consumers.
type OutcomeClass string

const (
	OutcomeSuccess  OutcomeClass = "success"
	OutcomePartial  OutcomeClass = "partial"
	OutcomeWarning  OutcomeClass = "warning"
	OutcomeNoChange OutcomeClass = "no_change"
	OutcomeError    OutcomeClass = "error"
)

// Outcome is the structured record emitted to the notification sink once per
// decision cycle, including "no change needed" cycles.
type Outcome struct {
	VaultID     VaultID              `json:"vault_id"`
	Class       OutcomeClass         `json:"class"`
	Message     string               `json:"message,omitempty"`
	Utilization *UtilizationReport   `json:"utilization,omitempty"`
	Summary     *ReallocationSummary `json:"summary,omitempty"`
	Timestamp   time.Time            `json:"timestamp"`
}
