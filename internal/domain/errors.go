package domain

import "errors"

// Sentinel errors for the engine's failure taxonomy. Components wrap these
// with fmt.Errorf("%w: ...") so callers can classify failures with errors.Is
// without depending on concrete error types across package boundaries.
var (
	// ErrConfiguration indicates missing identifiers or adaptor configuration.
	ErrConfiguration = errors.New("configuration error")

	// ErrDataUnavailable indicates no return series exists for a required asset.
	ErrDataUnavailable = errors.New("return data unavailable")

	// ErrDataQuality indicates NaN/Inf values or insufficient observations
	// after sanitization.
	ErrDataQuality = errors.New("return data quality insufficient")

	// ErrOptimizationFailure indicates solver non-convergence or an
	// unrecognized strategy.
	ErrOptimizationFailure = errors.New("optimization failure")

	// ErrLiquidity indicates the liquidity lookup capability itself failed.
	// Insufficient liquidity is NOT an error; it produces a partial fill.
	ErrLiquidity = errors.New("liquidity lookup failure")

	// ErrUnknownVault indicates an operation referenced an unregistered vault.
	ErrUnknownVault = errors.New("unknown vault")
)
