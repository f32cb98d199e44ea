package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validVault() *Vault {
	return &Vault{
		ID:       1,
		Strategy: StrategyMinRisk,
		AllowedPools: map[AssetID]bool{
			101: true,
			102: true,
			103: true,
		},
		Adaptors: []Adaptor{
			{Name: "aave", Members: map[AssetID]bool{101: true, 102: true}, Cap: 0.6},
			{Name: "compound", Members: map[AssetID]bool{103: true}, Cap: 0.5},
		},
		CurrentAllocation: map[AssetID]float64{101: 500, 103: 500},
	}
}

func TestVault_Validate(t *testing.T) {
	require.NoError(t, validVault().Validate())
}

func TestVault_Validate_Errors(t *testing.T) {
	v := validVault()
	v.ID = 0
	assert.ErrorIs(t, v.Validate(), ErrConfiguration)

	v = validVault()
	v.Strategy = "maximize_yolo"
	assert.ErrorIs(t, v.Validate(), ErrConfiguration)

	v = validVault()
	v.AllowedPools = nil
	assert.ErrorIs(t, v.Validate(), ErrConfiguration)

	v = validVault()
	v.Adaptors[0].Cap = 1.5
	assert.ErrorIs(t, v.Validate(), ErrConfiguration)

	// Adaptor member outside the allowed pool set
	v = validVault()
	v.Adaptors[1].Members[999] = true
	assert.ErrorIs(t, v.Validate(), ErrConfiguration)
}

func TestVault_TotalAllocated(t *testing.T) {
	v := validVault()
	assert.InDelta(t, 1000.0, v.TotalAllocated(), 1e-9)

	v.CurrentAllocation = nil
	assert.Zero(t, v.TotalAllocated())
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("max_sharpe")
	require.NoError(t, err)
	assert.Equal(t, StrategyMaxSharpe, s)

	_, err = ParseStrategy("efficient_frontier")
	assert.ErrorIs(t, err, ErrConfiguration)
}
