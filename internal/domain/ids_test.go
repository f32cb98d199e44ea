package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVaultID(t *testing.T) {
	id, err := ParseVaultID("42")
	require.NoError(t, err)
	assert.Equal(t, VaultID(42), id)

	id, err = ParseVaultID("  7 ")
	require.NoError(t, err)
	assert.Equal(t, VaultID(7), id)
}

func TestParseVaultID_Invalid(t *testing.T) {
	cases := []string{"", "abc", "-3", "4.5", "0x10"}
	for _, c := range cases {
		_, err := ParseVaultID(c)
		assert.ErrorIs(t, err, ErrConfiguration, "input %q", c)
	}
}

func TestParseAssetID(t *testing.T) {
	id, err := ParseAssetID("1001")
	require.NoError(t, err)
	assert.Equal(t, AssetID(1001), id)
	assert.Equal(t, "1001", id.String())

	_, err = ParseAssetID("pool-1")
	assert.ErrorIs(t, err, ErrConfiguration)
}
