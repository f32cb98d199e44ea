// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// VaultID identifies a vault. The upstream feed mixes string and integer
// identifiers; everything inside the engine uses this canonical form and
// parsing happens once at the boundary.
type VaultID int64

// AssetID identifies an underlying yield-bearing pool.
type AssetID int64

// ParseVaultID parses a vault identifier from its wire representation.
// Accepts bare integers and integer strings ("42", " 42 ").
func ParseVaultID(s string) (VaultID, error) {
	v, err := parseID(s)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid vault id %q", ErrConfiguration, s)
	}
	return VaultID(v), nil
}

// ParseAssetID parses an asset identifier from its wire representation.
func ParseAssetID(s string) (AssetID, error) {
	v, err := parseID(s)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid asset id %q", ErrConfiguration, s)
	}
	return AssetID(v), nil
}

func parseID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty identifier")
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("negative identifier")
	}
	return v, nil
}

// String returns the canonical wire form.
func (id VaultID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// String returns the canonical wire form.
func (id AssetID) String() string {
	return strconv.FormatInt(int64(id), 10)
}
