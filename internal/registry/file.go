package registry

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// File is the YAML registry override. Factories replace the built-in list when present;
// Tokens extend the liquidity table.
//
//	factories:
//	  - exchange: uniswap-v2
//	    address: "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"
//	    kind: v2
//	    fee: 3000
//	    deploy_block: 10000835
//	tokens:
//	  - address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
//	    symbol: WETH
//	    decimals: 18
//	    liquidity_usd: "1000000"
type File struct {
	Factories []FactoryEntry `yaml:"factories"`
	Tokens    []TokenEntry   `yaml:"tokens"`
}

// FactoryEntry is one factory in the registry file.
type FactoryEntry struct {
	Exchange    string `yaml:"exchange"`
	Address     string `yaml:"address"`
	Kind        string `yaml:"kind"`
	Fee         uint32 `yaml:"fee"`
	DeployBlock uint64 `yaml:"deploy_block"`
	Disabled    bool   `yaml:"disabled"`
}

// TokenEntry is one known token in the registry file.
type TokenEntry struct {
	Address      string `yaml:"address"`
	Symbol       string `yaml:"symbol"`
	Decimals     int    `yaml:"decimals"`
	LiquidityUSD string `yaml:"liquidity_usd"`
}

// LoadFile reads and parses a registry file.
func LoadFile(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry file: %w", err)
	}
	return ParseFile(raw)
}

// ParseFile parses registry YAML.
func ParseFile(raw []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse registry file: %w", err)
	}
	return &f, nil
}

// Registry builds a registry from the file's factories, or returns base when the file lists none.
func (f *File) Registry(base *Registry) (*Registry, error) {
	if len(f.Factories) == 0 {
		return base, nil
	}

	factories := make([]Factory, 0, len(f.Factories))
	for i, e := range f.Factories {
		if !common.IsHexAddress(e.Address) {
			return nil, fmt.Errorf("factories[%d]: invalid address %q", i, e.Address)
		}
		factories = append(factories, Factory{
			Exchange:    e.Exchange,
			Address:     common.HexToAddress(e.Address),
			Kind:        Kind(strings.ToLower(e.Kind)),
			FixedFee:    e.Fee,
			DeployBlock: e.DeployBlock,
			Enabled:     !e.Disabled,
		})
	}
	return New(factories...)
}
