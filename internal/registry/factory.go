// Package registry holds the static configuration of the DEX factories that are scanned
// and decodes their pool-creation events.
package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Kind distinguishes the fee semantics of a factory.
type Kind string

const (
	// KindV2 factories create fixed-fee pairs (Uniswap V2 and forks).
	KindV2 Kind = "v2"
	// KindV3 factories create pools whose fee tier is part of the creation event.
	KindV3 Kind = "v3"
)

// DefaultV2Fee is the fee substituted for KindV2 pools, in hundredths of a bip (0.30%).
const DefaultV2Fee uint32 = 3000

// IsValid checks if the kind is a known value.
func (k Kind) IsValid() bool {
	return k == KindV2 || k == KindV3
}

// Factory is the static descriptor of one DEX factory contract.
type Factory struct {
	Exchange    string
	Address     common.Address
	Kind        Kind
	FixedFee    uint32 // used for KindV2
	DeployBlock uint64 // first block worth scanning in genesis mode
	Enabled     bool
}

// EventID returns topic0 of the factory's pool-creation event.
func (f Factory) EventID() common.Hash {
	if f.Kind == KindV3 {
		return PoolCreatedEvent
	}
	return PairCreatedEvent
}

// EventName returns the ABI name of the factory's pool-creation event.
func (f Factory) EventName() string {
	if f.Kind == KindV3 {
		return "PoolCreated"
	}
	return "PairCreated"
}

func (f Factory) validate() error {
	var errs []string
	if strings.TrimSpace(f.Exchange) == "" {
		errs = append(errs, "exchange name is required")
	}
	if f.Address == (common.Address{}) {
		errs = append(errs, "factory address is required")
	}
	if !f.Kind.IsValid() {
		errs = append(errs, fmt.Sprintf("kind must be v2 or v3, got %q", f.Kind))
	}
	if len(errs) > 0 {
		return fmt.Errorf("factory %q: %s", f.Exchange, strings.Join(errs, "; "))
	}
	return nil
}

// Registry is an immutable set of factory descriptors keyed by exchange name.
type Registry struct {
	factories []Factory
	byName    map[string]int
}

// New validates the descriptors and builds a registry.
// KindV2 factories without an explicit fee get DefaultV2Fee.
func New(factories ...Factory) (*Registry, error) {
	r := &Registry{
		factories: make([]Factory, 0, len(factories)),
		byName:    make(map[string]int, len(factories)),
	}

	for _, f := range factories {
		if err := f.validate(); err != nil {
			return nil, err
		}
		name := strings.ToLower(f.Exchange)
		if _, dup := r.byName[name]; dup {
			return nil, fmt.Errorf("duplicate factory %q", f.Exchange)
		}
		if f.Kind == KindV2 && f.FixedFee == 0 {
			f.FixedFee = DefaultV2Fee
		}
		f.Exchange = name
		r.byName[name] = len(r.factories)
		r.factories = append(r.factories, f)
	}

	return r, nil
}

// Get returns the descriptor for an exchange name.
func (r *Registry) Get(exchange string) (Factory, bool) {
	i, ok := r.byName[strings.ToLower(exchange)]
	if !ok {
		return Factory{}, false
	}
	return r.factories[i], true
}

// All returns every descriptor ordered by exchange name.
func (r *Registry) All() []Factory {
	out := make([]Factory, len(r.factories))
	copy(out, r.factories)
	sort.Slice(out, func(i, j int) bool { return out[i].Exchange < out[j].Exchange })
	return out
}

// Enabled returns the enabled descriptors ordered by exchange name.
func (r *Registry) Enabled() []Factory {
	var out []Factory
	for _, f := range r.All() {
		if f.Enabled {
			out = append(out, f)
		}
	}
	return out
}

// WithSelection returns a copy of the registry with the enabled flags changed.
// A non-empty only list enables exactly those exchanges; disable always wins.
// Unknown names are an error.
func (r *Registry) WithSelection(only, disable []string) (*Registry, error) {
	next := &Registry{
		factories: make([]Factory, len(r.factories)),
		byName:    r.byName,
	}
	copy(next.factories, r.factories)

	if len(only) > 0 {
		for i := range next.factories {
			next.factories[i].Enabled = false
		}
		for _, name := range only {
			i, ok := r.byName[strings.ToLower(name)]
			if !ok {
				return nil, fmt.Errorf("unknown factory %q", name)
			}
			next.factories[i].Enabled = true
		}
	}

	for _, name := range disable {
		i, ok := r.byName[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("unknown factory %q", name)
		}
		next.factories[i].Enabled = false
	}

	return next, nil
}

// Ethereum mainnet factories scanned when no registry file is given.
var mainnetFactories = []Factory{
	{
		Exchange:    "uniswap-v2",
		Address:     common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"),
		Kind:        KindV2,
		FixedFee:    DefaultV2Fee,
		DeployBlock: 10000835,
		Enabled:     true,
	},
	{
		Exchange:    "uniswap-v3",
		Address:     common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984"),
		Kind:        KindV3,
		DeployBlock: 12369621,
		Enabled:     true,
	},
	{
		Exchange:    "sushiswap",
		Address:     common.HexToAddress("0xC0AEe478e3658e2610c5F7A4A2E1777cE9e4f2Ac"),
		Kind:        KindV2,
		FixedFee:    DefaultV2Fee,
		DeployBlock: 10794229,
		Enabled:     true,
	},
	{
		Exchange:    "pancakeswap-v3",
		Address:     common.HexToAddress("0x0BFbCF9fa4f9C56B0F40a671Ad40E0805A091865"),
		Kind:        KindV3,
		DeployBlock: 16950686,
		Enabled:     true,
	},
}

// Default returns the built-in Ethereum mainnet registry.
func Default() *Registry {
	r, err := New(mainnetFactories...)
	if err != nil {
		panic("registry: invalid built-in factories: " + err.Error())
	}
	return r
}
