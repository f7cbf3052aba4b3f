package registry

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Factory creation events.
//
// V2-style factories: PairCreated(address indexed token0, address indexed token1, address pair, uint256)
// V3-style factories: PoolCreated(address indexed token0, address indexed token1, uint24 indexed fee, int24 tickSpacing, address pool)
const factoryABIJSON = `[
	{"anonymous":false,"inputs":[
		{"indexed":true,"internalType":"address","name":"token0","type":"address"},
		{"indexed":true,"internalType":"address","name":"token1","type":"address"},
		{"indexed":false,"internalType":"address","name":"pair","type":"address"},
		{"indexed":false,"internalType":"uint256","name":"","type":"uint256"}],
	"name":"PairCreated","type":"event"},
	{"anonymous":false,"inputs":[
		{"indexed":true,"internalType":"address","name":"token0","type":"address"},
		{"indexed":true,"internalType":"address","name":"token1","type":"address"},
		{"indexed":true,"internalType":"uint24","name":"fee","type":"uint24"},
		{"indexed":false,"internalType":"int24","name":"tickSpacing","type":"int24"},
		{"indexed":false,"internalType":"address","name":"pool","type":"address"}],
	"name":"PoolCreated","type":"event"}
]`

// FactoryABI holds both creation event shapes.
var FactoryABI = mustParseABI(factoryABIJSON)

var (
	// PairCreatedEvent is the topic0 of V2-style creation events.
	PairCreatedEvent = FactoryABI.Events["PairCreated"].ID
	// PoolCreatedEvent is the topic0 of V3-style creation events.
	PoolCreatedEvent = FactoryABI.Events["PoolCreated"].ID
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("registry: parse factory abi: " + err.Error())
	}
	return parsed
}
