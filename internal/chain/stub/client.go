// Package stub provides a scriptable in-memory chain client for tests.
package stub

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"dex-pool-scanner/internal/chain"
	"dex-pool-scanner/internal/registry"
)

// ErrUnknownToken is returned by TokenInfo for tokens without metadata.
var ErrUnknownToken = errors.New("unknown token")

// Call is one recorded QueryCreationEvents invocation.
type Call struct {
	Exchange string
	From     uint64
	To       uint64
}

type failure struct {
	exchange  string
	from, to  uint64 // zero matches any range
	remaining int
	err       error
}

// Client implements chain.Client for testing.
type Client struct {
	mu       sync.Mutex
	height   uint64
	chainID  int64
	events   map[common.Address][]types.Log
	tokens   map[common.Address]chain.TokenInfo
	failures []*failure
	calls    []Call

	// OnQuery is invoked after a query is recorded and before it is answered.
	OnQuery func(Call)
}

// NewClient creates a stub client at the given height.
func NewClient(height uint64, chainID int64) *Client {
	return &Client{
		height:  height,
		chainID: chainID,
		events:  make(map[common.Address][]types.Log),
		tokens:  make(map[common.Address]chain.TokenInfo),
	}
}

// CurrentHeight returns the configured height.
func (c *Client) CurrentHeight(_ context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height, nil
}

// ChainID returns the configured chain id.
func (c *Client) ChainID(_ context.Context) (int64, error) {
	return c.chainID, nil
}

// QueryCreationEvents returns stored logs of the factory in [from, to], or a scripted failure.
func (c *Client) QueryCreationEvents(_ context.Context, f registry.Factory, from, to uint64) ([]chain.RawEvent, error) {
	call := Call{Exchange: f.Exchange, From: from, To: to}

	c.mu.Lock()
	c.calls = append(c.calls, call)
	hook := c.OnQuery
	c.mu.Unlock()

	if hook != nil {
		hook(call)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, fl := range c.failures {
		if fl.remaining == 0 || fl.exchange != f.Exchange {
			continue
		}
		if (fl.from != 0 || fl.to != 0) && (fl.from != from || fl.to != to) {
			continue
		}
		fl.remaining--
		return nil, fl.err
	}

	var out []chain.RawEvent
	for _, l := range c.events[f.Address] {
		if l.BlockNumber >= from && l.BlockNumber <= to && l.Topics[0] == f.EventID() {
			out = append(out, l)
		}
	}
	return out, nil
}

// TokenInfo returns configured metadata or ErrUnknownToken.
func (c *Client) TokenInfo(_ context.Context, token common.Address) (chain.TokenInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.tokens[token]
	if !ok {
		return chain.TokenInfo{}, fmt.Errorf("%s: %w", token.Hex(), ErrUnknownToken)
	}
	return info, nil
}

// SetHeight changes the reported block height.
func (c *Client) SetHeight(height uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height = height
}

// SetToken registers token metadata.
func (c *Client) SetToken(token common.Address, symbol string, decimals int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[token] = chain.TokenInfo{Symbol: symbol, Decimals: decimals}
}

// AddLog stores a raw log for its emitting address.
func (c *Client) AddLog(l types.Log) {
	c.mu.Lock()
	defer c.mu.Unlock()
	logs := append(c.events[l.Address], l)
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})
	c.events[l.Address] = logs
}

// AddPool stores a well-formed creation event for a pool of f at block.
func (c *Client) AddPool(f registry.Factory, token0, token1, pool common.Address, fee uint32, block uint64) {
	c.mu.Lock()
	index := uint(len(c.events[f.Address]))
	c.mu.Unlock()
	c.AddLog(CreationLog(f, token0, token1, pool, fee, block, index))
}

// Fail makes the next n queries of exchange fail with err. A zero range matches any range.
func (c *Client) Fail(exchange string, from, to uint64, n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, &failure{exchange: exchange, from: from, to: to, remaining: n, err: err})
}

// Calls returns recorded queries in invocation order.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

// CallsFor returns recorded queries of one exchange.
func (c *Client) CallsFor(exchange string) []Call {
	var out []Call
	for _, call := range c.Calls() {
		if call.Exchange == exchange {
			out = append(out, call)
		}
	}
	return out
}

// RateLimited builds a rate-limit error for a range.
func RateLimited(from, to uint64) error {
	return &chain.Error{Kind: chain.KindRateLimited, Op: "eth_getLogs", From: from, To: to, Err: errors.New("429 Too Many Requests")}
}

// Timeout builds a query timeout error for a range.
func Timeout(from, to uint64) error {
	return &chain.Error{Kind: chain.KindQueryTimeout, Op: "eth_getLogs", From: from, To: to, Err: context.DeadlineExceeded}
}

// Transient builds a transient error for a range.
func Transient(from, to uint64) error {
	return &chain.Error{Kind: chain.KindTransient, Op: "eth_getLogs", From: from, To: to, Err: errors.New("connection reset by peer")}
}

// CreationLog encodes a creation event of f the way the factory contract emits it.
func CreationLog(f registry.Factory, token0, token1, pool common.Address, fee uint32, block uint64, index uint) types.Log {
	l := types.Log{
		Address:     f.Address,
		BlockNumber: block,
		Index:       index,
		TxHash:      crypto.Keccak256Hash(pool.Bytes(), new(big.Int).SetUint64(block).Bytes()),
	}

	var err error
	switch f.Kind {
	case registry.KindV3:
		l.Topics = []common.Hash{
			registry.PoolCreatedEvent,
			common.BytesToHash(token0.Bytes()),
			common.BytesToHash(token1.Bytes()),
			common.BigToHash(new(big.Int).SetUint64(uint64(fee))),
		}
		l.Data, err = registry.FactoryABI.Events["PoolCreated"].Inputs.NonIndexed().Pack(big.NewInt(60), pool)
	default:
		l.Topics = []common.Hash{
			registry.PairCreatedEvent,
			common.BytesToHash(token0.Bytes()),
			common.BytesToHash(token1.Bytes()),
		}
		l.Data, err = registry.FactoryABI.Events["PairCreated"].Inputs.NonIndexed().Pack(pool, new(big.Int).SetUint64(uint64(index)+1))
	}
	if err != nil {
		panic("stub: pack creation event: " + err.Error())
	}
	return l
}

var _ chain.Client = (*Client)(nil)
