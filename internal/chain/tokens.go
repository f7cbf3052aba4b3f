package chain

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABIJSON = `[
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

var erc20ABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic("chain: parse erc20 abi: " + err.Error())
	}
	return parsed
}()

type tokenCache struct {
	mu    sync.RWMutex
	items map[common.Address]TokenInfo
}

func newTokenCache() *tokenCache {
	return &tokenCache{items: make(map[common.Address]TokenInfo)}
}

func (c *tokenCache) get(addr common.Address) (TokenInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.items[addr]
	return info, ok
}

func (c *tokenCache) put(addr common.Address, info TokenInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[addr] = info
}

// TokenInfo reads symbol() and decimals() from an ERC-20 contract. Successful reads are cached.
func (c *EthClient) TokenInfo(ctx context.Context, token common.Address) (TokenInfo, error) {
	if info, ok := c.tokens.get(token); ok {
		return info, nil
	}

	symbolRaw, err := c.callView(ctx, token, "symbol")
	if err != nil {
		return TokenInfo{}, err
	}
	symbol, err := decodeSymbol(symbolRaw)
	if err != nil {
		return TokenInfo{}, fmt.Errorf("token %s symbol: %w", token.Hex(), err)
	}

	decimalsRaw, err := c.callView(ctx, token, "decimals")
	if err != nil {
		return TokenInfo{}, err
	}
	values, err := erc20ABI.Unpack("decimals", decimalsRaw)
	if err != nil {
		return TokenInfo{}, fmt.Errorf("token %s decimals: %w", token.Hex(), err)
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return TokenInfo{}, fmt.Errorf("token %s decimals: unexpected type %T", token.Hex(), values[0])
	}

	info := TokenInfo{Symbol: symbol, Decimals: int(decimals)}
	c.tokens.put(token, info)
	return info, nil
}

func (c *EthClient) callView(ctx context.Context, to common.Address, method string) ([]byte, error) {
	data, err := erc20ABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	var out []byte
	err = c.do(ctx, "eth_call", 0, 0, c.callTimeout, func(ctx context.Context) error {
		var err error
		out, err = c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
		return err
	})
	return out, err
}

// decodeSymbol accepts both the standard string return and the bytes32 return of older tokens.
func decodeSymbol(raw []byte) (string, error) {
	if values, err := erc20ABI.Unpack("symbol", raw); err == nil {
		if s, ok := values[0].(string); ok {
			return s, nil
		}
	}
	if len(raw) == 32 {
		return string(bytes.TrimRight(raw, "\x00")), nil
	}
	return "", fmt.Errorf("cannot decode %d bytes", len(raw))
}
