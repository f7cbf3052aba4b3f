package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dex-pool-scanner/internal/registry"
)

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

// rpcHandler answers JSON-RPC requests with result or, when rpcErr is set, a JSON-RPC error.
type rpcHandler func(req rpcRequest) (result interface{}, rpcErr map[string]interface{}, status int)

func newRPCServer(t *testing.T, calls *atomic.Int32, handle rpcHandler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		result, rpcErr, status := handle(req)
		if status != 0 && status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte("provider says no"))
			return
		}

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, url string, opts ...ClientOption) *EthClient {
	t.Helper()
	opts = append([]ClientOption{WithRetryDelay(time.Millisecond), WithMaxDelay(5 * time.Millisecond)}, opts...)
	c, err := Dial(context.Background(), url, opts...)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestEthClient_CurrentHeightAndChainID(t *testing.T) {
	srv := newRPCServer(t, nil, func(req rpcRequest) (interface{}, map[string]interface{}, int) {
		switch req.Method {
		case "eth_blockNumber":
			return "0x1312d00", nil, 0
		case "eth_chainId":
			return "0x1", nil, 0
		}
		return nil, map[string]interface{}{"code": -32601, "message": "method not found"}, 0
	})
	c := dial(t, srv.URL)

	height, err := c.CurrentHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(20000000), height)

	id, err := c.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
}

func TestEthClient_QueryCreationEvents(t *testing.T) {
	factory, _ := registry.Default().Get("uniswap-v2")
	want := types.Log{
		Address:     factory.Address,
		Topics:      []common.Hash{registry.PairCreatedEvent, common.HexToHash("0x01"), common.HexToHash("0x02")},
		Data:        []byte{0x01},
		BlockNumber: 150,
		TxHash:      common.HexToHash("0xabc"),
	}

	var filter map[string]interface{}
	srv := newRPCServer(t, nil, func(req rpcRequest) (interface{}, map[string]interface{}, int) {
		require.Equal(t, "eth_getLogs", req.Method)
		require.Len(t, req.Params, 1)
		require.NoError(t, json.Unmarshal(req.Params[0], &filter))
		return []types.Log{want}, nil, 0
	})
	c := dial(t, srv.URL)

	logs, err := c.QueryCreationEvents(context.Background(), factory, 100, 200)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, want.BlockNumber, logs[0].BlockNumber)
	assert.Equal(t, want.Topics, logs[0].Topics)

	assert.Equal(t, "0x64", filter["fromBlock"])
	assert.Equal(t, "0xc8", filter["toBlock"])
	assert.Contains(t, strings.ToLower(toJSON(t, filter["address"])), strings.ToLower(factory.Address.Hex()))
	assert.Contains(t, toJSON(t, filter["topics"]), registry.PairCreatedEvent.Hex())
}

func TestEthClient_QueryCreationEvents_InvalidRange(t *testing.T) {
	c := dial(t, "http://127.0.0.1:1")
	factory, _ := registry.Default().Get("uniswap-v2")

	_, err := c.QueryCreationEvents(context.Background(), factory, 10, 5)
	assert.Error(t, err)
}

func TestEthClient_ErrorKinds(t *testing.T) {
	factory, _ := registry.Default().Get("uniswap-v3")

	tests := []struct {
		name   string
		handle rpcHandler
		want   Kind
	}{
		{
			name: "http 429",
			handle: func(rpcRequest) (interface{}, map[string]interface{}, int) {
				return nil, nil, http.StatusTooManyRequests
			},
			want: KindRateLimited,
		},
		{
			name: "json-rpc limit exceeded",
			handle: func(rpcRequest) (interface{}, map[string]interface{}, int) {
				return nil, map[string]interface{}{"code": -32005, "message": "limit exceeded"}, 0
			},
			want: KindRateLimited,
		},
		{
			name: "json-rpc 429",
			handle: func(rpcRequest) (interface{}, map[string]interface{}, int) {
				return nil, map[string]interface{}{"code": 429, "message": "too many requests"}, 0
			},
			want: KindRateLimited,
		},
		{
			name: "gateway timeout",
			handle: func(rpcRequest) (interface{}, map[string]interface{}, int) {
				return nil, nil, http.StatusGatewayTimeout
			},
			want: KindQueryTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := newRPCServer(t, &calls, tt.handle)
			c := dial(t, srv.URL)

			_, err := c.QueryCreationEvents(context.Background(), factory, 1, 2)
			require.Error(t, err)
			assert.Equal(t, tt.want, KindOf(err))
			assert.Equal(t, int32(1), calls.Load(), "non-transient errors are not retried")

			var chainErr *Error
			require.ErrorAs(t, err, &chainErr)
			assert.Equal(t, uint64(1), chainErr.From)
			assert.Equal(t, uint64(2), chainErr.To)
		})
	}
}

func TestEthClient_QueryTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	c := dial(t, srv.URL, WithQueryTimeout(50*time.Millisecond))
	factory, _ := registry.Default().Get("uniswap-v2")

	_, err := c.QueryCreationEvents(context.Background(), factory, 1, 2)
	require.Error(t, err)
	assert.True(t, IsQueryTimeout(err))
}

func TestEthClient_TransientRetry(t *testing.T) {
	var calls atomic.Int32
	srv := newRPCServer(t, &calls, func(rpcRequest) (interface{}, map[string]interface{}, int) {
		if calls.Load() < 3 {
			return nil, nil, http.StatusInternalServerError
		}
		return "0x10", nil, 0
	})
	c := dial(t, srv.URL, WithMaxRetries(3))

	height, err := c.CurrentHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(16), height)
	assert.Equal(t, int32(3), calls.Load())
}

func TestEthClient_TransientRetryExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := newRPCServer(t, &calls, func(rpcRequest) (interface{}, map[string]interface{}, int) {
		return nil, nil, http.StatusBadGateway
	})
	c := dial(t, srv.URL, WithMaxRetries(2))

	_, err := c.CurrentHeight(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindTransient, KindOf(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestEthClient_TokenInfo(t *testing.T) {
	symbolOut, err := erc20ABI.Methods["symbol"].Outputs.Pack("WETH")
	require.NoError(t, err)
	decimalsOut, err := erc20ABI.Methods["decimals"].Outputs.Pack(uint8(18))
	require.NoError(t, err)

	var calls atomic.Int32
	srv := newRPCServer(t, &calls, func(req rpcRequest) (interface{}, map[string]interface{}, int) {
		require.Equal(t, "eth_call", req.Method)
		var msg map[string]string
		require.NoError(t, json.Unmarshal(req.Params[0], &msg))
		input := msg["input"]
		if input == "" {
			input = msg["data"]
		}
		switch input {
		case hexutil.Encode(erc20ABI.Methods["symbol"].ID):
			return hexutil.Encode(symbolOut), nil, 0
		case hexutil.Encode(erc20ABI.Methods["decimals"].ID):
			return hexutil.Encode(decimalsOut), nil, 0
		}
		return nil, map[string]interface{}{"code": 3, "message": "execution reverted"}, 0
	})
	c := dial(t, srv.URL)
	token := common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")

	info, err := c.TokenInfo(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, TokenInfo{Symbol: "WETH", Decimals: 18}, info)
	assert.Equal(t, int32(2), calls.Load())

	// cached
	_, err = c.TokenInfo(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDecodeSymbol_Bytes32(t *testing.T) {
	raw := make([]byte, 32)
	copy(raw, "MKR")

	s, err := decodeSymbol(raw)
	require.NoError(t, err)
	assert.Equal(t, "MKR", s)

	_, err = decodeSymbol([]byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindTransient, KindOf(assert.AnError))
	assert.Equal(t, KindRateLimited, KindOf(&Error{Kind: KindRateLimited, Err: assert.AnError}))
	assert.True(t, IsRateLimited(&Error{Kind: KindRateLimited}))
	assert.False(t, IsRateLimited(nil))
	assert.Equal(t, KindQueryTimeout, classify(context.DeadlineExceeded))
	assert.Equal(t, "rate_limited", KindRateLimited.String())
}

func toJSON(t *testing.T, v interface{}) string {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return string(raw)
}
