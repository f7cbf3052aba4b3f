package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"dex-pool-scanner/internal/observability"
	"dex-pool-scanner/internal/registry"
)

// Default configuration values.
const (
	DefaultQueryTimeout = 30 * time.Second
	DefaultCallTimeout  = 10 * time.Second
	DefaultMaxRetries   = 3
	DefaultRetryDelay   = 500 * time.Millisecond
	DefaultMaxDelay     = 10 * time.Second
)

// EthClient implements Client over go-ethereum's ethclient.
type EthClient struct {
	rpc          *rpc.Client
	eth          *ethclient.Client
	httpClient   *http.Client
	limiter      *rate.Limiter
	queryTimeout time.Duration
	callTimeout  time.Duration
	maxRetries   uint64
	retryDelay   time.Duration
	maxDelay     time.Duration
	tokens       *tokenCache
	metrics      *observability.Metrics
	logger       zerolog.Logger
}

// ClientOption configures EthClient.
type ClientOption func(*EthClient)

// WithQueryTimeout sets the deadline of a single eth_getLogs call.
func WithQueryTimeout(d time.Duration) ClientOption {
	return func(c *EthClient) {
		c.queryTimeout = d
	}
}

// WithCallTimeout sets the deadline of non-log calls.
func WithCallTimeout(d time.Duration) ClientOption {
	return func(c *EthClient) {
		c.callTimeout = d
	}
}

// WithMaxRetries sets maximum retry attempts for transient failures.
func WithMaxRetries(n int) ClientOption {
	return func(c *EthClient) {
		if n >= 0 {
			c.maxRetries = uint64(n)
		}
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *EthClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *EthClient) {
		c.maxDelay = d
	}
}

// WithRateLimit paces all requests of this client to rps requests per second. Zero disables pacing.
func WithRateLimit(rps float64) ClientOption {
	return func(c *EthClient) {
		if rps > 0 {
			burst := int(rps)
			if burst < 1 {
				burst = 1
			}
			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithHTTPClient sets custom http.Client for http(s) endpoints.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *EthClient) {
		c.httpClient = client
	}
}

// WithMetrics records call latency and errors.
func WithMetrics(m *observability.Metrics) ClientOption {
	return func(c *EthClient) {
		c.metrics = m
	}
}

// WithLogger sets the client logger.
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *EthClient) {
		c.logger = logger.With().Str("component", "chain").Logger()
	}
}

// Dial connects to an http(s) or ws(s) JSON-RPC endpoint.
func Dial(ctx context.Context, endpoint string, opts ...ClientOption) (*EthClient, error) {
	c := &EthClient{
		queryTimeout: DefaultQueryTimeout,
		callTimeout:  DefaultCallTimeout,
		maxRetries:   DefaultMaxRetries,
		retryDelay:   DefaultRetryDelay,
		maxDelay:     DefaultMaxDelay,
		tokens:       newTokenCache(),
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	var dialOpts []rpc.ClientOption
	if c.httpClient != nil {
		dialOpts = append(dialOpts, rpc.WithHTTPClient(c.httpClient))
	}

	rpcClient, err := rpc.DialOptions(ctx, endpoint, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	c.rpc = rpcClient
	c.eth = ethclient.NewClient(rpcClient)
	return c, nil
}

// Close closes the underlying connection.
func (c *EthClient) Close() {
	c.rpc.Close()
}

// CurrentHeight returns the latest block number.
func (c *EthClient) CurrentHeight(ctx context.Context) (uint64, error) {
	var height uint64
	err := c.do(ctx, "eth_blockNumber", 0, 0, c.callTimeout, func(ctx context.Context) error {
		var err error
		height, err = c.eth.BlockNumber(ctx)
		return err
	})
	return height, err
}

// ChainID returns the network chain id.
func (c *EthClient) ChainID(ctx context.Context) (int64, error) {
	var id *big.Int
	err := c.do(ctx, "eth_chainId", 0, 0, c.callTimeout, func(ctx context.Context) error {
		var err error
		id, err = c.eth.ChainID(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	if !id.IsInt64() {
		return 0, fmt.Errorf("chain id %s overflows int64", id)
	}
	return id.Int64(), nil
}

// QueryCreationEvents returns the factory's creation logs in [from, to].
// Rate-limit and timeout failures are returned to the caller without retry.
func (c *EthClient) QueryCreationEvents(ctx context.Context, f registry.Factory, from, to uint64) ([]RawEvent, error) {
	if from > to {
		return nil, fmt.Errorf("invalid block range [%d,%d]", from, to)
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{f.Address},
		Topics:    [][]common.Hash{{f.EventID()}},
	}

	var logs []RawEvent
	err := c.do(ctx, "eth_getLogs", from, to, c.queryTimeout, func(ctx context.Context) error {
		var err error
		logs, err = c.eth.FilterLogs(ctx, query)
		return err
	})
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// do runs one call under the pacing limiter and a per-attempt deadline,
// retrying transient failures with exponential backoff.
func (c *EthClient) do(ctx context.Context, op string, from, to uint64, timeout time.Duration, call func(context.Context) error) error {
	attempt := func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		callCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		start := time.Now()
		err := call(callCtx)
		c.observe(op, start, err)
		if err == nil {
			return nil
		}

		chainErr := newError(op, from, to, err)
		if ctx.Err() != nil || chainErr.Kind != KindTransient {
			return backoff.Permanent(chainErr)
		}
		c.logger.Debug().Err(err).Str("op", op).Msg("transient rpc failure, retrying")
		return chainErr
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryDelay
	policy.MaxInterval = c.maxDelay
	policy.MaxElapsedTime = 0

	err := backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(policy, c.maxRetries), ctx))
	if err == nil {
		return nil
	}

	var chainErr *Error
	if errors.As(err, &chainErr) {
		return chainErr
	}
	return newError(op, from, to, err)
}

func (c *EthClient) observe(op string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordRPCCall(op, time.Since(start))
	if err != nil {
		c.metrics.RecordRPCError(op, classify(err).String())
	}
}

var _ Client = (*EthClient)(nil)
