package chain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/ethereum/go-ethereum/rpc"
)

// Kind tags a chain error with the policy the caller should apply.
type Kind int

const (
	// KindTransient covers network failures and unexpected provider errors.
	KindTransient Kind = iota
	// KindRateLimited means the provider signalled throughput exhaustion.
	KindRateLimited
	// KindQueryTimeout means the call exceeded its deadline.
	KindQueryTimeout
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindQueryTimeout:
		return "query_timeout"
	default:
		return "transient"
	}
}

// JSON-RPC codes providers use for throughput exhaustion.
const (
	codeLimitExceeded   = -32005
	codeTooManyRequests = 429
)

// Error is a failed chain call.
type Error struct {
	Kind Kind
	Op   string
	From uint64 // block range, zero for non-range calls
	To   uint64
	Err  error
}

func (e *Error) Error() string {
	if e.From != 0 || e.To != 0 {
		return fmt.Sprintf("%s [%d,%d] %s: %v", e.Op, e.From, e.To, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a chain error. Errors that are not *Error are transient.
func KindOf(err error) Kind {
	var chainErr *Error
	if errors.As(err, &chainErr) {
		return chainErr.Kind
	}
	return KindTransient
}

// IsRateLimited reports whether err is a rate-limit error.
func IsRateLimited(err error) bool {
	return err != nil && KindOf(err) == KindRateLimited
}

// IsQueryTimeout reports whether err is a query timeout.
func IsQueryTimeout(err error) bool {
	return err != nil && KindOf(err) == KindQueryTimeout
}

// classify maps a go-ethereum rpc error onto a Kind using the error's type and code.
func classify(err error) Kind {
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusTooManyRequests:
			return KindRateLimited
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return KindQueryTimeout
		}
		return KindTransient
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case codeLimitExceeded, codeTooManyRequests:
			return KindRateLimited
		}
		return KindTransient
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindQueryTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindQueryTimeout
	}

	return KindTransient
}

func newError(op string, from, to uint64, err error) *Error {
	return &Error{Kind: classify(err), Op: op, From: from, To: to, Err: err}
}
