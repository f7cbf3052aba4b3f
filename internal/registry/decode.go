package registry

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrUnexpectedEvent is returned when a log does not carry the factory's creation topic.
var ErrUnexpectedEvent = errors.New("unexpected event")

// CreatedPool is a decoded pool-creation event.
type CreatedPool struct {
	Pool        common.Address
	Token0      common.Address
	Token1      common.Address
	Fee         uint32
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
}

// DecodeError reports a malformed creation event.
type DecodeError struct {
	Exchange string
	TxHash   common.Hash
	LogIndex uint
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s event tx=%s log=%d: %v", e.Exchange, e.TxHash.Hex(), e.LogIndex, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode extracts the pool identity from a creation log emitted by this factory.
// KindV2 events carry no fee; FixedFee is substituted.
func (f Factory) Decode(log types.Log) (*CreatedPool, error) {
	pool, err := f.decode(log)
	if err != nil {
		return nil, &DecodeError{Exchange: f.Exchange, TxHash: log.TxHash, LogIndex: log.Index, Err: err}
	}
	return pool, nil
}

func (f Factory) decode(log types.Log) (*CreatedPool, error) {
	if len(log.Topics) == 0 || log.Topics[0] != f.EventID() {
		return nil, ErrUnexpectedEvent
	}
	if log.Address != f.Address {
		return nil, fmt.Errorf("emitted by %s, want %s", log.Address.Hex(), f.Address.Hex())
	}

	wantTopics := 3
	if f.Kind == KindV3 {
		wantTopics = 4
	}
	if len(log.Topics) != wantTopics {
		return nil, fmt.Errorf("got %d topics, want %d", len(log.Topics), wantTopics)
	}

	values, err := FactoryABI.Unpack(f.EventName(), log.Data)
	if err != nil {
		return nil, fmt.Errorf("unpack data: %w", err)
	}

	out := &CreatedPool{
		Token0:      common.BytesToAddress(log.Topics[1].Bytes()),
		Token1:      common.BytesToAddress(log.Topics[2].Bytes()),
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.Index,
	}

	switch f.Kind {
	case KindV2:
		// data: (address pair, uint256 allPairsLength)
		pair, ok := values[0].(common.Address)
		if !ok {
			return nil, fmt.Errorf("pair field has type %T", values[0])
		}
		out.Pool = pair
		out.Fee = f.FixedFee
	case KindV3:
		// data: (int24 tickSpacing, address pool)
		pool, ok := values[1].(common.Address)
		if !ok {
			return nil, fmt.Errorf("pool field has type %T", values[1])
		}
		fee := new(big.Int).SetBytes(log.Topics[3].Bytes())
		if !fee.IsUint64() || fee.Uint64() > 1<<24-1 {
			return nil, fmt.Errorf("fee %s out of uint24 range", fee)
		}
		out.Pool = pool
		out.Fee = uint32(fee.Uint64())
	}

	if out.Pool == (common.Address{}) {
		return nil, errors.New("zero pool address")
	}
	return out, nil
}
