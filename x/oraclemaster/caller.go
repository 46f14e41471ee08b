package oraclemaster

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// ContractBackend is the read-only RPC surface the caller needs.
type ContractBackend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Anchor is the contract-published era anchor triple. It is authoritative
// for era-boundary arithmetic.
type Anchor struct {
	EraID         uint64
	Timestamp     uint64
	SecondsPerEra uint64
}

// Caller issues the read-only OracleMaster queries.
type Caller struct {
	binding *Binding
	backend ContractBackend
	log     zerolog.Logger
}

func NewCaller(binding *Binding, backend ContractBackend, log zerolog.Logger) *Caller {
	return &Caller{
		binding: binding,
		backend: backend,
		log:     log.With().Str("component", "oracle-master").Logger(),
	}
}

// Binding returns the underlying contract binding.
func (c *Caller) Binding() *Binding {
	return c.binding
}

func (c *Caller) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := c.binding.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	addr := c.binding.address
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	values, err := c.binding.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

func (c *Caller) callUint64(ctx context.Context, method string) (uint64, error) {
	values, err := c.call(ctx, method)
	if err != nil {
		return 0, err
	}
	if len(values) != 1 {
		return 0, fmt.Errorf("%s: expected one return value, got %d", method, len(values))
	}
	v, ok := values[0].(uint64)
	if !ok {
		return 0, fmt.Errorf("%s: unexpected return type %T", method, values[0])
	}
	return v, nil
}

// CurrentEraID returns the era the contract is ready to accept reports for.
func (c *Caller) CurrentEraID(ctx context.Context) (uint64, error) {
	return c.callUint64(ctx, "getCurrentEraId")
}

// EraID returns the contract's own era counter.
func (c *Caller) EraID(ctx context.Context) (uint64, error) {
	return c.callUint64(ctx, "eraId")
}

// FetchAnchor reads the contract's era anchor triple.
func (c *Caller) FetchAnchor(ctx context.Context) (Anchor, error) {
	eraID, err := c.callUint64(ctx, "ANCHOR_ERA_ID")
	if err != nil {
		return Anchor{}, err
	}
	ts, err := c.callUint64(ctx, "ANCHOR_TIMESTAMP")
	if err != nil {
		return Anchor{}, err
	}
	secs, err := c.callUint64(ctx, "SECONDS_PER_ERA")
	if err != nil {
		return Anchor{}, err
	}
	if secs == 0 {
		return Anchor{}, fmt.Errorf("contract reports SECONDS_PER_ERA = 0")
	}
	return Anchor{EraID: eraID, Timestamp: ts, SecondsPerEra: secs}, nil
}

// StashAccounts returns the contract-owned stash set, in contract order.
func (c *Caller) StashAccounts(ctx context.Context) ([][32]byte, error) {
	values, err := c.call(ctx, "getStashAccounts")
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("getStashAccounts: expected one return value, got %d", len(values))
	}
	accounts, ok := values[0].([][32]byte)
	if !ok {
		return nil, fmt.Errorf("getStashAccounts: unexpected return type %T", values[0])
	}
	return accounts, nil
}

// IsReportedLastEra returns the member's last reported era for the stash and
// whether a report landed.
func (c *Caller) IsReportedLastEra(ctx context.Context, member common.Address, stash [32]byte) (uint64, bool, error) {
	values, err := c.call(ctx, "isReportedLastEra", member, stash)
	if err != nil {
		return 0, false, err
	}
	if len(values) != 2 {
		return 0, false, fmt.Errorf("isReportedLastEra: expected two return values, got %d", len(values))
	}
	lastEra, ok := values[0].(uint64)
	if !ok {
		return 0, false, fmt.Errorf("isReportedLastEra: unexpected era type %T", values[0])
	}
	reported, ok := values[1].(bool)
	if !ok {
		return 0, false, fmt.Errorf("isReportedLastEra: unexpected flag type %T", values[1])
	}
	return lastEra, reported, nil
}
