package report

import (
	"math/big"
)

// StakeStatus is the on-chain role of a stash at the snapshot block.
type StakeStatus uint8

const (
	StatusChill     StakeStatus = 0
	StatusNominator StakeStatus = 1
	StatusValidator StakeStatus = 2
	StatusNone      StakeStatus = 3
)

func (s StakeStatus) String() string {
	switch s {
	case StatusChill:
		return "chill"
	case StatusNominator:
		return "nominator"
	case StatusValidator:
		return "validator"
	case StatusNone:
		return "none"
	default:
		return "unknown"
	}
}

// UnlockChunk is one scheduled unbond in a stash's ledger.
type UnlockChunk struct {
	Balance *big.Int
	Era     uint64
}

// Tuple is the staking position of one stash at one era boundary, as
// submitted to the OracleMaster contract.
type Tuple struct {
	StashAccount      [32]byte
	ControllerAccount [32]byte
	StakeStatus       StakeStatus
	ActiveBalance     *big.Int
	TotalBalance      *big.Int
	Unlocking         []UnlockChunk
	ClaimedRewards    []uint32
	StashBalance      *big.Int
	SlashingSpans     uint32
}

// Zeroed returns a tuple for an unbonded stash: status none, zero balances,
// empty sequences. The stash balance is still filled in by the builder.
func Zeroed(stash [32]byte) *Tuple {
	return &Tuple{
		StashAccount:   stash,
		StakeStatus:    StatusNone,
		ActiveBalance:  new(big.Int),
		TotalBalance:   new(big.Int),
		Unlocking:      []UnlockChunk{},
		ClaimedRewards: []uint32{},
		StashBalance:   new(big.Int),
	}
}
