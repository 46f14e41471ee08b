package oraclemaster

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/stakebridge/relay-oracle/x/report"
)

// Methods the binding refuses to start without.
var requiredMethods = []string{
	"reportRelay",
	"getStashAccounts",
	"getCurrentEraId",
	"isReportedLastEra",
}

// unlockChunkArg is the ABI shape of one unlocking chunk.
type unlockChunkArg struct {
	Balance *big.Int `abi:"balance"`
	Era     uint64   `abi:"era"`
}

// oracleDataArg is the ABI shape of the OracleData tuple consumed by
// reportRelay.
type oracleDataArg struct {
	StashAccount      [32]byte         `abi:"stashAccount"`
	ControllerAccount [32]byte         `abi:"controllerAccount"`
	StakeStatus       uint8            `abi:"stakeStatus"`
	ActiveBalance     *big.Int         `abi:"activeBalance"`
	TotalBalance      *big.Int         `abi:"totalBalance"`
	Unlocking         []unlockChunkArg `abi:"unlocking"`
	ClaimedRewards    []uint32         `abi:"claimedRewards"`
	StashBalance      *big.Int         `abi:"stashBalance"`
	SlashingSpans     uint32           `abi:"slashingSpans"`
}

// Binding wraps the OracleMaster contract address and its runtime-loaded
// ABI. The ABI file path is configurable so contract upgrades don't require
// a rebuild; decoding still lands in static types to catch shape drift.
type Binding struct {
	address common.Address
	abi     abi.ABI
}

// NewBinding loads the ABI JSON from abiPath and validates the contract
// surface the oracle depends on.
func NewBinding(contractAddr, abiPath string) (*Binding, error) {
	if strings.TrimSpace(contractAddr) == "" {
		return nil, fmt.Errorf("contract address cannot be empty")
	}
	if !common.IsHexAddress(contractAddr) {
		return nil, fmt.Errorf("invalid contract address %q", contractAddr)
	}

	raw, err := os.ReadFile(abiPath)
	if err != nil {
		return nil, fmt.Errorf("reading ABI file %s: %w", abiPath, err)
	}

	parsed, err := abi.JSON(strings.NewReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("parsing ABI %s: %w", abiPath, err)
	}

	for _, name := range requiredMethods {
		if _, ok := parsed.Methods[name]; !ok {
			return nil, fmt.Errorf("ABI %s does not declare %s", abiPath, name)
		}
	}

	return &Binding{
		address: common.HexToAddress(contractAddr),
		abi:     parsed,
	}, nil
}

// Address returns the OracleMaster contract address.
func (b *Binding) Address() common.Address {
	return b.address
}

// ABI returns the parsed contract ABI.
func (b *Binding) ABI() abi.ABI {
	return b.abi
}

// BuildReportCalldata encodes reportRelay(eraId, tuple).
func (b *Binding) BuildReportCalldata(eraID uint64, t *report.Tuple) ([]byte, error) {
	if t == nil {
		return nil, fmt.Errorf("report tuple cannot be nil")
	}

	data, err := b.abi.Pack("reportRelay", eraID, toOracleDataArg(t))
	if err != nil {
		return nil, fmt.Errorf("failed to pack reportRelay calldata: %w", err)
	}
	return data, nil
}

func toOracleDataArg(t *report.Tuple) oracleDataArg {
	unlocking := make([]unlockChunkArg, 0, len(t.Unlocking))
	for _, chunk := range t.Unlocking {
		unlocking = append(unlocking, unlockChunkArg{
			Balance: orZero(chunk.Balance),
			Era:     chunk.Era,
		})
	}

	claimed := t.ClaimedRewards
	if claimed == nil {
		claimed = []uint32{}
	}

	return oracleDataArg{
		StashAccount:      t.StashAccount,
		ControllerAccount: t.ControllerAccount,
		StakeStatus:       uint8(t.StakeStatus),
		ActiveBalance:     orZero(t.ActiveBalance),
		TotalBalance:      orZero(t.TotalBalance),
		Unlocking:         unlocking,
		ClaimedRewards:    claimed,
		StashBalance:      orZero(t.StashBalance),
		SlashingSpans:     t.SlashingSpans,
	}
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
