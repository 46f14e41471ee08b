package relayclient

import (
	"math/big"

	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
)

// AccountID is a raw 32-byte relay chain account identifier.
type AccountID [32]byte

// ActiveEraInfo mirrors pallet_staking::ActiveEraInfo.
type ActiveEraInfo struct {
	Index types.U32
	Start OptionU64
}

// StakingLedger mirrors the fields of pallet_staking::StakingLedger consumed
// by the report builder.
type StakingLedger struct {
	Stash          AccountID
	Total          types.UCompact
	Active         types.UCompact
	Unlocking      []UnlockChunk
	ClaimedRewards []types.U32
}

// UnlockChunk is one scheduled unbond within a staking ledger.
type UnlockChunk struct {
	Value types.UCompact
	Era   types.UCompact
}

// SlashingSpans mirrors pallet_staking::slashing::SlashingSpans.
type SlashingSpans struct {
	SpanIndex        types.U32
	LastStart        types.U32
	LastNonzeroSlash types.U32
	Prior            []types.U32
}

// AccountInfo mirrors frame_system::AccountInfo with the classic four-field
// balance data.
type AccountInfo struct {
	Nonce       types.U32
	Consumers   types.U32
	Providers   types.U32
	Sufficients types.U32
	Data        AccountData
}

// AccountData holds the balance portion of a system account.
type AccountData struct {
	Free       types.U128
	Reserved   types.U128
	MiscFrozen types.U128
	FeeFrozen  types.U128
}

// OptionU64 decodes a SCALE Option<u64>.
type OptionU64 struct {
	HasValue bool
	Value    uint64
}

func (o *OptionU64) Decode(decoder scale.Decoder) error {
	b, err := decoder.ReadOneByte()
	if err != nil {
		return err
	}
	if b == 0 {
		o.HasValue = false
		o.Value = 0
		return nil
	}
	o.HasValue = true
	return decoder.Decode(&o.Value)
}

func (o OptionU64) Encode(encoder scale.Encoder) error {
	if !o.HasValue {
		return encoder.PushByte(0)
	}
	if err := encoder.PushByte(1); err != nil {
		return err
	}
	return encoder.Encode(o.Value)
}

// CompactToBig converts a SCALE compact integer into a fresh big.Int.
func CompactToBig(v types.UCompact) *big.Int {
	b := big.Int(v)
	return new(big.Int).Set(&b)
}

// U128ToBig converts a SCALE u128 into a fresh big.Int. A zero-valued U128
// (absent storage) converts to zero.
func U128ToBig(v types.U128) *big.Int {
	if v.Int == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v.Int)
}

// ParachainAccount derives the sovereign account of a parachain on the relay
// chain: the bytes "para" followed by the little-endian para id, zero-padded
// to 32 bytes.
func ParachainAccount(paraID uint32) AccountID {
	var out AccountID
	copy(out[:4], "para")
	out[4] = byte(paraID)
	out[5] = byte(paraID >> 8)
	out[6] = byte(paraID >> 16)
	out[7] = byte(paraID >> 24)
	return out
}
