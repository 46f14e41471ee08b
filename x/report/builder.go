package report

import (
	"context"
	"fmt"
	"math/big"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/rs/zerolog"

	"github.com/stakebridge/relay-oracle/x/relayclient"
)

// RelayReader is the slice of the relay client the builder needs. Every read
// takes the era's snapshot block hash so a single tuple never mixes state
// from two blocks.
type RelayReader interface {
	Bonded(ctx context.Context, stash relayclient.AccountID, at types.Hash) (*relayclient.AccountID, error)
	Ledger(ctx context.Context, controller relayclient.AccountID, at types.Hash) (*relayclient.StakingLedger, error)
	AccountInfo(ctx context.Context, acct relayclient.AccountID, at types.Hash) (relayclient.AccountInfo, error)
	SlashingSpanCount(ctx context.Context, stash relayclient.AccountID, at types.Hash) (uint32, error)
	IsNominator(ctx context.Context, stash relayclient.AccountID, at types.Hash) (bool, error)
	IsValidator(ctx context.Context, stash relayclient.AccountID, at types.Hash) (bool, error)
}

// Builder assembles one report tuple per stash per era from the relay chain.
type Builder struct {
	relay RelayReader
	log   zerolog.Logger
}

func NewBuilder(relay RelayReader, log zerolog.Logger) *Builder {
	return &Builder{
		relay: relay,
		log:   log.With().Str("component", "report-builder").Logger(),
	}
}

// Build reads the stash's staking position at the snapshot block and
// assembles the report tuple.
func (b *Builder) Build(ctx context.Context, eraID uint64, stash relayclient.AccountID, at types.Hash) (*Tuple, error) {
	controller, err := b.relay.Bonded(ctx, stash, at)
	if err != nil {
		return nil, fmt.Errorf("bonded(%x): %w", stash, err)
	}

	info, err := b.relay.AccountInfo(ctx, stash, at)
	if err != nil {
		return nil, fmt.Errorf("account(%x): %w", stash, err)
	}
	stashBalance := relayclient.U128ToBig(info.Data.Free)

	if controller == nil {
		t := Zeroed([32]byte(stash))
		t.StashBalance = stashBalance
		b.log.Debug().
			Uint64("era", eraID).
			Hex("stash", stash[:]).
			Msg("stash not bonded")
		return t, nil
	}

	spans, err := b.relay.SlashingSpanCount(ctx, stash, at)
	if err != nil {
		return nil, fmt.Errorf("slashing_spans(%x): %w", stash, err)
	}

	status, err := b.resolveStatus(ctx, stash, at)
	if err != nil {
		return nil, err
	}

	t := &Tuple{
		StashAccount:      [32]byte(stash),
		ControllerAccount: [32]byte(*controller),
		StakeStatus:       status,
		ActiveBalance:     new(big.Int),
		TotalBalance:      new(big.Int),
		Unlocking:         []UnlockChunk{},
		ClaimedRewards:    []uint32{},
		StashBalance:      stashBalance,
		SlashingSpans:     spans,
	}

	ledger, err := b.relay.Ledger(ctx, *controller, at)
	if err != nil {
		return nil, fmt.Errorf("ledger(%x): %w", controller, err)
	}
	if ledger != nil {
		t.ActiveBalance = relayclient.CompactToBig(ledger.Active)
		t.TotalBalance = relayclient.CompactToBig(ledger.Total)
		for _, chunk := range ledger.Unlocking {
			t.Unlocking = append(t.Unlocking, UnlockChunk{
				Balance: relayclient.CompactToBig(chunk.Value),
				Era:     relayclient.CompactToBig(chunk.Era).Uint64(),
			})
		}
		for _, era := range ledger.ClaimedRewards {
			t.ClaimedRewards = append(t.ClaimedRewards, uint32(era))
		}
	}

	b.log.Debug().
		Uint64("era", eraID).
		Hex("stash", stash[:]).
		Str("status", t.StakeStatus.String()).
		Str("active", t.ActiveBalance.String()).
		Str("total", t.TotalBalance.String()).
		Msg("report tuple assembled")

	return t, nil
}

// resolveStatus distinguishes nominator, validator and chill for a bonded
// stash.
func (b *Builder) resolveStatus(ctx context.Context, stash relayclient.AccountID, at types.Hash) (StakeStatus, error) {
	nominator, err := b.relay.IsNominator(ctx, stash, at)
	if err != nil {
		return StatusChill, fmt.Errorf("nominators(%x): %w", stash, err)
	}
	if nominator {
		return StatusNominator, nil
	}

	validator, err := b.relay.IsValidator(ctx, stash, at)
	if err != nil {
		return StatusChill, fmt.Errorf("validators(%x): %w", stash, err)
	}
	if validator {
		return StatusValidator, nil
	}

	return StatusChill, nil
}
