package submitter

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"github.com/stakebridge/relay-oracle/x/oraclemaster"
	"github.com/stakebridge/relay-oracle/x/parachain"
	"github.com/stakebridge/relay-oracle/x/report"
)

// ErrReverted marks a report transaction mined with status 0. It is not
// retried within the era; the next era is the next attempt.
var ErrReverted = errors.New("report transaction reverted")

// Outcome classifies one submission attempt.
type Outcome int

const (
	// OutcomeSuccess: mined with status 1.
	OutcomeSuccess Outcome = iota
	// OutcomeSkipped: the contract already holds this member's report for
	// the era; nothing was sent.
	OutcomeSkipped
	// OutcomeDebug: debug mode; the tuple was built and logged only.
	OutcomeDebug
)

// Result describes a completed submission.
type Result struct {
	Outcome Outcome
	TxHash  common.Hash
	Nonce   uint64
	GasUsed uint64
}

// Submitter signs and broadcasts reportRelay transactions. Submissions are
// strictly sequential; nonces increase monotonically within the process.
type Submitter struct {
	cfg    Config
	log    zerolog.Logger
	client parachain.EthClient
	caller *oraclemaster.Caller

	key  *ecdsa.PrivateKey
	from common.Address

	chainID *big.Int

	hasSubmitted bool
	lastNonce    uint64
}

func New(
	cfg Config,
	client parachain.EthClient,
	caller *oraclemaster.Caller,
	key *ecdsa.PrivateKey,
	log zerolog.Logger,
) *Submitter {
	return &Submitter{
		cfg:    cfg,
		log:    log.With().Str("component", "submitter").Logger(),
		client: client,
		caller: caller,
		key:    key,
		from:   crypto.PubkeyToAddress(key.PublicKey),
	}
}

// From returns the oracle member address derived from the configured key.
func (s *Submitter) From() common.Address {
	return s.from
}

// OracleBalance returns the member account's parachain balance.
func (s *Submitter) OracleBalance(ctx context.Context) (*big.Int, error) {
	return s.client.BalanceAt(ctx, s.from, nil)
}

// Submit reports one stash for one era. It consults isReportedLastEra first
// so restarts and member races never double-report, then composes, signs and
// broadcasts an EIP-1559 transaction and waits for its receipt.
func (s *Submitter) Submit(ctx context.Context, eraID uint64, t *report.Tuple) (Result, error) {
	lastEra, reported, err := s.caller.IsReportedLastEra(ctx, s.from, t.StashAccount)
	if err != nil {
		return Result{}, fmt.Errorf("isReportedLastEra: %w", err)
	}
	if reported && lastEra == eraID {
		s.log.Info().
			Uint64("era", eraID).
			Hex("stash", t.StashAccount[:]).
			Msg("already reported for era, skipping")
		return Result{Outcome: OutcomeSkipped}, nil
	}

	if s.cfg.DebugMode {
		s.log.Info().
			Uint64("era", eraID).
			Hex("stash", t.StashAccount[:]).
			Str("status", t.StakeStatus.String()).
			Str("active", t.ActiveBalance.String()).
			Str("total", t.TotalBalance.String()).
			Str("stash_balance", t.StashBalance.String()).
			Msg("debug mode: report built, not submitted")
		return Result{Outcome: OutcomeDebug}, nil
	}

	calldata, err := s.caller.Binding().BuildReportCalldata(eraID, t)
	if err != nil {
		return Result{}, err
	}

	signed, err := s.composeAndSign(ctx, calldata)
	if err != nil {
		return Result{}, err
	}

	if err := s.client.SendTransaction(ctx, signed); err != nil {
		return Result{}, fmt.Errorf("send transaction: %w", err)
	}
	s.log.Info().
		Uint64("era", eraID).
		Hex("stash", t.StashAccount[:]).
		Str("tx", signed.Hash().Hex()).
		Uint64("nonce", signed.Nonce()).
		Msg("report transaction sent")

	receipt, err := s.waitMined(ctx, signed.Hash())
	if err != nil {
		return Result{}, err
	}

	res := Result{
		TxHash:  signed.Hash(),
		Nonce:   signed.Nonce(),
		GasUsed: receipt.GasUsed,
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return res, fmt.Errorf("%w: era %d stash %x tx %s", ErrReverted, eraID, t.StashAccount, signed.Hash())
	}

	res.Outcome = OutcomeSuccess
	s.log.Info().
		Uint64("era", eraID).
		Str("tx", signed.Hash().Hex()).
		Uint64("gas_used", receipt.GasUsed).
		Msg("report transaction mined")
	return res, nil
}

func (s *Submitter) composeAndSign(ctx context.Context, calldata []byte) (*types.Transaction, error) {
	if s.chainID == nil {
		chainID, err := s.client.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("chain id: %w", err)
		}
		s.chainID = chainID
	}

	nonce, err := s.client.PendingNonceAt(ctx, s.from)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}
	// The node can briefly report a stale pending nonce right after a
	// submission; never step backwards within this process.
	if s.hasSubmitted && nonce <= s.lastNonce {
		nonce = s.lastNonce + 1
	}

	header, err := s.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("head header: %w", err)
	}

	tip := new(big.Int).SetUint64(s.cfg.MaxPriorityFeePerGas)
	feeCap := new(big.Int).Set(tip)
	if header.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(header.BaseFee, big.NewInt(2)))
	}

	to := s.caller.Binding().Address()
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       s.cfg.GasLimit,
		To:        &to,
		Value:     new(big.Int),
		Data:      calldata,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	s.lastNonce = nonce
	s.hasSubmitted = true
	return signed, nil
}

// waitMined polls for the receipt until it lands, the context is canceled,
// or the receipt timeout elapses.
func (s *Submitter) waitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(s.cfg.ReceiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.client.TransactionReceipt(waitCtx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("receipt %s: %w", txHash, err)
		}

		select {
		case <-waitCtx.Done():
			return nil, fmt.Errorf("waiting for receipt %s: %w", txHash, waitCtx.Err())
		case <-ticker.C:
		}
	}
}
