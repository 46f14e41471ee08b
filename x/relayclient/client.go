package relayclient

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"strings"
	"sync"

	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/rs/zerolog"
)

var (
	// ErrTransport marks connection-level failures that survived the
	// internal reconnect cap.
	ErrTransport = errors.New("relay transport error")

	// ErrRelayData marks responses that arrived but could not be decoded
	// into the expected shape.
	ErrRelayData = errors.New("relay data error")
)

// Health is the failure-accounting sink every call reports to.
type Health interface {
	Allowed(endpoint string) error
	Success(endpoint string)
	Failure(endpoint string)
	SetURL(endpoint, url string)
}

// Client owns the single relay chain websocket session. It is safe for
// concurrent use; callers serialize through an internal mutex so the session
// has exactly one in-flight request at a time.
type Client struct {
	cfg    Config
	log    zerolog.Logger
	health Health

	mu   sync.Mutex
	api  *gsrpc.SubstrateAPI
	meta *types.Metadata
	url  string
	// lastURL is skipped first on reconnect so a flapping endpoint is not
	// immediately re-dialed.
	lastURL string
}

func New(cfg Config, health Health, log zerolog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		log:    log.With().Str("component", "relay-client").Logger(),
		health: health,
	}
}

// Connect establishes the initial session. It tries each configured URL in
// order and fails only when none answers.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

// Reconnect tears the session down and dials again, preferring a different
// URL than the one that was just in use. The watchdog calls this.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()
	return c.connectLocked(ctx)
}

// Close drops the session.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()
}

// URL returns the endpoint currently connected, or empty.
func (c *Client) URL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.url
}

func (c *Client) teardownLocked() {
	c.lastURL = c.url
	c.api = nil
	c.meta = nil
	c.url = ""
}

func (c *Client) connectLocked(ctx context.Context) error {
	var lastErr error

	ordered := make([]string, 0, len(c.cfg.URLs))
	deferred := make([]string, 0, 1)
	for _, u := range c.cfg.URLs {
		if !strings.HasPrefix(u, "ws") {
			c.log.Warn().Str("url", u).Msg("skipping non-websocket relay url")
			continue
		}
		if u == c.lastURL {
			deferred = append(deferred, u)
			continue
		}
		ordered = append(ordered, u)
	}
	ordered = append(ordered, deferred...)

	for _, u := range ordered {
		if err := ctx.Err(); err != nil {
			return err
		}

		api, err := gsrpc.NewSubstrateAPI(u)
		if err != nil {
			lastErr = err
			c.log.Warn().Err(err).Str("url", u).Msg("failed to connect to relay node")
			continue
		}

		meta, err := api.RPC.State.GetMetadataLatest()
		if err != nil {
			lastErr = err
			c.log.Warn().Err(err).Str("url", u).Msg("failed to fetch relay metadata")
			continue
		}

		c.api = api
		c.meta = meta
		c.url = u
		if c.health != nil {
			c.health.SetURL(EndpointName, u)
		}
		c.log.Info().Str("url", u).Msg("connected to relay node")
		return nil
	}

	return fmt.Errorf("%w: connect: %v", ErrTransport, lastErr)
}

// do runs one RPC under the session lock with failure accounting and
// transparent reconnection up to the configured cap.
func (c *Client) do(ctx context.Context, op string, fn func(api *gsrpc.SubstrateAPI, meta *types.Metadata) error) error {
	if c.health != nil {
		if err := c.health.Allowed(EndpointName); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxReconnects; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if c.api == nil {
			if err := c.connectLocked(ctx); err != nil {
				lastErr = err
				c.reportFailure()
				continue
			}
		}

		err := fn(c.api, c.meta)
		if err == nil {
			c.reportSuccess()
			return nil
		}

		lastErr = err
		c.reportFailure()

		if !isTransportErr(err) {
			return fmt.Errorf("%w: %s: %v", ErrRelayData, op, err)
		}
		c.log.Warn().Err(err).Str("op", op).Msg("relay transport error, reconnecting")
		c.teardownLocked()
	}

	return fmt.Errorf("%w: %s: %v", ErrTransport, op, lastErr)
}

func (c *Client) reportSuccess() {
	if c.health != nil {
		c.health.Success(EndpointName)
	}
}

func (c *Client) reportFailure() {
	if c.health != nil {
		c.health.Failure(EndpointName)
	}
}

// ActiveEra reads Staking.ActiveEra at the chain head.
func (c *Client) ActiveEra(ctx context.Context) (ActiveEraInfo, error) {
	var era ActiveEraInfo
	err := c.do(ctx, "active_era", func(api *gsrpc.SubstrateAPI, meta *types.Metadata) error {
		key, err := types.CreateStorageKey(meta, "Staking", "ActiveEra")
		if err != nil {
			return err
		}
		ok, err := api.RPC.State.GetStorageLatest(key, &era)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("Staking.ActiveEra not found")
		}
		return nil
	})
	return era, err
}

// BlockHash returns the hash of the block at the given height.
func (c *Client) BlockHash(ctx context.Context, height uint64) (types.Hash, error) {
	var hash types.Hash
	err := c.do(ctx, "block_hash", func(api *gsrpc.SubstrateAPI, _ *types.Metadata) error {
		h, err := api.RPC.Chain.GetBlockHash(height)
		if err != nil {
			return err
		}
		hash = h
		return nil
	})
	return hash, err
}

// FinalizedHead returns the hash of the latest finalized block.
func (c *Client) FinalizedHead(ctx context.Context) (types.Hash, error) {
	var hash types.Hash
	err := c.do(ctx, "finalized_head", func(api *gsrpc.SubstrateAPI, _ *types.Metadata) error {
		h, err := api.RPC.Chain.GetFinalizedHead()
		if err != nil {
			return err
		}
		hash = h
		return nil
	})
	return hash, err
}

// Bonded returns the controller bonded to the stash at the snapshot block,
// or nil if the stash is not bonded.
func (c *Client) Bonded(ctx context.Context, stash AccountID, at types.Hash) (*AccountID, error) {
	var controller *AccountID
	err := c.do(ctx, "bonded", func(api *gsrpc.SubstrateAPI, meta *types.Metadata) error {
		key, err := types.CreateStorageKey(meta, "Staking", "Bonded", stash[:])
		if err != nil {
			return err
		}
		var acct AccountID
		ok, err := api.RPC.State.GetStorage(key, &acct, at)
		if err != nil {
			return err
		}
		if ok {
			controller = &acct
		}
		return nil
	})
	return controller, err
}

// Ledger returns the staking ledger of the controller at the snapshot block,
// or nil if absent.
func (c *Client) Ledger(ctx context.Context, controller AccountID, at types.Hash) (*StakingLedger, error) {
	var out *StakingLedger
	err := c.do(ctx, "ledger", func(api *gsrpc.SubstrateAPI, meta *types.Metadata) error {
		key, err := types.CreateStorageKey(meta, "Staking", "Ledger", controller[:])
		if err != nil {
			return err
		}
		var ledger StakingLedger
		ok, err := api.RPC.State.GetStorage(key, &ledger, at)
		if err != nil {
			return err
		}
		if ok {
			out = &ledger
		}
		return nil
	})
	return out, err
}

// AccountInfo reads System.Account at the snapshot block. Absent accounts
// decode as the zero value.
func (c *Client) AccountInfo(ctx context.Context, acct AccountID, at types.Hash) (AccountInfo, error) {
	var info AccountInfo
	err := c.do(ctx, "account_info", func(api *gsrpc.SubstrateAPI, meta *types.Metadata) error {
		key, err := types.CreateStorageKey(meta, "System", "Account", acct[:])
		if err != nil {
			return err
		}
		_, err = api.RPC.State.GetStorage(key, &info, at)
		return err
	})
	return info, err
}

// SlashingSpanCount returns the stash's slashing span index at the snapshot
// block; absent storage yields 0.
func (c *Client) SlashingSpanCount(ctx context.Context, stash AccountID, at types.Hash) (uint32, error) {
	var count uint32
	err := c.do(ctx, "slashing_spans", func(api *gsrpc.SubstrateAPI, meta *types.Metadata) error {
		key, err := types.CreateStorageKey(meta, "Staking", "SlashingSpans", stash[:])
		if err != nil {
			return err
		}
		var spans SlashingSpans
		ok, err := api.RPC.State.GetStorage(key, &spans, at)
		if err != nil {
			return err
		}
		if ok {
			count = uint32(spans.SpanIndex)
		}
		return nil
	})
	return count, err
}

// IsNominator reports whether the stash has an active nomination at the
// snapshot block.
func (c *Client) IsNominator(ctx context.Context, stash AccountID, at types.Hash) (bool, error) {
	return c.storageExists(ctx, "nominators", "Staking", "Nominators", stash, at)
}

// IsValidator reports whether the stash has registered validator preferences
// at the snapshot block.
func (c *Client) IsValidator(ctx context.Context, stash AccountID, at types.Hash) (bool, error) {
	return c.storageExists(ctx, "validators", "Staking", "Validators", stash, at)
}

func (c *Client) storageExists(ctx context.Context, op, pallet, item string, acct AccountID, at types.Hash) (bool, error) {
	var exists bool
	err := c.do(ctx, op, func(api *gsrpc.SubstrateAPI, meta *types.Metadata) error {
		key, err := types.CreateStorageKey(meta, pallet, item, acct[:])
		if err != nil {
			return err
		}
		raw, err := api.RPC.State.GetStorageRaw(key, at)
		if err != nil {
			return err
		}
		exists = raw != nil && len(*raw) > 0
		return nil
	})
	return exists, err
}

// ParachainBalance returns the free balance of the parachain's sovereign
// account at the snapshot block.
func (c *Client) ParachainBalance(ctx context.Context, paraID uint32, at types.Hash) (*big.Int, error) {
	info, err := c.AccountInfo(ctx, ParachainAccount(paraID), at)
	if err != nil {
		return nil, err
	}
	return U128ToBig(info.Data.Free), nil
}

func isTransportErr(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"connection", "websocket", "broken pipe", "eof",
		"timeout", "reset by peer", "closed",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
