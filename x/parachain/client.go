package parachain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

// ErrPara marks RPC-level failures talking to the parachain that survived
// the internal reconnect cap.
var ErrPara = errors.New("parachain rpc error")

// EthClient is the slice of the Ethereum JSON-RPC surface the oracle uses.
// The production implementation is Client; tests substitute mocks.
type EthClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Health is the failure-accounting sink every call reports to.
type Health interface {
	Allowed(endpoint string) error
	Success(endpoint string)
	Failure(endpoint string)
	SetURL(endpoint, url string)
}

// Client owns the parachain websocket session with failure accounting and
// endpoint rotation. It satisfies EthClient.
type Client struct {
	cfg    Config
	log    zerolog.Logger
	health Health

	mu      sync.Mutex
	ec      *ethclient.Client
	url     string
	lastURL string
}

var _ EthClient = (*Client)(nil)

func New(cfg Config, health Health, log zerolog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		log:    log.With().Str("component", "para-client").Logger(),
		health: health,
	}
}

// Connect establishes the initial session.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

// Reconnect tears the session down and dials again, preferring a different
// URL than the one just in use.
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
	if c.ec != nil {
		c.ec.Close()
	}
	c.lastURL = c.url
	c.ec = nil
	c.url = ""
}

func (c *Client) connectLocked(ctx context.Context) error {
	var lastErr error

	ordered := make([]string, 0, len(c.cfg.URLs))
	deferred := make([]string, 0, 1)
	for _, u := range c.cfg.URLs {
		if !strings.HasPrefix(u, "ws") {
			c.log.Warn().Str("url", u).Msg("skipping non-websocket parachain url")
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

		ec, err := ethclient.DialContext(ctx, u)
		if err != nil {
			lastErr = err
			c.log.Warn().Err(err).Str("url", u).Msg("failed to connect to parachain node")
			continue
		}

		c.ec = ec
		c.url = u
		if c.health != nil {
			c.health.SetURL(EndpointName, u)
		}
		c.log.Info().Str("url", u).Msg("connected to parachain node")
		return nil
	}

	return fmt.Errorf("%w: connect: %v", ErrPara, lastErr)
}

// do runs one RPC under the session lock with failure accounting and
// transparent reconnection up to the configured cap.
func (c *Client) do(ctx context.Context, op string, fn func(ec *ethclient.Client) error) error {
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

		if c.ec == nil {
			if err := c.connectLocked(ctx); err != nil {
				lastErr = err
				c.reportFailure()
				continue
			}
		}

		err := fn(c.ec)
		if err == nil {
			c.reportSuccess()
			return nil
		}

		lastErr = err
		c.reportFailure()

		if !isTransportErr(err) {
			return fmt.Errorf("%w: %s: %v", ErrPara, op, err)
		}
		c.log.Warn().Err(err).Str("op", op).Msg("parachain transport error, reconnecting")
		c.teardownLocked()
	}

	return fmt.Errorf("%w: %s: %v", ErrPara, op, lastErr)
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

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var out *big.Int
	err := c.do(ctx, "chain_id", func(ec *ethclient.Client) error {
		v, err := ec.ChainID(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var out uint64
	err := c.do(ctx, "pending_nonce_at", func(ec *ethclient.Client) error {
		v, err := ec.PendingNonceAt(ctx, account)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (c *Client) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	var out *big.Int
	err := c.do(ctx, "suggest_gas_tip_cap", func(ec *ethclient.Client) error {
		v, err := ec.SuggestGasTipCap(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	var out *types.Header
	err := c.do(ctx, "header_by_number", func(ec *ethclient.Client) error {
		v, err := ec.HeaderByNumber(ctx, number)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var out []byte
	err := c.do(ctx, "call_contract", func(ec *ethclient.Client) error {
		v, err := ec.CallContract(ctx, msg, blockNumber)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return c.do(ctx, "send_transaction", func(ec *ethclient.Client) error {
		return ec.SendTransaction(ctx, tx)
	})
}

// TransactionReceipt returns the mined receipt for the hash. A pending
// transaction surfaces ethereum.NotFound unwrapped and does not count as an
// endpoint failure; callers poll on it.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var out *types.Receipt
	var pending bool
	err := c.do(ctx, "transaction_receipt", func(ec *ethclient.Client) error {
		v, err := ec.TransactionReceipt(ctx, txHash)
		if errors.Is(err, ethereum.NotFound) {
			pending = true
			return nil
		}
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, ethereum.NotFound
	}
	return out, nil
}

func (c *Client) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	var out *big.Int
	err := c.do(ctx, "balance_at", func(ec *ethclient.Client) error {
		v, err := ec.BalanceAt(ctx, account, blockNumber)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func isTransportErr(err error) bool {
	if errors.Is(err, ethereum.NotFound) {
		return false
	}
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
