package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ligun0805/bridge-runner/internal/networks"
)

// Backend is the subset of *ethclient.Client used by Client.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

var _ Backend = (*ethclient.Client)(nil)

const (
	DefaultReceiptTimeout = 300 * time.Second
	DefaultReceiptPoll    = 5 * time.Second
)

// Options tune a Client. Zero values mean no throttling and 3 attempts at 200ms backoff.
type Options struct {
	// HTTPClient carries the outbound proxy transport, if any.
	HTTPClient   *http.Client
	RPS          float64
	MaxAttempts  int
	RetryBackoff time.Duration
	Logger       logrus.FieldLogger
}

// Client wraps one network's RPC endpoint. Safe for concurrent use.
type Client struct {
	Network networks.Network

	backend     Backend
	limiter     *rate.Limiter
	maxAttempts int
	backoff     time.Duration
	log         logrus.FieldLogger
}

// Dial connects to the network RPC, optionally through opts.HTTPClient.
func Dial(ctx context.Context, n networks.Network, opts Options) (*Client, error) {
	var rpcOpts []rpc.ClientOption
	if opts.HTTPClient != nil {
		rpcOpts = append(rpcOpts, rpc.WithHTTPClient(opts.HTTPClient))
	}
	rc, err := rpc.DialOptions(ctx, n.RPCURL, rpcOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", n.Slug, err)
	}
	return NewClient(n, ethclient.NewClient(rc), opts), nil
}

// NewClient wraps an existing backend.
func NewClient(n networks.Network, b Backend, opts Options) *Client {
	lim := rate.NewLimiter(rate.Inf, 1)
	if opts.RPS > 0 {
		burst := int(opts.RPS)
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 200 * time.Millisecond
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		Network:     n,
		backend:     b,
		limiter:     lim,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.RetryBackoff,
		log:         log.WithField("network", n.Slug),
	}
}

func (c *Client) Close() { c.backend.Close() }

// withRetry runs a read with small exponential backoff; reverts are not retried.
func withRetry[T any](ctx context.Context, c *Client, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	backoff := c.backoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return zero, err
		}
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if isRevert(err) || ctx.Err() != nil {
			break
		}
		if attempt < c.maxAttempts {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
			}
			if isRateLimitError(err) {
				backoff *= 2
			}
		}
	}
	return zero, lastErr
}

// Balance returns the holder's balance of token in smallest units.
func (c *Client) Balance(ctx context.Context, addr common.Address, token networks.Token) (*big.Int, error) {
	if token.Native {
		return c.NativeBalance(ctx, addr)
	}
	return c.TokenBalance(ctx, token.Address, addr)
}

func (c *Client) NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return withRetry(ctx, c, func(ctx context.Context) (*big.Int, error) {
		return c.backend.BalanceAt(ctx, addr, nil)
	})
}

// Nonce reads the account nonce at the network's block selector.
func (c *Client) Nonce(ctx context.Context, addr common.Address) (uint64, error) {
	return withRetry(ctx, c, func(ctx context.Context) (uint64, error) {
		if c.Network.LatestOnly {
			return c.backend.NonceAt(ctx, addr, nil)
		}
		return c.backend.PendingNonceAt(ctx, addr)
	})
}

func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	return withRetry(ctx, c, c.backend.SuggestGasPrice)
}

func (c *Client) TipCap(ctx context.Context) (*big.Int, error) {
	return withRetry(ctx, c, c.backend.SuggestGasTipCap)
}

// BaseFee returns baseFeePerGas of the pending block, or latest on LatestOnly networks.
func (c *Client) BaseFee(ctx context.Context) (*big.Int, error) {
	var num *big.Int
	if !c.Network.LatestOnly {
		num = big.NewInt(int64(rpc.PendingBlockNumber))
	}
	h, err := withRetry(ctx, c, func(ctx context.Context) (*types.Header, error) {
		return c.backend.HeaderByNumber(ctx, num)
	})
	if err != nil {
		return nil, err
	}
	if h.BaseFee == nil {
		return nil, errors.New("no baseFee (pre-1559?)")
	}
	return new(big.Int).Set(h.BaseFee), nil
}

func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return withRetry(ctx, c, func(ctx context.Context) (uint64, error) {
		return c.backend.EstimateGas(ctx, msg)
	})
}

// Call performs a read-only eth_call against the latest state.
func (c *Client) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	msg := ethereum.CallMsg{To: &to, Data: data}
	return withRetry(ctx, c, func(ctx context.Context) ([]byte, error) {
		return c.backend.CallContract(ctx, msg, nil)
	})
}

// Broadcast sends a signed transaction once; fee rejections come back as *UnderpricedFeeError.
func (c *Client) Broadcast(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return common.Hash{}, err
	}
	if err := c.backend.SendTransaction(ctx, tx); err != nil {
		if isUnderpriced(err) {
			return common.Hash{}, &UnderpricedFeeError{MaxFeePerGas: tx.GasFeeCap(), Err: err}
		}
		return common.Hash{}, fmt.Errorf("broadcast: %w", err)
	}
	return tx.Hash(), nil
}

// WaitForReceipt polls every poll until the receipt shows up or timeout expires.
// A status-0 receipt is returned together with *ReceiptFailedError.
func (c *Client) WaitForReceipt(ctx context.Context, hash common.Hash, timeout, poll time.Duration) (*types.Receipt, error) {
	if timeout <= 0 {
		timeout = DefaultReceiptTimeout
	}
	if poll <= 0 {
		poll = DefaultReceiptPoll
	}
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	t := time.NewTicker(poll)
	defer t.Stop()
	for {
		if err := c.limiter.Wait(wctx); err == nil {
			rcpt, err := c.backend.TransactionReceipt(wctx, hash)
			switch {
			case err == nil && rcpt != nil:
				if rcpt.Status != types.ReceiptStatusSuccessful {
					return rcpt, &ReceiptFailedError{Hash: hash, Block: rcpt.BlockNumber}
				}
				return rcpt, nil
			case err != nil && !errors.Is(err, ethereum.NotFound) && wctx.Err() == nil:
				c.log.WithError(err).Debugf("[receipt] %s: transient error", hash.Hex())
			}
		}
		select {
		case <-wctx.Done():
			return nil, &ReceiptTimeoutError{Hash: hash, Timeout: timeout, Err: wctx.Err()}
		case <-t.C:
		}
	}
}

// CheckHealth verifies the endpoint answers and serves the expected chain.
func (c *Client) CheckHealth(ctx context.Context) error {
	id, err := withRetry(ctx, c, c.backend.ChainID)
	if err != nil {
		return fmt.Errorf("%s: chain id: %w", c.Network.Slug, err)
	}
	if c.Network.ChainID != nil && id.Cmp(c.Network.ChainID) != 0 {
		return fmt.Errorf("%s: rpc serves chain %s, want %s", c.Network.Slug, id, c.Network.ChainID)
	}
	return nil
}
