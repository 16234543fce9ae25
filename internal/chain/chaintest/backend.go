// Package chaintest provides an in-memory chain backend for tests.
package chaintest

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	selBalanceOf = common.FromHex("0x70a08231")
	selAllowance = common.FromHex("0xdd62ed3e")
	selApprove   = common.FromHex("0x095ea7b3")
)

// Backend mimics the ethclient calls used by chain.Client.
// Approvals sent through it update the allowance table; every accepted
// transaction gets a receipt unless Pending is set.
type Backend struct {
	mu sync.Mutex

	ChainIDValue *big.Int
	BaseFee      *big.Int
	Tip          *big.Int
	// GasPrices is consumed one entry per SuggestGasPrice call; the last entry repeats.
	GasPrices    []*big.Int
	GasEstimate  uint64
	EstimateErr  error
	NonceValue   uint64
	Native       map[common.Address]*big.Int
	Tokens       map[common.Address]map[common.Address]*big.Int
	Allowances   map[common.Address]map[common.Address]map[common.Address]*big.Int
	// SendErrs is consumed one entry per SendTransaction call; nil entries accept.
	SendErrs     []error
	Pending      bool
	ReceiptFails bool

	Sent              []*types.Transaction
	SendCalls         int
	GasPriceCalls     int
	PendingNonceCalls int
	LatestNonceCalls  int
	HeaderRequests    []*big.Int
	receipts          map[common.Hash]*types.Receipt
}

func New(chainID int64) *Backend {
	return &Backend{
		ChainIDValue: big.NewInt(chainID),
		BaseFee:      big.NewInt(1_000_000_000),
		Tip:          big.NewInt(100_000_000),
		GasPrices:    []*big.Int{big.NewInt(1_000_000_000)},
		GasEstimate:  100_000,
		Native:       map[common.Address]*big.Int{},
		Tokens:       map[common.Address]map[common.Address]*big.Int{},
		Allowances:   map[common.Address]map[common.Address]map[common.Address]*big.Int{},
		receipts:     map[common.Hash]*types.Receipt{},
	}
}

func (b *Backend) SetTokenBalance(token, owner common.Address, v *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Tokens[token] == nil {
		b.Tokens[token] = map[common.Address]*big.Int{}
	}
	b.Tokens[token][owner] = v
}

func (b *Backend) SetAllowance(token, owner, spender common.Address, v *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setAllowance(token, owner, spender, v)
}

func (b *Backend) setAllowance(token, owner, spender common.Address, v *big.Int) {
	if b.Allowances[token] == nil {
		b.Allowances[token] = map[common.Address]map[common.Address]*big.Int{}
	}
	if b.Allowances[token][owner] == nil {
		b.Allowances[token][owner] = map[common.Address]*big.Int{}
	}
	b.Allowances[token][owner][spender] = v
}

// SentTxs returns a copy of the accepted transactions.
func (b *Backend) SentTxs() []*types.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*types.Transaction(nil), b.Sent...)
}

func (b *Backend) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.ChainIDValue), nil
}

func (b *Backend) BalanceAt(_ context.Context, a common.Address, _ *big.Int) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return orZero(b.Native[a]), nil
}

func (b *Backend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.PendingNonceCalls++
	return b.NonceValue, nil
}

func (b *Backend) NonceAt(context.Context, common.Address, *big.Int) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.LatestNonceCalls++
	return b.NonceValue, nil
}

func (b *Backend) HeaderByNumber(_ context.Context, n *big.Int) (*types.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.HeaderRequests = append(b.HeaderRequests, n)
	return &types.Header{Number: big.NewInt(1), BaseFee: orZero(b.BaseFee)}, nil
}

func (b *Backend) SuggestGasPrice(context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.GasPriceCalls
	if i >= len(b.GasPrices) {
		i = len(b.GasPrices) - 1
	}
	b.GasPriceCalls++
	if i < 0 {
		return new(big.Int), nil
	}
	return new(big.Int).Set(b.GasPrices[i]), nil
}

func (b *Backend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return orZero(b.Tip), nil
}

func (b *Backend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.EstimateErr != nil {
		return 0, b.EstimateErr
	}
	return b.GasEstimate, nil
}

func (b *Backend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, errors.New("execution reverted")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	token, sel, args := *msg.To, msg.Data[:4], msg.Data[4:]
	switch {
	case bytes.Equal(sel, selBalanceOf) && len(args) >= 32:
		owner := common.BytesToAddress(args[:32])
		return word(orZero(b.Tokens[token][owner])), nil
	case bytes.Equal(sel, selAllowance) && len(args) >= 64:
		owner := common.BytesToAddress(args[:32])
		spender := common.BytesToAddress(args[32:64])
		return word(orZero(b.Allowances[token][owner][spender])), nil
	}
	return nil, errors.New("execution reverted: unknown selector")
}

func (b *Backend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.SendCalls++
	if len(b.SendErrs) > 0 {
		err := b.SendErrs[0]
		b.SendErrs = b.SendErrs[1:]
		if err != nil {
			return err
		}
	}
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return err
	}
	if tx.To() != nil && len(tx.Data()) >= 68 && bytes.Equal(tx.Data()[:4], selApprove) {
		spender := common.BytesToAddress(tx.Data()[4:36])
		b.setAllowance(*tx.To(), from, spender, new(big.Int).SetBytes(tx.Data()[36:68]))
	}
	b.Sent = append(b.Sent, tx)
	b.NonceValue++
	status := types.ReceiptStatusSuccessful
	if b.ReceiptFails {
		status = types.ReceiptStatusFailed
	}
	b.receipts[tx.Hash()] = &types.Receipt{Status: status, TxHash: tx.Hash(), BlockNumber: big.NewInt(2)}
	return nil
}

func (b *Backend) TransactionReceipt(_ context.Context, h common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.receipts[h]
	if !ok || b.Pending {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (b *Backend) Close() {}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func word(v *big.Int) []byte {
	return common.LeftPadBytes(v.Bytes(), 32)
}
