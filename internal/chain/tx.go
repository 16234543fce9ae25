package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TxBuilder holds a draft transaction until Prepare finalizes it.
// Not safe for concurrent use; one builder per transaction.
type TxBuilder struct {
	client *Client
	from   *common.Address
	to     *common.Address
	value  *big.Int
	data   []byte
	gas    uint64
}

func (c *Client) NewTx() *TxBuilder {
	return &TxBuilder{client: c, value: new(big.Int)}
}

func (b *TxBuilder) AddFrom(a common.Address) *TxBuilder { b.from = &a; return b }
func (b *TxBuilder) AddTo(a common.Address) *TxBuilder   { b.to = &a; return b }
func (b *TxBuilder) AddData(d []byte) *TxBuilder         { b.data = common.CopyBytes(d); return b }

func (b *TxBuilder) AddValue(v *big.Int) *TxBuilder {
	if v != nil {
		b.value = new(big.Int).Set(v)
	}
	return b
}

// AddGas sets an explicit gas limit; the node estimate is still required to pass.
func (b *TxBuilder) AddGas(g uint64) *TxBuilder { b.gas = g; return b }

// TxRequest is a finalized, unsigned EIP-1559 transaction.
type TxRequest struct {
	ChainID   *big.Int
	From      common.Address
	To        *common.Address
	Value     *big.Int
	Data      []byte
	Nonce     uint64
	Gas       uint64
	GasTipCap *big.Int
	GasFeeCap *big.Int
}

// Prepare fills nonce, gas and fee fields.
// maxFeePerGas = baseFee(pending|latest) + maxPriorityFeePerGas.
func (b *TxBuilder) Prepare(ctx context.Context) (*TxRequest, error) {
	if b.from == nil {
		return nil, errors.New("prepare: from address not set")
	}
	c := b.client
	nonce, err := c.Nonce(ctx, *b.from)
	if err != nil {
		return nil, fmt.Errorf("prepare: nonce: %w", err)
	}

	msg := ethereum.CallMsg{From: *b.from, To: b.to, Value: b.value, Data: b.data}
	est, err := c.EstimateGas(ctx, msg)
	if err != nil {
		return nil, &GasEstimationError{Err: err}
	}
	gas := est
	if b.gas > 0 {
		gas = b.gas
	}

	tip, err := c.TipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare: priority fee: %w", err)
	}
	base, err := c.BaseFee(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare: base fee: %w", err)
	}

	return &TxRequest{
		ChainID:   c.Network.ChainID,
		From:      *b.from,
		To:        b.to,
		Value:     new(big.Int).Set(b.value),
		Data:      b.data,
		Nonce:     nonce,
		Gas:       gas,
		GasTipCap: tip,
		GasFeeCap: new(big.Int).Add(base, tip),
	}, nil
}

// BumpFee multiplies maxFeePerGas by num/den (integer math).
func (r *TxRequest) BumpFee(num, den int64) {
	f := new(big.Int).Mul(r.GasFeeCap, big.NewInt(num))
	r.GasFeeCap = f.Quo(f, big.NewInt(den))
	if r.GasTipCap.Cmp(r.GasFeeCap) > 0 {
		r.GasTipCap = new(big.Int).Set(r.GasFeeCap)
	}
}

// Tx renders the request as an unsigned dynamic-fee transaction.
func (r *TxRequest) Tx() *types.Transaction {
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   r.ChainID,
		Nonce:     r.Nonce,
		Gas:       r.Gas,
		GasTipCap: new(big.Int).Set(r.GasTipCap),
		GasFeeCap: new(big.Int).Set(r.GasFeeCap),
		To:        r.To,
		Value:     new(big.Int).Set(r.Value),
		Data:      r.Data,
	})
}

// Sign transaction with latest signer for given chain ID.
func signTx(tx *types.Transaction, chainID *big.Int, prv *ecdsa.PrivateKey) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), prv)
}
