package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/ligun0805/bridge-runner/internal/networks"
)

// Account is a signing key bound to one network client.
type Account struct {
	Address common.Address
	key     *ecdsa.PrivateKey
	client  *Client
}

func NewAccount(c *Client, key *ecdsa.PrivateKey) *Account {
	return &Account{Address: gethcrypto.PubkeyToAddress(key.PublicKey), key: key, client: c}
}

func (a *Account) Client() *Client { return a.client }

// NewTx starts a draft sent from this account.
func (a *Account) NewTx() *TxBuilder { return a.client.NewTx().AddFrom(a.Address) }

// Commit refreshes the nonce, signs and broadcasts req.
// The nonce is read right before signing with no reservation, so callers must
// never have two submissions of the same account in flight.
func (a *Account) Commit(ctx context.Context, req *TxRequest) (common.Hash, error) {
	nonce, err := a.client.Nonce(ctx, a.Address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("commit: nonce: %w", err)
	}
	req.Nonce = nonce
	signed, err := signTx(req.Tx(), req.ChainID, a.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("commit: sign: %w", err)
	}
	return a.client.Broadcast(ctx, signed)
}

// Balance reads this account's balance of token.
func (a *Account) Balance(ctx context.Context, token networks.Token) (*big.Int, error) {
	return a.client.Balance(ctx, a.Address, token)
}

func (a *Account) Allowance(ctx context.Context, token, spender common.Address) (*big.Int, error) {
	return a.client.Allowance(ctx, token, a.Address, spender)
}

// Approve submits approve(spender, amount) and returns the tx hash without waiting.
func (a *Account) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	data, err := EncodeApprove(spender, amount)
	if err != nil {
		return common.Hash{}, err
	}
	req, err := a.NewTx().AddTo(token).AddData(data).Prepare(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("approve: %w", err)
	}
	return a.Commit(ctx, req)
}
