package chain

import (
	"crypto/ecdsa"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

var gwei = decimal.New(1, 9)

// GweiToWei converts a fractional gwei value (as configured for ceilings) to wei.
func GweiToWei(g float64) *big.Int {
	return decimal.NewFromFloat(g).Mul(gwei).Floor().BigInt()
}

// FmtGwei renders wei as gwei with two decimals.
func FmtGwei(x *big.Int) string {
	if x == nil {
		return "0"
	}
	r := new(big.Rat).SetFrac(new(big.Int).Set(x), big.NewInt(1_000_000_000))
	return r.FloatString(2)
}

// FmtETH renders wei as a native amount with six decimals.
func FmtETH(x *big.Int) string {
	if x == nil {
		return "0"
	}
	r := new(big.Rat).SetFrac(new(big.Int).Set(x), big.NewInt(1_000_000_000_000_000_000))
	return r.FloatString(6)
}

// ParseKey parses a hex ECDSA private key (with / without 0x) and derives its address.
func ParseKey(s string) (*ecdsa.PrivateKey, common.Address, error) {
	h := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if len(h) == 0 {
		return nil, common.Address{}, errors.New("empty private key")
	}
	prv, err := gethcrypto.HexToECDSA(h)
	if err != nil {
		return nil, common.Address{}, err
	}
	return prv, gethcrypto.PubkeyToAddress(prv.PublicKey), nil
}
