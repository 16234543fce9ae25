package lifi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
)

// defaultGasLimit is used when the aggregator omits a gas hint.
const defaultGasLimit = 21_000

// Quote is one aggregator answer, consumed once per swap attempt.
type Quote struct {
	Mode RouteMode
	// FromAmount is the input the route will actually move, in smallest units.
	FromAmount *big.Int
	// ToAmount is the estimated output in destination smallest units.
	ToAmount        decimal.Decimal
	ApprovalAddress common.Address
	Tx              RouteTx
}

// RouteTx is the ready-to-sign call returned with the quote.
type RouteTx struct {
	To       common.Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64
}

type quoteResponse struct {
	Action *struct {
		FromAmount json.RawMessage `json:"fromAmount"`
	} `json:"action"`
	Estimate *struct {
		ToAmount        json.RawMessage `json:"toAmount"`
		ApprovalAddress string          `json:"approvalAddress"`
	} `json:"estimate"`
	TransactionRequest *struct {
		To       string          `json:"to"`
		Data     string          `json:"data"`
		Value    json.RawMessage `json:"value"`
		GasLimit json.RawMessage `json:"gasLimit"`
	} `json:"transactionRequest"`
}

// ParseAmount decodes an amount encoded as a "0x" hex string, a decimal
// string or a bare JSON number.
func ParseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero, err
		}
		s = strings.TrimSpace(s)
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			v, ok := new(big.Int).SetString(s[2:], 16)
			if !ok {
				return decimal.Zero, fmt.Errorf("bad hex amount %q", s)
			}
			return decimal.NewFromBigInt(v, 0), nil
		}
	}
	return decimal.NewFromString(s)
}

func parseUnits(raw json.RawMessage) (*big.Int, error) {
	d, err := ParseAmount(raw)
	if err != nil {
		return nil, err
	}
	if !d.IsInteger() || d.IsNegative() {
		return nil, fmt.Errorf("amount %s is not a non-negative integer", d)
	}
	return d.BigInt(), nil
}

// toQuote validates the fields downstream logic depends on.
func (r *quoteResponse) toQuote(mode RouteMode, requested *big.Int) (*Quote, error) {
	if r.Action == nil || r.Estimate == nil {
		return nil, fmt.Errorf("response lacks action or estimate")
	}
	if r.TransactionRequest == nil {
		return nil, fmt.Errorf("response lacks transactionRequest")
	}
	q := &Quote{Mode: mode, FromAmount: new(big.Int).Set(requested)}

	if len(r.Action.FromAmount) > 0 {
		v, err := parseUnits(r.Action.FromAmount)
		if err != nil {
			return nil, fmt.Errorf("action.fromAmount: %w", err)
		}
		q.FromAmount = v
	}
	if len(r.Estimate.ToAmount) > 0 {
		v, err := ParseAmount(r.Estimate.ToAmount)
		if err != nil {
			return nil, fmt.Errorf("estimate.toAmount: %w", err)
		}
		q.ToAmount = v
	}
	if r.Estimate.ApprovalAddress != "" {
		if !common.IsHexAddress(r.Estimate.ApprovalAddress) {
			return nil, fmt.Errorf("estimate.approvalAddress %q is not an address", r.Estimate.ApprovalAddress)
		}
		q.ApprovalAddress = common.HexToAddress(r.Estimate.ApprovalAddress)
	}

	tr := r.TransactionRequest
	if !common.IsHexAddress(tr.To) {
		return nil, fmt.Errorf("transactionRequest.to %q is not an address", tr.To)
	}
	data, err := hexutil.Decode(tr.Data)
	if err != nil {
		return nil, fmt.Errorf("transactionRequest.data: %w", err)
	}
	q.Tx = RouteTx{To: common.HexToAddress(tr.To), Data: data, Value: new(big.Int), GasLimit: defaultGasLimit}
	if len(tr.Value) > 0 {
		if q.Tx.Value, err = parseUnits(tr.Value); err != nil {
			return nil, fmt.Errorf("transactionRequest.value: %w", err)
		}
	}
	if len(tr.GasLimit) > 0 {
		g, err := parseUnits(tr.GasLimit)
		if err != nil || !g.IsUint64() {
			return nil, fmt.Errorf("transactionRequest.gasLimit: bad value %s", tr.GasLimit)
		}
		q.Tx.GasLimit = g.Uint64()
	}
	return q, nil
}

// Output converts the estimated output to a human amount.
func (q *Quote) Output(decimals int32) decimal.Decimal {
	return q.ToAmount.Shift(-decimals)
}
