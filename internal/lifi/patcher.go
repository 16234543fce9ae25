package lifi

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const (
	DefaultIntegrator = "lifi-api"
	OwnIntegrator     = "jumper.exchange"
)

// PayloadDecodeError means the route calldata does not have the expected shape.
// The swap must abort: the unpatched payload carries a stale amount.
type PayloadDecodeError struct {
	Err error
}

func (e *PayloadDecodeError) Error() string { return "payload decode: " + e.Err.Error() }
func (e *PayloadDecodeError) Unwrap() error { return e.Err }

// BridgeData is the bridge-identification tuple of a Stargate route call.
type BridgeData struct {
	TransactionID      [32]byte       `abi:"transactionId"`
	Bridge             string         `abi:"bridge"`
	Integrator         string         `abi:"integrator"`
	Referrer           common.Address `abi:"referrer"`
	SendingAssetID     common.Address `abi:"sendingAssetId"`
	Receiver           common.Address `abi:"receiver"`
	MinAmount          *big.Int       `abi:"minAmount"`
	DestinationChainID *big.Int       `abi:"destinationChainId"`
	HasSourceSwaps     bool           `abi:"hasSourceSwaps"`
	HasDestinationCall bool           `abi:"hasDestinationCall"`
}

// SendParams is the LayerZero send record nested in StargateData.
type SendParams struct {
	DstEid       uint32   `abi:"dstEid"`
	To           [32]byte `abi:"to"`
	AmountLD     *big.Int `abi:"amountLD"`
	MinAmountLD  *big.Int `abi:"minAmountLD"`
	ExtraOptions []byte   `abi:"extraOptions"`
	ComposeMsg   []byte   `abi:"composeMsg"`
	// OftCmd selects taxi (empty) or bus mode.
	OftCmd []byte `abi:"oftCmd"`
}

type MessagingFee struct {
	NativeFee  *big.Int `abi:"nativeFee"`
	LzTokenFee *big.Int `abi:"lzTokenFee"`
}

type StargateData struct {
	AssetID       uint16         `abi:"assetId"`
	SendParams    SendParams     `abi:"sendParams"`
	Fee           MessagingFee   `abi:"fee"`
	RefundAddress common.Address `abi:"refundAddress"`
}

// RouteCall is the decoded argument list of a Stargate route call.
type RouteCall struct {
	Selector [4]byte
	Bridge   BridgeData   `abi:"bridgeData"`
	Stargate StargateData `abi:"stargateData"`
}

var routeArgs abi.Arguments

func init() {
	bridgeT, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "transactionId", Type: "bytes32"},
		{Name: "bridge", Type: "string"},
		{Name: "integrator", Type: "string"},
		{Name: "referrer", Type: "address"},
		{Name: "sendingAssetId", Type: "address"},
		{Name: "receiver", Type: "address"},
		{Name: "minAmount", Type: "uint256"},
		{Name: "destinationChainId", Type: "uint256"},
		{Name: "hasSourceSwaps", Type: "bool"},
		{Name: "hasDestinationCall", Type: "bool"},
	})
	if err != nil {
		panic(err)
	}
	stargateT, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "assetId", Type: "uint16"},
		{Name: "sendParams", Type: "tuple", Components: []abi.ArgumentMarshaling{
			{Name: "dstEid", Type: "uint32"},
			{Name: "to", Type: "bytes32"},
			{Name: "amountLD", Type: "uint256"},
			{Name: "minAmountLD", Type: "uint256"},
			{Name: "extraOptions", Type: "bytes"},
			{Name: "composeMsg", Type: "bytes"},
			{Name: "oftCmd", Type: "bytes"},
		}},
		{Name: "fee", Type: "tuple", Components: []abi.ArgumentMarshaling{
			{Name: "nativeFee", Type: "uint256"},
			{Name: "lzTokenFee", Type: "uint256"},
		}},
		{Name: "refundAddress", Type: "address"},
	})
	if err != nil {
		panic(err)
	}
	routeArgs = abi.Arguments{
		{Name: "bridgeData", Type: bridgeT},
		{Name: "stargateData", Type: stargateT},
	}
}

// Decode splits calldata into selector and the two route tuples.
func Decode(data []byte) (*RouteCall, error) {
	if len(data) < 4 {
		return nil, &PayloadDecodeError{Err: fmt.Errorf("calldata too short (%d bytes)", len(data))}
	}
	vals, err := routeArgs.Unpack(data[4:])
	if err != nil {
		return nil, &PayloadDecodeError{Err: err}
	}
	var rc RouteCall
	if err := routeArgs.Copy(&rc, vals); err != nil {
		return nil, &PayloadDecodeError{Err: err}
	}
	copy(rc.Selector[:], data[:4])
	return &rc, nil
}

// Encode renders the call back to calldata with the decoded selector.
func (rc *RouteCall) Encode() ([]byte, error) {
	packed, err := routeArgs.Pack(rc.Bridge, rc.Stargate)
	if err != nil {
		return nil, &PayloadDecodeError{Err: err}
	}
	return append(rc.Selector[:], packed...), nil
}

// Patcher rewrites route calldata so it carries this tool's label and the
// amount the route will actually move.
type Patcher struct {
	DefaultLabel string
	Label        string
}

func NewPatcher() *Patcher {
	return &Patcher{DefaultLabel: DefaultIntegrator, Label: OwnIntegrator}
}

// Patch returns the calldata to submit for mode. Random routes pass through
// untouched; fast and slow routes are decoded and rewritten.
func (p *Patcher) Patch(mode RouteMode, data []byte, amount *big.Int) ([]byte, error) {
	switch mode {
	case RouteRandom:
		return common.CopyBytes(data), nil
	case RouteFast, RouteSlow:
		return p.patchStargate(data, amount)
	}
	return nil, &PayloadDecodeError{Err: fmt.Errorf("unknown route mode %d", int(mode))}
}

func (p *Patcher) patchStargate(data []byte, amount *big.Int) ([]byte, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, &PayloadDecodeError{Err: errors.New("amount must be non-negative")}
	}
	rc, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if rc.Bridge.Integrator == p.DefaultLabel {
		rc.Bridge.Integrator = p.Label
	}
	rc.Bridge.MinAmount = new(big.Int).Set(amount)
	rc.Stargate.SendParams.AmountLD = new(big.Int).Set(amount)
	rc.Stargate.SendParams.OftCmd = []byte{0}
	return rc.Encode()
}
