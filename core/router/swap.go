package router

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Recipient sentinels understood by the router.
var (
	// SenderSentinel resolves to the router caller. Through the proxy that is
	// the proxy contract, not the end user.
	SenderSentinel = common.HexToAddress("0x0000000000000000000000000000000000000001")
	// RouterSentinel keeps funds at the router so later commands can consume
	// them.
	RouterSentinel = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

// SwapParameters is the decoded input of a flat swap command. Amount is the
// exact side, AmountBound the limit on the other side. Exactly one of Path
// and PathTokens is set, matching the variant's tail shape.
type SwapParameters struct {
	Recipient     common.Address
	Amount        *big.Int
	AmountBound   *big.Int
	Path          []byte
	PathTokens    []common.Address
	PayerIsCaller bool
}

// packedPathTokens extracts the token hops of a packed fee path: 20-byte
// token, 3-byte fee tier, 20-byte token, and so on.
func packedPathTokens(path []byte) []common.Address {
	const hop = 23 // token + fee tier
	if len(path) < common.AddressLength {
		return nil
	}
	tokens := []common.Address{common.BytesToAddress(path[:common.AddressLength])}
	for pos := common.AddressLength + 3; pos+common.AddressLength <= len(path); pos += hop {
		tokens = append(tokens, common.BytesToAddress(path[pos:pos+common.AddressLength]))
	}
	return tokens
}

// Tokens returns the swap's token hops in path order, regardless of variant.
func (p *SwapParameters) Tokens() []common.Address {
	if p.PathTokens != nil {
		return p.PathTokens
	}
	return packedPathTokens(p.Path)
}

// DecodeSwap decodes the input of a flat swap command. It fails when the
// blob does not match the variant's layout; the caller then leaves the input
// untouched.
func DecodeSwap(op Op, input []byte) (*SwapParameters, error) {
	l, ok := layoutByOp[op]
	if !ok {
		return nil, ErrNotSwapCommand
	}
	dec, err := l.decode(input)
	if err != nil {
		return nil, err
	}

	params := &SwapParameters{
		Recipient:     dec.addresses["recipient"],
		PayerIsCaller: dec.bools["payerIsCaller"],
		Path:          dec.tailBytes,
		PathTokens:    dec.tailAddrs,
	}
	// Slot order fixes which amount is exact: slot 1 is always the exact
	// side, slot 2 the bound.
	params.Amount = dec.amounts[l.fields[1].name]
	params.AmountBound = dec.amounts[l.fields[2].name]
	return params, nil
}

// RewriteSwap returns a copy of input with the recipient replaced and
// payer-is-caller forced false. The path tail keeps its exact bytes. Decode
// failures leave nothing to patch and surface to the caller.
func RewriteSwap(op Op, input []byte, recipient common.Address) ([]byte, error) {
	l, ok := layoutByOp[op]
	if !ok {
		return nil, ErrNotSwapCommand
	}
	if _, err := l.decode(input); err != nil {
		return nil, err
	}
	return l.patch(input,
		map[string]common.Address{"recipient": recipient},
		map[string]bool{"payerIsCaller": false},
	), nil
}
