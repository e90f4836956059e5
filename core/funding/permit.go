package funding

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/core/checks"
)

// permitTypes is the EIP-2612 type set. The domain version is assumed "1";
// tokens that deviate (a few stablecoins use "2") fail signature
// verification on-chain and fall back to the approval path on the next
// attempt.
var permitTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"Permit": {
		{Name: "owner", Type: "address"},
		{Name: "spender", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
	},
}

const permitDomainVersion = "1"

// obtainPermit returns a cached signature for the token or requests a new
// one. Cache hits matter: every miss is a wallet prompt, and retries within
// one interaction must not re-prompt.
func (o *Orchestrator) obtainPermit(ctx context.Context, req Request) (*checks.PermitSignature, error) {
	if cached, ok := o.permits[req.Token]; ok {
		if cached.Amount.Cmp(req.Required) >= 0 && time.Now().Unix() < cached.Deadline.Int64() {
			o.logger.Debug("reusing cached permit", "token", req.Token.Hex())
			return cached, nil
		}
		delete(o.permits, req.Token)
	}

	permit, err := o.signPermit(ctx, req)
	if err != nil {
		return nil, err
	}
	o.permits[req.Token] = permit
	return permit, nil
}

func (o *Orchestrator) signPermit(ctx context.Context, req Request) (*checks.PermitSignature, error) {
	meta, err := o.tokens.Metadata(ctx, req.Token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", SignPermitError, err)
	}
	nonce, err := o.tokens.Nonces(ctx, req.Token, req.Owner)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", SignPermitError, err)
	}

	deadline := big.NewInt(time.Now().Add(o.ttl).Unix())
	domain := &apitypes.TypedDataDomain{
		Name:              meta.Name,
		Version:           permitDomainVersion,
		ChainId:           math.NewHexOrDecimal256(o.signer.ChainID().Int64()),
		VerifyingContract: req.Token.Hex(),
	}
	message := apitypes.TypedDataMessage{
		"owner":    req.Owner.Hex(),
		"spender":  req.Spender.Hex(),
		"value":    req.Required.String(),
		"nonce":    nonce.String(),
		"deadline": deadline.String(),
	}

	sig, err := o.signer.SignTypedData(domain, permitTypes, message, "Permit")
	if err != nil {
		if IsRejection(err) {
			return nil, fmt.Errorf("%s: %w", SignPermitError, ErrPromptRejected)
		}
		return nil, fmt.Errorf("%s: %w", SignPermitError, err)
	}
	if len(sig) != 65 {
		return nil, fmt.Errorf("%s: signature has %d bytes, want 65", SignPermitError, len(sig))
	}

	permit := &checks.PermitSignature{
		Token:    req.Token,
		Amount:   new(big.Int).Set(req.Required),
		Deadline: deadline,
		V:        sig[64],
	}
	copy(permit.R[:], sig[:32])
	copy(permit.S[:], sig[32:64])

	o.logger.Info("permit signed", "token", req.Token.Hex(), "deadline", deadline)
	return permit, nil
}
