package funding

import (
	"errors"
	"strings"
)

const (
	FundInputTokenError  = "failed to fund the input token"
	SignPermitError      = "failed to obtain a permit signature"
	SubmitApprovalError  = "failed to submit the approval transaction"
	ConfirmApprovalError = "approval transaction was not confirmed"
)

var (
	// ErrApprovalReverted means the on-chain approval transaction was mined
	// but reverted. Nothing downstream can run without spend authority, so
	// the attempt aborts.
	ErrApprovalReverted = errors.New("approval transaction reverted on-chain")

	// ErrPromptRejected marks a wallet prompt the user declined. Hosts show
	// it differently from a technical failure; signing clients should return
	// it (or wrap it) when the user says no.
	ErrPromptRejected = errors.New("signing request rejected by user")
)

// rejectionMarkers are the phrases wallets put into their decline errors.
// JSON-RPC error 4001 is the EIP-1193 user-rejected code.
var rejectionMarkers = []string{
	"user denied",
	"user rejected",
	"rejected by user",
	"request rejected",
	"4001",
}

// IsRejection reports whether err is a user declining a prompt rather than a
// technical failure. It recognizes both the ErrPromptRejected sentinel and
// the wording of common wallet errors.
func IsRejection(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPromptRejected) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range rejectionMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
