package proxy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	EncodeProxyCallError = "failed to encode proxy call"
	DecodeRevertError    = "failed to decode proxy revert"
)

var (
	// ErrStaleConstraints means the CheckSet was derived for a different
	// (target, data, value) triple than the one being encoded. The caller
	// must re-derive, never encode anyway.
	ErrStaleConstraints = errors.New("constraints were derived for a different transaction")

	// ErrUnknownRevert means the revert data matched none of the proxy's
	// typed errors and carried no standard reason string.
	ErrUnknownRevert = errors.New("proxy call reverted without a recognizable reason")
)

// RevertError is a decoded typed revert from the proxy contract. Shown to
// users verbatim where possible.
type RevertError struct {
	Name string
	Args []interface{}
}

func (e *RevertError) Error() string {
	if len(e.Args) == 0 {
		return e.Name
	}
	parts := make([]string, len(e.Args))
	for i, a := range e.Args {
		parts[i] = fmt.Sprintf("%v", a)
	}
	return fmt.Sprintf("%s(%s)", e.Name, strings.Join(parts, ", "))
}

// DecodeRevert maps raw revert data onto one of the proxy's typed errors,
// falling back to the standard Error(string) reason.
func DecodeRevert(data []byte) error {
	if len(data) < 4 {
		return ErrUnknownRevert
	}

	var selector [4]byte
	copy(selector[:], data[:4])

	if typed, err := proxyABI.ErrorByID(selector); err == nil {
		args, unpackErr := typed.Inputs.Unpack(data[4:])
		if unpackErr != nil {
			return fmt.Errorf("%s: %s: %w", DecodeRevertError, typed.Name, unpackErr)
		}
		return &RevertError{Name: typed.Name, Args: args}
	}

	if reason, err := abi.UnpackRevert(data); err == nil {
		return &RevertError{Name: "Error", Args: []interface{}{reason}}
	}

	return ErrUnknownRevert
}
