package checks

import (
	"errors"
	"fmt"
	"math/big"
)

const (
	DeriveConstraintsError = "failed to derive balance constraints"
)

var (
	// ErrAmbiguousAssetChanges means the simulation reported more than one
	// spent or more than one received token. Multi-leg flows are not
	// modeled; deriving constraints from them would guess, so this fails
	// closed.
	ErrAmbiguousAssetChanges = errors.New("simulation reported multiple spent or multiple received tokens")

	// ErrNoAssetChanges means the simulation saw no balance movement at
	// all, which leaves nothing to constrain.
	ErrNoAssetChanges = errors.New("simulation reported no balance changes")

	// ErrMissingPreBalances means pre/post derivation ran on changes that
	// were never enriched with live pre-call balances.
	ErrMissingPreBalances = errors.New("pre/post constraints need live pre-call balances")
)

// InsufficientBalanceError is raised before submission when the user cannot
// cover the simulated requirement. Not retried; the message carries
// everything the host UI shows.
type InsufficientBalanceError struct {
	Symbol    string
	Required  *big.Int
	Available *big.Int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance: need %s, have %s (short %s)",
		e.Symbol, e.Required, e.Available, e.Shortfall())
}

// Shortfall is the missing amount, always positive.
func (e *InsufficientBalanceError) Shortfall() *big.Int {
	return new(big.Int).Sub(e.Required, e.Available)
}
