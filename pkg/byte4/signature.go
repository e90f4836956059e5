package byte4

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Selector returns the 4-byte method id at the front of calldata.
func Selector(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("invalid selector length: %d", len(data))
	}
	return data[:4], nil
}

// GetMethodFromCalldata returns the ABI method whose id matches the first
// four bytes of data. Matching compares the precomputed method id, so
// overloaded methods (which the ABI stores under suffixed names) resolve to
// the correct variant.
func GetMethodFromCalldata(parsedABI abi.ABI, data []byte) (*abi.Method, error) {
	methodID, err := Selector(data)
	if err != nil {
		return nil, err
	}

	for name := range parsedABI.Methods {
		method := parsedABI.Methods[name]
		if bytes.Equal(method.ID, methodID) {
			return &method, nil
		}
	}

	return nil, fmt.Errorf("no matching method found for selector: 0x%x", methodID)
}
