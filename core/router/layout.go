package router

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const slotSize = 32

// fieldKind says how one 32-byte head slot is interpreted.
type fieldKind uint8

const (
	kindAddress fieldKind = iota
	kindUint256
	kindBool
	kindOffset // pointer to the variable-length tail
)

// tailKind says what the variable section holds.
type tailKind uint8

const (
	tailPackedPath   tailKind = iota // length-prefixed packed token/fee path
	tailAddressArray                 // count-prefixed array of address slots
)

type field struct {
	name string
	kind fieldKind
}

// layout is the declarative description of one flat swap-input shape: named
// head slots in wire order plus the tail interpretation. One decode and one
// patch routine consume every layout; there is no per-variant slicing code.
type layout struct {
	name   string
	fields []field
	tail   tailKind
}

// The four flat variants share slot geometry and differ only in amount
// naming and tail shape.
var (
	v3ExactInLayout = layout{
		name: "v3 exact-in swap",
		fields: []field{
			{"recipient", kindAddress},
			{"amountIn", kindUint256},
			{"amountOutMin", kindUint256},
			{"path", kindOffset},
			{"payerIsCaller", kindBool},
		},
		tail: tailPackedPath,
	}
	v3ExactOutLayout = layout{
		name: "v3 exact-out swap",
		fields: []field{
			{"recipient", kindAddress},
			{"amountOut", kindUint256},
			{"amountInMax", kindUint256},
			{"path", kindOffset},
			{"payerIsCaller", kindBool},
		},
		tail: tailPackedPath,
	}
	v2ExactInLayout = layout{
		name: "v2 exact-in swap",
		fields: []field{
			{"recipient", kindAddress},
			{"amountIn", kindUint256},
			{"amountOutMin", kindUint256},
			{"path", kindOffset},
			{"payerIsCaller", kindBool},
		},
		tail: tailAddressArray,
	}
	v2ExactOutLayout = layout{
		name: "v2 exact-out swap",
		fields: []field{
			{"recipient", kindAddress},
			{"amountOut", kindUint256},
			{"amountInMax", kindUint256},
			{"path", kindOffset},
			{"payerIsCaller", kindBool},
		},
		tail: tailAddressArray,
	}
)

var layoutByOp = map[Op]layout{
	OpV3SwapExactIn:  v3ExactInLayout,
	OpV3SwapExactOut: v3ExactOutLayout,
	OpV2SwapExactIn:  v2ExactInLayout,
	OpV2SwapExactOut: v2ExactOutLayout,
}

func layoutMismatch(l layout, format string, args ...interface{}) error {
	return fmt.Errorf("%s: %s: %s", LayoutMismatchError, l.name, fmt.Sprintf(format, args...))
}

func (l layout) headLen() int {
	return len(l.fields) * slotSize
}

// decodedInput holds the interpreted head values plus the located tail.
type decodedInput struct {
	addresses map[string]common.Address
	amounts   map[string]*big.Int
	bools     map[string]bool

	tailOffset int // absolute offset of the length/count word
	tailBytes  []byte
	tailAddrs  []common.Address
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// decode validates input against the layout and extracts every field. A
// failure here means the blob was not produced by the assumed encoder and
// must not be patched.
func (l layout) decode(input []byte) (*decodedInput, error) {
	if len(input) < l.headLen() {
		return nil, layoutMismatch(l, "input has %d bytes, head needs %d", len(input), l.headLen())
	}

	out := &decodedInput{
		addresses:  map[string]common.Address{},
		amounts:    map[string]*big.Int{},
		bools:      map[string]bool{},
		tailOffset: -1,
	}

	for i, f := range l.fields {
		slot := input[i*slotSize : (i+1)*slotSize]
		switch f.kind {
		case kindAddress:
			if !allZero(slot[:12]) {
				return nil, layoutMismatch(l, "field %s has non-zero address padding", f.name)
			}
			out.addresses[f.name] = common.BytesToAddress(slot[12:])
		case kindUint256:
			out.amounts[f.name] = new(big.Int).SetBytes(slot)
		case kindBool:
			if !allZero(slot[:31]) || slot[31] > 1 {
				return nil, layoutMismatch(l, "field %s is not a canonical bool", f.name)
			}
			out.bools[f.name] = slot[31] == 1
		case kindOffset:
			if !allZero(slot[:28]) {
				return nil, layoutMismatch(l, "field %s offset does not fit", f.name)
			}
			offset := int(new(big.Int).SetBytes(slot).Int64())
			if offset < l.headLen() || offset+slotSize > len(input) {
				return nil, layoutMismatch(l, "field %s offset %d out of range", f.name, offset)
			}
			out.tailOffset = offset
		}
	}

	if out.tailOffset >= 0 {
		if err := l.decodeTail(input, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (l layout) decodeTail(input []byte, out *decodedInput) error {
	lengthWord := input[out.tailOffset : out.tailOffset+slotSize]
	if !allZero(lengthWord[:28]) {
		return layoutMismatch(l, "tail length does not fit")
	}
	n := int(new(big.Int).SetBytes(lengthWord).Int64())
	body := out.tailOffset + slotSize

	switch l.tail {
	case tailPackedPath:
		if body+n > len(input) {
			return layoutMismatch(l, "path of %d bytes exceeds input", n)
		}
		out.tailBytes = input[body : body+n]
	case tailAddressArray:
		if body+n*slotSize > len(input) {
			return layoutMismatch(l, "address array of %d elements exceeds input", n)
		}
		addrs := make([]common.Address, n)
		for i := 0; i < n; i++ {
			slot := input[body+i*slotSize : body+(i+1)*slotSize]
			if !allZero(slot[:12]) {
				return layoutMismatch(l, "path element %d has non-zero address padding", i)
			}
			addrs[i] = common.BytesToAddress(slot[12:])
		}
		out.tailAddrs = addrs
	}
	return nil
}

// patch returns a copy of input with the named address and bool fields
// replaced in place. Everything else, the tail above all, keeps its exact
// bytes. decode must have succeeded on the same input first.
func (l layout) patch(input []byte, addresses map[string]common.Address, bools map[string]bool) []byte {
	out := make([]byte, len(input))
	copy(out, input)

	for i, f := range l.fields {
		slot := out[i*slotSize : (i+1)*slotSize]
		switch f.kind {
		case kindAddress:
			if addr, ok := addresses[f.name]; ok {
				for j := 0; j < 12; j++ {
					slot[j] = 0
				}
				copy(slot[12:], addr.Bytes())
			}
		case kindBool:
			if v, ok := bools[f.name]; ok {
				for j := range slot {
					slot[j] = 0
				}
				if v {
					slot[31] = 1
				}
			}
		}
	}
	return out
}
