package simulation

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// generousBalance is 100 ETH, handed to the simulated sender so gas and
// value checks never fail a dry run for funding reasons.
var generousBalance, _ = new(big.Int).SetString("56BC75E2D63100000", 16)

// GenerousBalanceOverride gives the address a 100-ETH balance for the run.
func GenerousBalanceOverride(addr common.Address) Overrides {
	return Overrides{addr: {Balance: new(big.Int).Set(generousBalance)}}
}

// BalancesSlot computes the storage key of m[holder] for a Solidity mapping
// at the given slot index: keccak256 of the raw 20-byte holder address
// concatenated with the 32-byte slot number.
func BalancesSlot(holder common.Address, slot uint64) common.Hash {
	slotWord := make([]byte, 32)
	new(big.Int).SetUint64(slot).FillBytes(slotWord)
	return common.BytesToHash(crypto.Keccak256(append(holder.Bytes(), slotWord...)))
}

// WithTokenBalance adds a storage override that fakes an ERC-20 balance for
// holder under the token contract, assuming its balances mapping lives at
// the given slot index. Wrong guesses are survivable: the client retries
// without storage overrides when the backend rejects them.
func (o Overrides) WithTokenBalance(token, holder common.Address, slot uint64, amount *big.Int) Overrides {
	override := o[token]
	if override.Storage == nil {
		override.Storage = map[common.Hash]common.Hash{}
	}
	override.Storage[BalancesSlot(holder, slot)] = common.BigToHash(amount)
	o[token] = override
	return o
}

// Merge folds other into o, address by address. Storage maps are unioned;
// a balance in other wins.
func (o Overrides) Merge(other Overrides) Overrides {
	for addr, incoming := range other {
		current := o[addr]
		if incoming.Balance != nil {
			current.Balance = incoming.Balance
		}
		if len(incoming.Storage) > 0 {
			if current.Storage == nil {
				current.Storage = map[common.Hash]common.Hash{}
			}
			for k, v := range incoming.Storage {
				current.Storage[k] = v
			}
		}
		o[addr] = current
	}
	return o
}

// encodeStateObjects renders overrides in the HTTP API's state_objects
// shape.
func encodeStateObjects(overrides Overrides) map[string]interface{} {
	objects := make(map[string]interface{}, len(overrides))
	for addr, override := range overrides {
		entry := map[string]interface{}{}
		if override.Balance != nil {
			entry["balance"] = hexutil.EncodeBig(override.Balance)
		}
		if len(override.Storage) > 0 {
			storage := make(map[string]interface{}, len(override.Storage))
			for k, v := range override.Storage {
				storage[k.Hex()] = v.Hex()
			}
			entry["storage"] = storage
		}
		objects[strings.ToLower(addr.Hex())] = entry
	}
	return objects
}

// encodeRPCOverrides renders overrides in the gateway's third-parameter
// shape, which uses stateDiff for storage writes.
func encodeRPCOverrides(overrides Overrides) map[string]interface{} {
	objects := make(map[string]interface{}, len(overrides))
	for addr, override := range overrides {
		entry := map[string]interface{}{}
		if override.Balance != nil {
			entry["balance"] = hexutil.EncodeBig(override.Balance)
		}
		if len(override.Storage) > 0 {
			diff := make(map[string]interface{}, len(override.Storage))
			for k, v := range override.Storage {
				diff[k.Hex()] = v.Hex()
			}
			entry["stateDiff"] = diff
		}
		objects[strings.ToLower(addr.Hex())] = entry
	}
	return objects
}

// stripStorage drops the storage part of every override, keeping balances.
func stripStorage(overrides Overrides) Overrides {
	stripped := make(Overrides, len(overrides))
	for addr, override := range overrides {
		if override.Balance == nil {
			continue
		}
		stripped[addr] = StateOverride{Balance: override.Balance}
	}
	return stripped
}
