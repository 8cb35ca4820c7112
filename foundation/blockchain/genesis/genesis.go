// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"os"
	"time"
)

// Genesis represents the genesis file.
type Genesis struct {
	Date          time.Time         `json:"date"`
	ChainID       uint16            `json:"chain_id"`        // Unique id for this running network.
	Difficulty    uint64            `json:"difficulty"`      // Base mining difficulty. Leading zeros required is difficulty/1000.
	MiningReward  uint64            `json:"mining_reward"`   // Reward in the smallest unit for mining a block.
	TransPerBlock int               `json:"trans_per_block"` // Maximum number of transactions that can be in a block.
	MaxBlockBytes int               `json:"max_block_bytes"` // Maximum byte size of the transactions in a block.
	MaxTxBytes    int               `json:"max_tx_bytes"`    // Maximum byte size of a single transaction.
	MaxMempool    int               `json:"max_mempool"`     // Maximum number of transactions held in the mempool.
	MinFeeRate    float64           `json:"min_fee_rate"`    // Network floor for the fee rate in units per byte.
	Balances      map[string]uint64 `json:"balances"`        // Initial balances paid out by the genesis coinbase.
}

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// Save writes the genesis file to the specified path.
func Save(path string, genesis Genesis) error {
	data, err := json.MarshalIndent(genesis, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
