// Package signature provides helper functions for hashing ledger content
// and for generating development keys and addresses.
package signature

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/json"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ZeroHash represents a hash code of zeros. It is used as the previous
// block hash of the genesis block and as the hash of nothing.
const ZeroHash string = "0x0000000000000000000000000000000000000000000000000000000000000000"

// HashLen is the length of a hex encoded hash with its 0x prefix.
const HashLen = 66

// Hash returns a unique hash string for the value. The value is encoded
// with the standard JSON encoder so the digest is deterministic for a
// given set of field values.
func Hash(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return ZeroHash
	}

	hash := sha256.Sum256(data)
	return hexutil.Encode(hash[:])
}

// IsWellFormed validates a hash string is the proper length and hex encoded.
func IsWellFormed(hash string) bool {
	if len(hash) != HashLen || !strings.HasPrefix(hash, "0x") {
		return false
	}

	if _, err := hexutil.Decode(hash); err != nil {
		return false
	}

	return true
}

// LeadingZeros counts the number of zero hex digits at the front of the
// hash after the 0x prefix. It is the quantity proof of work is measured in.
func LeadingZeros(hash string) int {
	if !strings.HasPrefix(hash, "0x") {
		return 0
	}

	var count int
	for _, r := range hash[2:] {
		if r != '0' {
			break
		}
		count++
	}

	return count
}

// =============================================================================
// Development key support. Production wallets own their own keys; these
// helpers exist for tooling and test data generation only.

// GenerateKey constructs a new ECDSA private key.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	return crypto.GenerateKey()
}

// Address derives the hex encoded address for the specified private key.
func Address(privateKey *ecdsa.PrivateKey) string {
	return crypto.PubkeyToAddress(privateKey.PublicKey).String()
}

// LoadKey reads an ECDSA private key from the specified file.
func LoadKey(path string) (*ecdsa.PrivateKey, error) {
	return crypto.LoadECDSA(path)
}

// SaveKey writes an ECDSA private key to the specified file.
func SaveKey(path string, privateKey *ecdsa.PrivateKey) error {
	return crypto.SaveECDSA(path, privateKey)
}
