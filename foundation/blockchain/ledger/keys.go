package ledger

import (
	"encoding/binary"
	"fmt"
)

// The ledger lays out five logical tables inside one key space:
//
//	b/<height>              block by height
//	h/<hash>                block hash to height pointer
//	t/<txid>                transaction with its confirmation height
//	u/<txid>/<index>        unspent output
//	a/<addr>/<txid>/<index> address to utxo key index
//	m/...                   chain metadata
var (
	prefixBlock   = []byte("b/")
	prefixHash    = []byte("h/")
	prefixTx      = []byte("t/")
	prefixUTXO    = []byte("u/")
	prefixAddress = []byte("a/")

	keyFormat = []byte("m/format")
	keyHeight = []byte("m/height")
)

// formatVersion stamps the key space so a mismatched database is
// detected on open instead of decoding garbage.
const formatVersion = "kobalt/1"

func blockKey(height uint64) []byte {
	key := make([]byte, 0, len(prefixBlock)+8)
	key = append(key, prefixBlock...)
	return binary.BigEndian.AppendUint64(key, height)
}

func hashKey(hash string) []byte {
	return append(append([]byte(nil), prefixHash...), hash...)
}

func txKey(txid string) []byte {
	return append(append([]byte(nil), prefixTx...), txid...)
}

func utxoKey(txid string, index uint32) []byte {
	return fmt.Appendf(nil, "%s%s/%d", prefixUTXO, txid, index)
}

func addressKey(address string, txid string, index uint32) []byte {
	return fmt.Appendf(nil, "%s%s/%s/%d", prefixAddress, address, txid, index)
}

func addressPrefix(address string) []byte {
	return fmt.Appendf(nil, "%s%s/", prefixAddress, address)
}

func encodeHeight(height uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, height)
}

func decodeHeight(value []byte) (uint64, error) {
	if len(value) != 8 {
		return 0, fmt.Errorf("height value is %d bytes: %w", len(value), ErrBadFormat)
	}

	return binary.BigEndian.Uint64(value), nil
}
