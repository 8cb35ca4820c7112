package ledger

import "errors"

// Error kinds the ledger reports. Callers branch with errors.Is; storage
// errors wrap ErrStorage so I/O failures stay distinguishable from
// validation failures.
var (
	ErrNotFound       = errors.New("not found")
	ErrEmptyChain     = errors.New("chain has no blocks")
	ErrUTXOSpent      = errors.New("utxo missing or already spent")
	ErrHeightMismatch = errors.New("block height is not the next height")
	ErrInvalidBlock   = errors.New("block content is invalid")
	ErrBadFormat      = errors.New("storage format mismatch")
	ErrStorage        = errors.New("storage failure")
)
