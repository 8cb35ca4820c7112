package ledger

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"runtime"
	"time"
)

// MineArgs carries everything needed to search for the next block.
type MineArgs struct {
	Height         uint64
	PrevBlockHash  string
	Difficulty     uint64
	Trans          []Tx
	EvHandler      EventHandler
	Report         func(attempts uint64, elapsed time.Duration)
	ReportInterval time.Duration
}

// Mine constructs a candidate block and searches for a nonce whose hash
// carries the required number of leading zeros. The search is cooperative:
// it honors context cancellation between attempts and yields periodically
// so it never starves other goroutines on a busy scheduler.
func Mine(ctx context.Context, args MineArgs) (Block, error) {
	ev := func(v string, a ...any) {
		if args.EvHandler != nil {
			args.EvHandler(v, a...)
		}
	}

	nb := Block{
		Header: BlockHeader{
			Height:        args.Height,
			PrevBlockHash: args.PrevBlockHash,
			TimeStamp:     uint64(time.Now().UTC().Unix()),
			Difficulty:    args.Difficulty,
			MerkleRoot:    MerkleRoot(args.Trans),
		},
		Trans: args.Trans,
	}

	// Random starting point so competing miners walk different nonce
	// ranges, then increment by one per attempt.
	nBig, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return Block{}, err
	}
	nb.Header.Nonce = nBig.Uint64()

	ev("ledger: Mine: blk[%d]: started: zeros required[%d]", args.Height, RequiredZeros(args.Difficulty))

	interval := args.ReportInterval
	if interval <= 0 {
		interval = time.Second
	}

	var attempts uint64
	started := time.Now()
	lastReport := started

	for {
		attempts++

		if attempts%100_000 == 0 {
			runtime.Gosched()
		}

		if attempts%4096 == 0 {
			if args.Report != nil && time.Since(lastReport) >= interval {
				args.Report(attempts, time.Since(started))
				lastReport = time.Now()
			}
		}

		if ctx.Err() != nil {
			ev("ledger: Mine: blk[%d]: cancelled: attempts[%d]", args.Height, attempts)
			return Block{}, ctx.Err()
		}

		hash := nb.Hash()
		if !IsSolved(nb.Header.Difficulty, hash) {
			nb.Header.Nonce++
			continue
		}

		ev("ledger: Mine: blk[%d]: solved: %s: attempts[%d]", args.Height, hash, attempts)

		if args.Report != nil {
			args.Report(attempts, time.Since(started))
		}

		return nb, nil
	}
}
