// Package rscodec wraps klauspost/reedsolomon as an independent classic
// (n,k) shard erasure code, used by the loss-simulation harness as a
// reference: it codes batches of the same injected symbols under a separate
// loss trace, so its recovery rate is reported next to the network-coding
// decoder's.
//
// It intentionally does not participate in the GF(2^w) core: reedsolomon's
// public API is fixed at GF(2^8) and shard-oriented (whole equal-length
// blocks), with no exposed primitive for "multiply an arbitrary-width field
// element across a byte region" — the operation field.Field.MultiplyRegion
// provides. See DESIGN.md for the full account of why this dependency
// could not serve the core's field arithmetic.
package rscodec

import (
	"fmt"

	"github.com/klauspost/reedsolomon"
)

// Codec cross-checks a batch of source shards against parity shards using
// classic Reed-Solomon, independent of the network-coding path.
type Codec struct {
	enc       reedsolomon.Encoder
	dataShards int
	parity    int
}

// New builds a Codec with dataShards data shards and parityShards parity
// shards.
func New(dataShards, parityShards int) (*Codec, error) {
	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, fmt.Errorf("rscodec: %w", err)
	}
	return &Codec{enc: enc, dataShards: dataShards, parity: parityShards}, nil
}

// Encode splits data into dataShards equal-length shards (padding the last
// as needed) and returns the data shards followed by the parity shards.
func (c *Codec) Encode(data []byte) ([][]byte, error) {
	shards, err := c.enc.Split(data)
	if err != nil {
		return nil, fmt.Errorf("rscodec: split: %w", err)
	}
	if err := c.enc.Encode(shards); err != nil {
		return nil, fmt.Errorf("rscodec: encode: %w", err)
	}
	return shards, nil
}

// Reconstruct fills in nil shards (representing losses) in place and
// reports whether the result decodes to a self-consistent codeword.
func (c *Codec) Reconstruct(shards [][]byte) (bool, error) {
	if err := c.enc.Reconstruct(shards); err != nil {
		return false, nil
	}
	ok, err := c.enc.Verify(shards)
	if err != nil {
		return false, fmt.Errorf("rscodec: verify: %w", err)
	}
	return ok, nil
}
