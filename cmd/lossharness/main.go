// Command lossharness drives an in-process encoder/decoder pair through a
// synthetic Gilbert-Elliott loss pattern, translating accelerator's
// random_loss good/bad state machine into Go, and optionally runs an
// independent classic Reed-Solomon shard code over batches of the same
// injected symbols under its own, separate Gilbert-Elliott loss trace,
// reporting its recovery rate alongside the decoder's.
package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"os"

	"golang.org/x/time/rate"

	"github.com/netcode-go/netcode/decoder"
	"github.com/netcode-go/netcode/encoder"
	"github.com/netcode-go/netcode/field"
	"github.com/netcode-go/netcode/internal/rscodec"
)

// gilbertElliott is a two-state (good/bad) loss model: a burst-friendly
// alternative to independent per-packet loss, matching
// accelerator::random_loss.
type gilbertElliott struct {
	bad          bool
	pLossInGood  int // percent chance of transitioning good->bad
	pStayInBad   int // percent chance of remaining in bad
	rand         func() int // returns 0..99
}

func newGilbertElliott(randFn func() int) *gilbertElliott {
	return &gilbertElliott{pLossInGood: 20, pStayInBad: 90, rand: randFn}
}

func (g *gilbertElliott) lose() bool {
	if !g.bad {
		if g.rand() < g.pLossInGood {
			g.bad = true
			return true
		}
		return false
	}
	if g.rand() < g.pStayInBad {
		return true
	}
	g.bad = false
	return false
}

func randPercent() int {
	var b [1]byte
	_, _ = rand.Read(b[:])
	return int(b[0]) % 100
}

func main() {
	var (
		symbols     = flag.Int("symbols", 1000, "number of application symbols to inject")
		symbolSize  = flag.Int("symbol-size", 512, "size in bytes of each symbol")
		fieldWidth  = flag.Uint("field-width", 8, "GF(2^w) width: 4, 8, 16 or 32")
		codeRate    = flag.Uint("rate", 4, "sources per repair")
		crossCheck  = flag.Bool("rs-cross-check", true, "cross-check against klauspost/reedsolomon")
		ratePerSec  = flag.Float64("symbols-per-sec", 2000, "pacing for synthetic symbol injection")
	)
	flag.Parse()

	if err := run(*symbols, *symbolSize, field.Width(*fieldWidth), uint32(*codeRate), *crossCheck, *ratePerSec); err != nil {
		fmt.Fprintln(os.Stderr, "lossharness:", err)
		os.Exit(1)
	}
}

func run(numSymbols, symbolSize int, w field.Width, codeRate uint32, crossCheck bool, symbolsPerSec float64) error {
	gf, err := field.New(w)
	if err != nil {
		return fmt.Errorf("field: %w", err)
	}

	loss := newGilbertElliott(randPercent)
	sink := &lossySink{loss: loss}

	enc := encoder.New(gf, sink, encoder.Config{Rate: codeRate, CodeType: encoder.Systematic})

	var delivered int
	var mismatches int
	original := make(map[uint32][]byte, numSymbols)
	dec := decoder.New(gf, func(id uint32, payload []byte, _ bool) {
		delivered++
		if want, ok := original[id]; ok {
			if !bytesEqual(want, payload) {
				mismatches++
			}
		}
	}, decoder.Config{Order: decoder.InOrder})

	limiter := rate.NewLimiter(rate.Limit(symbolsPerSec), 1)

	const rsDataShards = 10
	const rsParityShards = 4
	var rsCodec *rscodec.Codec
	var rsLoss *gilbertElliott
	var rsBatch [][]byte
	var rsOK, rsFail int
	if crossCheck {
		rsCodec, err = rscodec.New(rsDataShards, rsParityShards)
		if err != nil {
			return fmt.Errorf("rscodec: %w", err)
		}
		rsLoss = newGilbertElliott(randPercent)
	}

	for i := 0; i < numSymbols; i++ {
		if err := limiter.Wait(context.Background()); err != nil {
			return fmt.Errorf("pacing: %w", err)
		}

		payload := make([]byte, symbolSize)
		_, _ = rand.Read(payload)
		original[uint32(i)] = payload

		if err := enc.OnSymbol(payload); err != nil {
			return fmt.Errorf("OnSymbol: %w", err)
		}
		for _, pkt := range sink.drain() {
			if _, err := dec.OnPacket(pkt); err != nil {
				fmt.Fprintln(os.Stderr, "dropping malformed packet:", err)
			}
		}

		if crossCheck {
			rsBatch = append(rsBatch, payload)
			if len(rsBatch) == rsDataShards {
				if err := crossCheckBatch(rsCodec, rsLoss, rsBatch, symbolSize, &rsOK, &rsFail); err != nil {
					return fmt.Errorf("rs cross-check: %w", err)
				}
				rsBatch = rsBatch[:0]
			}
		}
	}

	stats := dec.Stats()
	fmt.Printf("delivered=%d/%d mismatches=%d useless_repairs=%d failed_full_decodings=%d missing=%d\n",
		delivered, numSymbols, mismatches, stats.NbUselessRepairs, stats.NbFailedFullDecodings, len(dec.Missing()))

	if crossCheck {
		fmt.Printf("rs-cross-check: %d/%d batches reconstructed exactly under an independent loss trace\n", rsOK, rsOK+rsFail)
	}
	return nil
}

// crossCheckBatch runs one Reed-Solomon shard batch through its own
// Gilbert-Elliott loss trace and verifies that Reconstruct recovers the
// original bytes, giving an oracle result independent of the network-coding
// path above.
func crossCheckBatch(c *rscodec.Codec, loss *gilbertElliott, symbols [][]byte, symbolSize int, ok, fail *int) error {
	data := make([]byte, 0, len(symbols)*symbolSize)
	for _, s := range symbols {
		data = append(data, s...)
	}
	shards, err := c.Encode(data)
	if err != nil {
		return err
	}
	original := make([][]byte, len(shards))
	for i, s := range shards {
		original[i] = append([]byte(nil), s...)
	}
	for i := range shards {
		if loss.lose() {
			shards[i] = nil
		}
	}
	reconstructed, err := c.Reconstruct(shards)
	if err != nil {
		return err
	}
	if !reconstructed {
		*fail++
		return nil
	}
	for i := range shards {
		if !bytesEqual(shards[i], original[i]) {
			*fail++
			return nil
		}
	}
	*ok++
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// lossySink buffers whole packets and drops them according to the
// Gilbert-Elliott model instead of transmitting them, standing in for a
// real (lossy) UDP socket in this offline harness.
type lossySink struct {
	loss    *gilbertElliott
	current []byte
	pending [][]byte
}

func (s *lossySink) Write(p []byte) { s.current = append(s.current, p...) }
func (s *lossySink) End() {
	if !s.loss.lose() {
		s.pending = append(s.pending, s.current)
	}
	s.current = nil
}

func (s *lossySink) drain() [][]byte {
	out := s.pending
	s.pending = nil
	return out
}
