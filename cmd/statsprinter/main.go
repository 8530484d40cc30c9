// Command statsprinter reads the newline-delimited JSON stat snapshots
// emitted by transcoder's stats loop on stdin and renders them as a
// running human-readable table, mirroring the separation between
// accelerator's stats-collection and its 2-second std::cout report in
// accelerator/transcoder.hh.
package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/francoispqt/gojay"
)

type statLine struct {
	EncSources uint64
	EncRepairs uint64
	EncAcks    uint64
	EncWindow  int

	DecSources    uint64
	DecRepairs    uint64
	DecDecoded    uint64
	DecUseless    uint64
	DecFailedFull uint64
}

// UnmarshalJSONObject implements gojay.UnmarshalerJSONObject, the
// decode-side counterpart of the encoder used by transcoder's printer.
func (s *statLine) UnmarshalJSONObject(dec *gojay.Decoder, key string) error {
	switch key {
	case "encoder_sources":
		return dec.Uint64(&s.EncSources)
	case "encoder_repairs":
		return dec.Uint64(&s.EncRepairs)
	case "encoder_acks":
		return dec.Uint64(&s.EncAcks)
	case "encoder_window":
		return dec.Int(&s.EncWindow)
	case "decoder_sources":
		return dec.Uint64(&s.DecSources)
	case "decoder_repairs":
		return dec.Uint64(&s.DecRepairs)
	case "decoder_decoded":
		return dec.Uint64(&s.DecDecoded)
	case "decoder_useless_repairs":
		return dec.Uint64(&s.DecUseless)
	case "decoder_failed_full_decodings":
		return dec.Uint64(&s.DecFailedFull)
	}
	return nil
}

func (s *statLine) NKeys() int { return 0 }

func main() {
	scanner := bufio.NewScanner(os.Stdin)
	var line int
	for scanner.Scan() {
		line++
		var s statLine
		if err := gojay.UnmarshalJSONObject(scanner.Bytes(), &s); err != nil {
			fmt.Fprintf(os.Stderr, "statsprinter: skipping malformed line %d: %v\n", line, err)
			continue
		}
		fmt.Printf("[%4d] enc: src=%d rep=%d ack=%d win=%d | dec: src=%d rep=%d decoded=%d useless=%d failed=%d\n",
			line, s.EncSources, s.EncRepairs, s.EncAcks, s.EncWindow,
			s.DecSources, s.DecRepairs, s.DecDecoded, s.DecUseless, s.DecFailedFull)
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "statsprinter:", err)
		os.Exit(1)
	}
}
