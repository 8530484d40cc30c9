// Package encoder implements the sending side of the network code: it takes
// in application symbols, transmits them as source packets, periodically
// seals a repair packet over its current window, and retires sources from
// that window as acks arrive.
package encoder

import (
	"fmt"
	"sync"

	"github.com/go-logr/logr"

	"github.com/netcode-go/netcode/buffer"
	"github.com/netcode-go/netcode/field"
	"github.com/netcode-go/netcode/internal/sourcelist"
	"github.com/netcode-go/netcode/packet"
)

// CodeType selects whether sources are transmitted verbatim in addition to
// participating in repairs (Systematic, the default) or only ever appear
// inside repairs (NonSystematic).
type CodeType int

const (
	Systematic CodeType = iota
	NonSystematic
)

// Sink receives the bytes of one outgoing packet as a sequence of chunks
// followed by a zero-length End call marking the packet boundary. A
// collaborator concatenates the chunks and transmits them as one datagram.
type Sink interface {
	Write(p []byte)
	End()
}

// Config holds the encoder's tunable parameters. A zero Config is populated
// with defaults by Populate before use.
type Config struct {
	// Rate is the number of sources per repair; 1 means a repair after
	// every source. Must be >= 1 after Populate.
	Rate uint32
	// CodeType selects systematic vs non-systematic coding.
	CodeType CodeType
	// MaxWindow optionally caps the number of un-acked sources retained;
	// 0 means unbounded (the caller is responsible for acking promptly).
	MaxWindow uint32
	// Logger receives debug-level traces of dropped/malformed packets.
	Logger logr.Logger
}

// Populate fills unset fields with defaults, mirroring the encoder's usual
// "zero value means default" configuration convention.
func (c *Config) Populate() {
	if c.Rate == 0 {
		c.Rate = 1
	}
}

// Stats holds counters observable for monitoring and tests.
type Stats struct {
	NbSources uint64
	NbRepairs uint64
	NbAcks    uint64
}

// Encoder is the sending half of the network code. All exported methods are
// safe for concurrent use; a single instance may be shared across goroutines
// even though its internal algorithm remains logically single-threaded.
type Encoder struct {
	mu sync.Mutex

	gf     *field.Field
	sink   Sink
	cfg    Config
	log    logr.Logger
	source *sourcelist.List

	nextSourceID uint32
	nextRepairID uint32

	stats Stats
}

// New builds an Encoder over the given field, writing packets to sink.
func New(gf *field.Field, sink Sink, cfg Config) *Encoder {
	cfg.Populate()
	return &Encoder{
		gf:     gf,
		sink:   sink,
		cfg:    cfg,
		log:    cfg.Logger,
		source: sourcelist.New(),
	}
}

// OnSymbol admits one application symbol: it is assigned the next source id,
// added to the window, transmitted verbatim (systematic mode), and may
// trigger sealing a repair over the current window.
func (e *Encoder) OnSymbol(payload []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextSourceID
	e.nextSourceID++

	bytes := append([]byte(nil), payload...)
	userSize := uint16(len(bytes))
	if err := e.source.Emplace(id, bytes, userSize); err != nil {
		return fmt.Errorf("encoder: %w", err)
	}

	if e.cfg.CodeType == Systematic {
		e.emit(packet.Source{ID: id, UserSize: userSize, Bytes: bytes}.Encode(nil))
		e.stats.NbSources++
	}

	if (id+1)%e.cfg.Rate == 0 {
		e.sealRepair()
	}

	if e.cfg.MaxWindow > 0 {
		for uint32(e.source.Size()) > e.cfg.MaxWindow {
			if _, ok := e.source.PopFront(); !ok {
				break
			}
		}
	}

	return nil
}

// sealRepair builds a repair over the current window and emits it. Caller
// must hold e.mu.
func (e *Encoder) sealRepair() {
	maxSize := e.source.MaxUserSize()
	acc := buffer.NewZero(int(maxSize))
	symbol := acc.Bytes()
	var encodedSize uint16

	rid := e.nextRepairID
	e.nextRepairID++

	ids := e.source.Ids()
	e.source.Each(func(entry sourcelist.Entry) {
		c := field.Coeff(e.gf.Width(), rid, entry.ID)
		padded := pad(entry.Bytes, int(maxSize))
		e.gf.MultiplyAddRegion(padded, symbol, c)
		encodedSize ^= e.gf.MultiplySize(entry.UserSize, c)
	})

	e.emit(packet.Repair{
		ID:          rid,
		EncodedSize: encodedSize,
		SourceIDs:   ids,
		Symbol:      symbol,
	}.Encode(nil))
	e.stats.NbRepairs++
}

// OnAck retires from the window every source id up to and including the
// maximum id named by ack (acks are cumulative-by-maximum). It returns the
// number of sources retired.
func (e *Encoder) OnAck(ack packet.Ack) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.onAckLocked(ack)
}

func (e *Encoder) onAckLocked(ack packet.Ack) int {
	if len(ack.Ids) == 0 {
		return 0
	}
	max := ack.Ids[0]
	for _, id := range ack.Ids[1:] {
		if id > max {
			max = id
		}
	}
	e.stats.NbAcks++
	return e.source.EraseUpTo(max)
}

// OnPacket parses an incoming packet and, if it is an ack, applies it.
// Any other packet kind is rejected: the encoder only ever receives acks.
func (e *Encoder) OnPacket(data []byte) (int, error) {
	pkt, n, err := packet.Parse(data)
	if err != nil {
		e.log.V(1).Info("dropping malformed packet", "err", err)
		return 0, err
	}
	ack, ok := pkt.(packet.Ack)
	if !ok {
		return n, fmt.Errorf("encoder: unexpected packet tag %T", pkt)
	}
	e.mu.Lock()
	e.onAckLocked(ack)
	e.mu.Unlock()
	return n, nil
}

// Window reports the number of un-acked sources currently held.
func (e *Encoder) Window() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.source.Size()
}

// Stats returns a snapshot of the encoder's counters.
func (e *Encoder) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

func (e *Encoder) emit(data []byte) {
	e.sink.Write(data)
	e.sink.End()
}

func pad(b []byte, n int) []byte {
	if len(b) == n {
		return b
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}
