// Package decoder implements the receiving side of the network code: it
// admits source and repair packets, eliminates known sources from repair
// residuals on the fly, attempts full matrix-based decoding once enough
// repairs are on hand, and delivers reconstructed symbols to the
// application either as they arrive or in strict id order.
package decoder

import (
	"fmt"
	"sort"
	"sync"

	"github.com/go-logr/logr"

	"github.com/netcode-go/netcode/buffer"
	"github.com/netcode-go/netcode/field"
	"github.com/netcode-go/netcode/packet"
)

// OrderMode selects delivery ordering.
type OrderMode int

const (
	// OutOfOrder delivers every newly admitted source immediately, in
	// arrival/decode order.
	OutOfOrder OrderMode = iota
	// InOrder buffers admitted sources until every lower id has been
	// delivered or retired, then delivers in strict ascending id order.
	InOrder
)

// SourceCallback is invoked for every source the decoder delivers.
// decoded is false when the source arrived verbatim, true when it was
// reconstructed from one or more repairs.
type SourceCallback func(id uint32, payload []byte, decoded bool)

// Config holds the decoder's tunable parameters.
type Config struct {
	Order  OrderMode
	Logger logr.Logger
}

// Stats holds counters observable for monitoring and tests.
type Stats struct {
	NbSources             uint64
	NbRepairs             uint64
	NbAcks                uint64
	NbDecoded             uint64
	NbUselessRepairs      uint64
	NbFailedFullDecodings uint64
}

type sourceEntry struct {
	bytes     []byte
	userSize  uint16
	decoded   bool
	delivered bool
}

type decoderRepair struct {
	id          uint32
	encodedSize uint16
	symbol      []byte
	residual    map[uint32]struct{}
}

// Decoder is the receiving half of the network code. All exported methods
// are safe for concurrent use.
type Decoder struct {
	mu sync.Mutex

	gf  *field.Field
	cb  SourceCallback
	cfg Config
	log logr.Logger

	sources map[uint32]sourceEntry
	missing map[uint32]struct{}
	repairs map[uint32]*decoderRepair

	// order records admission order for OutOfOrder delivery; orderPos is
	// the index of the first not-yet-delivered entry.
	order    []uint32
	orderPos int

	hasRetired     bool
	highestRetired uint32
	nextDeliverID  uint32

	stats Stats
}

// New builds a Decoder over the given field, delivering sources to cb.
func New(gf *field.Field, cb SourceCallback, cfg Config) *Decoder {
	return &Decoder{
		gf:      gf,
		cb:      cb,
		cfg:     cfg,
		log:     cfg.Logger,
		sources: make(map[uint32]sourceEntry),
		missing: make(map[uint32]struct{}),
		repairs: make(map[uint32]*decoderRepair),
	}
}

// OnPacket parses an incoming packet and dispatches it by tag. Acks are not
// valid input to a decoder (they flow the other way, into an encoder); a
// decoder receiving one is a caller error.
func (d *Decoder) OnPacket(data []byte) (int, error) {
	pkt, n, err := packet.Parse(data)
	if err != nil {
		d.log.V(1).Info("dropping malformed packet", "err", err)
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	switch p := pkt.(type) {
	case packet.Source:
		d.admitSource(p.ID, p.Bytes, p.UserSize, true)
	case packet.Repair:
		d.stats.NbRepairs++
		d.admitRepair(p.ID, p.EncodedSize, p.SourceIDs, p.Symbol)
	case packet.Ack:
		return n, fmt.Errorf("decoder: unexpected ack packet")
	}
	return n, nil
}

type pendingSource struct {
	id       uint32
	bytes    []byte
	userSize uint16
	verbatim bool
}

// admitSource stores id (if not a duplicate or already outdated), subtracts
// it from every repair that still references it, follows the resulting
// cascade of single-residual reconstructions to completion, attempts a full
// decode, then delivers whatever is now deliverable. Caller must hold d.mu.
func (d *Decoder) admitSource(id uint32, bytes []byte, userSize uint16, verbatim bool) {
	d.cascade([]pendingSource{{id, bytes, userSize, verbatim}})
	d.tryFullDecode()
	d.deliver()
}

// cascade admits a batch of sources (and whatever single-residual
// reconstructions they trigger in retained repairs) without attempting a
// full decode or delivering — callers that need to interleave a full-decode
// attempt mid-cascade (tryFullDecode itself) use this directly.
func (d *Decoder) cascade(pending []pendingSource) {
	for len(pending) > 0 {
		cur := pending[0]
		pending = pending[1:]

		if d.hasRetired && cur.id <= d.highestRetired {
			continue
		}
		if _, dup := d.sources[cur.id]; dup {
			continue
		}

		d.sources[cur.id] = sourceEntry{bytes: cur.bytes, userSize: cur.userSize, decoded: !cur.verbatim}
		d.order = append(d.order, cur.id)
		delete(d.missing, cur.id)
		if cur.verbatim {
			d.stats.NbSources++
		} else {
			d.stats.NbDecoded++
		}

		for rid, rep := range d.repairs {
			if _, ok := rep.residual[cur.id]; !ok {
				continue
			}
			d.subtract(rep, cur.id, cur.bytes, cur.userSize)
			delete(rep.residual, cur.id)

			switch len(rep.residual) {
			case 0:
				delete(d.repairs, rid)
				d.stats.NbUselessRepairs++
			case 1:
				var leftover uint32
				for k := range rep.residual {
					leftover = k
				}
				size, data := d.reconstructSingle(rep, leftover)
				delete(d.repairs, rid)
				pending = append(pending, pendingSource{leftover, data, size, false})
			}
		}
	}
}

// admitRepair processes an incoming repair: it first applies repair-induced
// retirement (the window has moved past ids the decoder still considers
// missing), then subtracts every source it already holds, then acts on the
// remaining residual size.
func (d *Decoder) admitRepair(rid uint32, encodedSize uint16, sourceIDs []uint32, symbol []byte) {
	if _, exists := d.repairs[rid]; exists {
		d.stats.NbUselessRepairs++
		return
	}
	if len(sourceIDs) == 0 {
		d.stats.NbUselessRepairs++
		return
	}

	minID := sourceIDs[0]
	for _, id := range sourceIDs[1:] {
		if id < minID {
			minID = id
		}
	}
	if minID > 0 {
		d.retireBelow(minID - 1)
	}

	rep := &decoderRepair{
		id:          rid,
		encodedSize: encodedSize,
		symbol:      append([]byte(nil), symbol...),
		residual:    make(map[uint32]struct{}, len(sourceIDs)),
	}

	for _, id := range sourceIDs {
		if d.hasRetired && id <= d.highestRetired {
			continue // permanently unrecoverable, excluded from residual
		}
		if entry, held := d.sources[id]; held {
			d.subtract(rep, id, entry.bytes, entry.userSize)
			continue
		}
		rep.residual[id] = struct{}{}
		d.missing[id] = struct{}{}
	}

	switch len(rep.residual) {
	case 0:
		d.stats.NbUselessRepairs++
	case 1:
		var leftover uint32
		for k := range rep.residual {
			leftover = k
		}
		size, data := d.reconstructSingle(rep, leftover)
		d.cascade([]pendingSource{{leftover, data, size, false}})
	default:
		d.repairs[rid] = rep
	}
	d.tryFullDecode()
	d.deliver()
}

// retireBelow marks every id <= h as permanently outdated: it can never be
// requested again because the encoder has already forgotten it. Repairs
// dropped purely by retirement are not counted as useless — they carried
// real information once, it simply arrived too late.
func (d *Decoder) retireBelow(h uint32) {
	if d.hasRetired && h <= d.highestRetired {
		return
	}
	d.hasRetired = true
	d.highestRetired = h

	for id := range d.missing {
		if id <= h {
			delete(d.missing, id)
		}
	}
	for id := range d.sources {
		if id <= h {
			delete(d.sources, id)
		}
	}
	for rid, rep := range d.repairs {
		allBelow := true
		for id := range rep.residual {
			if id > h {
				allBelow = false
				break
			}
		}
		if allBelow {
			delete(d.repairs, rid)
		}
	}
	if d.cfg.Order == InOrder && d.nextDeliverID <= h {
		d.nextDeliverID = h + 1
	}
}

// subtract removes source id's contribution from rep's residual accumulator.
func (d *Decoder) subtract(rep *decoderRepair, id uint32, bytes []byte, userSize uint16) {
	c := field.Coeff(d.gf.Width(), rep.id, id)
	padded := pad(bytes, len(rep.symbol))
	d.gf.MultiplyAddRegion(padded, rep.symbol, c)
	rep.encodedSize ^= d.gf.MultiplySize(userSize, c)
}

// reconstructSingle recovers the sole remaining residual source of rep.
func (d *Decoder) reconstructSingle(rep *decoderRepair, id uint32) (uint16, []byte) {
	c := field.Coeff(d.gf.Width(), rep.id, id)
	inv := d.gf.Invert(c)
	size := d.gf.MultiplySize(rep.encodedSize, inv)
	full := make([]byte, len(rep.symbol))
	d.gf.MultiplyRegion(rep.symbol, full, inv)
	if int(size) > len(full) {
		size = uint16(len(full))
	}
	return size, full[:size]
}

// tryFullDecode attempts a full matrix inversion once at least as many
// retained repairs as missing sources are on hand. On success every missing
// source is reconstructed and the consumed repairs are discarded; on
// failure (a singular system — the repairs weren't linearly independent
// over the missing ids) it counts the failure and retains everything for a
// future attempt.
func (d *Decoder) tryFullDecode() {
	m := len(d.missing)
	if m == 0 || len(d.repairs) < m {
		return
	}

	missingIDs := make([]uint32, 0, m)
	for id := range d.missing {
		missingIDs = append(missingIDs, id)
	}
	sort.Slice(missingIDs, func(i, j int) bool { return missingIDs[i] < missingIDs[j] })

	repairIDs := make([]uint32, 0, len(d.repairs))
	for rid := range d.repairs {
		repairIDs = append(repairIDs, rid)
	}
	sort.Slice(repairIDs, func(i, j int) bool { return repairIDs[i] < repairIDs[j] })
	// use the m most recent repairs.
	chosen := repairIDs[len(repairIDs)-m:]

	// a[i][j] = coeff(repair i, missing source j): row i is repair i's
	// equation, so the system is symbol_i = sum_j a[i][j]*source_j and the
	// solution reads source_j = sum_i inv[j][i]*symbol_i, not inv[i][j].
	a := make([][]uint32, m)
	reps := make([]*decoderRepair, m)
	for i, rid := range chosen {
		rep := d.repairs[rid]
		reps[i] = rep
		row := make([]uint32, m)
		for j, sid := range missingIDs {
			if _, ok := rep.residual[sid]; ok {
				row[j] = field.Coeff(d.gf.Width(), rep.id, sid)
			}
		}
		a[i] = row
	}

	inv, ok := invert(d.gf, a)
	if !ok {
		d.stats.NbFailedFullDecodings++
		return
	}

	symLen := 0
	for _, rep := range reps {
		if len(rep.symbol) > symLen {
			symLen = len(rep.symbol)
		}
	}

	// Remove the consumed repairs before reconstructing: cascade() will
	// scan d.repairs as each missing source is admitted, and must not see
	// (and re-subtract into) the very repairs whose original, unmodified
	// encodedSize/symbol the reconstruction below still needs to read for
	// every column of the solution.
	for _, rid := range chosen {
		delete(d.repairs, rid)
	}

	pending := make([]pendingSource, 0, m)
	for j, sid := range missingIDs {
		var size uint16
		acc := buffer.NewZero(symLen)
		symbol := acc.Bytes()
		for i, rep := range reps {
			coef := inv[j][i]
			if coef == 0 {
				continue
			}
			size ^= d.gf.MultiplySize(rep.encodedSize, coef)
			padded := pad(rep.symbol, symLen)
			d.gf.MultiplyAddRegion(padded, symbol, coef)
		}
		if int(size) > len(symbol) {
			size = uint16(len(symbol))
		}
		pending = append(pending, pendingSource{sid, symbol[:size], size, false})
	}
	d.cascade(pending)

	// The cascade above may have eliminated further residuals in repairs
	// that weren't part of this round, opening up another full-decode
	// opportunity immediately.
	d.tryFullDecode()
}

// deliver invokes the application callback for newly admitted sources,
// according to the configured order mode.
func (d *Decoder) deliver() {
	if d.cfg.Order == OutOfOrder {
		for ; d.orderPos < len(d.order); d.orderPos++ {
			id := d.order[d.orderPos]
			e, ok := d.sources[id]
			if !ok || e.delivered {
				continue // retired, or already delivered, before its turn
			}
			d.cb(id, e.bytes[:e.userSize], e.decoded)
			e.delivered = true
			d.sources[id] = e
		}
		return
	}

	for {
		e, ok := d.sources[d.nextDeliverID]
		if !ok {
			return
		}
		if !e.delivered {
			d.cb(d.nextDeliverID, e.bytes[:e.userSize], e.decoded)
			e.delivered = true
			d.sources[d.nextDeliverID] = e
		}
		d.nextDeliverID++
	}
}

// SendAck builds an ack packet naming every source currently held.
func (d *Decoder) SendAck() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := make([]uint32, 0, len(d.sources))
	for id := range d.sources {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	d.stats.NbAcks++
	return packet.Ack{Ids: ids}.Encode(nil)
}

// Sources returns a snapshot of every source currently held, keyed by id.
func (d *Decoder) Sources() map[uint32][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[uint32][]byte, len(d.sources))
	for id, e := range d.sources {
		out[id] = append([]byte(nil), e.bytes[:e.userSize]...)
	}
	return out
}

// Missing returns every source id referenced by a retained repair but not
// yet held.
func (d *Decoder) Missing() []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]uint32, 0, len(d.missing))
	for id := range d.missing {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Repairs returns a snapshot of every retained repair's residual id set,
// keyed by repair id.
func (d *Decoder) Repairs() map[uint32][]uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[uint32][]uint32, len(d.repairs))
	for rid, rep := range d.repairs {
		ids := make([]uint32, 0, len(rep.residual))
		for id := range rep.residual {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		out[rid] = ids
	}
	return out
}

// Stats returns a snapshot of the decoder's counters.
func (d *Decoder) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func pad(b []byte, n int) []byte {
	if len(b) == n {
		return b
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}
