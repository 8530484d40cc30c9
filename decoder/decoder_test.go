package decoder_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/netcode-go/netcode/decoder"
	"github.com/netcode-go/netcode/encoder"
	"github.com/netcode-go/netcode/field"
	"github.com/netcode-go/netcode/packet"
)

func TestDecoder(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Decoder Suite")
}

type collectingSink struct {
	current []byte
	packets [][]byte
}

func (s *collectingSink) Write(p []byte) { s.current = append(s.current, p...) }
func (s *collectingSink) End() {
	s.packets = append(s.packets, s.current)
	s.current = nil
}

type delivery struct {
	id      uint32
	payload []byte
	decoded bool
}

var _ = Describe("Decoder", func() {
	var gf *field.Field

	BeforeEach(func() {
		var err error
		gf, err = field.New(field.W8)
		Expect(err).NotTo(HaveOccurred())
	})

	It("reconstructs a source from a single repair", func() {
		sink := &collectingSink{}
		enc := encoder.New(gf, sink, encoder.Config{Rate: 1, CodeType: encoder.Systematic})
		Expect(enc.OnSymbol([]byte("abcd"))).To(Succeed())
		Expect(sink.packets).To(HaveLen(2)) // source + repair

		var delivered []delivery
		dec := decoder.New(gf, func(id uint32, payload []byte, dec bool) {
			delivered = append(delivered, delivery{id, append([]byte(nil), payload...), dec})
		}, decoder.Config{Order: decoder.OutOfOrder})

		// drop the source, deliver only the repair.
		_, err := dec.OnPacket(sink.packets[1])
		Expect(err).NotTo(HaveOccurred())

		Expect(delivered).To(HaveLen(1))
		Expect(delivered[0].id).To(BeEquivalentTo(0))
		Expect(delivered[0].payload).To(Equal([]byte("abcd")))
		Expect(delivered[0].decoded).To(BeTrue())
	})

	It("marks a repair useless once every referenced source has arrived", func() {
		sink := &collectingSink{}
		enc := encoder.New(gf, sink, encoder.Config{Rate: 5, CodeType: encoder.Systematic})
		for i := 0; i < 5; i++ {
			Expect(enc.OnSymbol([]byte{})).To(Succeed())
		}
		Expect(sink.packets).To(HaveLen(6)) // 5 sources + 1 repair

		dec := decoder.New(gf, func(uint32, []byte, bool) {}, decoder.Config{Order: decoder.OutOfOrder})
		for i := 0; i < 5; i++ {
			_, err := dec.OnPacket(sink.packets[i])
			Expect(err).NotTo(HaveOccurred())
		}
		_, err := dec.OnPacket(sink.packets[5])
		Expect(err).NotTo(HaveOccurred())

		Expect(dec.Sources()).To(HaveLen(5))
		Expect(dec.Missing()).To(BeEmpty())
		Expect(dec.Repairs()).To(BeEmpty())
		Expect(dec.Stats().NbUselessRepairs).To(BeEquivalentTo(1))
	})

	It("recovers two simultaneously-missing sources via full matrix inversion", func() {
		// Two sources, both missing, covered by two independent repairs
		// over exactly the same {0,1} window -- the case that requires
		// solving a genuine 2x2 linear system rather than the single-
		// residual shortcut. The repairs are built with the same field
		// primitives the encoder uses internally, so this exercises
		// Gauss-Jordan inversion end to end without hand-computed GF
		// arithmetic in the test itself.
		type src struct {
			id       uint32
			userSize uint16
			bytes    []byte
		}
		sources := []src{
			{0, 4, []byte("abcd")},
			{1, 4, []byte("wxyz")},
		}

		buildRepair := func(rid uint32) packet.Repair {
			symbol := make([]byte, 4)
			var encodedSize uint16
			ids := make([]uint32, len(sources))
			for i, s := range sources {
				ids[i] = s.id
				c := field.Coeff(gf.Width(), rid, s.id)
				gf.MultiplyAddRegion(s.bytes, symbol, c)
				encodedSize ^= gf.MultiplySize(s.userSize, c)
			}
			return packet.Repair{ID: rid, EncodedSize: encodedSize, SourceIDs: ids, Symbol: symbol}
		}
		r0 := buildRepair(0)
		r1 := buildRepair(1)

		var delivered []delivery
		dec := decoder.New(gf, func(id uint32, payload []byte, decd bool) {
			delivered = append(delivered, delivery{id, append([]byte(nil), payload...), decd})
		}, decoder.Config{Order: decoder.InOrder})

		_, err := dec.OnPacket(r0.Encode(nil))
		Expect(err).NotTo(HaveOccurred())
		Expect(dec.Missing()).To(Equal([]uint32{0, 1})) // one repair, two unknowns: not solvable yet

		_, err = dec.OnPacket(r1.Encode(nil))
		Expect(err).NotTo(HaveOccurred())

		Expect(dec.Stats().NbFailedFullDecodings).To(BeEquivalentTo(0))
		Expect(delivered).To(HaveLen(2))
		Expect(delivered[0].id).To(BeEquivalentTo(0))
		Expect(delivered[0].payload).To(Equal([]byte("abcd")))
		Expect(delivered[1].id).To(BeEquivalentTo(1))
		Expect(delivered[1].payload).To(Equal([]byte("wxyz")))
	})

	It("delivers an out-of-order reconstruction then ignores the late verbatim duplicate", func() {
		sink := &collectingSink{}
		enc := encoder.New(gf, sink, encoder.Config{Rate: 1, CodeType: encoder.Systematic})
		Expect(enc.OnSymbol([]byte("abcd"))).To(Succeed())

		var deliveries int
		dec := decoder.New(gf, func(uint32, []byte, bool) { deliveries++ }, decoder.Config{Order: decoder.OutOfOrder})
		_, err := dec.OnPacket(sink.packets[1]) // repair reconstructs s0
		Expect(err).NotTo(HaveOccurred())
		_, err = dec.OnPacket(sink.packets[0]) // late verbatim s0
		Expect(err).NotTo(HaveOccurred())

		Expect(deliveries).To(Equal(1))
		Expect(dec.Sources()).To(HaveLen(1))
	})

	It("counts a duplicate repair as useless without a second delivery", func() {
		sink := &collectingSink{}
		enc := encoder.New(gf, sink, encoder.Config{Rate: 1, CodeType: encoder.Systematic})
		Expect(enc.OnSymbol([]byte("abcd"))).To(Succeed())

		var deliveries int
		dec := decoder.New(gf, func(uint32, []byte, bool) { deliveries++ }, decoder.Config{Order: decoder.OutOfOrder})
		_, err := dec.OnPacket(sink.packets[1])
		Expect(err).NotTo(HaveOccurred())
		_, err = dec.OnPacket(sink.packets[1])
		Expect(err).NotTo(HaveOccurred())

		Expect(deliveries).To(Equal(1))
		Expect(dec.Stats().NbUselessRepairs).To(BeEquivalentTo(1))
	})

	It("drops outdated sources when a later repair's window moves past them", func() {
		gfW := gf
		dec := decoder.New(gfW, func(uint32, []byte, bool) {}, decoder.Config{Order: decoder.OutOfOrder})

		r0 := packet.Repair{ID: 0, SourceIDs: []uint32{0, 1}, EncodedSize: 0, Symbol: make([]byte, 4)}
		_, err := dec.OnPacket(r0.Encode(nil))
		Expect(err).NotTo(HaveOccurred())
		Expect(dec.Missing()).To(Equal([]uint32{0, 1}))

		r1 := packet.Repair{ID: 1, SourceIDs: []uint32{2, 3}, EncodedSize: 0, Symbol: make([]byte, 4)}
		_, err = dec.OnPacket(r1.Encode(nil))
		Expect(err).NotTo(HaveOccurred())

		Expect(dec.Missing()).To(Equal([]uint32{2, 3}))
		Expect(dec.Repairs()).To(HaveLen(1))
		Expect(dec.Stats().NbUselessRepairs).To(BeEquivalentTo(0))
	})

	It("drops both an outdated repair and its successor once their sources are received", func() {
		dec := decoder.New(gf, func(uint32, []byte, bool) {}, decoder.Config{Order: decoder.OutOfOrder})

		r0 := packet.Repair{ID: 0, SourceIDs: []uint32{0, 1}, EncodedSize: 0, Symbol: make([]byte, 1)}
		_, err := dec.OnPacket(r0.Encode(nil))
		Expect(err).NotTo(HaveOccurred())

		r1 := packet.Repair{ID: 1, SourceIDs: []uint32{2, 3}, EncodedSize: 0, Symbol: make([]byte, 1)}
		_, err = dec.OnPacket(r1.Encode(nil))
		Expect(err).NotTo(HaveOccurred())
		// r0 already dropped by retirement here, nb_useless_repairs == 0 so far.
		Expect(dec.Stats().NbUselessRepairs).To(BeEquivalentTo(0))

		for _, id := range []uint32{2, 3} {
			s := packet.Source{ID: id, UserSize: 1, Bytes: []byte{0}}
			_, err := dec.OnPacket(s.Encode(nil))
			Expect(err).NotTo(HaveOccurred())
		}

		// r1's residual drops to a single id the instant source 2 is
		// admitted, so it is consumed by the online single-residual
		// reconstruction shortcut rather than ever reaching an empty
		// residual — the subsequent verbatim arrival of that id is then a
		// harmless duplicate. Only r0's drop-by-retirement occurred; no
		// repair here was ever completely subsumed by already-held
		// sources, so nb_useless_repairs stays at 0.
		Expect(dec.Repairs()).To(BeEmpty())
		Expect(dec.Stats().NbUselessRepairs).To(BeEquivalentTo(0))
	})
})
