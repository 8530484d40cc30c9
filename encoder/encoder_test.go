package encoder_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/netcode-go/netcode/encoder"
	"github.com/netcode-go/netcode/field"
	"github.com/netcode-go/netcode/internal/mocks"
	"github.com/netcode-go/netcode/packet"
)

func TestEncoder(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Encoder Suite")
}

// collectingSink concatenates chunks between End() calls into a slice of
// whole packets, playing the role of a real UDP socket in these tests.
type collectingSink struct {
	current []byte
	packets [][]byte
}

func (s *collectingSink) Write(p []byte) { s.current = append(s.current, p...) }
func (s *collectingSink) End() {
	s.packets = append(s.packets, s.current)
	s.current = nil
}

var _ = Describe("Encoder", func() {
	var (
		gf   *field.Field
		sink *collectingSink
	)

	BeforeEach(func() {
		var err error
		gf, err = field.New(field.W8)
		Expect(err).NotTo(HaveOccurred())
		sink = &collectingSink{}
	})

	It("emits a source packet for every symbol in systematic mode", func() {
		enc := encoder.New(gf, sink, encoder.Config{Rate: 10, CodeType: encoder.Systematic})
		Expect(enc.OnSymbol([]byte("abcd"))).To(Succeed())
		Expect(enc.OnSymbol([]byte("efgh"))).To(Succeed())

		Expect(sink.packets).To(HaveLen(2))
		pkt, _, err := packet.Parse(sink.packets[0])
		Expect(err).NotTo(HaveOccurred())
		src, ok := pkt.(packet.Source)
		Expect(ok).To(BeTrue())
		Expect(src.ID).To(BeEquivalentTo(0))
		Expect(src.Bytes).To(Equal([]byte("abcd")))
	})

	It("seals a repair every `rate` sources", func() {
		enc := encoder.New(gf, sink, encoder.Config{Rate: 2, CodeType: encoder.Systematic})
		Expect(enc.OnSymbol([]byte("ab"))).To(Succeed())
		Expect(enc.OnSymbol([]byte("cd"))).To(Succeed())

		Expect(sink.packets).To(HaveLen(3)) // 2 sources + 1 repair
		pkt, _, err := packet.Parse(sink.packets[2])
		Expect(err).NotTo(HaveOccurred())
		rep, ok := pkt.(packet.Repair)
		Expect(ok).To(BeTrue())
		Expect(rep.SourceIDs).To(Equal([]uint32{0, 1}))
	})

	It("retires acknowledged sources from the window", func() {
		enc := encoder.New(gf, sink, encoder.Config{Rate: 100, CodeType: encoder.Systematic})
		Expect(enc.OnSymbol([]byte("a"))).To(Succeed())
		Expect(enc.OnSymbol([]byte("b"))).To(Succeed())
		Expect(enc.OnSymbol([]byte("c"))).To(Succeed())
		Expect(enc.Window()).To(Equal(3))

		n := enc.OnAck(packet.Ack{Ids: []uint32{1}})
		Expect(n).To(Equal(2))
		Expect(enc.Window()).To(Equal(1))
	})

	It("treats OnPacket ack dispatch identically to a direct OnAck call", func() {
		enc := encoder.New(gf, sink, encoder.Config{Rate: 100})
		enc.OnSymbol([]byte("a"))
		enc.OnSymbol([]byte("b"))

		ackBytes := packet.Ack{Ids: []uint32{0}}.Encode(nil)
		n, err := enc.OnPacket(ackBytes)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(len(ackBytes)))
		Expect(enc.Window()).To(Equal(1))
	})

	It("rejects a non-ack packet via OnPacket", func() {
		enc := encoder.New(gf, sink, encoder.Config{})
		srcBytes := packet.Source{ID: 0, UserSize: 1, Bytes: []byte("a")}.Encode(nil)
		_, err := enc.OnPacket(srcBytes)
		Expect(err).To(HaveOccurred())
	})

	It("drives its sink through the mocked collaborator", func() {
		ctrl := gomock.NewController(GinkgoT())
		defer ctrl.Finish()
		mockSink := mocks.NewMockSink(ctrl)

		gomock.InOrder(
			mockSink.EXPECT().Write(gomock.Any()),
			mockSink.EXPECT().End(),
		)

		enc := encoder.New(gf, mockSink, encoder.Config{Rate: 100, CodeType: encoder.Systematic})
		Expect(enc.OnSymbol([]byte("a"))).To(Succeed())
	})
})
