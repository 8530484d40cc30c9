// Command transcoder composes one encoder and one decoder sharing a UDP
// socket toward the network side and a second UDP socket toward the local
// application, translating the accelerator/transcoder wiring pattern
// (packet_handler/data_handler, an ack timer, a stats timer) into an
// idiomatic Go binary.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/francoispqt/gojay"
	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"golang.org/x/sync/errgroup"

	"github.com/netcode-go/netcode/decoder"
	"github.com/netcode-go/netcode/encoder"
	"github.com/netcode-go/netcode/field"
	"github.com/netcode-go/netcode/internal/config"
	"github.com/netcode-go/netcode/packet"
)

func main() {
	var (
		netAddr = flag.String("net-addr", ":9000", "local address for network-facing traffic")
		peer    = flag.String("peer", "", "remote network peer address (host:port)")
		appAddr = flag.String("app-addr", ":9001", "local address for application-facing traffic")
		appPeer = flag.String("app-peer", "127.0.0.1:9002", "application peer address to forward decoded data to")
		rate    = flag.Uint("rate", 4, "sources per repair")
	)
	flag.Parse()

	log := funcr.New(func(prefix, args string) {
		fmt.Fprintln(os.Stderr, prefix, args)
	}, funcr.Options{})

	if *peer == "" {
		log.Info("missing -peer")
		os.Exit(2)
	}

	cfg := config.Default()
	cfg.Rate = uint32(*rate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, log, *netAddr, *peer, *appAddr, *appPeer, cfg); err != nil {
		log.Error(err, "transcoder exited")
		os.Exit(1)
	}
}

func run(ctx context.Context, log logr.Logger, netAddr, peerAddr, appAddr, appPeerAddr string, cfg config.Config) error {
	netConn, err := net.ListenPacket("udp", netAddr)
	if err != nil {
		return fmt.Errorf("listen net: %w", err)
	}
	defer netConn.Close()

	appConn, err := net.ListenPacket("udp", appAddr)
	if err != nil {
		return fmt.Errorf("listen app: %w", err)
	}
	defer appConn.Close()

	peer, err := net.ResolveUDPAddr("udp", peerAddr)
	if err != nil {
		return fmt.Errorf("resolve peer: %w", err)
	}
	appPeer, err := net.ResolveUDPAddr("udp", appPeerAddr)
	if err != nil {
		return fmt.Errorf("resolve app peer: %w", err)
	}

	gf, err := field.New(cfg.FieldWidth)
	if err != nil {
		return fmt.Errorf("field: %w", err)
	}

	netSink := &udpSink{conn: netConn, addr: peer}
	enc := encoder.New(gf, netSink, encoder.Config{Rate: cfg.Rate, CodeType: cfg.CodeType, Logger: log})

	dec := decoder.New(gf, func(id uint32, payload []byte, _ bool) {
		if _, err := appConn.WriteTo(payload, appPeer); err != nil {
			log.V(1).Info("failed forwarding decoded data", "id", id, "err", err)
		}
	}, decoder.Config{Order: cfg.Order, Logger: log})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return readNetwork(ctx, netConn, enc, dec, cfg.MaxPacketLen, log) })
	g.Go(func() error { return readApp(ctx, appConn, enc, cfg.MaxPacketLen, log) })
	g.Go(func() error { return ackLoop(ctx, dec, netSink, cfg.AckInterval) })
	g.Go(func() error { return statsLoop(ctx, enc, dec, cfg.StatsInterval, log) })

	<-ctx.Done()
	netConn.Close()
	appConn.Close()
	return g.Wait()
}

// readNetwork dispatches incoming packets by tag: acks go to the encoder,
// sources and repairs go to the decoder.
func readNetwork(ctx context.Context, conn net.PacketConn, enc *encoder.Encoder, dec *decoder.Decoder, maxLen int, log logr.Logger) error {
	buf := make([]byte, maxLen)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read network: %w", err)
		}
		data := buf[:n]
		if len(data) == 0 {
			continue
		}
		switch packet.Tag(data[0]) {
		case packet.TagAck:
			if _, err := enc.OnPacket(data); err != nil {
				log.V(1).Info("dropping ack", "err", err)
			}
		case packet.TagSource, packet.TagRepair:
			if _, err := dec.OnPacket(data); err != nil {
				log.V(1).Info("dropping packet", "err", err)
			}
		default:
			log.V(1).Info("dropping packet with unknown tag", "tag", data[0])
		}
	}
}

// readApp forwards application datagrams into the encoder.
func readApp(ctx context.Context, conn net.PacketConn, enc *encoder.Encoder, maxLen int, log logr.Logger) error {
	buf := make([]byte, maxLen)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read app: %w", err)
		}
		if err := enc.OnSymbol(buf[:n]); err != nil {
			log.V(1).Info("dropping application symbol", "err", err)
		}
	}
}

func ackLoop(ctx context.Context, dec *decoder.Decoder, sink *udpSink, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			sink.Write(dec.SendAck())
			sink.End()
		}
	}
}

type statSnapshot struct {
	EncSources uint64 `json:"encoder_sources"`
	EncRepairs uint64 `json:"encoder_repairs"`
	EncAcks    uint64 `json:"encoder_acks"`
	EncWindow  int    `json:"encoder_window"`

	DecSources     uint64 `json:"decoder_sources"`
	DecRepairs     uint64 `json:"decoder_repairs"`
	DecDecoded     uint64 `json:"decoder_decoded"`
	DecUseless     uint64 `json:"decoder_useless_repairs"`
	DecFailedFull  uint64 `json:"decoder_failed_full_decodings"`
}

// MarshalJSONObject implements gojay.MarshalerJSONObject, mirroring the
// teacher's preference for gojay over encoding/json on the hot path.
func (s statSnapshot) MarshalJSONObject(enc *gojay.Encoder) {
	enc.Uint64Key("encoder_sources", s.EncSources)
	enc.Uint64Key("encoder_repairs", s.EncRepairs)
	enc.Uint64Key("encoder_acks", s.EncAcks)
	enc.IntKey("encoder_window", s.EncWindow)
	enc.Uint64Key("decoder_sources", s.DecSources)
	enc.Uint64Key("decoder_repairs", s.DecRepairs)
	enc.Uint64Key("decoder_decoded", s.DecDecoded)
	enc.Uint64Key("decoder_useless_repairs", s.DecUseless)
	enc.Uint64Key("decoder_failed_full_decodings", s.DecFailedFull)
}

func (s statSnapshot) IsNil() bool { return false }

func statsLoop(ctx context.Context, enc *encoder.Encoder, dec *decoder.Decoder, interval time.Duration, log logr.Logger) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			es := enc.Stats()
			ds := dec.Stats()
			snap := statSnapshot{
				EncSources: es.NbSources, EncRepairs: es.NbRepairs, EncAcks: es.NbAcks, EncWindow: enc.Window(),
				DecSources: ds.NbSources, DecRepairs: ds.NbRepairs, DecDecoded: ds.NbDecoded,
				DecUseless: ds.NbUselessRepairs, DecFailedFull: ds.NbFailedFullDecodings,
			}
			out, err := gojay.MarshalJSONObject(snap)
			if err != nil {
				log.V(1).Info("failed marshaling stats", "err", err)
				continue
			}
			fmt.Fprintln(os.Stdout, string(out))
		}
	}
}

// udpSink implements encoder.Sink by accumulating chunks and flushing them
// as one datagram on End(), mirroring accelerator::packet_handler.
type udpSink struct {
	conn net.PacketConn
	addr net.Addr
	buf  []byte
}

func (s *udpSink) Write(p []byte) { s.buf = append(s.buf, p...) }
func (s *udpSink) End() {
	if len(s.buf) > 0 {
		_, _ = s.conn.WriteTo(s.buf, s.addr)
	}
	s.buf = s.buf[:0]
}
