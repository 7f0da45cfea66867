package transportio

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/Vladgobelen/NSQCuP/internal/clientid"
	"github.com/Vladgobelen/NSQCuP/internal/metrics"
)

// KeepAliveInterval is how often the keep-alive worker writes a single
// liveness byte, per spec.md's runtime parameter table.
const KeepAliveInterval = 1 * time.Second

// Socket is a UDP connection fixed to one remote reflector address.
// It is the minimal surface the sender/receiver/keep-alive workers
// need, and wraps a *net.UDPConn directly.
type Socket struct {
	conn *net.UDPConn
}

// Dial opens a UDP socket connected to host:port. Because the socket is
// connected, Write sends to the reflector and Read only ever returns
// datagrams from it.
func Dial(host string, port int) (*Socket, error) {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, fmt.Errorf("transportio: resolve %s:%d: %w", host, port, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("transportio: dial %s:%d: %w", host, port, err)
	}
	return &Socket{conn: conn}, nil
}

// Close closes the underlying connection.
func (s *Socket) Close() error {
	return s.conn.Close()
}

// Write sends one datagram to the reflector.
func (s *Socket) Write(b []byte) error {
	_, err := s.conn.Write(b)
	return err
}

// ReadPacket blocks until one datagram arrives, or the read deadline
// (set by the caller via SetReadDeadline) expires.
func (s *Socket) ReadPacket(buf []byte) (int, error) {
	return s.conn.Read(buf)
}

// SetReadDeadline bounds the next ReadPacket call, letting the receive
// loop check ctx.Done() periodically instead of blocking forever.
func (s *Socket) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

// SendKeepAlives writes a single 0x00 byte every KeepAliveInterval
// until ctx is cancelled, matching spec.md §4.4's keep-alive worker.
func SendKeepAlives(ctx context.Context, sock *Socket, log *zap.SugaredLogger) {
	ticker := time.NewTicker(KeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sock.Write(KeepAlive); err != nil {
				log.Debugw("keep-alive send failed", "error", err)
			}
		}
	}
}

// SendQueue drains packets from out and writes them to sock until ctx
// is cancelled or out is closed, matching spec.md §4.4's sender worker.
// m may be nil, in which case no metric is reported.
func SendQueue(ctx context.Context, sock *Socket, out <-chan []byte, log *zap.SugaredLogger, m *metrics.Metrics) {
	for {
		select {
		case <-ctx.Done():
			return
		case packet, ok := <-out:
			if !ok {
				return
			}
			if err := sock.Write(packet); err != nil {
				log.Warnw("send failed", "error", err)
				continue
			}
			if m != nil {
				m.PacketsSent.Inc()
			}
		}
	}
}

// Receive reads datagrams until ctx is cancelled, classifying each and
// invoking onData for well-formed data packets. It polls ctx.Done()
// between reads via a short read deadline rather than blocking
// indefinitely, so Disconnect can stop it promptly. m may be nil, in
// which case no metric is reported.
func Receive(ctx context.Context, sock *Socket, self clientid.ID, onData func(Packet), log *zap.SugaredLogger, m *metrics.Metrics) {
	buf := make([]byte, 65536)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		sock.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, err := sock.ReadPacket(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
				return
			default:
				log.Warnw("receive failed", "error", err)
				continue
			}
		}

		pkt := Classify(buf[:n], self)
		if pkt.Kind != KindData {
			continue
		}
		if m != nil {
			m.PacketsReceived.Inc()
		}
		onData(pkt)
	}
}
