// Package transport carries CRDT anti-entropy messages between peers
// over mutually authenticated TLS connections. Framing is a 4-byte
// big-endian length prefix followed by a msgpack-encoded
// crdtkernel.SyncMessage, mirroring the self-describing,
// length-prefixed wire shape hashicorp/raft's own RPC layer uses, but
// built on PRISM's own node identity (mTLS, not raft's trusted-network
// assumption).
package transport

import (
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/go-msgpack/v2/codec"

	"github.com/prism-io/prism/pkg/crdtkernel"
	"github.com/prism-io/prism/pkg/log"
	"github.com/prism-io/prism/pkg/metrics"
	"github.com/prism-io/prism/pkg/prismerr"
	"github.com/prism-io/prism/pkg/types"
)

// maxFrameSize guards against a corrupt or hostile length prefix
// forcing an unbounded allocation.
const maxFrameSize = 64 << 20 // 64MiB

var msgpackHandle = &codec.MsgpackHandle{}

// Handler processes one inbound SyncMessage from peer. Implemented by
// crdtkernel.SyncManager.HandleMessage.
type Handler func(peer types.NodeId, msg crdtkernel.SyncMessage) error

// Config configures a Transport's listener and peer dial behavior.
type Config struct {
	ListenAddr  string
	TLSConfig   *tls.Config
	DialTimeout time.Duration
}

func DefaultConfig(listenAddr string, tlsConfig *tls.Config) Config {
	return Config{
		ListenAddr:  listenAddr,
		TLSConfig:   tlsConfig,
		DialTimeout: 5 * time.Second,
	}
}

// Transport listens for inbound peer connections and dials outbound
// ones, both over TLS, and implements crdtkernel.Sender so a
// SyncManager can hand it messages directly.
type Transport struct {
	cfg     Config
	handler Handler

	listener net.Listener

	mu    sync.Mutex
	peers map[types.NodeId]string // NodeId -> dial address
	conns map[types.NodeId]*tls.Conn

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewTransport(cfg Config, handler Handler) *Transport {
	return &Transport{
		cfg:     cfg,
		handler: handler,
		peers:   make(map[types.NodeId]string),
		conns:   make(map[types.NodeId]*tls.Conn),
		stopCh:  make(chan struct{}),
	}
}

// AddPeer registers (or updates) the dial address for a peer NodeId.
func (t *Transport) AddPeer(id types.NodeId, addr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers[id] = addr
	if conn, ok := t.conns[id]; ok {
		conn.Close()
		delete(t.conns, id)
	}
}

// RemovePeer drops a peer's dial address and closes any cached connection.
func (t *Transport) RemovePeer(id types.NodeId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, id)
	if conn, ok := t.conns[id]; ok {
		conn.Close()
		delete(t.conns, id)
	}
}

// Start begins accepting inbound connections.
func (t *Transport) Start() error {
	ln, err := tls.Listen("tcp", t.cfg.ListenAddr, t.cfg.TLSConfig)
	if err != nil {
		return prismerr.Wrap(prismerr.KindFatal, "listen_failed", "start transport listener", err)
	}
	t.listener = ln

	t.wg.Add(1)
	go t.acceptLoop()
	log.WithComponent("transport").Info().Str("addr", t.cfg.ListenAddr).Msg("transport listening")
	return nil
}

// Stop closes the listener and all cached outbound connections.
func (t *Transport) Stop() error {
	close(t.stopCh)
	if t.listener != nil {
		t.listener.Close()
	}
	t.mu.Lock()
	for id, conn := range t.conns {
		conn.Close()
		delete(t.conns, id)
	}
	t.mu.Unlock()
	t.wg.Wait()
	return nil
}

func (t *Transport) acceptLoop() {
	defer t.wg.Done()
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.stopCh:
				return
			default:
				log.WithComponent("transport").Error().Err(err).Msg("accept failed")
				continue
			}
		}
		t.wg.Add(1)
		go t.serve(conn)
	}
}

func (t *Transport) serve(conn net.Conn) {
	defer t.wg.Done()
	defer conn.Close()

	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return
	}
	if err := tlsConn.Handshake(); err != nil {
		log.WithComponent("transport").Error().Err(err).Msg("tls handshake failed")
		return
	}

	peer, err := peerIdentity(tlsConn)
	if err != nil {
		log.WithComponent("transport").Error().Err(err).Msg("could not identify peer from certificate")
		return
	}

	for {
		msg, err := readFrame(tlsConn)
		if err != nil {
			if err != io.EOF {
				log.WithComponent("transport").Error().Err(err).Str("peer", peer.String()).Msg("read frame failed")
			}
			return
		}

		var syncMsg crdtkernel.SyncMessage
		if err := decodeMsgpack(msg, &syncMsg); err != nil {
			log.WithComponent("transport").Error().Err(err).Msg("decode sync message failed")
			continue
		}

		metrics.CRDTSyncMessagesTotal.WithLabelValues(string(syncMsg.Kind), "received").Inc()
		if err := t.handler(peer, syncMsg); err != nil {
			log.WithComponent("transport").Error().Err(err).Str("peer", peer.String()).Msg("handle sync message failed")
		}
	}
}

// SendSync implements crdtkernel.Sender, dialing (or reusing a cached
// connection to) peer and writing one framed SyncMessage.
func (t *Transport) SendSync(peer types.NodeId, msg crdtkernel.SyncMessage) error {
	conn, err := t.dial(peer)
	if err != nil {
		return err
	}

	encoded, err := encodeMsgpack(msg)
	if err != nil {
		return err
	}

	if err := writeFrame(conn, encoded); err != nil {
		t.mu.Lock()
		delete(t.conns, peer)
		t.mu.Unlock()
		conn.Close()
		return prismerr.Wrap(prismerr.KindTransient, "send_failed", fmt.Sprintf("write sync message to %s", peer), err)
	}

	metrics.CRDTSyncMessagesTotal.WithLabelValues(string(msg.Kind), "sent").Inc()
	return nil
}

func (t *Transport) dial(peer types.NodeId) (*tls.Conn, error) {
	t.mu.Lock()
	if conn, ok := t.conns[peer]; ok {
		t.mu.Unlock()
		return conn, nil
	}
	addr, ok := t.peers[peer]
	t.mu.Unlock()
	if !ok {
		return nil, prismerr.New(prismerr.KindPrecondition, "unknown_peer", fmt.Sprintf("no dial address for peer %s", peer))
	}

	dialer := &net.Dialer{Timeout: t.cfg.DialTimeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, t.cfg.TLSConfig)
	if err != nil {
		return nil, prismerr.Wrap(prismerr.KindTransient, "dial_failed", fmt.Sprintf("dial peer %s at %s", peer, addr), err)
	}

	t.mu.Lock()
	t.conns[peer] = conn
	t.mu.Unlock()
	return conn, nil
}

// peerIdentity extracts the NodeId a peer authenticated as from its
// leaf certificate's CommonName, stamped by the CA as "{role}-{nodeID}".
// nodeID is a UUID and itself contains dashes, so the role prefix is
// split off at the first dash, not the last.
func peerIdentity(conn *tls.Conn) (types.NodeId, error) {
	state := conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return types.NodeId{}, prismerr.New(prismerr.KindPrecondition, "no_peer_cert", "peer presented no certificate")
	}
	cn := state.PeerCertificates[0].Subject.CommonName
	idx := firstDash(cn)
	if idx < 0 {
		return types.NodeId{}, prismerr.New(prismerr.KindPrecondition, "malformed_peer_cn", fmt.Sprintf("peer certificate CN %q is not role-nodeID", cn))
	}
	return types.ParseNodeId(cn[idx+1:])
}

func firstDash(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '-' {
			return i
		}
	}
	return -1
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameSize {
		return nil, prismerr.New(prismerr.KindPrecondition, "frame_too_large", fmt.Sprintf("frame of %d bytes exceeds limit", n))
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeFrame(w io.Writer, data []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func encodeMsgpack(v any) ([]byte, error) {
	var buf []byte
	enc := codec.NewEncoderBytes(&buf, msgpackHandle)
	if err := enc.Encode(v); err != nil {
		return nil, prismerr.Wrap(prismerr.KindFatal, "encode_failed", "encode sync message", err)
	}
	return buf, nil
}

func decodeMsgpack(data []byte, v any) error {
	dec := codec.NewDecoderBytes(data, msgpackHandle)
	if err := dec.Decode(v); err != nil {
		return prismerr.Wrap(prismerr.KindFatal, "decode_failed", "decode sync message", err)
	}
	return nil
}
