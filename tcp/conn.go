package tcp

import (
	"microstack/buffer"
	"microstack/ipv4"
)

// maxSegmentSize is the largest single-segment payload this stack will
// ever emit absent a smaller peer-advertised MSS: MTU minus the IPv4 and
// TCP fixed headers, leaving no room for options on either side.
const maxSegmentSize = ipv4.MTU - 20 - sizeHeader

// connKey identifies a connection as (remote IP, remote port, local
// port).
type connKey struct {
	remoteIP   [4]byte
	remotePort uint16
	localPort  uint16
}

// Conn is one TCP connection: unackSeq (first unacknowledged tx
// sequence), nextSeq (next sequence to emit), ack (next receive
// sequence expected), remoteWin, plus the rx/tx buffers and the handler
// invoked on lifecycle events.
//
// Invariants: unackSeq <= nextSeq; nextSeq-unackSeq <= txBuf.Len(),
// plus one for an unacknowledged SYN or FIN, which occupy a sequence
// number but no tx_buf byte;
// nextSeq-unackSeq <= remoteWin; rxBuf.Len() <= rxBuf.Capacity().
type Conn struct {
	stack *Stack

	state     State
	key       connKey
	unackSeq  uint32
	nextSeq   uint32
	ack       uint32
	remoteWin uint16
	remoteMSS uint16
	handler   Handler
	rxBuf     *buffer.Buffer
	txBuf     *buffer.Buffer
}

// RemoteAddr returns the peer's IPv4 address and port.
func (c *Conn) RemoteAddr() (ip [4]byte, port uint16) { return c.key.remoteIP, c.key.remotePort }

// LocalPort returns the local listener port this connection was
// accepted on.
func (c *Conn) LocalPort() uint16 { return c.key.localPort }

// State returns the connection's current state.
func (c *Conn) State() State { return c.state }

// unsentOffset is the offset in tx_buf of the first byte not yet
// reflected in a segment (nextSeq - unackSeq bytes have been sent but
// not acked; anything past that, up to txBuf.Len(), is unsent).
func (c *Conn) unsentOffset() int { return int(c.nextSeq - c.unackSeq) }

// segmentCap returns the largest payload this connection may pack into a
// single outgoing segment, clamped to the peer's observed MSS when one
// was present on its SYN.
func (c *Conn) segmentCap() int {
	segCap := maxSegmentSize
	if c.remoteMSS != 0 && int(c.remoteMSS) < segCap {
		segCap = int(c.remoteMSS)
	}
	return segCap
}

// Write implements tcp_connect_write: enqueue up to len(p) bytes for
// send, refusing (returning 0) if the peer's advertised window would be
// exceeded or the buffer is full. When appending would overflow the
// buffer tail, Write compacts the buffer to its origin and, if unsent
// bytes are queued, flushes them in a segment carrying ACK to free
// space as soon as the peer acknowledges. Otherwise Write only
// enqueues: a write made from inside a DATA_RECV handler is coalesced
// into the ACK the engine sends for the triggering segment once the
// handler returns, and a write made outside any handler callback rides
// the next segment the engine emits for this connection.
func (c *Conn) Write(p []byte) (int, error) {
	if c.state != StateEstablished {
		return 0, errNotEstablished
	}
	outstanding := c.unsentOffset()
	if uint32(outstanding+len(p)) >= uint32(c.remoteWin) {
		return 0, nil // Window-blocked; caller retries.
	}
	if c.txBuf.TailRoom() < len(p) {
		c.txBuf.Compact()
		if outstanding < c.txBuf.Len() {
			if err := c.stack.flush(c, FlagACK); err != nil {
				return 0, err
			}
		}
	}
	n := c.txBuf.Append(p)
	if n == 0 {
		return 0, nil // Buffer full; caller retries.
	}
	return n, nil
}

// Read implements tcp_connect_read: copy up to len(p) received bytes
// from the buffer head into p, stripping and compacting as needed.
func (c *Conn) Read(p []byte) int {
	n := copy(p, c.rxBuf.Data())
	c.rxBuf.RemoveHeader(n)
	c.rxBuf.Compact()
	return n
}

// Close implements tcp_connect_close: if ESTABLISHED, flush pending tx
// with FIN+ACK and move to FIN_WAIT_1; otherwise release immediately.
func (c *Conn) Close() error {
	if c.state != StateEstablished {
		c.stack.release(c.key)
		return nil
	}
	if err := c.stack.flush(c, FlagACK|FlagFIN); err != nil {
		return err
	}
	c.state = StateFinWait1
	return nil
}
