// Package quic is the host-facing harness around the transport package's
// connection state machine: it owns the UDP socket, demultiplexes
// datagrams to connections by remote address, and drives each
// transport.Connection's Send/Receive/CheckTimeout loop.
package quic

import (
	"crypto/rand"
	"encoding/binary"
	"net"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/bhesmans/quince/transport"
)

// EventType distinguishes what a Handler's Serve call is being notified
// about.
type EventType int

const (
	// EventConnAccept fires once for a newly accepted or connected Conn,
	// right after its handshake completes.
	EventConnAccept EventType = iota
	// EventStreamReadable fires when a stream received new bytes or FIN.
	EventStreamReadable
	// EventConnClose fires once a Conn is done and its resources freed.
	EventConnClose
)

// Event is one notification delivered to a Handler.
type Event struct {
	Type     EventType
	StreamID uint32
}

// Handler is the application callback invoked after every batch of
// datagrams processed for a Conn.
type Handler interface {
	Serve(c *Conn, events []Event)
}

// Config configures an Endpoint. TLS must produce a fresh
// transport.Handshake engine per connection; the quic package never picks
// a concrete TLS stack itself.
type Config struct {
	TLS             func(isClient bool) transport.Handshake
	TransportParams transport.TransportParameters
	Logger          *logrus.Logger
}

func (c *Config) logger() *logrus.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	l := logrus.New()
	l.SetOutput(os.Stdout)
	return l
}

// Conn is one connection as seen by the host: a transport.Connection plus
// its remote address and per-connection logging.
type Conn struct {
	addr          net.Addr
	transportConn *transport.Connection
	endpoint      *Endpoint
	logger        *connLogger
	wasActive     bool

	timerStop chan struct{}
	closeOnce sync.Once
}

// RemoteAddr returns the connection's peer address.
func (c *Conn) RemoteAddr() net.Addr { return c.addr }

// Stream returns the stream for id, opening implied peer-initiated
// streams as needed.
func (c *Conn) Stream(id uint32) *transport.Stream {
	s, err := c.transportConn.Stream(id)
	if err != nil {
		return nil
	}
	return s
}

// OpenStream allocates a new host-initiated stream.
func (c *Conn) OpenStream() (*transport.Stream, error) {
	s, err := c.transportConn.OpenStream()
	if err != nil {
		return nil, err
	}
	c.endpoint.streamGauge.Inc()
	return s, nil
}

// Endpoint is a QUIC client or server bound to one UDP socket.
type Endpoint struct {
	pconn    net.PacketConn
	isClient bool
	config   Config
	logger   *logrus.Logger

	mu    sync.Mutex
	conns map[string]*Conn

	handler Handler

	connGauge   prometheus.Gauge
	streamGauge prometheus.Gauge

	closeOnce sync.Once
	done      chan struct{}
}

func newEndpoint(isClient bool, config Config) *Endpoint {
	return &Endpoint{
		isClient: isClient,
		config:   config,
		logger:   config.logger(),
		conns:    make(map[string]*Conn),
		done:     make(chan struct{}),
		connGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "quince",
			Name:      "connections_active",
			Help:      "Number of active QUIC connections.",
		}),
		streamGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "quince",
			Name:      "streams_active",
			Help:      "Number of active QUIC streams across all connections.",
		}),
	}
}

// NewClient creates a client-mode Endpoint.
func NewClient(config Config) *Endpoint { return newEndpoint(true, config) }

// NewServer creates a server-mode Endpoint.
func NewServer(config Config) *Endpoint { return newEndpoint(false, config) }

// SetHandler installs the application callback.
func (e *Endpoint) SetHandler(h Handler) { e.handler = h }

// Collectors exposes the endpoint's prometheus gauges for registration by
// the host.
func (e *Endpoint) Collectors() []prometheus.Collector {
	return []prometheus.Collector{e.connGauge, e.streamGauge}
}

// ListenAndServe binds the UDP socket and starts the receive loop in the
// background.
func (e *Endpoint) ListenAndServe(addr string) error {
	pconn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return err
	}
	e.pconn = pconn
	go e.serve()
	return nil
}

// Connect dials a server and starts its handshake. Only valid for a
// client-mode Endpoint.
func (e *Endpoint) Connect(addr string) error {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	c := e.newConn(raddr, true)

	buf := make([]byte, 2048)
	n, err := c.transportConn.Send(time.Now(), buf)
	if err != nil {
		return err
	}
	_, err = e.pconn.WriteTo(buf[:n], raddr)
	return err
}

func (e *Endpoint) newConn(addr net.Addr, isClient bool) *Conn {
	engine := e.config.TLS(isClient)
	connectionID := generateConnectionID()
	var tc *transport.Connection
	if isClient {
		tc = transport.Connect(connectionID, engine, e.config.TransportParams)
	} else {
		tc = transport.Accept(connectionID, engine, e.config.TransportParams)
	}
	c := &Conn{addr: addr, transportConn: tc, endpoint: e, timerStop: make(chan struct{})}
	c.logger = newConnLogger(e.logger, addr, connectionID)
	c.logger.attach(c)
	tc.OnStreamOpen(func(*transport.Stream) { e.streamGauge.Inc() })
	tc.OnStreamClose(func(*transport.Stream) { e.streamGauge.Dec() })

	e.mu.Lock()
	e.conns[addr.String()] = c
	e.mu.Unlock()
	e.connGauge.Inc()
	go e.runTimer(c)
	return c
}

// runTimer drives CheckTimeout/NextTimeout independently of datagram
// arrival, so RTO-based retransmission and idle-timeout closure happen
// even while the peer goes quiet.
func (e *Endpoint) runTimer(c *Conn) {
	timer := time.NewTimer(time.Until(c.transportConn.NextTimeout()))
	defer timer.Stop()
	for {
		select {
		case <-e.done:
			return
		case <-c.timerStop:
			return
		case <-timer.C:
			e.handleTimeout(c)
			select {
			case <-c.timerStop:
				return
			default:
			}
			timer.Reset(time.Until(c.transportConn.NextTimeout()))
		}
	}
}

func (e *Endpoint) handleTimeout(c *Conn) {
	now := time.Now()
	events := []Event{}
	if err := c.transportConn.CheckTimeout(now); err != nil {
		if err == transport.ErrFreeConnection {
			e.closeConn(c, &events)
		}
	}
	e.drainSend(c)
	if e.handler != nil && len(events) > 0 {
		e.handler.Serve(c, events)
	}
}

func (e *Endpoint) serve() {
	buf := make([]byte, 2048)
	for {
		n, addr, err := e.pconn.ReadFrom(buf)
		if err != nil {
			select {
			case <-e.done:
				return
			default:
			}
			e.logger.WithError(err).Error("read failed")
			return
		}
		e.handleDatagram(addr, buf[:n])
	}
}

func (e *Endpoint) handleDatagram(addr net.Addr, data []byte) {
	now := time.Now()
	e.mu.Lock()
	c, ok := e.conns[addr.String()]
	e.mu.Unlock()
	if !ok {
		if e.isClient {
			return // unexpected datagram from an address we never dialed
		}
		c = e.newConn(addr, false)
	}

	wasActive := c.transportConn.IsActive()
	events := []Event{}
	if err := c.transportConn.Receive(now, data); err != nil {
		if err == transport.ErrFreeConnection {
			e.closeConn(c, &events)
		} else {
			e.logger.WithError(err).WithField("addr", addr.String()).Debug("receive failed")
		}
	}
	if !wasActive && c.transportConn.IsActive() {
		events = append(events, Event{Type: EventConnAccept})
	}
	for _, id := range c.transportConn.TouchedStreams() {
		events = append(events, Event{Type: EventStreamReadable, StreamID: id})
	}

	e.drainSend(c)

	if e.handler != nil && len(events) > 0 {
		e.handler.Serve(c, events)
	}
}

// drainSend flushes every packet a connection currently has pending.
func (e *Endpoint) drainSend(c *Conn) {
	buf := make([]byte, 2048)
	for {
		n, err := c.transportConn.Send(time.Now(), buf)
		if err != nil || n == 0 {
			return
		}
		if _, err := e.pconn.WriteTo(buf[:n], c.addr); err != nil {
			return
		}
	}
}

func (e *Endpoint) closeConn(c *Conn, events *[]Event) {
	c.closeOnce.Do(func() {
		close(c.timerStop)
		c.logger.detach(c)
		e.mu.Lock()
		delete(e.conns, c.addr.String())
		e.mu.Unlock()
		e.connGauge.Dec()
		*events = append(*events, Event{Type: EventConnClose})
	})
}

func generateConnectionID() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return binary.BigEndian.Uint64(b[:])
}

// Close stops the receive loop and releases the socket.
func (e *Endpoint) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.done)
		if e.pconn != nil {
			err = e.pconn.Close()
		}
	})
	return err
}
