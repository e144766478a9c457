package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/snapbooth/booth/internal/session"
)

// ErrTooManyConnections is returned by AddClient when the connection limit
// is reached.
var ErrTooManyConnections = errors.New("too many websocket connections")

const writeWait = 10 * time.Second

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, 64),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			// Drain so broadcasters never block on a dead client.
			for range c.send {
			}
			return
		}
	}
}

func (c *client) close() {
	close(c.send)
}

// Broadcaster fans booth events and periodic snapshots out to websocket
// clients. It implements session.Notifier and never blocks the publisher:
// a client whose buffer is full is disconnected.
type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	maxConns int

	// sendMu orders sequence assignment and fan-out.
	sendMu sync.Mutex
	seq    uint64

	snapshot       func() SnapshotPayload
	snapshotTicker *time.Ticker
	stop           chan struct{}
	stopOnce       sync.Once
	logger         logrus.FieldLogger
}

// NewBroadcaster starts a broadcaster that pushes snapshot() to every client
// each snapshotInterval. maxConns <= 0 means unlimited.
func NewBroadcaster(snapshot func() SnapshotPayload, snapshotInterval time.Duration, maxConns int, logger logrus.FieldLogger) *Broadcaster {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if snapshotInterval <= 0 {
		snapshotInterval = 5 * time.Second
	}
	b := &Broadcaster{
		clients:  make(map[*client]bool),
		maxConns: maxConns,
		snapshot: snapshot,
		stop:     make(chan struct{}),
		logger:   logger.WithField("component", "ws"),
	}

	b.snapshotTicker = time.NewTicker(snapshotInterval)
	go b.snapshotLoop()

	return b
}

func (b *Broadcaster) AddClient(conn *websocket.Conn) (*client, error) {
	b.mu.Lock()
	if b.maxConns > 0 && len(b.clients) >= b.maxConns {
		b.mu.Unlock()
		return nil, ErrTooManyConnections
	}
	c := newClient(conn)
	b.clients[c] = true
	b.mu.Unlock()

	// New clients start from a full snapshot. The snapshot is taken before
	// sendMu: it reads booth state, whose lock is held while publishing.
	payload := b.snapshot()
	b.sendMu.Lock()
	defer b.sendMu.Unlock()
	data, err := b.encodeLocked(MsgSnapshot, payload)
	if err != nil {
		return c, nil
	}
	select {
	case c.send <- data:
	default:
	}
	return c, nil
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.sendMu.Lock()
	defer b.sendMu.Unlock()
	b.removeClient(c)
}

// removeClient closes c's queue. Caller holds sendMu so no send races the
// close.
func (b *Broadcaster) removeClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

// Publish sends a booth event to every client.
func (b *Broadcaster) Publish(e session.Event) {
	b.broadcast(MsgEvent, e)
}

func (b *Broadcaster) snapshotLoop() {
	for {
		select {
		case <-b.stop:
			return
		case <-b.snapshotTicker.C:
			b.broadcast(MsgSnapshot, b.snapshot())
		}
	}
}

func (b *Broadcaster) broadcast(t MessageType, payload interface{}) {
	b.sendMu.Lock()
	defer b.sendMu.Unlock()

	data, err := b.encodeLocked(t, payload)
	if err != nil {
		b.logger.WithError(err).Error("broadcast marshal error")
		return
	}

	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			b.logger.Warn("ws client too slow, disconnecting")
			b.removeClient(c)
		}
	}
}

// encodeLocked assigns the next sequence number. Caller holds sendMu.
func (b *Broadcaster) encodeLocked(t MessageType, payload interface{}) ([]byte, error) {
	b.seq++
	return json.Marshal(WSMessage{Type: t, Seq: b.seq, Payload: payload})
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Close stops the snapshot loop and disconnects every client.
func (b *Broadcaster) Close() {
	b.stopOnce.Do(func() {
		close(b.stop)
		b.snapshotTicker.Stop()

		b.sendMu.Lock()
		defer b.sendMu.Unlock()
		b.mu.Lock()
		for c := range b.clients {
			delete(b.clients, c)
			c.close()
		}
		b.mu.Unlock()
	})
}
