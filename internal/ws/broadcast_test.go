package ws

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/snapbooth/booth/internal/booth"
	"github.com/snapbooth/booth/internal/monitor"
	"github.com/snapbooth/booth/internal/session"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func staticSnapshot() SnapshotPayload {
	return SnapshotPayload{
		Booth:  booth.Status{State: session.Idle, SessionIndex: 4},
		Health: monitor.Health{Status: monitor.Connected, Indicator: monitor.Connected.Indicator()},
	}
}

// dialTestWS creates a test HTTP server that upgrades to WebSocket and returns
// the server-side connection plus the dialled client side. The caller must
// close the server and both connections.
func dialTestWS(t *testing.T) (*httptest.Server, *websocket.Conn, *websocket.Conn) {
	t.Helper()

	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		connCh <- c
	}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}

	select {
	case serverConn := <-connCh:
		return srv, serverConn, clientConn
	case <-time.After(2 * time.Second):
		clientConn.Close()
		srv.Close()
		t.Fatal("timed out waiting for server-side WebSocket connection")
		return nil, nil, nil
	}
}

type rawMessage struct {
	Type    MessageType     `json:"type"`
	Seq     uint64          `json:"seq"`
	Payload json.RawMessage `json:"payload"`
}

func readMessage(t *testing.T, conn *websocket.Conn) rawMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg rawMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return msg
}

func TestAddClientSendsSnapshot(t *testing.T) {
	b := NewBroadcaster(staticSnapshot, time.Hour, 0, quietLogger())
	defer b.Close()

	srv, serverConn, clientConn := dialTestWS(t)
	defer srv.Close()
	defer clientConn.Close()

	if _, err := b.AddClient(serverConn); err != nil {
		t.Fatalf("AddClient: %v", err)
	}

	msg := readMessage(t, clientConn)
	if msg.Type != MsgSnapshot || msg.Seq != 1 {
		t.Fatalf("first message = %s #%d, want snapshot #1", msg.Type, msg.Seq)
	}
	var payload struct {
		Booth struct {
			State        string `json:"state"`
			SessionIndex int    `json:"sessionIndex"`
		} `json:"booth"`
		Health struct {
			Status    string `json:"status"`
			Indicator string `json:"indicator"`
		} `json:"health"`
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Booth.State != "idle" || payload.Booth.SessionIndex != 4 {
		t.Errorf("unexpected booth payload %s", msg.Payload)
	}
	if payload.Health.Status != "connected" || payload.Health.Indicator != "✅" {
		t.Errorf("unexpected health payload %s", msg.Payload)
	}
}

func TestPublishKeepsOrder(t *testing.T) {
	b := NewBroadcaster(staticSnapshot, time.Hour, 0, quietLogger())
	defer b.Close()

	srv, serverConn, clientConn := dialTestWS(t)
	defer srv.Close()
	defer clientConn.Close()

	if _, err := b.AddClient(serverConn); err != nil {
		t.Fatal(err)
	}
	readMessage(t, clientConn)

	types := []session.EventType{
		session.EventState,
		session.EventInstruction,
		session.EventTick,
		session.EventShot,
		session.EventComposite,
	}
	for _, et := range types {
		b.Publish(session.Event{Type: et, State: session.CountdownSequence})
	}

	for i, want := range types {
		msg := readMessage(t, clientConn)
		if msg.Type != MsgEvent {
			t.Fatalf("message %d type = %s, want event", i, msg.Type)
		}
		if msg.Seq != uint64(i+2) {
			t.Errorf("message %d seq = %d, want %d", i, msg.Seq, i+2)
		}
		var e session.Event
		if err := json.Unmarshal(msg.Payload, &e); err != nil {
			t.Fatal(err)
		}
		if e.Type != want {
			t.Errorf("message %d event = %s, want %s", i, e.Type, want)
		}
	}
}

func TestPeriodicSnapshot(t *testing.T) {
	b := NewBroadcaster(staticSnapshot, 20*time.Millisecond, 0, quietLogger())
	defer b.Close()

	srv, serverConn, clientConn := dialTestWS(t)
	defer srv.Close()
	defer clientConn.Close()

	if _, err := b.AddClient(serverConn); err != nil {
		t.Fatal(err)
	}
	first := readMessage(t, clientConn)
	second := readMessage(t, clientConn)
	if second.Type != MsgSnapshot || second.Seq <= first.Seq {
		t.Errorf("second message = %s #%d after #%d", second.Type, second.Seq, first.Seq)
	}
}

func TestAddClient_MaxConnections(t *testing.T) {
	const maxConns = 2
	b := NewBroadcaster(staticSnapshot, time.Hour, maxConns, quietLogger())
	defer b.Close()

	var clients []*client
	var servers []*httptest.Server
	defer func() {
		for _, srv := range servers {
			srv.Close()
		}
	}()

	for i := 0; i < maxConns; i++ {
		srv, conn, peer := dialTestWS(t)
		peer.Close()
		servers = append(servers, srv)

		c, err := b.AddClient(conn)
		if err != nil {
			t.Fatalf("AddClient[%d]: unexpected error: %v", i, err)
		}
		clients = append(clients, c)
	}

	if got := b.ClientCount(); got != maxConns {
		t.Fatalf("expected %d clients, got %d", maxConns, got)
	}

	srv, conn, peer := dialTestWS(t)
	peer.Close()
	servers = append(servers, srv)

	if _, err := b.AddClient(conn); !errors.Is(err, ErrTooManyConnections) {
		t.Fatalf("expected ErrTooManyConnections, got %v", err)
	}
	conn.Close()

	b.RemoveClient(clients[0])
	if got := b.ClientCount(); got != maxConns-1 {
		t.Fatalf("expected %d clients after removal, got %d", maxConns-1, got)
	}

	srv2, conn2, peer2 := dialTestWS(t)
	peer2.Close()
	servers = append(servers, srv2)

	if _, err := b.AddClient(conn2); err != nil {
		t.Fatalf("AddClient after removal: unexpected error: %v", err)
	}
}

func TestRemoveClientTwice(t *testing.T) {
	b := NewBroadcaster(staticSnapshot, time.Hour, 0, quietLogger())
	defer b.Close()

	srv, conn, peer := dialTestWS(t)
	defer srv.Close()
	peer.Close()

	c, err := b.AddClient(conn)
	if err != nil {
		t.Fatal(err)
	}
	b.RemoveClient(c)
	b.RemoveClient(c)
	b.Publish(session.Event{Type: session.EventClear})

	if got := b.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients, got %d", got)
	}
}

func TestCloseDisconnectsClients(t *testing.T) {
	b := NewBroadcaster(staticSnapshot, time.Hour, 0, quietLogger())

	srv, serverConn, clientConn := dialTestWS(t)
	defer srv.Close()
	defer clientConn.Close()

	if _, err := b.AddClient(serverConn); err != nil {
		t.Fatal(err)
	}
	readMessage(t, clientConn)

	b.Close()
	b.Close()

	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := clientConn.ReadMessage(); err == nil {
		t.Error("expected connection to be closed")
	}
	if got := b.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after Close, got %d", got)
	}
}
