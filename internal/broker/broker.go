// Package broker implements the relay hub that connects bridges. Each
// authenticated websocket connection is one peer; every frame a peer
// sends is relayed verbatim to every other peer currently connected.
package broker

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/beanfork/mbus/internal/wire"
)

// writeTimeout bounds a single relay write so one stalled peer cannot
// wedge an origin's receive loop forever.
const writeTimeout = 10 * time.Second

// peer is one accepted, authenticated connection.
type peer struct {
	id   string
	conn *websocket.Conn

	// writeMu serializes writes; relay loops of different origins may
	// target the same peer concurrently.
	writeMu sync.Mutex
}

func (p *peer) write(data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return p.conn.Write(ctx, websocket.MessageText, data)
}

// Broker accepts bridge connections and relays every message from one
// peer to all the others. It holds no message state: delivery is best
// effort, at most once, no retry.
type Broker struct {
	authKey []byte
	e       *echo.Echo

	mu    sync.Mutex
	peers map[string]*peer
}

// New creates a Broker that admits only clients presenting authKey.
// The key must be passed explicitly; there is no process-wide default.
func New(authKey []byte) *Broker {
	b := &Broker{
		authKey: authKey,
		peers:   make(map[string]*peer),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.GET(wire.RelayPath, b.relayHandler)
	e.GET("/healthz", b.healthHandler)
	b.e = e

	return b
}

// Handler exposes the broker's HTTP surface, mainly for tests that
// mount it on an httptest server.
func (b *Broker) Handler() http.Handler {
	return b.e
}

// Serve runs the broker on an existing listener until Shutdown. The
// caller owning the listener is what lets the daemon bind ":0" and
// publish the real address in the descriptor file.
func (b *Broker) Serve(ln net.Listener) error {
	b.e.Listener = ln
	err := b.e.Start("")
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server and closes every connected peer.
func (b *Broker) Shutdown(ctx context.Context) error {
	err := b.e.Shutdown(ctx)

	b.mu.Lock()
	peers := make([]*peer, 0, len(b.peers))
	for _, p := range b.peers {
		peers = append(peers, p)
	}
	b.peers = make(map[string]*peer)
	b.mu.Unlock()

	for _, p := range peers {
		p.conn.Close(websocket.StatusGoingAway, "broker shutting down")
	}
	return err
}

// PeerCount reports how many peers are currently connected.
func (b *Broker) PeerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.peers)
}

func (b *Broker) healthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"peers":  b.PeerCount(),
	})
}

// relayHandler authenticates the client, upgrades to websocket and runs
// the per-connection receive loop until the peer disconnects. One
// goroutine per connection; the blocking read is the only suspension
// point.
func (b *Broker) relayHandler(c echo.Context) error {
	if !b.authorize(c.Request()) {
		slog.Warn("rejecting unauthenticated connection", "remote", c.RealIP())
		return c.NoContent(http.StatusUnauthorized)
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true, // bridges are not browsers; the authkey is the gate
	})
	if err != nil {
		slog.Error("websocket upgrade failed", "remote", c.RealIP(), "error", err)
		return err
	}

	p := &peer{id: uuid.NewString(), conn: conn}
	b.addPeer(p)
	slog.Info("peer connected", "peer", p.id, "remote", c.RealIP())

	defer func() {
		b.removePeer(p)
		conn.Close(websocket.StatusNormalClosure, "")
		slog.Info("peer disconnected", "peer", p.id)
	}()

	ctx := context.Background()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				slog.Debug("peer read ended", "peer", p.id, "error", err)
			}
			return nil
		}

		// Decode only to validate. A frame that does not parse is
		// dropped and the connection lives on; the bytes relayed to the
		// other peers are the originals, untouched.
		if _, _, err := wire.Decode(data); err != nil {
			slog.Warn("dropping malformed frame", "peer", p.id, "error", err)
			continue
		}

		b.relay(p, data)
	}
}

// relay writes data to every peer except the origin. Membership is
// snapshotted under the lock first so a concurrent disconnect cannot
// disturb the iteration; a failed write evicts that one peer and the
// remaining deliveries continue.
func (b *Broker) relay(origin *peer, data []byte) {
	b.mu.Lock()
	targets := make([]*peer, 0, len(b.peers))
	for _, p := range b.peers {
		if p.id != origin.id {
			targets = append(targets, p)
		}
	}
	b.mu.Unlock()

	for _, p := range targets {
		if err := p.write(data); err != nil {
			slog.Warn("evicting peer after failed write", "peer", p.id, "error", err)
			b.removePeer(p)
			p.conn.Close(websocket.StatusAbnormalClosure, "write failed")
		}
	}
}

func (b *Broker) addPeer(p *peer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.peers[p.id] = p
}

func (b *Broker) removePeer(p *peer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.peers, p.id)
}

// authorize checks the bearer token against the broker's authkey in
// constant time.
func (b *Broker) authorize(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return false
	}
	key, err := hex.DecodeString(token)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(key, b.authKey) == 1
}
