package httpapi

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/plcworks/go-plclight-server/internal/discovery"
)

var errPeerGone = errors.New("peer connection closed")

// wsPeer adapts a websocket connection to the discovery peer contract. A
// dedicated goroutine pumps inbound frames into texts so receives can be
// bounded by a timeout without abandoning reads.
type wsPeer struct {
	conn    *websocket.Conn
	texts   chan string
	done    chan struct{}
	once    sync.Once
	writeMu sync.Mutex
}

func newWSPeer(conn *websocket.Conn) *wsPeer {
	p := &wsPeer{
		conn:  conn,
		texts: make(chan string, 16),
		done:  make(chan struct{}),
	}
	go p.readLoop()
	return p
}

// readLoop owns all reads on the connection. Any read error is permanent
// for a websocket, so the loop ends the peer and exits.
func (p *wsPeer) readLoop() {
	defer p.markDone()
	for {
		kind, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		select {
		case p.texts <- string(data):
		case <-p.done:
			return
		}
	}
}

func (p *wsPeer) markDone() {
	p.once.Do(func() { close(p.done) })
}

// SendText writes one text frame. The mutex upholds the one-concurrent-
// writer rule of the websocket package.
func (p *wsPeer) SendText(text string) error {
	select {
	case <-p.done:
		return errPeerGone
	default:
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := p.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		p.markDone()
		return err
	}
	return nil
}

// ReceiveText returns the next text frame, draining buffered frames before
// reporting a dead peer.
func (p *wsPeer) ReceiveText(timeout time.Duration) (string, error) {
	select {
	case msg := <-p.texts:
		return msg, nil
	default:
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg := <-p.texts:
		return msg, nil
	case <-p.done:
		return "", errPeerGone
	case <-timer.C:
		return "", discovery.ErrPeerTimeout
	}
}

func (p *wsPeer) close() {
	p.markDone()
	_ = p.conn.Close()
}

// handleDiscovery upgrades the request and runs a discovery session over it.
// The serial port is opened before the upgrade so a busy or missing device
// still gets a regular HTTP error.
func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	cco, err := pathCCO(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	conn, err := s.ctrl.OpenTransport()
	if err != nil {
		writeErr(w, err)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		conn.Close()
		return
	}

	id := uuid.NewString()
	log := s.logger.With("session_id", id, "cco", string(cco))
	peer := newWSPeer(ws)
	opts := append([]discovery.Option{discovery.WithLogger(log)}, s.sessOpts...)
	sess := discovery.New(conn, peer, cco, opts...)
	s.registry.Add(id, sess)
	defer s.registry.Remove(id)

	log.Info("ws_connected", "remote", r.RemoteAddr)
	if err := sess.Run(r.Context()); err != nil {
		log.Warn("discovery_failed", "err", err)
	}
	peer.close()
	log.Info("ws_disconnected")
}
