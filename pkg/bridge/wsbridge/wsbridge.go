// Package wsbridge fans received P2P packet content out to any number of
// connected websocket clients, for a browser-based debug view of live
// traffic. It is read-only: clients cannot inject packets back onto the
// wire through it.
package wsbridge

import (
	"net/http"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"
)

// Bridge accepts websocket connections at its Handler and broadcasts
// every Publish call's payload to all of them.
type Bridge struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
}

// New creates an empty Bridge.
func New() *Bridge {
	return &Bridge{clients: make(map[*websocket.Conn]chan []byte)}
}

// Handler returns an http.Handler accepting websocket upgrades, to be
// mounted under a debug path by the host process's HTTP server.
func (b *Bridge) Handler() http.Handler {
	return websocket.Handler(b.serve)
}

func (b *Bridge) serve(ws *websocket.Conn) {
	ch := make(chan []byte, 64)
	b.mu.Lock()
	b.clients[ws] = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.clients, ws)
		b.mu.Unlock()
		ws.Close()
	}()

	for payload := range ch {
		if err := websocket.Message.Send(ws, payload); err != nil {
			glog.V(1).Infof("wsbridge: send failed, dropping client: %v", err)
			return
		}
	}
}

// Publish broadcasts payload to every currently-connected client. Slow
// clients whose queue is full have this frame dropped rather than
// blocking the publisher.
func (b *Bridge) Publish(payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.clients {
		select {
		case ch <- payload:
		default:
			glog.V(1).Infof("wsbridge: client backlogged, dropping frame")
		}
	}
}

// NumClients reports the number of currently-connected clients.
func (b *Bridge) NumClients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}
