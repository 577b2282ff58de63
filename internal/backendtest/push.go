package backendtest

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

type pushMessage struct {
	Type    string `json:"type"`
	Role    string `json:"role,omitempty"`
	Message string `json:"message,omitempty"`
}

// handlePush upgrades an authenticated client to the session notice socket.
// Tokens of banned accounts are still accepted so the ban can be announced.
func (b *Backend) handlePush(w http.ResponseWriter, r *http.Request) {
	acct, err := b.authenticate(r)
	if err != nil {
		respondMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("push upgrade failed", "error", err)
		return
	}
	id := acct.snapshot().ID

	b.mu.Lock()
	if b.push[id] == nil {
		b.push[id] = make(map[*websocket.Conn]bool)
	}
	b.push[id][conn] = true
	b.mu.Unlock()
	b.logger.Debug("push client connected", "user", id)

	defer func() {
		b.mu.Lock()
		delete(b.push[id], conn)
		b.mu.Unlock()
		conn.Close()
	}()

	// Reads only detect the close; clients never send.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// notify writes msg to every socket of user id.
func (b *Backend) notify(id string, msg pushMessage) {
	b.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(b.push[id]))
	for c := range b.push[id] {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	for _, c := range conns {
		c.SetWriteDeadline(time.Now().Add(time.Second))
		if err := c.WriteJSON(msg); err != nil {
			b.logger.Debug("push write failed", "user", id, "error", err)
		}
	}
}

// PushClients reports how many sockets user id holds open.
func (b *Backend) PushClients(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.push[id])
}
