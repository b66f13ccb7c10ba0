package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// client serializa as escritas numa conexão; gorilla/websocket não suporta
// escritores concorrentes
type client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub gerencia conexões WebSocket e assinaturas por evento esportivo
// subs: mapeia event_key para o conjunto de conexões inscritas
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	subs     map[string]map[*client]struct{}
}

// NewHub cria uma instância de Hub com política customizada de origem (CORS)
func NewHub(allowOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		subs:     make(map[string]map[*client]struct{}),
	}
}

// HandleWS gerencia o ciclo de vida de uma conexão WebSocket
// Permite subscribe/unsubscribe em eventos e responde a pings
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	cl := &client{conn: conn}
	defer func() {
		h.dropAll(cl)
		conn.Close()
	}()

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case "subscribe":
			h.mu.Lock()
			if _, ok := h.subs[msg.EventKey]; !ok {
				h.subs[msg.EventKey] = make(map[*client]struct{})
			}
			h.subs[msg.EventKey][cl] = struct{}{}
			h.mu.Unlock()
		case "unsubscribe":
			h.mu.Lock()
			if m, ok := h.subs[msg.EventKey]; ok {
				delete(m, cl)
				if len(m) == 0 {
					delete(h.subs, msg.EventKey)
				}
			}
			h.mu.Unlock()
		case "ping":
			b, _ := json.Marshal(map[string]string{"type": "pong"})
			_ = cl.write(b)
		}
	}
}

// Broadcast envia uma atualização de odds para os clientes inscritos no evento.
// O conjunto de inscritos é copiado sob o lock; o fan-out roda fora dele, então
// subscribe/unsubscribe concorrentes nunca tocam o mapa sendo percorrido.
func (h *Hub) Broadcast(update Update) {
	h.mu.RLock()
	set := h.subs[update.EventKey]
	conns := make([]*client, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	if len(conns) == 0 {
		return
	}

	b, err := json.Marshal(update)
	if err != nil {
		return
	}
	for _, c := range conns {
		_ = c.write(b)
	}
}

// dropAll remove a conexão de todas as assinaturas ao desconectar
func (h *Hub) dropAll(cl *client) {
	h.mu.Lock()
	for key, set := range h.subs {
		delete(set, cl)
		if len(set) == 0 {
			delete(h.subs, key)
		}
	}
	h.mu.Unlock()
}
