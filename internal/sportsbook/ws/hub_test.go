package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

// waitSubscribers espera a mensagem de subscribe/unsubscribe ser processada
// pelo loop da conexão
func waitSubscribers(t *testing.T, hub *Hub, eventKey string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		hub.mu.RLock()
		got := len(hub.subs[eventKey])
		hub.mu.RUnlock()
		if got == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("event %q never reached %d subscribers", eventKey, n)
}

func TestSubscribeReceivesBroadcast(t *testing.T) {
	hub := NewHub(func(*http.Request) bool { return true })
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	if err := conn.WriteJSON(ClientMsg{Type: "subscribe", EventKey: "a|b"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	waitSubscribers(t, hub, "a|b", 1)

	hub.Broadcast(Update{EventKey: "a|b", Payload: "fresh"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var upd Update
	if err := conn.ReadJSON(&upd); err != nil {
		t.Fatalf("read: %v", err)
	}
	if upd.EventKey != "a|b" || upd.Payload != "fresh" {
		t.Fatalf("update = %+v", upd)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub(func(*http.Request) bool { return true })
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	_ = conn.WriteJSON(ClientMsg{Type: "subscribe", EventKey: "a|b"})
	waitSubscribers(t, hub, "a|b", 1)
	_ = conn.WriteJSON(ClientMsg{Type: "unsubscribe", EventKey: "a|b"})
	waitSubscribers(t, hub, "a|b", 0)

	hub.Broadcast(Update{EventKey: "a|b", Payload: "fresh"})

	_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var upd Update
	if err := conn.ReadJSON(&upd); err == nil {
		t.Fatalf("unsubscribed client still received %+v", upd)
	}
}

// Broadcast contínuo enquanto dezenas de clientes assinam, pingam, cancelam e
// desconectam. Falha sob -race se o fan-out tocar o mapa de assinaturas ou uma
// conexão sem serialização.
func TestBroadcastDuringSubscriptionChurn(t *testing.T) {
	hub := NewHub(func(*http.Request) bool { return true })
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	stop := make(chan struct{})
	var bwg sync.WaitGroup
	bwg.Add(1)
	go func() {
		defer bwg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				hub.Broadcast(Update{EventKey: "a|b", Payload: "tick"})
			}
		}
	}()

	var cwg sync.WaitGroup
	for i := 0; i < 10; i++ {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			for j := 0; j < 20; j++ {
				conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
				if err != nil {
					continue
				}
				_ = conn.WriteJSON(ClientMsg{Type: "subscribe", EventKey: "a|b"})
				_ = conn.WriteJSON(ClientMsg{Type: "ping"})
				_ = conn.WriteJSON(ClientMsg{Type: "unsubscribe", EventKey: "a|b"})
				conn.Close()
			}
		}()
	}
	cwg.Wait()
	close(stop)
	bwg.Wait()

	waitSubscribers(t, hub, "a|b", 0)
}
