package ws

// ClientMsg representa uma mensagem recebida do cliente WebSocket
// Type: subscribe | unsubscribe | ping
// EventKey: obrigatório para subscribe/unsubscribe
type ClientMsg struct {
	Type     string `json:"type"`      // subscribe | unsubscribe | ping
	EventKey string `json:"event_key"` // requerido em subscribe/unsubscribe
}

// Update representa uma atualização de odds enviada para clientes WebSocket
type Update struct {
	EventKey string      `json:"event_key"`
	Payload  interface{} `json:"payload"`
}
