package events

import "time"

// Evento emitido pelo settlement-worker (ou venda antecipada) quando uma
// aposta sai do estado PENDING.
type BetSettled struct {
	BetID            string    `json:"bet_id"`
	UserID           string    `json:"user_id"`
	Event            string    `json:"event"`
	Sport            string    `json:"sport"`
	Status           string    `json:"status"` // "WON" | "LOST" | "SOLD"
	FinalAmountCents int64     `json:"final_amount_cents"`
	ProfitLossCents  int64     `json:"profit_loss_cents"`
	Ts               time.Time `json:"ts"`
}
