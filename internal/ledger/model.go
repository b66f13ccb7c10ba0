package ledger

import "time"

// Status de uma aposta. PENDING é o único estado não terminal; nenhuma
// transição sai de um estado terminal.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusWon       Status = "WON"
	StatusLost      Status = "LOST"
	StatusSold      Status = "SOLD"
	StatusCancelled Status = "CANCELLED"
)

// Bet é o modelo persistido no Postgres. Odds e stake são imutáveis após a
// criação; FinalAmountCents/ProfitLossCents são nulos enquanto PENDING.
type Bet struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	Event            string     `json:"event"` // "Home vs Away"
	Selection        string     `json:"selection"`
	StakeCents       int64      `json:"stake_cents"`
	Odds             int        `json:"odds"` // odd americana assinada no momento da aposta
	Sport            string     `json:"sport"`
	CommenceTime     time.Time  `json:"commence_time"`
	Status           Status     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	SettledAt        *time.Time `json:"settled_at,omitempty"`
	FinalAmountCents *int64     `json:"final_amount_cents,omitempty"`
	ProfitLossCents  *int64     `json:"profit_loss_cents,omitempty"`
}

// PendingEvent identifica um evento com apostas pendentes, na granularidade
// que o settlement processa.
type PendingEvent struct {
	Event        string
	Sport        string
	CommenceTime time.Time
}
