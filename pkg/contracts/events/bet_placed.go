package events

// Evento publicado no tópico "bet_placed" após o débito da aposta.
type BetPlaced struct {
	BetID        string `json:"bet_id"`
	UserID       string `json:"user_id"`
	Event        string `json:"event"`
	Selection    string `json:"selection"`
	Sport        string `json:"sport"`
	StakeCents   int64  `json:"stake_cents"`
	Odds         int    `json:"odds"` // odd americana assinada no momento da aposta
	BalanceCents int64  `json:"balance_cents"`
	TsUnixMs     int64  `json:"ts_unix_ms"`
}
