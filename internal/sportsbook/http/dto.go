package httpapi

import "time"

// PlaceBetRequest são os dados afirmados pelo usuário ao apostar.
type PlaceBetRequest struct {
	Event        string    `json:"event"` // "Home vs Away"
	Selection    string    `json:"selection"`
	StakeCents   int64     `json:"stake_cents"`
	Odds         int       `json:"odds"` // odd americana afirmada
	Sport        string    `json:"sport"`
	CommenceTime time.Time `json:"commence_time"`
}

type DepositRequest struct {
	AmountCents int64  `json:"amount_cents"`
	ExternalRef string `json:"external_ref"`
}

type BalanceResponse struct {
	UserID       string `json:"user_id"`
	BalanceCents int64  `json:"balance_cents"`
}

// ErrorResponse padroniza o corpo de erro. Asserted/Live só aparecem em
// drift de odds, pra reconfirmação do usuário.
type ErrorResponse struct {
	Error    string `json:"error"`
	Asserted *int   `json:"asserted_odds,omitempty"`
	Live     *int   `json:"live_odds,omitempty"`
}
