package events

import "time"

// OutcomePrice é um par (participante, odd americana).
type OutcomePrice struct {
	Name  string `json:"name"`
	Price int    `json:"price"`
}

// Evento publicado no canal de broadcast a cada refresh bem-sucedido de um
// evento esportivo no cache de odds.
type OddsRefreshed struct {
	EventKey     string         `json:"event_key"`
	Sport        string         `json:"sport"`
	HomeTeam     string         `json:"home_team"`
	AwayTeam     string         `json:"away_team"`
	CommenceTime time.Time      `json:"commence_time"`
	Outcomes     []OutcomePrice `json:"outcomes"`
	RefreshedAt  time.Time      `json:"refreshed_at"`
}
