package provider

import "time"

// Payloads do upstream (formato the-odds-api, odds americanas).
// Os preços chegam como número JSON; o decode usa float64 e arredonda.

type apiOutcome struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type apiMarket struct {
	Key      string       `json:"key"` // "h2h"
	Outcomes []apiOutcome `json:"outcomes"`
}

type apiBookmaker struct {
	Key     string      `json:"key"`
	Markets []apiMarket `json:"markets"`
}

type apiEvent struct {
	ID           string         `json:"id"`
	SportKey     string         `json:"sport_key"`
	CommenceTime time.Time      `json:"commence_time"`
	HomeTeam     string         `json:"home_team"`
	AwayTeam     string         `json:"away_team"`
	Bookmakers   []apiBookmaker `json:"bookmakers"`
}

type apiScoreEntry struct {
	Name  string `json:"name"`
	Score string `json:"score"`
}

type apiScore struct {
	ID           string          `json:"id"`
	SportKey     string          `json:"sport_key"`
	CommenceTime time.Time       `json:"commence_time"`
	Completed    bool            `json:"completed"`
	HomeTeam     string          `json:"home_team"`
	AwayTeam     string          `json:"away_team"`
	Scores       []apiScoreEntry `json:"scores"`
}

// Outcome é um par (participante, odd americana assinada).
type Outcome struct {
	Name  string `json:"name"`
	Price int    `json:"price"`
}

// Event é um evento esportivo com odds normalizadas do primeiro bookmaker
// que publicou mercado h2h.
type Event struct {
	Sport        string
	HomeTeam     string
	AwayTeam     string
	CommenceTime time.Time
	Outcomes     []Outcome
}

// GameResult é o resultado oficial de um jogo. Os placares só são válidos
// quando Completed é true.
type GameResult struct {
	Sport        string
	HomeTeam     string
	AwayTeam     string
	CommenceTime time.Time
	Completed    bool
	HomeScore    int
	AwayScore    int
}
