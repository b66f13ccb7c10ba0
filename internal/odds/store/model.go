package store

import (
	"time"

	"github.com/radieske/sportsbook-core/internal/provider"
)

// Snapshot é o registro persistido das odds correntes de um evento.
// No máximo um snapshot vivo por (sport, event_key, commence_time).
type Snapshot struct {
	ID           string             `json:"-"`
	Sport        string             `json:"sport"`
	EventKey     string             `json:"event_key"`
	HomeTeam     string             `json:"home_team"`
	AwayTeam     string             `json:"away_team"`
	CommenceTime time.Time          `json:"commence_time"`
	Outcomes     []provider.Outcome `json:"outcomes"`
	RefreshedAt  time.Time          `json:"refreshed_at"`
}

// Outcome retorna a odd do participante, se existir no snapshot.
func (s *Snapshot) Outcome(name string) (provider.Outcome, bool) {
	for _, o := range s.Outcomes {
		if o.Name == name {
			return o, true
		}
	}
	return provider.Outcome{}, false
}
