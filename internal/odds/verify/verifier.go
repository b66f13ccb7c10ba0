package verify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/sportsbook-core/internal/odds/match"
	"github.com/radieske/sportsbook-core/internal/odds/store"
	"github.com/radieske/sportsbook-core/internal/provider"
)

// ErrEventNotFound significa "verificação indisponível": nem o provider nem o
// cache conhecem o evento. A política de fallback é do chamador.
var ErrEventNotFound = errors.New("event not found in provider or cache")

// hotKeyTTL limita a vida da odd verificada no Redis.
const hotKeyTTL = 60 * time.Second

type Provider interface {
	FetchOdds(ctx context.Context, sportKey string) ([]provider.Event, error)
}

type Store interface {
	Upsert(ctx context.Context, s store.Snapshot) error
	FindByTeams(ctx context.Context, sport, home, away string) (*store.Snapshot, error)
}

// Service revalida as odds de um evento imediatamente antes de uma ação
// financeira. Busca fresca no provider com write-back no cache; se o upstream
// estiver fora, cai pro snapshot mais recente.
type Service struct {
	Log      *zap.Logger
	Provider Provider
	Store    Store
	Redis    *redis.Client // hot cache; opcional

	Now func() time.Time // injetável em teste
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// LiveOdds retorna as odds correntes do evento descrito por "Home vs Away".
// O matching tolera drift de nomenclatura (igualdade normalizada/containment).
func (s *Service) LiveOdds(ctx context.Context, sport, eventDesc string) ([]provider.Outcome, error) {
	home, away, ok := match.SplitEvent(eventDesc)
	if !ok {
		return nil, ErrEventNotFound
	}

	events, err := s.Provider.FetchOdds(ctx, sport)
	if err != nil {
		s.Log.Warn("live fetch failed, falling back to cached snapshot",
			zap.String("sport", sport),
			zap.String("event", eventDesc),
			zap.Error(err),
		)
		return s.fromCache(ctx, sport, home, away)
	}

	for _, e := range events {
		if !e.CommenceTime.After(s.now()) {
			continue // evento já iniciado não verifica aposta nova
		}
		if match.Teams(e.HomeTeam, home) == match.KindNone ||
			match.Teams(e.AwayTeam, away) == match.KindNone {
			continue
		}
		snap := store.FromProviderEvent(e, s.now())
		s.writeBack(ctx, snap)
		return snap.Outcomes, nil
	}

	// provider respondeu mas não conhece o evento; o cache ainda pode conhecer
	return s.fromCache(ctx, sport, home, away)
}

// writeBack persiste a odd fresca no store e no hot cache (cache-aside no read).
func (s *Service) writeBack(ctx context.Context, snap store.Snapshot) {
	if err := s.Store.Upsert(ctx, snap); err != nil {
		s.Log.Warn("verified odds write-back failed", zap.Error(err))
	}
	if s.Redis != nil {
		if b, err := json.Marshal(snap); err == nil {
			if err := s.Redis.Set(ctx, hotKey(snap.Sport, snap.EventKey), b, hotKeyTTL).Err(); err != nil {
				s.Log.Debug("hot cache set failed", zap.Error(err))
			}
		}
	}
}

func (s *Service) fromCache(ctx context.Context, sport, home, away string) ([]provider.Outcome, error) {
	if s.Redis != nil {
		b, err := s.Redis.Get(ctx, hotKey(sport, match.EventKey(home, away))).Bytes()
		if err == nil {
			var snap store.Snapshot
			if json.Unmarshal(b, &snap) == nil && snap.CommenceTime.After(s.now()) {
				return snap.Outcomes, nil
			}
		}
	}

	snap, err := s.Store.FindByTeams(ctx, sport, home, away)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return snap.Outcomes, nil
}

func hotKey(sport, eventKey string) string {
	return "odds:current:" + sport + ":" + eventKey
}
