package manager

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/sportsbook-core/internal/odds/store"
	"github.com/radieske/sportsbook-core/internal/provider"
)

// pageCacheTTL limita quanto tempo uma página montada fica no Redis.
const pageCacheTTL = 30 * time.Second

// Provider é o subconjunto do client de odds que o manager usa.
type Provider interface {
	FetchOdds(ctx context.Context, sportKey string) ([]provider.Event, error)
}

// Store é o subconjunto do repositório de snapshots que o manager usa.
type Store interface {
	Freshness(ctx context.Context, sport string) (int, time.Time, error)
	ReplaceSport(ctx context.Context, sport string, snaps []store.Snapshot) error
	ListUpcoming(ctx context.Context, sport string, offset, limit int) ([]store.Snapshot, int, error)
	EvictExpired(ctx context.Context) (int64, error)
	EvictExcess(ctx context.Context, sport string, max int) (int64, error)
}

// Page é o contrato de saída pra camada HTTP.
type Page struct {
	Items      []store.Snapshot `json:"items"`
	TotalCount int              `json:"total_count"`
	HasMore    bool             `json:"has_more"`
}

// Manager decide entre servir o cache ou disparar refresh, e aplica os limites
// por esporte. Falha de refresh degrada pra dado stale, nunca pra dado vazio.
type Manager struct {
	Log      *zap.Logger
	Store    Store
	Provider Provider
	Redis    *redis.Client // cache de páginas; opcional

	CacheTTL   time.Duration
	EventLimit func(sport string) int

	OnCacheHit    func()                      // métricas
	OnCacheMiss   func()                      // métricas
	OnRefreshFail func()                      // métricas
	OnRefreshed   func(snaps []store.Snapshot) // broadcast pro WS

	Now func() time.Time // injetável em teste
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// GetPage retorna uma página de odds do esporte, disparando refresh quando
// forçado, quando o cache está vazio ou quando o refresh mais recente expirou.
func (m *Manager) GetPage(ctx context.Context, sport string, page, pageSize int, force bool) (Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 50 {
		pageSize = 10
	}

	if !force {
		if cached, ok := m.cachedPage(ctx, sport, page, pageSize); ok {
			if m.OnCacheHit != nil {
				m.OnCacheHit()
			}
			return cached, nil
		}
	}

	// eventos já iniciados saem antes de qualquer decisão de staleness
	if _, err := m.Store.EvictExpired(ctx); err != nil {
		m.Log.Warn("evict expired failed", zap.Error(err))
	}

	count, newest, err := m.Store.Freshness(ctx, sport)
	if err != nil {
		return Page{}, err
	}

	stale := count == 0 || m.now().Sub(newest) > m.CacheTTL
	if force || stale {
		if m.OnCacheMiss != nil {
			m.OnCacheMiss()
		}
		if err := m.refresh(ctx, sport); err != nil {
			if m.OnRefreshFail != nil {
				m.OnRefreshFail()
			}
			if count == 0 {
				// sem cache anterior não há o que degradar
				return Page{}, err
			}
			// invariante central: upstream fora -> continua servindo o último
			// conjunto bom, com o refreshed_at original
			m.Log.Warn("odds refresh failed, serving stale cache",
				zap.String("sport", sport),
				zap.Time("last_refresh", newest),
				zap.Error(err),
			)
		}
	} else if m.OnCacheHit != nil {
		m.OnCacheHit()
	}

	offset := (page - 1) * pageSize
	items, total, err := m.Store.ListUpcoming(ctx, sport, offset, pageSize)
	if err != nil {
		return Page{}, err
	}

	out := Page{
		Items:      items,
		TotalCount: total,
		HasMore:    offset+len(items) < total,
	}
	m.storePage(ctx, sport, page, pageSize, out)
	return out, nil
}

// refresh substitui o conjunto do esporte de forma atômica e aplica o limite
// de eventos duas vezes: no truncamento e no EvictExcess defensivo.
func (m *Manager) refresh(ctx context.Context, sport string) error {
	events, err := m.Provider.FetchOdds(ctx, sport)
	if err != nil {
		return err
	}

	now := m.now()
	sort.Slice(events, func(i, j int) bool {
		return events[i].CommenceTime.Before(events[j].CommenceTime)
	})

	limit := m.EventLimit(sport)
	snaps := make([]store.Snapshot, 0, limit)
	for _, e := range events {
		if !e.CommenceTime.After(now) {
			continue // evento já iniciado não vale pra aposta
		}
		snaps = append(snaps, store.FromProviderEvent(e, now))
		if len(snaps) == limit {
			break
		}
	}

	if err := m.Store.ReplaceSport(ctx, sport, snaps); err != nil {
		return err
	}
	if _, err := m.Store.EvictExcess(ctx, sport, limit); err != nil {
		m.Log.Warn("evict excess failed", zap.String("sport", sport), zap.Error(err))
	}

	m.dropCachedPages(ctx, sport)
	m.Log.Info("odds cache refreshed",
		zap.String("sport", sport),
		zap.Int("events", len(snaps)),
	)
	if m.OnRefreshed != nil {
		m.OnRefreshed(snaps)
	}
	return nil
}

func pageKey(sport string, page, size int) string {
	return "odds:page:" + sport + ":" + strconv.Itoa(page) + ":" + strconv.Itoa(size)
}

func (m *Manager) cachedPage(ctx context.Context, sport string, page, size int) (Page, bool) {
	if m.Redis == nil {
		return Page{}, false
	}
	b, err := m.Redis.Get(ctx, pageKey(sport, page, size)).Bytes()
	if err != nil {
		return Page{}, false
	}
	var out Page
	if err := json.Unmarshal(b, &out); err != nil {
		return Page{}, false
	}
	return out, true
}

func (m *Manager) storePage(ctx context.Context, sport string, page, size int, p Page) {
	if m.Redis == nil {
		return
	}
	b, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := m.Redis.Set(ctx, pageKey(sport, page, size), b, pageCacheTTL).Err(); err != nil {
		m.Log.Debug("page cache set failed", zap.Error(err))
	}
}

func (m *Manager) dropCachedPages(ctx context.Context, sport string) {
	if m.Redis == nil {
		return
	}
	keys, err := m.Redis.Keys(ctx, "odds:page:"+sport+":*").Result()
	if err != nil || len(keys) == 0 {
		return
	}
	_ = m.Redis.Del(ctx, keys...).Err()
}
