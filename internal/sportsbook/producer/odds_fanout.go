package producer

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/sportsbook-core/internal/odds/store"
	sharedkafka "github.com/radieske/sportsbook-core/internal/shared/kafka"
	"github.com/radieske/sportsbook-core/internal/sportsbook/ws"
	"github.com/radieske/sportsbook-core/pkg/contracts/events"
)

// redisPublisher é o subconjunto do client Redis usado no broadcast.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// OddsFanOut replica cada snapshot recém-atualizado no tópico Kafka de odds e
// no canal Redis que alimenta o hub WebSocket. Best effort por snapshot: falha
// em um destino não suprime os demais snapshots do refresh.
type OddsFanOut struct {
	Log     *zap.Logger
	Kafka   *kafka.Writer  // opcional
	Redis   redisPublisher // opcional
	Channel string
}

func (f *OddsFanOut) Publish(ctx context.Context, snaps []store.Snapshot) {
	for _, s := range snaps {
		ev := toOddsRefreshed(s)
		evb, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if f.Kafka != nil {
			if err := sharedkafka.WriteJSON(ctx, f.Kafka, s.EventKey, evb); err != nil {
				f.Log.Warn("odds update kafka publish failed", zap.Error(err))
			}
		}
		if f.Redis != nil {
			b, err := json.Marshal(ws.Update{EventKey: s.EventKey, Payload: ev})
			if err != nil {
				continue
			}
			if err := f.Redis.Publish(ctx, f.Channel, b).Err(); err != nil {
				f.Log.Warn("ws broadcast publish failed", zap.String("event_key", s.EventKey), zap.Error(err))
			}
		}
	}
}

func toOddsRefreshed(s store.Snapshot) events.OddsRefreshed {
	ev := events.OddsRefreshed{
		EventKey:     s.EventKey,
		Sport:        s.Sport,
		HomeTeam:     s.HomeTeam,
		AwayTeam:     s.AwayTeam,
		CommenceTime: s.CommenceTime,
		RefreshedAt:  s.RefreshedAt,
	}
	for _, o := range s.Outcomes {
		ev.Outcomes = append(ev.Outcomes, events.OutcomePrice{Name: o.Name, Price: o.Price})
	}
	return ev
}
