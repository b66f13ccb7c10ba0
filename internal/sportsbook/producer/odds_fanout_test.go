package producer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/sportsbook-core/internal/odds/store"
	"github.com/radieske/sportsbook-core/internal/provider"
	"github.com/radieske/sportsbook-core/internal/sportsbook/ws"
	"github.com/radieske/sportsbook-core/pkg/contracts/events"
)

type fakeRedis struct {
	payloads []interface{}
	fail     map[int]error // índice da chamada -> erro forçado
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	idx := len(f.payloads)
	f.payloads = append(f.payloads, message)
	cmd := redis.NewIntCmd(ctx)
	if err := f.fail[idx]; err != nil {
		cmd.SetErr(err)
	}
	return cmd
}

func snapshots() []store.Snapshot {
	return []store.Snapshot{
		{
			Sport:    "basketball_nba",
			EventKey: "boston celtics|miami heat",
			HomeTeam: "Boston Celtics",
			AwayTeam: "Miami Heat",
			Outcomes: []provider.Outcome{{Name: "Boston Celtics", Price: -150}},
		},
		{
			Sport:    "basketball_nba",
			EventKey: "denver nuggets|phoenix suns",
			HomeTeam: "Denver Nuggets",
			AwayTeam: "Phoenix Suns",
		},
	}
}

func TestFanOutPublishesEverySnapshot(t *testing.T) {
	r := &fakeRedis{}
	f := &OddsFanOut{Log: zap.NewNop(), Redis: r, Channel: "odds_updates_broadcast"}

	f.Publish(context.Background(), snapshots())

	if len(r.payloads) != 2 {
		t.Fatalf("publishes = %d, want one per snapshot", len(r.payloads))
	}
	var upd ws.Update
	if err := json.Unmarshal(r.payloads[0].([]byte), &upd); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if upd.EventKey != "boston celtics|miami heat" {
		t.Fatalf("event key = %q", upd.EventKey)
	}
	b, _ := json.Marshal(upd.Payload)
	var ev events.OddsRefreshed
	if err := json.Unmarshal(b, &ev); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if ev.HomeTeam != "Boston Celtics" || len(ev.Outcomes) != 1 || ev.Outcomes[0].Price != -150 {
		t.Fatalf("payload = %+v", ev)
	}
}

func TestFanOutContinuesAfterRedisFailure(t *testing.T) {
	r := &fakeRedis{fail: map[int]error{0: errors.New("redis fora do ar")}}
	f := &OddsFanOut{Log: zap.NewNop(), Redis: r, Channel: "odds_updates_broadcast"}

	f.Publish(context.Background(), snapshots())

	if len(r.payloads) != 2 {
		t.Fatalf("publishes = %d, want the second snapshot despite the first failing", len(r.payloads))
	}
}
