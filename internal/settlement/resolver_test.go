package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/sportsbook-core/internal/ledger"
	"github.com/radieske/sportsbook-core/internal/provider"
)

var resNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeLedger struct {
	mu      sync.Mutex
	pending []ledger.PendingEvent
	bets    map[string][]ledger.Bet // por descrição do evento

	wins       map[string]int64 // betID -> payout
	losses     []string
	settleErrs map[string]error // betID -> erro forçado
}

func (f *fakeLedger) PendingEvents(ctx context.Context, before time.Time) ([]ledger.PendingEvent, error) {
	out := make([]ledger.PendingEvent, 0, len(f.pending))
	for _, ev := range f.pending {
		if ev.CommenceTime.Before(before) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeLedger) PendingBetsForEvent(ctx context.Context, event, sport string) ([]ledger.Bet, error) {
	return f.bets[event], nil
}

func (f *fakeLedger) SettleWin(ctx context.Context, betID string, payoutCents, winningsCents int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.settleErrs[betID]; err != nil {
		return err
	}
	if f.wins == nil {
		f.wins = map[string]int64{}
	}
	f.wins[betID] = payoutCents
	return nil
}

func (f *fakeLedger) SettleLoss(ctx context.Context, betID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.settleErrs[betID]; err != nil {
		return err
	}
	f.losses = append(f.losses, betID)
	return nil
}

type fakeResults struct {
	mu      sync.Mutex
	results map[string][]provider.GameResult
	errs    map[string]error
	calls   map[string]int
}

func (f *fakeResults) FetchScores(ctx context.Context, sportKey string, daysFrom int) ([]provider.GameResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[sportKey]++
	if err := f.errs[sportKey]; err != nil {
		return nil, err
	}
	return f.results[sportKey], nil
}

func newResolver(l *fakeLedger, res *fakeResults) *Resolver {
	return &Resolver{
		Log:     zap.NewNop(),
		Ledger:  l,
		Results: res,
		Grace:   2 * time.Hour,
		Workers: 2,
		Now:     func() time.Time { return resNow },
	}
}

func pendingEvent(event string, hoursAgo int) ledger.PendingEvent {
	return ledger.PendingEvent{
		Event:        event,
		Sport:        "basketball_nba",
		CommenceTime: resNow.Add(-time.Duration(hoursAgo) * time.Hour),
	}
}

func completedGame(home, away string, hs, as int) provider.GameResult {
	return provider.GameResult{
		Sport:     "basketball_nba",
		HomeTeam:  home,
		AwayTeam:  away,
		Completed: true,
		HomeScore: hs,
		AwayScore: as,
	}
}

func TestResolveOnceSettlesWinnersAndLosers(t *testing.T) {
	l := &fakeLedger{
		pending: []ledger.PendingEvent{pendingEvent("Boston Celtics vs Miami Heat", 5)},
		bets: map[string][]ledger.Bet{
			"Boston Celtics vs Miami Heat": {
				{ID: "b1", UserID: "u1", Selection: "Boston Celtics", StakeCents: 10000, Odds: -200},
				{ID: "b2", UserID: "u2", Selection: "Miami Heat", StakeCents: 5000, Odds: 170},
				{ID: "b3", UserID: "u3", Selection: "boston celtics", StakeCents: 2000, Odds: 150},
			},
		},
	}
	res := &fakeResults{results: map[string][]provider.GameResult{
		"basketball_nba": {completedGame("Boston Celtics", "Miami Heat", 110, 104)},
	}}
	r := newResolver(l, res)
	var settled []string
	r.OnSettled = func(status string) {
		l.mu.Lock()
		settled = append(settled, status)
		l.mu.Unlock()
	}

	sums, err := r.ResolveOnce(context.Background())
	if err != nil {
		t.Fatalf("ResolveOnce: %v", err)
	}
	if len(sums) != 1 || sums[0].Winner != "Boston Celtics" || sums[0].Won != 2 || sums[0].Lost != 1 {
		t.Fatalf("summaries = %+v", sums)
	}
	// b1: stake 10000 a -200 ganha 5000, payout 15000
	if l.wins["b1"] != 15000 {
		t.Fatalf("b1 payout = %d, want 15000", l.wins["b1"])
	}
	// b3 casa por normalização
	if l.wins["b3"] != 5000 {
		t.Fatalf("b3 payout = %d, want 5000", l.wins["b3"])
	}
	if len(l.losses) != 1 || l.losses[0] != "b2" {
		t.Fatalf("losses = %v", l.losses)
	}
	if len(settled) != 3 {
		t.Fatalf("OnSettled calls = %v", settled)
	}
}

func TestResolveOnceSkipsIncompleteAndTie(t *testing.T) {
	l := &fakeLedger{
		pending: []ledger.PendingEvent{
			pendingEvent("Denver Nuggets vs Phoenix Suns", 4),
			pendingEvent("Dallas Mavericks vs Utah Jazz", 4),
		},
		bets: map[string][]ledger.Bet{
			"Denver Nuggets vs Phoenix Suns": {{ID: "b1", Selection: "Denver Nuggets", StakeCents: 1000, Odds: 100}},
			"Dallas Mavericks vs Utah Jazz":  {{ID: "b2", Selection: "Utah Jazz", StakeCents: 1000, Odds: 100}},
		},
	}
	res := &fakeResults{results: map[string][]provider.GameResult{
		"basketball_nba": {
			{Sport: "basketball_nba", HomeTeam: "Denver Nuggets", AwayTeam: "Phoenix Suns", Completed: false},
			completedGame("Dallas Mavericks", "Utah Jazz", 100, 100), // empate
		},
	}}
	r := newResolver(l, res)
	skipped := 0
	var mu sync.Mutex
	r.OnSkipped = func() { mu.Lock(); skipped++; mu.Unlock() }

	sums, err := r.ResolveOnce(context.Background())
	if err != nil {
		t.Fatalf("ResolveOnce: %v", err)
	}
	if len(sums) != 0 {
		t.Fatalf("nothing should settle, got %+v", sums)
	}
	if len(l.wins) != 0 || len(l.losses) != 0 {
		t.Fatalf("wins=%v losses=%v", l.wins, l.losses)
	}
	if skipped != 2 {
		t.Fatalf("skipped = %d, want 2", skipped)
	}
}

func TestResolveOnceHonorsGracePeriod(t *testing.T) {
	l := &fakeLedger{
		pending: []ledger.PendingEvent{pendingEvent("Boston Celtics vs Miami Heat", 1)}, // dentro do grace de 2h
	}
	res := &fakeResults{}
	r := newResolver(l, res)

	if _, err := r.ResolveOnce(context.Background()); err != nil {
		t.Fatalf("ResolveOnce: %v", err)
	}
	if len(res.calls) != 0 {
		t.Fatalf("no fetch expected inside grace period, got %v", res.calls)
	}
}

func TestResolveOnceOneFetchPerSport(t *testing.T) {
	l := &fakeLedger{
		pending: []ledger.PendingEvent{
			pendingEvent("Boston Celtics vs Miami Heat", 5),
			pendingEvent("Denver Nuggets vs Phoenix Suns", 6),
		},
	}
	res := &fakeResults{results: map[string][]provider.GameResult{
		"basketball_nba": {
			completedGame("Boston Celtics", "Miami Heat", 110, 104),
			completedGame("Denver Nuggets", "Phoenix Suns", 90, 95),
		},
	}}
	r := newResolver(l, res)

	if _, err := r.ResolveOnce(context.Background()); err != nil {
		t.Fatalf("ResolveOnce: %v", err)
	}
	if res.calls["basketball_nba"] != 1 {
		t.Fatalf("fetches = %d, want 1 per sport", res.calls["basketball_nba"])
	}
}

func TestResolveOnceFetchFailureSkipsSport(t *testing.T) {
	l := &fakeLedger{
		pending: []ledger.PendingEvent{pendingEvent("Boston Celtics vs Miami Heat", 5)},
		bets: map[string][]ledger.Bet{
			"Boston Celtics vs Miami Heat": {{ID: "b1", Selection: "Boston Celtics", StakeCents: 1000, Odds: 100}},
		},
	}
	res := &fakeResults{errs: map[string]error{"basketball_nba": errors.New("credenciais esgotadas")}}
	r := newResolver(l, res)
	fetchErrs := 0
	var mu sync.Mutex
	r.OnError = func(stage string) {
		mu.Lock()
		if stage == "fetch" {
			fetchErrs++
		}
		mu.Unlock()
	}

	sums, err := r.ResolveOnce(context.Background())
	if err != nil {
		t.Fatalf("fetch failure must not abort the pass, got %v", err)
	}
	if len(sums) != 0 || len(l.wins) != 0 || len(l.losses) != 0 {
		t.Fatal("no settlement expected without results")
	}
	if fetchErrs != 1 {
		t.Fatalf("fetch errors = %d, want 1", fetchErrs)
	}
}

func TestAlreadySettledBetIsNotDoubleCounted(t *testing.T) {
	l := &fakeLedger{
		pending: []ledger.PendingEvent{pendingEvent("Boston Celtics vs Miami Heat", 5)},
		bets: map[string][]ledger.Bet{
			"Boston Celtics vs Miami Heat": {
				{ID: "b1", Selection: "Boston Celtics", StakeCents: 1000, Odds: 100},
				{ID: "b2", Selection: "Boston Celtics", StakeCents: 2000, Odds: 100},
			},
		},
		settleErrs: map[string]error{"b1": ledger.ErrBetNotEligible}, // outro passe liquidou antes
	}
	res := &fakeResults{results: map[string][]provider.GameResult{
		"basketball_nba": {completedGame("Boston Celtics", "Miami Heat", 101, 99)},
	}}
	r := newResolver(l, res)

	sums, err := r.ResolveOnce(context.Background())
	if err != nil {
		t.Fatalf("ResolveOnce: %v", err)
	}
	if len(sums) != 1 || sums[0].Won != 1 {
		t.Fatalf("summaries = %+v, want only b2 counted", sums)
	}
	if _, ok := l.wins["b1"]; ok {
		t.Fatal("b1 must not be re-settled")
	}
}

func TestResolveOnceResultNameDrift(t *testing.T) {
	l := &fakeLedger{
		pending: []ledger.PendingEvent{pendingEvent("St. Louis Blues vs Boston Bruins", 5)},
		bets: map[string][]ledger.Bet{
			"St. Louis Blues vs Boston Bruins": {{ID: "b1", Selection: "St. Louis Blues", StakeCents: 1000, Odds: 100}},
		},
	}
	res := &fakeResults{results: map[string][]provider.GameResult{
		"basketball_nba": {completedGame("St Louis Blues", "BOSTON BRUINS", 3, 2)},
	}}
	r := newResolver(l, res)

	sums, err := r.ResolveOnce(context.Background())
	if err != nil {
		t.Fatalf("ResolveOnce: %v", err)
	}
	if len(sums) != 1 || sums[0].Won != 1 {
		t.Fatalf("normalized result names must match, got %+v", sums)
	}
}
