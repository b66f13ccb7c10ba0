package settlement

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/sportsbook-core/internal/ledger"
	"github.com/radieske/sportsbook-core/internal/odds/match"
	"github.com/radieske/sportsbook-core/internal/pricing"
	"github.com/radieske/sportsbook-core/internal/provider"
	"github.com/radieske/sportsbook-core/pkg/contracts/events"
)

// scoresDaysFrom cobre a janela de resultados pedida ao provider.
const scoresDaysFrom = 3

// Ledger é o subconjunto do repositório de apostas usado na liquidação.
type Ledger interface {
	PendingEvents(ctx context.Context, before time.Time) ([]ledger.PendingEvent, error)
	PendingBetsForEvent(ctx context.Context, event, sport string) ([]ledger.Bet, error)
	SettleWin(ctx context.Context, betID string, payoutCents, winningsCents int64) error
	SettleLoss(ctx context.Context, betID string) error
}

// Results busca placares oficiais no provider.
type Results interface {
	FetchScores(ctx context.Context, sportKey string, daysFrom int) ([]provider.GameResult, error)
}

// Publisher emite bet_settled; best effort.
type Publisher interface {
	PublishBetSettled(ctx context.Context, e events.BetSettled) error
}

// Summary é o resultado por evento de um passe de liquidação.
type Summary struct {
	Event  string `json:"event"`
	Sport  string `json:"sport"`
	Winner string `json:"winner"`
	Won    int    `json:"won"`
	Lost   int    `json:"lost"`
}

// Resolver detecta jogos terminados e dirige as transições WON/LOST do ledger.
// Invariante dura: uma aposta só sai de PENDING com resultado oficial completo
// (ou venda iniciada pelo usuário); sem resultado, o evento é pulado em
// silêncio neste passe.
type Resolver struct {
	Log     *zap.Logger
	Ledger  Ledger
	Results Results

	Grace    time.Duration // espera após o commence_time antes de buscar resultado
	Interval time.Duration // período entre passes do Run
	Workers  int           // eventos processados em paralelo

	Publisher Publisher // opcional

	OnSettled func(status string) // métricas
	OnSkipped func()              // métricas
	OnError   func(stage string)  // métricas

	Now func() time.Time // injetável em teste
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Run executa ResolveOnce periodicamente até o contexto encerrar.
func (r *Resolver) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		if _, err := r.ResolveOnce(ctx); err != nil && ctx.Err() == nil {
			r.Log.Warn("settlement pass failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ResolveOnce roda um passe completo: eventos pendentes além do grace period,
// um fetch de resultados por esporte, e liquidação por evento num worker pool.
// O trabalho de cada evento é serializado dentro de um único worker.
func (r *Resolver) ResolveOnce(ctx context.Context) ([]Summary, error) {
	cutoff := r.now().Add(-r.Grace)
	pending, err := r.Ledger.PendingEvents(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}

	// um fetch de resultados por esporte no passe inteiro; o upstream é
	// rate-limited
	resultsBySport := make(map[string][]provider.GameResult)
	for _, ev := range pending {
		if _, ok := resultsBySport[ev.Sport]; ok {
			continue
		}
		res, err := r.Results.FetchScores(ctx, ev.Sport, scoresDaysFrom)
		if err != nil {
			r.Log.Warn("results fetch failed, skipping sport this pass",
				zap.String("sport", ev.Sport), zap.Error(err))
			if r.OnError != nil {
				r.OnError("fetch")
			}
			resultsBySport[ev.Sport] = nil
			continue
		}
		resultsBySport[ev.Sport] = res
	}

	workers := r.Workers
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan ledger.PendingEvent)
	var mu sync.Mutex
	var summaries []Summary

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range jobs {
				sum, ok := r.resolveEvent(ctx, ev, resultsBySport[ev.Sport])
				if !ok {
					continue
				}
				mu.Lock()
				summaries = append(summaries, sum)
				mu.Unlock()
			}
		}()
	}

	for _, ev := range pending {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return summaries, ctx.Err()
		case jobs <- ev:
		}
	}
	close(jobs)
	wg.Wait()

	return summaries, nil
}

// resolveEvent liquida todas as apostas pendentes de um evento a partir do
// resultado oficial. ok=false quando o evento foi pulado neste passe.
func (r *Resolver) resolveEvent(ctx context.Context, ev ledger.PendingEvent, results []provider.GameResult) (Summary, bool) {
	home, away, splitOK := match.SplitEvent(ev.Event)
	if !splitOK {
		r.Log.Warn("unparseable event description", zap.String("event", ev.Event))
		if r.OnError != nil {
			r.OnError("parse")
		}
		return Summary{}, false
	}

	result, found := findResult(results, home, away)
	if !found || result.HomeScore == result.AwayScore {
		// sem resultado completo (ou empate sem vencedor em h2h): nunca
		// inferir desfecho, fica pro próximo passe
		if r.OnSkipped != nil {
			r.OnSkipped()
		}
		return Summary{}, false
	}

	winner := result.HomeTeam
	if result.AwayScore > result.HomeScore {
		winner = result.AwayTeam
	}

	bets, err := r.Ledger.PendingBetsForEvent(ctx, ev.Event, ev.Sport)
	if err != nil {
		r.Log.Error("load pending bets", zap.String("event", ev.Event), zap.Error(err))
		if r.OnError != nil {
			r.OnError("load")
		}
		return Summary{}, false
	}

	sum := Summary{Event: ev.Event, Sport: ev.Sport, Winner: winner}
	for _, b := range bets {
		if match.Teams(b.Selection, winner) != match.KindNone {
			if r.settleWinner(ctx, b) {
				sum.Won++
			}
		} else {
			if r.settleLoser(ctx, b) {
				sum.Lost++
			}
		}
	}

	r.Log.Info("event settled",
		zap.String("event", ev.Event),
		zap.String("winner", winner),
		zap.Int("won", sum.Won),
		zap.Int("lost", sum.Lost),
	)
	return sum, true
}

func (r *Resolver) settleWinner(ctx context.Context, b ledger.Bet) bool {
	winnings := pricing.WinningsCents(b.StakeCents, b.Odds)
	payout := b.StakeCents + winnings
	if err := r.Ledger.SettleWin(ctx, b.ID, payout, winnings); err != nil {
		if errors.Is(err, ledger.ErrBetNotEligible) {
			return false // outro passe chegou primeiro
		}
		r.Log.Error("settle win", zap.String("bet_id", b.ID), zap.Error(err))
		if r.OnError != nil {
			r.OnError("settle")
		}
		return false
	}
	r.afterSettle(ctx, b, ledger.StatusWon, payout, winnings)
	return true
}

func (r *Resolver) settleLoser(ctx context.Context, b ledger.Bet) bool {
	if err := r.Ledger.SettleLoss(ctx, b.ID); err != nil {
		if errors.Is(err, ledger.ErrBetNotEligible) {
			return false
		}
		r.Log.Error("settle loss", zap.String("bet_id", b.ID), zap.Error(err))
		if r.OnError != nil {
			r.OnError("settle")
		}
		return false
	}
	r.afterSettle(ctx, b, ledger.StatusLost, 0, -b.StakeCents)
	return true
}

func (r *Resolver) afterSettle(ctx context.Context, b ledger.Bet, st ledger.Status, finalCents, plCents int64) {
	if r.OnSettled != nil {
		r.OnSettled(string(st))
	}
	if r.Publisher != nil {
		_ = r.Publisher.PublishBetSettled(ctx, events.BetSettled{
			BetID:            b.ID,
			UserID:           b.UserID,
			Event:            b.Event,
			Sport:            b.Sport,
			Status:           string(st),
			FinalAmountCents: finalCents,
			ProfitLossCents:  plCents,
			Ts:               r.now(),
		})
	}
}

// findResult localiza o resultado completo do confronto, tolerando drift de
// nomenclatura nos dois lados.
func findResult(results []provider.GameResult, home, away string) (provider.GameResult, bool) {
	for _, res := range results {
		if !res.Completed {
			continue
		}
		if match.Teams(res.HomeTeam, home) != match.KindNone &&
			match.Teams(res.AwayTeam, away) != match.KindNone {
			return res, true
		}
	}
	return provider.GameResult{}, false
}
