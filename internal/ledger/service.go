package ledger

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/sportsbook-core/internal/odds/match"
	"github.com/radieske/sportsbook-core/internal/odds/verify"
	"github.com/radieske/sportsbook-core/internal/pricing"
	"github.com/radieske/sportsbook-core/internal/provider"
	"github.com/radieske/sportsbook-core/pkg/contracts/events"
)

// Verifier revalida odds imediatamente antes de uma ação financeira.
type Verifier interface {
	LiveOdds(ctx context.Context, sport, eventDesc string) ([]provider.Outcome, error)
}

// Repo é o subconjunto do repositório usado pelo serviço de apostas.
type Repo interface {
	PlacePending(ctx context.Context, b *Bet) (string, int64, error)
	MarkSold(ctx context.Context, betID, userID string, sellCents, profitLossCents int64) (int64, error)
	GetBet(ctx context.Context, betID string) (*Bet, error)
	ListByUser(ctx context.Context, userID string) ([]Bet, error)
	Balance(ctx context.Context, userID string) (int64, error)
	Deposit(ctx context.Context, userID string, amountCents int64, externalRef string) (int64, error)
}

// Publisher emite eventos de negócio; best effort, nunca bloqueia a operação.
type Publisher interface {
	PublishBetPlaced(ctx context.Context, e events.BetPlaced) error
	PublishBetSettled(ctx context.Context, e events.BetSettled) error
}

// Service orquestra colocação e venda de apostas: cutoff, verificação de odds
// com tolerância de drift, precificação de cash-out e as transações do repo.
type Service struct {
	Log    *zap.Logger
	Repo   Repo
	Verify Verifier

	DriftTolerance int
	// RejectOnUnverified define a política quando a verificação fica
	// indisponível: true rejeita, false prossegue com a odd afirmada
	// (comportamento herdado do sistema original, agora explícito).
	RejectOnUnverified bool

	Publisher Publisher // opcional

	Now func() time.Time // injetável em teste
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// PlaceBetInput são os dados afirmados pelo chamador na colocação.
type PlaceBetInput struct {
	Event        string
	Selection    string
	StakeCents   int64
	Odds         int // odd americana afirmada pelo usuário
	Sport        string
	CommenceTime time.Time
}

// PlaceBetResult devolve o id criado e o saldo após o débito.
type PlaceBetResult struct {
	BetID        string `json:"bet_id"`
	BalanceCents int64  `json:"balance_cents"`
}

// PlaceBet valida cutoff e odds e cria a aposta debitando o stake.
func (s *Service) PlaceBet(ctx context.Context, userID string, in PlaceBetInput) (*PlaceBetResult, error) {
	if in.StakeCents <= 0 || in.Event == "" || in.Selection == "" || userID == "" {
		return nil, ErrBetNotEligible
	}
	if !in.CommenceTime.After(s.now()) {
		return nil, ErrBettingCutoff
	}

	if err := s.checkDrift(ctx, in.Sport, in.Event, in.Selection, in.Odds); err != nil {
		return nil, err
	}

	bet := &Bet{
		UserID:       userID,
		Event:        in.Event,
		Selection:    in.Selection,
		StakeCents:   in.StakeCents,
		Odds:         in.Odds,
		Sport:        in.Sport,
		CommenceTime: in.CommenceTime,
	}
	betID, balance, err := s.Repo.PlacePending(ctx, bet)
	if err != nil {
		return nil, err
	}

	if s.Publisher != nil {
		_ = s.Publisher.PublishBetPlaced(ctx, events.BetPlaced{
			BetID:        betID,
			UserID:       userID,
			Event:        in.Event,
			Selection:    in.Selection,
			Sport:        in.Sport,
			StakeCents:   in.StakeCents,
			Odds:         in.Odds,
			BalanceCents: balance,
			TsUnixMs:     s.now().UnixMilli(),
		})
	}

	return &PlaceBetResult{BetID: betID, BalanceCents: balance}, nil
}

// SellResult devolve a cotação efetivada e o saldo após o crédito.
type SellResult struct {
	BetID        string        `json:"bet_id"`
	Quote        pricing.Quote `json:"quote"`
	BalanceCents int64         `json:"balance_cents"`
}

// SellBet vende uma aposta PENDING antes do início do jogo pelo valor justo.
func (s *Service) SellBet(ctx context.Context, userID, betID string) (*SellResult, error) {
	bet, quote, err := s.quote(ctx, userID, betID)
	if err != nil {
		return nil, err
	}

	balance, err := s.Repo.MarkSold(ctx, betID, userID, quote.SellCents, quote.ProfitLossCents)
	if err != nil {
		return nil, err
	}

	if s.Publisher != nil {
		_ = s.Publisher.PublishBetSettled(ctx, events.BetSettled{
			BetID:            betID,
			UserID:           userID,
			Event:            bet.Event,
			Sport:            bet.Sport,
			Status:           string(StatusSold),
			FinalAmountCents: quote.SellCents,
			ProfitLossCents:  quote.ProfitLossCents,
			Ts:               s.now(),
		})
	}

	return &SellResult{BetID: betID, Quote: quote, BalanceCents: balance}, nil
}

// SellQuote roda o pricer sem mutação de estado.
func (s *Service) SellQuote(ctx context.Context, userID, betID string) (*pricing.Quote, error) {
	_, quote, err := s.quote(ctx, userID, betID)
	if err != nil {
		return nil, err
	}
	return &quote, nil
}

// Bets lista as apostas do usuário.
func (s *Service) Bets(ctx context.Context, userID string) ([]Bet, error) {
	return s.Repo.ListByUser(ctx, userID)
}

// Balance retorna o saldo corrente do usuário.
func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	return s.Repo.Balance(ctx, userID)
}

// Deposit credita a carteira do usuário.
func (s *Service) Deposit(ctx context.Context, userID string, amountCents int64, ref string) (int64, error) {
	if amountCents <= 0 {
		return 0, ErrBetNotEligible
	}
	return s.Repo.Deposit(ctx, userID, amountCents, ref)
}

// quote carrega a aposta, checa elegibilidade e precifica a saída com a odd
// corrente do mercado.
func (s *Service) quote(ctx context.Context, userID, betID string) (*Bet, pricing.Quote, error) {
	bet, err := s.Repo.GetBet(ctx, betID)
	if err != nil {
		return nil, pricing.Quote{}, err
	}
	if bet.UserID != userID {
		return nil, pricing.Quote{}, ErrNotFound
	}
	if bet.Status != StatusPending || !bet.CommenceTime.After(s.now()) {
		return nil, pricing.Quote{}, ErrBetNotEligible
	}

	current, err := s.liveSelectionOdds(ctx, bet.Sport, bet.Event, bet.Selection)
	if err != nil {
		if errors.Is(err, verify.ErrEventNotFound) {
			if s.RejectOnUnverified {
				return nil, pricing.Quote{}, ErrVerificationUnavailable
			}
			// política lenient: reprecifica com a própria odd de colocação
			s.Log.Warn("verification unavailable on sell, using placed odds",
				zap.String("bet_id", betID))
			current = bet.Odds
		} else {
			return nil, pricing.Quote{}, err
		}
	}

	return bet, pricing.CashOutQuote(bet.StakeCents, bet.Odds, current), nil
}

// checkDrift compara a odd afirmada com a corrente dentro da tolerância.
func (s *Service) checkDrift(ctx context.Context, sport, event, selection string, asserted int) error {
	live, err := s.liveSelectionOdds(ctx, sport, event, selection)
	if err != nil {
		if errors.Is(err, verify.ErrEventNotFound) {
			if s.RejectOnUnverified {
				return ErrVerificationUnavailable
			}
			s.Log.Warn("verification unavailable on placement, accepting asserted odds",
				zap.String("event", event),
				zap.Int("asserted", asserted))
			return nil
		}
		return err
	}

	drift := asserted - live
	if drift < 0 {
		drift = -drift
	}
	if drift > s.DriftTolerance {
		return &OddsDriftError{Asserted: asserted, Live: live}
	}
	return nil
}

// liveSelectionOdds resolve a odd corrente do participante escolhido.
// Participante ausente da resposta conta como verificação indisponível.
func (s *Service) liveSelectionOdds(ctx context.Context, sport, event, selection string) (int, error) {
	outcomes, err := s.Verify.LiveOdds(ctx, sport, event)
	if err != nil {
		return 0, err
	}
	for _, o := range outcomes {
		if match.Teams(o.Name, selection) != match.KindNone {
			return o.Price, nil
		}
	}
	return 0, verify.ErrEventNotFound
}
