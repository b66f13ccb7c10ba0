package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/radieske/sportsbook-core/internal/ledger"
	"github.com/radieske/sportsbook-core/internal/odds/manager"
	"github.com/radieske/sportsbook-core/internal/odds/verify"
	"github.com/radieske/sportsbook-core/internal/provider"
	"github.com/radieske/sportsbook-core/internal/settlement"
	"github.com/radieske/sportsbook-core/internal/sportsbook/ws"
)

// Server expõe o core pra camada de roteamento. Autenticação é colaborador
// externo: o userId chega resolvido no header X-User-ID.
type Server struct {
	Log      *zap.Logger
	Odds     *manager.Manager
	Bets     *ledger.Service
	Resolver *settlement.Resolver
	Hub      *ws.Hub
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/v1/odds/{sport}", s.getOddsPage)

	r.Post("/v1/bets", s.placeBet)
	r.Get("/v1/bets", s.listBets)
	r.Get("/v1/bets/{id}/quote", s.getSellQuote)
	r.Post("/v1/bets/{id}/sell", s.sellBet)

	r.Get("/v1/wallet", s.getBalance)
	r.Post("/v1/wallet/deposit", s.deposit)

	r.Post("/v1/settlement/run", s.runSettlement)

	if s.Hub != nil {
		r.Get("/ws", s.Hub.HandleWS)
	}
	return r
}

func (s *Server) getOddsPage(w http.ResponseWriter, r *http.Request) {
	sport := chi.URLParam(r, "sport")
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	force := r.URL.Query().Get("refresh") == "true"

	out, err := s.Odds.GetPage(r.Context(), sport, page, pageSize, force)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	var req PlaceBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad json"})
		return
	}
	if req.Event == "" || req.Selection == "" || req.Sport == "" || req.StakeCents <= 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid payload"})
		return
	}

	res, err := s.Bets.PlaceBet(r.Context(), userID, ledger.PlaceBetInput{
		Event:        req.Event,
		Selection:    req.Selection,
		StakeCents:   req.StakeCents,
		Odds:         req.Odds,
		Sport:        req.Sport,
		CommenceTime: req.CommenceTime,
	})
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) listBets(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	bets, err := s.Bets.Bets(r.Context(), userID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bets)
}

func (s *Server) getSellQuote(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	quote, err := s.Bets.SellQuote(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (s *Server) sellBet(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	res, err := s.Bets.SellBet(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	bal, err := s.Bets.Balance(r.Context(), userID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{UserID: userID, BalanceCents: bal})
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AmountCents <= 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid payload"})
		return
	}
	bal, err := s.Bets.Deposit(r.Context(), userID, req.AmountCents, req.ExternalRef)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{UserID: userID, BalanceCents: bal})
}

func (s *Server) runSettlement(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.Resolver.ResolveOnce(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if summaries == nil {
		summaries = []settlement.Summary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get("X-User-ID")
	if id == "" {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "user not resolved"})
		return "", false
	}
	return id, true
}

// writeErr traduz os erros tipados do core pra respostas HTTP.
func (s *Server) writeErr(w http.ResponseWriter, err error) {
	var drift *ledger.OddsDriftError
	switch {
	case errors.As(err, &drift):
		// o usuário precisa reconfirmar com o preço novo
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:    "odds drifted",
			Asserted: &drift.Asserted,
			Live:     &drift.Live,
		})
	case errors.Is(err, ledger.ErrInsufficientFunds):
		writeJSON(w, http.StatusPaymentRequired, ErrorResponse{Error: err.Error()})
	case errors.Is(err, ledger.ErrBettingCutoff), errors.Is(err, ledger.ErrBetNotEligible):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
	case errors.Is(err, ledger.ErrNotFound), errors.Is(err, verify.ErrEventNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, ledger.ErrVerificationUnavailable), provider.IsExhausted(err):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
	default:
		s.Log.Error("internal error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
