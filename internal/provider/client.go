package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// ExhaustedError indica que todas as credenciais da cadeia falharam.
// Carrega o último erro de rede/HTTP observado.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d odds api credentials exhausted: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// IsExhausted reporta se err é (ou embrulha) um ExhaustedError.
func IsExhausted(err error) bool {
	var ex *ExhaustedError
	return errors.As(err, &ex)
}

// Client consome o upstream de odds com failover ordenado de credenciais.
// Cada tentativa tem timeout próprio pra uma credencial lenta não travar a cadeia.
type Client struct {
	baseURL string
	keys    []string // ordem define o failover
	timeout time.Duration
	http    *http.Client
	log     *zap.Logger

	OnKeyFailure func(keyIndex int) // métricas
}

// New cria o client. A lista de keys é imutável depois daqui.
func New(baseURL string, keys []string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		keys:    append([]string(nil), keys...),
		timeout: timeout,
		http:    &http.Client{},
		log:     log,
	}
}

// FetchOdds busca as odds h2h correntes de um esporte.
// Eventos malformados são pulados; o lote nunca falha por causa de um evento.
func (c *Client) FetchOdds(ctx context.Context, sportKey string) ([]Event, error) {
	path := fmt.Sprintf("/v4/sports/%s/odds", url.PathEscape(sportKey))
	q := url.Values{
		"regions":    {"us"},
		"markets":    {"h2h"},
		"oddsFormat": {"american"},
	}

	var raw []apiEvent
	if err := c.getJSON(ctx, path, q, &raw); err != nil {
		return nil, err
	}

	out := make([]Event, 0, len(raw))
	for _, e := range raw {
		ev, ok := normalizeEvent(e)
		if !ok {
			c.log.Debug("skipping malformed upstream event",
				zap.String("sport", sportKey),
				zap.String("home", e.HomeTeam),
				zap.String("away", e.AwayTeam),
			)
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// FetchScores busca resultados dos últimos daysFrom dias de um esporte.
func (c *Client) FetchScores(ctx context.Context, sportKey string, daysFrom int) ([]GameResult, error) {
	path := fmt.Sprintf("/v4/sports/%s/scores", url.PathEscape(sportKey))
	q := url.Values{"daysFrom": {strconv.Itoa(daysFrom)}}

	var raw []apiScore
	if err := c.getJSON(ctx, path, q, &raw); err != nil {
		return nil, err
	}

	out := make([]GameResult, 0, len(raw))
	for _, s := range raw {
		if s.HomeTeam == "" || s.AwayTeam == "" {
			continue
		}
		r := GameResult{
			Sport:        s.SportKey,
			HomeTeam:     s.HomeTeam,
			AwayTeam:     s.AwayTeam,
			CommenceTime: s.CommenceTime,
			Completed:    s.Completed,
		}
		if s.Completed {
			home, away, ok := extractScores(s)
			if !ok {
				// resultado sem os dois placares não serve pra liquidação
				r.Completed = false
			} else {
				r.HomeScore, r.AwayScore = home, away
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// getJSON percorre a cadeia de credenciais e decodifica a primeira resposta 2xx.
func (c *Client) getJSON(ctx context.Context, path string, q url.Values, dst any) error {
	if len(c.keys) == 0 {
		return &ExhaustedError{Attempts: 0, Last: errors.New("no api keys configured")}
	}

	var last error
	for i, key := range c.keys {
		err := c.attempt(ctx, path, q, key, dst)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		last = err
		c.log.Warn("odds api credential failed",
			zap.Int("key_index", i),
			zap.String("path", path),
			zap.Error(err),
		)
		if c.OnKeyFailure != nil {
			c.OnKeyFailure(i)
		}
	}
	return &ExhaustedError{Attempts: len(c.keys), Last: last}
}

func (c *Client) attempt(ctx context.Context, path string, q url.Values, key string, dst any) error {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	qq := url.Values{}
	for k, v := range q {
		qq[k] = v
	}
	qq.Set("apiKey", key)

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, c.baseURL+path+"?"+qq.Encode(), nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("odds api http %s", resp.Status)
	}

	return json.NewDecoder(resp.Body).Decode(dst)
}

// normalizeEvent extrai as odds h2h do primeiro bookmaker utilizável.
func normalizeEvent(e apiEvent) (Event, bool) {
	if e.HomeTeam == "" || e.AwayTeam == "" || e.CommenceTime.IsZero() {
		return Event{}, false
	}
	for _, b := range e.Bookmakers {
		for _, m := range b.Markets {
			if m.Key != "h2h" || len(m.Outcomes) == 0 {
				continue
			}
			outs := make([]Outcome, 0, len(m.Outcomes))
			for _, o := range m.Outcomes {
				if o.Name == "" || o.Price == 0 || math.IsNaN(o.Price) {
					continue
				}
				outs = append(outs, Outcome{Name: o.Name, Price: int(math.Round(o.Price))})
			}
			if len(outs) >= 2 {
				return Event{
					Sport:        e.SportKey,
					HomeTeam:     e.HomeTeam,
					AwayTeam:     e.AwayTeam,
					CommenceTime: e.CommenceTime,
					Outcomes:     outs,
				}, true
			}
		}
	}
	return Event{}, false
}

// extractScores resolve o placar de cada lado pelo nome do time.
func extractScores(s apiScore) (home, away int, ok bool) {
	var haveHome, haveAway bool
	for _, entry := range s.Scores {
		n, err := strconv.Atoi(entry.Score)
		if err != nil {
			continue
		}
		switch entry.Name {
		case s.HomeTeam:
			home, haveHome = n, true
		case s.AwayTeam:
			away, haveAway = n, true
		}
	}
	return home, away, haveHome && haveAway
}
