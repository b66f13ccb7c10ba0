package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/radieske/sportsbook-core/internal/odds/match"
	"github.com/radieske/sportsbook-core/internal/provider"
)

var ErrNotFound = errors.New("snapshot not found")

// Postgres implementa a persistência de snapshots de odds
type Postgres struct{ db *sql.DB }

// NewPostgres retorna uma instância do repositório de odds
func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// Freshness retorna a contagem de snapshots não expirados de um esporte e o
// refresh mais recente entre eles
func (p *Postgres) Freshness(ctx context.Context, sport string) (count int, newest time.Time, err error) {
	var ts sql.NullTime
	err = p.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MAX(refreshed_at)
		FROM odds_snapshots
		WHERE sport=$1 AND commence_time > NOW()`, sport).Scan(&count, &ts)
	if err != nil {
		return 0, time.Time{}, err
	}
	if ts.Valid {
		newest = ts.Time
	}
	return count, newest, nil
}

// ReplaceSport descarta os snapshots do esporte e insere o novo conjunto
// numa única transação. Leitores nunca observam o esporte vazio no meio do refresh.
func (p *Postgres) ReplaceSport(ctx context.Context, sport string, snaps []Snapshot) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, `DELETE FROM odds_snapshots WHERE sport=$1`, sport); err != nil {
		return err
	}

	for _, s := range snaps {
		if err = insertSnapshot(ctx, tx, s); err != nil {
			return fmt.Errorf("insert snapshot %s: %w", s.EventKey, err)
		}
	}

	return tx.Commit()
}

// Upsert insere ou atualiza um snapshot individual (write-back da verificação)
func (p *Postgres) Upsert(ctx context.Context, s Snapshot) error {
	outs, err := json.Marshal(s.Outcomes)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO odds_snapshots
		  (id, sport, event_key, home_team, away_team, commence_time, outcomes, refreshed_at)
		VALUES
		  ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (sport, event_key, commence_time) DO UPDATE SET
		  home_team    = EXCLUDED.home_team,
		  away_team    = EXCLUDED.away_team,
		  outcomes     = EXCLUDED.outcomes,
		  refreshed_at = EXCLUDED.refreshed_at`,
		nonEmptyID(s.ID), s.Sport, s.EventKey, s.HomeTeam, s.AwayTeam,
		s.CommenceTime, outs, s.RefreshedAt,
	)
	return err
}

// ListUpcoming retorna uma página de snapshots futuros ordenados por início,
// junto com o total de eventos futuros do esporte
func (p *Postgres) ListUpcoming(ctx context.Context, sport string, offset, limit int) ([]Snapshot, int, error) {
	var total int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM odds_snapshots
		WHERE sport=$1 AND commence_time > NOW()`, sport).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT id, sport, event_key, home_team, away_team, commence_time, outcomes, refreshed_at
		FROM odds_snapshots
		WHERE sport=$1 AND commence_time > NOW()
		ORDER BY commence_time ASC
		OFFSET $2 LIMIT $3`, sport, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// FindByTeams localiza o snapshot não expirado de um confronto.
// Tenta igualdade exata por event_key e depois matching normalizado em memória,
// tolerando drift de nomenclatura do provider.
func (p *Postgres) FindByTeams(ctx context.Context, sport, home, away string) (*Snapshot, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, sport, event_key, home_team, away_team, commence_time, outcomes, refreshed_at
		FROM odds_snapshots
		WHERE sport=$1 AND event_key=$2 AND commence_time > NOW()
		ORDER BY refreshed_at DESC
		LIMIT 1`, sport, match.EventKey(home, away))
	s, err := scanSnapshot(row)
	if err == nil {
		return &s, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT id, sport, event_key, home_team, away_team, commence_time, outcomes, refreshed_at
		FROM odds_snapshots
		WHERE sport=$1 AND commence_time > NOW()`, sport)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		if match.Teams(s.HomeTeam, home) != match.KindNone &&
			match.Teams(s.AwayTeam, away) != match.KindNone {
			return &s, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return nil, ErrNotFound
}

// EvictExpired remove snapshots de eventos já iniciados
func (p *Postgres) EvictExpired(ctx context.Context) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM odds_snapshots WHERE commence_time <= NOW()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// EvictExcess mantém apenas os max snapshots de início mais próximo do esporte.
// Rede de segurança pós-refresh contra escritas concorrentes/parciais.
func (p *Postgres) EvictExcess(ctx context.Context, sport string, max int) (int64, error) {
	res, err := p.db.ExecContext(ctx, `
		DELETE FROM odds_snapshots
		WHERE sport=$1 AND id NOT IN (
			SELECT id FROM odds_snapshots
			WHERE sport=$1
			ORDER BY commence_time ASC
			LIMIT $2
		)`, sport, max)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(r rowScanner) (Snapshot, error) {
	var s Snapshot
	var outs []byte
	err := r.Scan(&s.ID, &s.Sport, &s.EventKey, &s.HomeTeam, &s.AwayTeam,
		&s.CommenceTime, &outs, &s.RefreshedAt)
	if err != nil {
		return Snapshot{}, err
	}
	if err := json.Unmarshal(outs, &s.Outcomes); err != nil {
		return Snapshot{}, fmt.Errorf("decode outcomes: %w", err)
	}
	return s, nil
}

func insertSnapshot(ctx context.Context, tx *sql.Tx, s Snapshot) error {
	outs, err := json.Marshal(s.Outcomes)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO odds_snapshots
		  (id, sport, event_key, home_team, away_team, commence_time, outcomes, refreshed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (sport, event_key, commence_time) DO UPDATE SET
		  outcomes     = EXCLUDED.outcomes,
		  refreshed_at = EXCLUDED.refreshed_at`,
		nonEmptyID(s.ID), s.Sport, s.EventKey, s.HomeTeam, s.AwayTeam,
		s.CommenceTime, outs, s.RefreshedAt,
	)
	return err
}

func nonEmptyID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

// FromProviderEvent converte um evento do provider num snapshot pronto pra persistir
func FromProviderEvent(e provider.Event, refreshedAt time.Time) Snapshot {
	return Snapshot{
		ID:           uuid.NewString(),
		Sport:        e.Sport,
		EventKey:     match.EventKey(e.HomeTeam, e.AwayTeam),
		HomeTeam:     e.HomeTeam,
		AwayTeam:     e.AwayTeam,
		CommenceTime: e.CommenceTime,
		Outcomes:     e.Outcomes,
		RefreshedAt:  refreshedAt,
	}
}
