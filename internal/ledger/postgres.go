package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Postgres implementa apostas e carteiras no mesmo banco. Toda mutação de
// saldo acontece aqui, sob FOR UPDATE na linha da carteira, e é espelhada na
// wallet_ledger.
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

const betColumns = `id, user_id, event_description, selection, stake_cents, odds,
	sport, commence_time, status, created_at, settled_at, final_amount_cents, profit_loss_cents`

// Balance retorna o saldo do usuário, criando a carteira se não existir
func (p *Postgres) Balance(ctx context.Context, userID string) (int64, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	bal, _, err := lockOrCreateWallet(ctx, tx, userID)
	if err != nil {
		return 0, err
	}
	return bal, tx.Commit()
}

// Deposit credita a carteira e registra a operação no ledger
func (p *Postgres) Deposit(ctx context.Context, userID string, amountCents int64, externalRef string) (int64, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	_, walletID, err := lockOrCreateWallet(ctx, tx, userID)
	if err != nil {
		return 0, err
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE wallets SET balance_cents = balance_cents + $1, version = version + 1 WHERE id=$2`,
		amountCents, walletID); err != nil {
		return 0, err
	}
	if err = insertLedger(ctx, tx, walletID, "CREDIT", amountCents, "deposit:"+externalRef, nil); err != nil {
		return 0, err
	}

	var newBalance int64
	if err = tx.QueryRowContext(ctx, `SELECT balance_cents FROM wallets WHERE id=$1`, walletID).Scan(&newBalance); err != nil {
		return 0, err
	}
	return newBalance, tx.Commit()
}

// PlacePending insere a aposta PENDING e debita o stake numa única transação.
// A checagem de saldo e o débito não podem ser intercalados por outra operação
// do mesmo usuário: a linha da carteira fica travada até o commit.
func (p *Postgres) PlacePending(ctx context.Context, b *Bet) (betID string, newBalance int64, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", 0, err
	}
	defer tx.Rollback()

	balance, walletID, err := lockOrCreateWallet(ctx, tx, b.UserID)
	if err != nil {
		return "", 0, err
	}
	if balance < b.StakeCents {
		return "", 0, ErrInsufficientFunds
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE wallets SET balance_cents = balance_cents - $1, version = version + 1 WHERE id=$2`,
		b.StakeCents, walletID); err != nil {
		return "", 0, err
	}

	betID = uuid.NewString()
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO bets (id, user_id, event_description, selection, stake_cents, odds, sport, commence_time, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'PENDING')`,
		betID, b.UserID, b.Event, b.Selection, b.StakeCents, b.Odds, b.Sport, b.CommenceTime); err != nil {
		return "", 0, err
	}

	if err = insertLedger(ctx, tx, walletID, "DEBIT", b.StakeCents, "bet-place", &betID); err != nil {
		return "", 0, err
	}

	newBalance = balance - b.StakeCents
	if err = tx.Commit(); err != nil {
		return "", 0, err
	}
	return betID, newBalance, nil
}

// MarkSold efetiva a venda antecipada: credita o valor de venda e transiciona
// pra SOLD numa única transação. A releitura sob FOR UPDATE com guarda de
// status garante que a segunda venda do mesmo id falha.
func (p *Postgres) MarkSold(ctx context.Context, betID, userID string, sellCents, profitLossCents int64) (newBalance int64, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var status string
	var commence time.Time
	err = tx.QueryRowContext(ctx, `
		SELECT status, commence_time FROM bets
		WHERE id=$1 AND user_id=$2
		FOR UPDATE`, betID, userID).Scan(&status, &commence)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	} else if err != nil {
		return 0, err
	}
	if Status(status) != StatusPending || !commence.After(time.Now()) {
		return 0, ErrBetNotEligible
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE bets SET status='SOLD', settled_at=NOW(), final_amount_cents=$1, profit_loss_cents=$2
		WHERE id=$3`, sellCents, profitLossCents, betID); err != nil {
		return 0, err
	}

	_, walletID, err := lockOrCreateWallet(ctx, tx, userID)
	if err != nil {
		return 0, err
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE wallets SET balance_cents = balance_cents + $1, version = version + 1 WHERE id=$2`,
		sellCents, walletID); err != nil {
		return 0, err
	}
	if err = insertLedger(ctx, tx, walletID, "CREDIT", sellCents, "bet-cashout", &betID); err != nil {
		return 0, err
	}

	if err = tx.QueryRowContext(ctx, `SELECT balance_cents FROM wallets WHERE id=$1`, walletID).Scan(&newBalance); err != nil {
		return 0, err
	}
	return newBalance, tx.Commit()
}

// SettleWin credita stake+lucro e transiciona pra WON. A guarda de status na
// releitura torna a liquidação idempotente: um passe concorrente que chegar
// depois encontra a aposta fora de PENDING e não paga duas vezes.
func (p *Postgres) SettleWin(ctx context.Context, betID string, payoutCents, winningsCents int64) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var userID, status string
	err = tx.QueryRowContext(ctx,
		`SELECT user_id, status FROM bets WHERE id=$1 FOR UPDATE`, betID).Scan(&userID, &status)
	if err == sql.ErrNoRows {
		return ErrNotFound
	} else if err != nil {
		return err
	}
	if Status(status) != StatusPending {
		return ErrBetNotEligible
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE bets SET status='WON', settled_at=NOW(), final_amount_cents=$1, profit_loss_cents=$2
		WHERE id=$3`, payoutCents, winningsCents, betID); err != nil {
		return err
	}

	_, walletID, err := lockOrCreateWallet(ctx, tx, userID)
	if err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE wallets SET balance_cents = balance_cents + $1, version = version + 1 WHERE id=$2`,
		payoutCents, walletID); err != nil {
		return err
	}
	if err = insertLedger(ctx, tx, walletID, "CREDIT", payoutCents, "bet-won", &betID); err != nil {
		return err
	}

	return tx.Commit()
}

// SettleLoss transiciona pra LOST com final_amount zero. O stake já foi
// debitado na colocação; saldo não muda.
func (p *Postgres) SettleLoss(ctx context.Context, betID string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var stake int64
	var status string
	err = tx.QueryRowContext(ctx,
		`SELECT stake_cents, status FROM bets WHERE id=$1 FOR UPDATE`, betID).Scan(&stake, &status)
	if err == sql.ErrNoRows {
		return ErrNotFound
	} else if err != nil {
		return err
	}
	if Status(status) != StatusPending {
		return ErrBetNotEligible
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE bets SET status='LOST', settled_at=NOW(), final_amount_cents=0, profit_loss_cents=$1
		WHERE id=$2`, -stake, betID); err != nil {
		return err
	}

	return tx.Commit()
}

// GetBet carrega uma aposta pelo id
func (p *Postgres) GetBet(ctx context.Context, betID string) (*Bet, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+betColumns+` FROM bets WHERE id=$1`, betID)
	b, err := scanBet(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return b, nil
}

// ListByUser retorna as apostas do usuário, mais recentes primeiro
func (p *Postgres) ListByUser(ctx context.Context, userID string) ([]Bet, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+betColumns+` FROM bets WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// PendingEvents retorna os eventos distintos com apostas PENDING cujo início
// ficou pra trás de before (grace period já aplicado pelo chamador)
func (p *Postgres) PendingEvents(ctx context.Context, before time.Time) ([]PendingEvent, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT DISTINCT event_description, sport, commence_time
		FROM bets
		WHERE status='PENDING' AND commence_time < $1
		ORDER BY commence_time ASC`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PendingEvent
	for rows.Next() {
		var e PendingEvent
		if err := rows.Scan(&e.Event, &e.Sport, &e.CommenceTime); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PendingBetsForEvent retorna as apostas PENDING de um evento
func (p *Postgres) PendingBetsForEvent(ctx context.Context, event, sport string) ([]Bet, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+betColumns+` FROM bets
		 WHERE status='PENDING' AND event_description=$1 AND sport=$2`, event, sport)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// lockOrCreateWallet trava a carteira do usuário (criando se preciso) e
// retorna saldo e id. Válido apenas dentro de uma transação.
func lockOrCreateWallet(ctx context.Context, tx *sql.Tx, userID string) (balance int64, walletID string, err error) {
	err = tx.QueryRowContext(ctx,
		`SELECT id, balance_cents FROM wallets WHERE user_id=$1 FOR UPDATE`, userID).Scan(&walletID, &balance)
	if err == sql.ErrNoRows {
		walletID = uuid.NewString()
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO wallets(id, user_id, balance_cents, version) VALUES($1,$2,0,1)`,
			walletID, userID); err != nil {
			return 0, "", err
		}
		return 0, walletID, nil
	} else if err != nil {
		return 0, "", err
	}
	return balance, walletID, nil
}

func insertLedger(ctx context.Context, tx *sql.Tx, walletID, op string, amountCents int64, desc string, betID *string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_ledger(wallet_id, operation_type, amount_cents, description, related_bet_id)
		VALUES($1,$2,$3,$4,$5)`, walletID, op, amountCents, desc, betID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBet(r rowScanner) (*Bet, error) {
	var b Bet
	var settledAt sql.NullTime
	var finalAmount, profitLoss sql.NullInt64
	err := r.Scan(&b.ID, &b.UserID, &b.Event, &b.Selection, &b.StakeCents, &b.Odds,
		&b.Sport, &b.CommenceTime, &b.Status, &b.CreatedAt, &settledAt, &finalAmount, &profitLoss)
	if err != nil {
		return nil, err
	}
	if settledAt.Valid {
		b.SettledAt = &settledAt.Time
	}
	if finalAmount.Valid {
		b.FinalAmountCents = &finalAmount.Int64
	}
	if profitLoss.Valid {
		b.ProfitLossCents = &profitLoss.Int64
	}
	return &b, nil
}
