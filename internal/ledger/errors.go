package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrBettingCutoff     = errors.New("betting cutoff reached")
	ErrBetNotEligible    = errors.New("bet not eligible")
	ErrNotFound          = errors.New("not found")

	// ErrVerificationUnavailable é devolvido quando a política configurada é
	// "reject" e nem provider nem cache conhecem o evento.
	ErrVerificationUnavailable = errors.New("odds verification unavailable")
)

// OddsDriftError carrega a odd afirmada e a corrente pra que o usuário possa
// reconfirmar com o preço novo. Nunca é aceita silenciosamente.
type OddsDriftError struct {
	Asserted int
	Live     int
}

func (e *OddsDriftError) Error() string {
	return fmt.Sprintf("odds drifted: asserted %+d, live %+d", e.Asserted, e.Live)
}
