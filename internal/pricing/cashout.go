// Package pricing concentra a aritmética de odds americanas e o preço justo
// de cash-out. Funções puras, dinheiro sempre em centavos.
package pricing

import "math"

// sellFloorRatio é o piso do cash-out: nunca recompra uma posição por menos de
// 5% do stake original.
const sellFloorRatio = 0.05

// Quote é o resultado de uma cotação de venda antecipada.
type Quote struct {
	SellCents       int64 `json:"sell_cents"`
	ProfitLossCents int64 `json:"profit_loss_cents"`
}

// WinningsCents calcula o lucro potencial de uma aposta a odds americanas:
// stake*o/100 pra odds positivas, stake*100/|o| pra negativas.
func WinningsCents(stakeCents int64, odds int) int64 {
	if odds == 0 {
		return 0
	}
	stake := float64(stakeCents)
	if odds > 0 {
		return int64(math.Round(stake * float64(odds) / 100))
	}
	return int64(math.Round(stake * 100 / math.Abs(float64(odds))))
}

// PotentialPayoutCents é o retorno total em caso de vitória (stake + lucro).
func PotentialPayoutCents(stakeCents int64, odds int) int64 {
	return stakeCents + WinningsCents(stakeCents, odds)
}

// ImpliedProbability converte uma odd americana na probabilidade implícita:
// 100/(o+100) pra positivas, |o|/(|o|+100) pra negativas. Sempre em (0,1)
// pra odds válidas.
func ImpliedProbability(odds int) float64 {
	if odds > 0 {
		return 100 / (float64(odds) + 100)
	}
	abs := math.Abs(float64(odds))
	return abs / (abs + 100)
}

// CashOutQuote reprecifica uma posição pendente ao valor justo de mercado:
// payout potencial original vezes a probabilidade implícita da odd corrente.
// Sem spread da casa, por decisão de produto.
func CashOutQuote(stakeCents int64, placedOdds, currentOdds int) Quote {
	payout := float64(PotentialPayoutCents(stakeCents, placedOdds))
	p := ImpliedProbability(currentOdds)

	sell := int64(math.Round(payout * p))
	floor := int64(math.Round(float64(stakeCents) * sellFloorRatio))
	if sell < floor {
		sell = floor
	}

	return Quote{
		SellCents:       sell,
		ProfitLossCents: sell - stakeCents,
	}
}
