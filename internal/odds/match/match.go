// Package match isola a comparação de nomes de times entre o cache local e o
// provider, que nem sempre usam exatamente a mesma grafia.
package match

import (
	"strings"
	"unicode"
)

// Kind classifica o resultado de uma comparação de nomes.
type Kind int

const (
	KindNone Kind = iota
	KindNormalized
	KindExact
)

func (k Kind) String() string {
	switch k {
	case KindExact:
		return "exact"
	case KindNormalized:
		return "normalized"
	default:
		return "none"
	}
}

// Normalize reduz um nome de time à forma canônica: minúsculas, sem pontuação,
// espaços colapsados.
func Normalize(name string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
		// pontuação é descartada
	}
	return strings.TrimSpace(b.String())
}

// Teams compara dois nomes de time. Igualdade exata vence; senão compara as
// formas normalizadas, aceitando containment pra tolerar prefixos/sufixos
// ("LA Lakers" vs "Los Angeles Lakers" não, mas "Lakers" vs "LA Lakers" sim).
func Teams(a, b string) Kind {
	if a == b && a != "" {
		return KindExact
	}
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return KindNone
	}
	if na == nb {
		return KindNormalized
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return KindNormalized
	}
	return KindNone
}

// EventKey deriva o identificador estável de um confronto.
func EventKey(home, away string) string {
	return Normalize(home) + "|" + Normalize(away)
}

// EventDescription monta a descrição legível usada nas apostas.
func EventDescription(home, away string) string {
	return home + " vs " + away
}

// SplitEvent desfaz uma descrição "Home vs Away". ok=false quando o formato
// não bate.
func SplitEvent(desc string) (home, away string, ok bool) {
	parts := strings.SplitN(desc, " vs ", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
