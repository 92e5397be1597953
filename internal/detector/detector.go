// Package detector decide se um preço mudou e se atingiu o alvo do usuário.
package detector

import "github.com/shopspring/decimal"

// Precision é o número de casas decimais usado nas comparações de preço
const Precision = 2

// Result é o veredito da comparação
type Result struct {
	Changed bool // novo preço difere do anterior
	Crossed bool // novo preço <= preço alvo
}

// Detect compara o preço anterior e o novo contra o preço alvo.
// Sem tolerância: os valores são arredondados para centavos e comparados exatamente.
func Detect(oldPrice, newPrice, targetPrice decimal.Decimal) Result {
	n := newPrice.Round(Precision)
	return Result{
		Changed: !n.Equal(oldPrice.Round(Precision)),
		Crossed: n.LessThanOrEqual(targetPrice.Round(Precision)),
	}
}

// ShouldNotify informa se o resultado exige um alerta: preço mudou neste ciclo e está no alvo
func (r Result) ShouldNotify() bool {
	return r.Changed && r.Crossed
}
