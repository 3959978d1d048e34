package helper

import (
	"math"
)

// DefaultTickSize — шаг цены NSE для акций.
const DefaultTickSize = 0.05

func RoundDownToTick(px, tick float64) float64 {
	if tick <= 0 {
		return px
	}
	steps := math.Floor(px/tick + 1e-12)
	return steps * tick
}

func RoundUpToTick(px, tick float64) float64 {
	if tick <= 0 {
		return px
	}
	steps := math.Ceil(px/tick - 1e-12)
	return steps * tick
}

// RoundToTick — к ближайшему шагу; биржа отклоняет цены не по шагу.
func RoundToTick(px, tick float64) float64 {
	if tick <= 0 {
		return px
	}
	steps := math.Floor(px/tick + 0.5)
	return steps * tick
}
