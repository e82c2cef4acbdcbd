package assembler

import "math"

// RoundUpHundred rounds a won amount up to the next multiple of 100.
func RoundUpHundred(amount int64) int64 {
	return ceilDiv(amount, 100) * 100
}

// Price applies marginRate (percent) to baseCost+delta and rounds up to 100 won.
// The margin is carried in basis points so the arithmetic stays integral.
func Price(baseCost, delta int64, marginRate float64) int64 {
	bp := int64(math.Round(marginRate * 100))
	return ceilDiv((baseCost+delta)*(10000+bp), 1_000_000) * 100
}

func ceilDiv(a, b int64) int64 {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
