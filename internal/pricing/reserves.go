// Package pricing derives USD prices from AMM pool state and from the
// external aggregator, with per-token decimals caching.
package pricing

import (
	"math"
	"math/big"
)

// Normalize converts a raw token amount to natural units.
func Normalize(amount *big.Int, decimals int) float64 {
	if amount == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(
		new(big.Float).SetInt(amount),
		big.NewFloat(math.Pow10(decimals)),
	).Float64()
	return f
}

// V2RelativePrice returns the price of token0 denominated in token1 and its
// inverse, from V2 reserves. ok is false when either normalized reserve
// is not strictly positive.
func V2RelativePrice(r0, r1 *big.Int, d0, d1 int) (p0in1, p1in0 float64, ok bool) {
	n0 := Normalize(r0, d0)
	n1 := Normalize(r1, d1)
	if n0 <= 0 || n1 <= 0 {
		return 0, 0, false
	}
	return n1 / n0, n0 / n1, true
}

// V3PriceToken1PerToken0 converts a V3 sqrtPriceX96 into the price of
// token0 denominated in token1. ok is false when the result is not a
// positive finite number.
func V3PriceToken1PerToken0(sqrtPriceX96 *big.Int, d0, d1 int) (float64, bool) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return 0, false
	}
	sp, _ := new(big.Float).Quo(
		new(big.Float).SetInt(sqrtPriceX96),
		new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 96)),
	).Float64()
	price := sp * sp * math.Pow10(d0-d1)
	if math.IsInf(price, 0) || math.IsNaN(price) || price <= 0 {
		return 0, false
	}
	return price, true
}
