package chain

import "math/big"

var weiPerToken = new(big.Float).SetFloat64(1e18)

// ScaleToWei converts a floating-point token amount to its base-18
// fixed-point integer representation. The integer form is what crosses the
// wire; floats exist only at the boundary.
func ScaleToWei(amount float64) *big.Int {
	scaled, _ := new(big.Float).Mul(new(big.Float).SetFloat64(amount), weiPerToken).Int(nil)
	return scaled
}

// TokensFromWei converts a base-18 fixed-point integer to whole tokens.
func TokensFromWei(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	out, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), weiPerToken).Float64()
	return out
}

// GweiFromWei converts a wei amount to gwei exactly (wei / 1e9).
func GweiFromWei(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	out, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e9)).Float64()
	return out
}
