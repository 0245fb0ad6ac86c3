// Package util provides common utility functions for volume calculations.
package util

import "github.com/shopspring/decimal"

// minVolume is the smallest lot size brokers accept for a market deal.
var minVolume = decimal.RequireFromString("0.01")

// SlaveVolume scales a master volume by the mapping's lot multiplier and
// clamps the result up to the broker minimum of 0.01 lots. The arithmetic
// runs in decimals so 0.2 * 0.5 is exactly 0.1, not 0.10000000000000002.
func SlaveVolume(masterVolume float64, multiplier decimal.Decimal) float64 {
	v := decimal.NewFromFloat(masterVolume).Mul(multiplier)
	if v.LessThan(minVolume) {
		v = minVolume
	}
	f, _ := v.Float64()
	return f
}

// RoundVolume rounds a volume to two decimals, the lot precision used in
// published snapshots.
func RoundVolume(volume float64) float64 {
	f, _ := decimal.NewFromFloat(volume).Round(2).Float64()
	return f
}
