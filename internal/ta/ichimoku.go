package ta

// IchimokuResult holds the conversion/base lines and a simple cloud signal.
type IchimokuResult struct {
	Conversion float64 `json:"conversion"` // tenkan-sen (9)
	Base       float64 `json:"base"`       // kijun-sen (26)
	SpanA      float64 `json:"spanA"`
	SpanB      float64 `json:"spanB"`
	Signal     int     `json:"signal"` // +1 bullish, -1 bearish, 0 neutral
}

// Ichimoku computes the Ichimoku lines from close prices using midpoints
// of rolling high/low ranges. Fallback: zero result with neutral signal
// when fewer than 52 samples exist.
func Ichimoku(prices []float64) IchimokuResult {
	if len(prices) < 52 {
		return IchimokuResult{}
	}

	conversion := midpoint(prices, 9)
	base := midpoint(prices, 26)
	spanA := (conversion + base) / 2
	spanB := midpoint(prices, 52)

	last := prices[len(prices)-1]
	signal := 0
	cloudTop := spanA
	cloudBottom := spanB
	if cloudBottom > cloudTop {
		cloudTop, cloudBottom = cloudBottom, cloudTop
	}
	switch {
	case last > cloudTop && conversion > base:
		signal = 1
	case last < cloudBottom && conversion < base:
		signal = -1
	}

	return IchimokuResult{
		Conversion: conversion,
		Base:       base,
		SpanA:      spanA,
		SpanB:      spanB,
		Signal:     signal,
	}
}

// midpoint returns (max+min)/2 over the last period samples.
func midpoint(prices []float64, period int) float64 {
	if len(prices) < period {
		period = len(prices)
	}
	window := prices[len(prices)-period:]
	lo, hi := window[0], window[0]
	for _, p := range window {
		if p < lo {
			lo = p
		}
		if p > hi {
			hi = p
		}
	}
	return (lo + hi) / 2
}
