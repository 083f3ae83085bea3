package formulas

import (
	"math"
)

// CalculateSharpeRatio calculates the annualized Sharpe ratio.
//
// Sharpe = (Mean Periodic Return - Periodic Risk-free Rate) / Std Dev of Returns
// Annualized: Sharpe x sqrt(periodsPerYear)
//
// Returns nil when there is insufficient data or zero variance.
func CalculateSharpeRatio(returns []float64, riskFreeRate float64, periodsPerYear int) *float64 {
	if len(returns) < 2 {
		return nil
	}

	meanReturn := Mean(returns)

	stdDev := StdDev(returns)
	if stdDev == 0 {
		return nil
	}

	periodicRiskFree := riskFreeRate / float64(periodsPerYear)

	sharpe := (meanReturn - periodicRiskFree) / stdDev
	annualized := sharpe * math.Sqrt(float64(periodsPerYear))

	return &annualized
}

// CalculateSharpeFromValues calculates the Sharpe ratio directly from a
// daily portfolio value series (252 trading days).
func CalculateSharpeFromValues(values []float64, riskFreeRate float64) *float64 {
	if len(values) < 2 {
		return nil
	}

	returns := CalculateReturns(values)
	return CalculateSharpeRatio(returns, riskFreeRate, 252)
}
