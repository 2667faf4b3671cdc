package amm

import "cashflow/native/common"

// CalculateShares returns the LP shares minted for a deposit of (a, b) into a
// pool with the given reserves. The first deposit mints floor(sqrt(a*b));
// later deposits mint the smaller of the two proportional claims so the pool
// ratio cannot be diluted.
func CalculateShares(reserveA, reserveB, totalShares, a, b uint64) (uint64, error) {
	if totalShares == 0 {
		return common.MulSqrt(a, b)
	}
	fromA, err := common.MulDiv(a, totalShares, reserveA)
	if err != nil {
		return 0, err
	}
	fromB, err := common.MulDiv(b, totalShares, reserveB)
	if err != nil {
		return 0, err
	}
	return common.Min(fromA, fromB), nil
}

// CalculateWithdrawal returns the reserve amounts released for burning
// shares out of totalShares.
func CalculateWithdrawal(reserveA, reserveB, totalShares, shares uint64) (uint64, uint64, error) {
	if totalShares == 0 {
		return 0, 0, common.ErrZeroLiquidityPool
	}
	outA, err := common.MulDiv(shares, reserveA, totalShares)
	if err != nil {
		return 0, 0, err
	}
	outB, err := common.MulDiv(shares, reserveB, totalShares)
	if err != nil {
		return 0, 0, err
	}
	return outA, outB, nil
}

// rollWindow advances the window when more than WindowDuration seconds have
// elapsed since it opened. It reports whether the window changed.
func rollWindow(pool *Pool, now int64) (bool, error) {
	elapsed, err := common.CheckedSubInt64(now, pool.WindowStart)
	if err != nil {
		return false, err
	}
	if elapsed <= WindowDuration {
		return false, nil
	}
	next, err := common.CheckedAdd(pool.WindowNumber, 1)
	if err != nil {
		return false, err
	}
	pool.WindowStart = now
	pool.WindowNumber = next
	return true, nil
}
