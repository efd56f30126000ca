package money

// Amounts are int64 micro-units of the single settlement asset.
// Basis points express percentages: 10000 = 100%.

const (
	// DecimalPrecision is the number of decimal places in an amount.
	DecimalPrecision = 6

	// Scale is 10^DecimalPrecision.
	Scale int64 = 1_000_000

	// BasisPointDenominator converts basis points to a fraction.
	BasisPointDenominator int64 = 10_000
)

// ApplyBasisPoints returns amount * bps / 10000 with truncating integer
// division. Safe for amounts up to ~900 trillion micro-units before the
// intermediate product overflows int64, far beyond any premium or payout
// this ledger admits.
func ApplyBasisPoints(amount int64, bps int64) int64 {
	return amount * bps / BasisPointDenominator
}

// ValidBasisPoints reports whether bps is within [0, 10000].
func ValidBasisPoints(bps int64) bool {
	return bps >= 0 && bps <= BasisPointDenominator
}

// MulChecked returns a * b and whether the product fits in int64. Both
// operands are expected to be non-negative.
func MulChecked(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	product := a * b
	if product/b != a {
		return 0, false
	}
	return product, true
}

// Units converts whole units to micro-units. Convenience for tests and
// default parameters.
func Units(n int64) int64 {
	return n * Scale
}
