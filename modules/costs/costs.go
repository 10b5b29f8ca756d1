// Package costs turns token and search-call counts into USD cost fields.
package costs

import "math/big"

// Fields is the USD cost breakdown for a job at a point in time.
type Fields struct {
	LLMCostUSD        float64
	SerperCostUSD     float64
	TotalCostUSD      float64
	CostPerContactUSD float64
}

// Compute implements the cost formula from the spec: token-rate costs plus
// per-1000-search-call costs, divided by max(1, contactsFound) for the
// per-contact figure. All results are rounded half-to-even to 6 decimals.
func Compute(promptTokens, completionTokens, serperCalls, contactsFound int, inputCostPerM, outputCostPerM, serperCostPer1k float64) Fields {
	pt := maxInt(0, promptTokens)
	ct := maxInt(0, completionTokens)
	sc := maxInt(0, serperCalls)

	llm := float64(pt)/1_000_000*inputCostPerM + float64(ct)/1_000_000*outputCostPerM
	serper := float64(sc) / 1000 * serperCostPer1k
	total := llm + serper
	denom := maxInt(1, contactsFound)

	return Fields{
		LLMCostUSD:        roundHalfEven6(llm),
		SerperCostUSD:      roundHalfEven6(serper),
		TotalCostUSD:      roundHalfEven6(total),
		CostPerContactUSD: roundHalfEven6(total / float64(denom)),
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// roundHalfEven6 rounds v to 6 decimal places using round-half-to-even,
// matching the banker's rounding semantics required by the spec.
func roundHalfEven6(v float64) float64 {
	r := new(big.Rat).SetFloat64(v)
	if r == nil {
		return 0
	}
	scaled := new(big.Rat).Mul(r, big.NewRat(1_000_000, 1))

	num := new(big.Int).Set(scaled.Num())
	den := new(big.Int).Set(scaled.Denom())

	quo, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	if rem.Sign() != 0 {
		twiceRem := new(big.Int).Mul(rem, big.NewInt(2))
		twiceRem.Abs(twiceRem)
		cmp := twiceRem.Cmp(den)
		roundUp := false
		switch {
		case cmp > 0:
			roundUp = true
		case cmp == 0:
			// exactly halfway: round to even
			if quo.Bit(0) == 1 {
				roundUp = true
			}
		}
		if roundUp {
			if num.Sign() < 0 {
				quo.Sub(quo, big.NewInt(1))
			} else {
				quo.Add(quo, big.NewInt(1))
			}
		}
	}

	f := new(big.Float).SetInt(quo)
	f.Quo(f, big.NewFloat(1_000_000))
	out, _ := f.Float64()
	return out
}
