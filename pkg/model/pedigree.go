package model

import (
	"fmt"
	"math"
)

// Uncertainty factors per pedigree indicator and score (ecoinvent v2).
var pedigreeFactors = [5][5]float64{
	{1.00, 1.05, 1.10, 1.20, 1.50}, // reliability
	{1.00, 1.02, 1.05, 1.10, 1.20}, // completeness
	{1.00, 1.03, 1.10, 1.20, 1.50}, // temporal correlation
	{1.00, 1.01, 1.02, 1.05, 1.10}, // geographical correlation
	{1.00, 1.05, 1.20, 1.50, 2.00}, // further technological correlation
}

func (p Pedigree) scores() [5]int {
	return [5]int{p.Reliability, p.Completeness, p.Temporal, p.Geographical, p.FurtherTech}
}

// Validate reports whether every score is in 1..5.
func (p Pedigree) Validate() error {
	for i, s := range p.scores() {
		if s < 1 || s > 5 {
			return NewDomainError(KindInvalid, "pedigree score %d out of range: %d", i+1, s)
		}
	}
	return nil
}

// AdjustScale widens the log-normal scale (sigma) of a basic uncertainty with
// the pedigree factors.
func (p Pedigree) AdjustScale(sigma float64) (float64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	sum := sigma * sigma
	for i, s := range p.scores() {
		l := math.Log(pedigreeFactors[i][s-1])
		sum += l * l
	}
	return math.Sqrt(sum), nil
}

func (p Pedigree) String() string {
	s := p.scores()
	return fmt.Sprintf("(%d,%d,%d,%d,%d)", s[0], s[1], s[2], s[3], s[4])
}
