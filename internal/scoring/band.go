// Package scoring maps a correct-answer count to an IELTS band score.
// The breakpoints are calibration data, not logic: the default table ships
// embedded but deployments can override it via configuration.
package scoring

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Step is one row of the band table: any correct count >= MinCorrect that
// does not hit a higher row scores Band.
type Step struct {
	MinCorrect int     `json:"min_correct"`
	Band       float64 `json:"band"`
}

// Table is a monotonic step table, kept sorted by MinCorrect descending.
type Table []Step

// Default returns the standard academic reading conversion table for a
// 40-question paper.
func Default() Table {
	return Table{
		{MinCorrect: 39, Band: 9.0},
		{MinCorrect: 37, Band: 8.5},
		{MinCorrect: 35, Band: 8.0},
		{MinCorrect: 33, Band: 7.5},
		{MinCorrect: 30, Band: 7.0},
		{MinCorrect: 27, Band: 6.5},
		{MinCorrect: 23, Band: 6.0},
		{MinCorrect: 19, Band: 5.5},
		{MinCorrect: 15, Band: 5.0},
		{MinCorrect: 13, Band: 4.5},
		{MinCorrect: 10, Band: 4.0},
		{MinCorrect: 8, Band: 3.5},
		{MinCorrect: 6, Band: 3.0},
		{MinCorrect: 4, Band: 2.5},
		{MinCorrect: 3, Band: 2.0},
		{MinCorrect: 2, Band: 1.5},
		{MinCorrect: 1, Band: 1.0},
		{MinCorrect: 0, Band: 0.5},
	}
}

// Parse reads a JSON step array (the BAND_TABLE env format) and validates
// that it is non-empty and strictly monotonic once sorted.
func Parse(raw string) (Table, error) {
	var t Table
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, fmt.Errorf("parse band table: %w", err)
	}
	if len(t) == 0 {
		return nil, fmt.Errorf("band table is empty")
	}
	sort.Slice(t, func(i, j int) bool { return t[i].MinCorrect > t[j].MinCorrect })
	for i := 1; i < len(t); i++ {
		if t[i].MinCorrect == t[i-1].MinCorrect || t[i].Band >= t[i-1].Band {
			return nil, fmt.Errorf("band table is not monotonic at row %d", i)
		}
	}
	return t, nil
}

// Score returns the band for a correct-answer count. Counts below every
// step score the lowest band in the table.
func (t Table) Score(correct int) float64 {
	for _, step := range t {
		if correct >= step.MinCorrect {
			return step.Band
		}
	}
	return t[len(t)-1].Band
}
