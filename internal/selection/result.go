// Package selection computes per-gene and global dN/dS estimates: nested
// likelihood-ratio tests against the fitted background rates, chi-squared
// p-values and Benjamini-Hochberg q-values over the full gene universe.
package selection

import "github.com/driverdx/dnds/internal/mutation"

// GeneResult is the selection analysis of one gene. Computed once per run,
// immutable afterwards.
type GeneResult struct {
	GeneID string
	Obs    [mutation.NumClasses]int

	// Expected counts per substitution class under the fitted global rates,
	// before the gene's local background adjustment.
	Expected [mutation.NumSubClasses]float64
	ExpInd   float64

	// Maximum-likelihood dN/dS per class.
	Wmis, Wnon, Wspl, Wtru, Wall, Wind float64

	// Raw likelihood-ratio p-values.
	Pmis, Ptrunc, Pallsubs, Pind, Pglobal float64

	// Benjamini-Hochberg q-values, per test column.
	Qmis, Qtrunc, Qallsubs, Qind, Qglobal float64

	// Degenerate marks genes with no mutation opportunity; they are kept
	// in the table with p = 1 so the testing universe stays stable.
	Degenerate bool
}

// Interval is a point estimate with its 95% confidence bounds.
type Interval struct {
	Est, Lo, Hi float64
}

// GlobalResult is the pooled dN/dS summary across all genes.
type GlobalResult struct {
	Wmis, Wnon, Wspl, Wtru, Wall Interval
}
