// Package output writes the run's result tables and ledgers in
// tab-delimited format.
package output

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/driverdx/dnds/internal/mutation"
	"github.com/driverdx/dnds/internal/regression"
	"github.com/driverdx/dnds/internal/selection"
	"github.com/driverdx/dnds/internal/submodel"
)

// GeneResultsWriter writes the per-gene significance table. The column
// suffix follows the estimator mode ("cv" or "loc").
type GeneResultsWriter struct {
	w       *bufio.Writer
	columns []string
}

// NewGeneResultsWriter creates a writer for the per-gene table.
func NewGeneResultsWriter(w io.Writer, mode string) *GeneResultsWriter {
	cols := []string{"gene_name", "n_syn", "n_mis", "n_non", "n_spl", "n_ind",
		"exp_syn", "exp_mis", "exp_non", "exp_spl", "exp_ind"}
	for _, c := range []string{"wmis", "wnon", "wspl", "wtru", "wall", "wind",
		"pmis", "ptrunc", "pallsubs", "pind", "pglobal",
		"qmis", "qtrunc", "qallsubs", "qind", "qglobal"} {
		cols = append(cols, c+"_"+mode)
	}
	return &GeneResultsWriter{w: bufio.NewWriter(w), columns: cols}
}

// WriteHeader writes the header line.
func (gw *GeneResultsWriter) WriteHeader() error {
	_, err := gw.w.WriteString(strings.Join(gw.columns, "\t") + "\n")
	return err
}

// Write writes a single gene row.
func (gw *GeneResultsWriter) Write(r *selection.GeneResult) error {
	fields := []string{
		r.GeneID,
		strconv.Itoa(r.Obs[mutation.ClassSynonymous]),
		strconv.Itoa(r.Obs[mutation.ClassMissense]),
		strconv.Itoa(r.Obs[mutation.ClassNonsense]),
		strconv.Itoa(r.Obs[mutation.ClassSplice]),
		strconv.Itoa(r.Obs[mutation.ClassIndel]),
		num(r.Expected[mutation.ClassSynonymous]),
		num(r.Expected[mutation.ClassMissense]),
		num(r.Expected[mutation.ClassNonsense]),
		num(r.Expected[mutation.ClassSplice]),
		num(r.ExpInd),
		num(r.Wmis), num(r.Wnon), num(r.Wspl), num(r.Wtru), num(r.Wall), num(r.Wind),
		num(r.Pmis), num(r.Ptrunc), num(r.Pallsubs), num(r.Pind), num(r.Pglobal),
		num(r.Qmis), num(r.Qtrunc), num(r.Qallsubs), num(r.Qind), num(r.Qglobal),
	}
	_, err := gw.w.WriteString(strings.Join(fields, "\t") + "\n")
	return err
}

// Flush flushes buffered output.
func (gw *GeneResultsWriter) Flush() error {
	return gw.w.Flush()
}

// WriteGlobal writes the pooled dN/dS summary with confidence intervals.
func WriteGlobal(w io.Writer, g *selection.GlobalResult) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("name\tmle\tcilow\tcihigh\n"); err != nil {
		return err
	}
	rows := []struct {
		name string
		iv   selection.Interval
	}{
		{"wmis", g.Wmis}, {"wnon", g.Wnon}, {"wspl", g.Wspl},
		{"wtru", g.Wtru}, {"wall", g.Wall},
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(bw, "%s\t%s\t%s\t%s\n", r.name, num(r.iv.Est), num(r.iv.Lo), num(r.iv.Hi)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteAnnotated writes the retained annotated-mutation ledger.
func WriteAnnotated(w io.Writer, retained []mutation.Annotated) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("sampleID\tchr\tpos\tref\tmut\tgene\tsubtype\timpact\n"); err != nil {
		return err
	}
	for _, m := range retained {
		subtype := "-"
		if m.Subtype >= 0 {
			subtype = submodel.SubtypeString(m.Subtype)
		}
		if _, err := fmt.Fprintf(bw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			m.SampleID, m.Chrom, m.Pos, m.Ref, m.Alt, m.GeneID, subtype, m.Class); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteExcludedSamples writes the dropped-sample ledger.
func WriteExcludedSamples(w io.Writer, samples []string) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("sampleID\treason\n"); err != nil {
		return err
	}
	for _, s := range samples {
		if _, err := fmt.Fprintf(bw, "%s\t%s\n", s, mutation.ReasonHypermutator); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteExclusions writes the excluded-mutation ledger.
func WriteExclusions(w io.Writer, excluded []mutation.Excluded) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("sampleID\tchr\tpos\tref\tmut\treason\n"); err != nil {
		return err
	}
	for _, e := range excluded {
		if _, err := fmt.Fprintf(bw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			e.SampleID, e.Chrom, e.Pos, e.Ref, e.Alt, e.Reason); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteRates writes the fitted substitution rates, one row per
// strand-oriented type with its pyrimidine-strand class.
func WriteRates(w io.Writer, m *submodel.Model) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("subtype\tcollapsed_class\trate\n"); err != nil {
		return err
	}
	for j := 0; j < submodel.NumSubtypes; j++ {
		if _, err := fmt.Fprintf(bw, "%s\t%d\t%s\n",
			submodel.SubtypeString(j), submodel.Collapse(j), num(m.Rates[j])); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteModelComparison writes the AIC table for the fitted and null models.
func WriteModelComparison(w io.Writer, fitted, null *submodel.Model) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("model\tnparams\tloglik\taic\n"); err != nil {
		return err
	}
	for _, m := range []*submodel.Model{fitted, null} {
		if _, err := fmt.Fprintf(bw, "%s\t%d\t%s\t%s\n",
			m.Param, m.NumParams, num(m.LogLik), num(m.AIC())); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteRegression writes the background-regression parameters.
func WriteRegression(w io.Writer, f *regression.Fit) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "mode\t%s\n", f.Mode); err != nil {
		return err
	}
	if f.Mode == "cv" {
		fmt.Fprintf(bw, "theta\t%s\n", num(f.Theta))
		fmt.Fprintf(bw, "degenerate_theta\t%v\n", f.DegenerateTheta)
		for i, c := range f.Coef {
			fmt.Fprintf(bw, "coef_%d\t%s\n", i, num(c))
		}
	}
	for _, g := range f.Genes {
		fmt.Fprintf(bw, "gene\t%s\t%s\n", g.GeneID, num(g.Mu))
	}
	return bw.Flush()
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
