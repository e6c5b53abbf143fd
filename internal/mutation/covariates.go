package mutation

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Covariates holds per-gene covariate vectors keyed by gene ID.
type Covariates struct {
	Names  []string
	Values map[string][]float64
}

// ReadCovariates loads a tab-separated covariate table. The first column is
// the gene ID; the header names the remaining numeric columns.
func ReadCovariates(path string) (*Covariates, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open covariates: %w", err)
	}
	defer f.Close()

	cov := &Covariates{Values: make(map[string][]float64)}
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r\n")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if cov.Names == nil {
			if len(fields) < 2 {
				return nil, fmt.Errorf("covariates line %d: expected gene plus at least one column", lineNo)
			}
			cov.Names = fields[1:]
			continue
		}
		if len(fields) != len(cov.Names)+1 {
			return nil, fmt.Errorf("covariates line %d: expected %d columns, got %d", lineNo, len(cov.Names)+1, len(fields))
		}
		vals := make([]float64, len(cov.Names))
		for i, s := range fields[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, fmt.Errorf("covariates line %d: invalid value %q", lineNo, s)
			}
			vals[i] = v
		}
		cov.Values[fields[0]] = vals
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read covariates: %w", err)
	}
	return cov, nil
}
