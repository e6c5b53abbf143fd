package refdb

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/driverdx/dnds/internal/mutation"
	"github.com/driverdx/dnds/internal/submodel"
)

// LoadTSV builds a reference database from two tab-separated dumps:
//
//	sites:          chrom  pos  ref  alt  gene  up  down  class
//	opportunities:  gene  subtype  class  sites
//
// where subtype uses the "A[C>T]G" notation. Lines starting with '#' and a
// header line naming the first column "chrom"/"gene" are skipped.
func LoadTSV(sitesPath, oppsPath string) (*DB, error) {
	db := newDB()

	if err := readLines(oppsPath, func(lineNo int, fields []string) error {
		if len(fields) != 4 {
			return fmt.Errorf("expected 4 columns, got %d", len(fields))
		}
		subtype := submodel.ParseSubtype(fields[1])
		if subtype < 0 {
			return fmt.Errorf("invalid subtype %q", fields[1])
		}
		class, err := mutation.ParseClass(fields[2])
		if err != nil {
			return err
		}
		if class >= mutation.NumSubClasses {
			return fmt.Errorf("opportunity rows must be substitution classes, got %q", fields[2])
		}
		n, err := strconv.ParseFloat(fields[3], 64)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid site count %q", fields[3])
		}
		db.addOpportunity(fields[0], subtype, class, n)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("opportunities table %s: %w", oppsPath, err)
	}

	if err := readLines(sitesPath, func(lineNo int, fields []string) error {
		if len(fields) != 8 {
			return fmt.Errorf("expected 8 columns, got %d", len(fields))
		}
		pos, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid position %q", fields[1])
		}
		if len(fields[2]) != 1 || len(fields[3]) != 1 || len(fields[5]) != 1 || len(fields[6]) != 1 {
			return fmt.Errorf("alleles and context must be single bases")
		}
		ref, alt := fields[2][0], fields[3][0]
		subtype := submodel.SubtypeIndex(fields[5][0], ref, fields[6][0], alt)
		if subtype < 0 {
			return fmt.Errorf("invalid substitution context %s[%c>%c]%s", fields[5], ref, alt, fields[6])
		}
		class, err := mutation.ParseClass(fields[7])
		if err != nil {
			return err
		}
		return db.addSite(fields[0], pos, ref, alt, fields[4], subtype, class)
	}); err != nil {
		return nil, fmt.Errorf("sites table %s: %w", sitesPath, err)
	}

	return db, nil
}

func readLines(path string, fn func(lineNo int, fields []string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("open gzip: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	first := true
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r\n")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if first {
			first = false
			if fields[0] == "chrom" || fields[0] == "gene" {
				continue
			}
		}
		if err := fn(lineNo, fields); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	return sc.Err()
}
