package refdb

import (
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/driverdx/dnds/internal/mutation"
	"github.com/driverdx/dnds/internal/submodel"
)

// LoadDuckDB builds a reference database from a DuckDB file holding the same
// two tables as the TSV dumps:
//
//	sites(chrom VARCHAR, pos BIGINT, ref VARCHAR, alt VARCHAR,
//	      gene VARCHAR, up VARCHAR, down VARCHAR, class VARCHAR)
//	opportunities(gene VARCHAR, subtype VARCHAR, class VARCHAR, sites DOUBLE)
func LoadDuckDB(path string) (*DB, error) {
	conn, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	defer conn.Close()

	db := newDB()

	rows, err := conn.Query(`SELECT gene, subtype, class, sites FROM opportunities`)
	if err != nil {
		return nil, fmt.Errorf("query opportunities: %w", err)
	}
	for rows.Next() {
		var gene, subtypeStr, classStr string
		var sites float64
		if err := rows.Scan(&gene, &subtypeStr, &classStr, &sites); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan opportunities: %w", err)
		}
		subtype := submodel.ParseSubtype(subtypeStr)
		if subtype < 0 {
			rows.Close()
			return nil, fmt.Errorf("invalid subtype %q for gene %s", subtypeStr, gene)
		}
		class, err := mutation.ParseClass(classStr)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("gene %s: %w", gene, err)
		}
		db.addOpportunity(gene, subtype, class, sites)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	rows, err = conn.Query(`SELECT chrom, pos, ref, alt, gene, up, down, class FROM sites`)
	if err != nil {
		return nil, fmt.Errorf("query sites: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var chrom, ref, alt, gene, up, down, classStr string
		var pos int64
		if err := rows.Scan(&chrom, &pos, &ref, &alt, &gene, &up, &down, &classStr); err != nil {
			return nil, fmt.Errorf("scan sites: %w", err)
		}
		if len(ref) != 1 || len(alt) != 1 || len(up) != 1 || len(down) != 1 {
			return nil, fmt.Errorf("sites row %s:%d: alleles and context must be single bases", chrom, pos)
		}
		subtype := submodel.SubtypeIndex(up[0], ref[0], down[0], alt[0])
		if subtype < 0 {
			return nil, fmt.Errorf("sites row %s:%d: invalid substitution context", chrom, pos)
		}
		class, err := mutation.ParseClass(classStr)
		if err != nil {
			return nil, fmt.Errorf("sites row %s:%d: %w", chrom, pos, err)
		}
		if err := db.addSite(chrom, pos, ref[0], alt[0], gene, subtype, class); err != nil {
			return nil, err
		}
	}
	return db, rows.Err()
}
