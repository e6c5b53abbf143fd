// Package refdb loads the precomputed reference annotation tables behind the
// annotator's SiteSource and OpportunitySource interfaces. Building these
// tables (transcript models, trinucleotide scanning, consequence typing) is
// the job of an external annotation service; refdb only reads its output,
// from tab-separated dumps or from a DuckDB database.
package refdb

import (
	"fmt"

	"github.com/driverdx/dnds/internal/annotate"
	"github.com/driverdx/dnds/internal/mutation"
	"github.com/driverdx/dnds/internal/submodel"
)

// siteAnn annotates one substitution at a position.
type siteAnn struct {
	gene    string
	subtype int
	class   mutation.Class
	ok      bool
}

// site holds the three possible substitutions at one reference position,
// indexed by alternate base (A,C,G,T).
type site struct {
	ref  byte
	gene string
	alts [4]siteAnn
}

// DB is an in-memory reference annotation database.
type DB struct {
	sites map[string]map[int64]*site // chrom → pos
	opps  map[string]*submodel.Opportunities
	genes []string
}

var (
	_ annotate.SiteSource        = (*DB)(nil)
	_ annotate.OpportunitySource = (*DB)(nil)
)

func newDB() *DB {
	return &DB{
		sites: make(map[string]map[int64]*site),
		opps:  make(map[string]*submodel.Opportunities),
	}
}

// Lookup implements annotate.SiteSource.
func (db *DB) Lookup(chrom string, pos int64, ref, alt byte) (annotate.Site, bool) {
	s := db.siteAt(chrom, pos)
	if s == nil || s.ref != ref {
		return annotate.Site{}, false
	}
	ai := submodel.BaseIndex(alt)
	if ai < 0 || !s.alts[ai].ok {
		return annotate.Site{}, false
	}
	a := s.alts[ai]
	return annotate.Site{GeneID: a.gene, Subtype: a.subtype, Class: a.class}, true
}

// Genes implements annotate.OpportunitySource.
func (db *DB) Genes() []string {
	out := make([]string, len(db.genes))
	copy(out, db.genes)
	return out
}

// Opportunities implements annotate.OpportunitySource.
func (db *DB) Opportunities(geneID string) (*submodel.Opportunities, bool) {
	o, ok := db.opps[geneID]
	return o, ok
}

// GeneAt implements annotate.SiteSource for indels.
func (db *DB) GeneAt(chrom string, pos int64) (string, bool) {
	s := db.siteAt(chrom, pos)
	if s == nil {
		return "", false
	}
	return s.gene, true
}

func (db *DB) siteAt(chrom string, pos int64) *site {
	chrom = normalizeChrom(chrom)
	byPos, ok := db.sites[chrom]
	if !ok {
		return nil
	}
	return byPos[pos]
}

func (db *DB) addSite(chrom string, pos int64, ref, alt byte, gene string, subtype int, class mutation.Class) error {
	chrom = normalizeChrom(chrom)
	byPos, ok := db.sites[chrom]
	if !ok {
		byPos = make(map[int64]*site)
		db.sites[chrom] = byPos
	}
	s, ok := byPos[pos]
	if !ok {
		s = &site{ref: ref, gene: gene}
		byPos[pos] = s
	} else if s.ref != ref {
		return fmt.Errorf("conflicting reference base at %s:%d (%c vs %c)", chrom, pos, s.ref, ref)
	}
	ai := submodel.BaseIndex(alt)
	if ai < 0 {
		return fmt.Errorf("invalid alternate base %c at %s:%d", alt, chrom, pos)
	}
	s.alts[ai] = siteAnn{gene: gene, subtype: subtype, class: class, ok: true}
	return nil
}

func (db *DB) addOpportunity(gene string, subtype int, class mutation.Class, sites float64) {
	o, ok := db.opps[gene]
	if !ok {
		o = &submodel.Opportunities{}
		db.opps[gene] = o
		db.genes = append(db.genes, gene)
	}
	o.Sites[subtype][class] += sites
}

func normalizeChrom(c string) string {
	if len(c) > 3 && c[:3] == "chr" {
		return c[3:]
	}
	return c
}
