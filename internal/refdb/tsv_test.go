package refdb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driverdx/dnds/internal/mutation"
	"github.com/driverdx/dnds/internal/submodel"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const testOpps = `gene	subtype	class	sites
TP53	A[C>T]G	synonymous	120.5
TP53	A[C>T]G	missense	300
TP53	A[C>G]G	nonsense	12
KRAS	T[G>A]C	missense	80
`

const testSites = `chrom	pos	ref	alt	gene	up	down	class
17	7577000	C	T	TP53	A	G	missense
17	7577000	C	G	TP53	A	G	nonsense
chr12	25398284	G	A	KRAS	T	C	missense
`

func TestLoadTSV(t *testing.T) {
	dir := t.TempDir()
	sites := writeFile(t, dir, "sites.tsv", testSites)
	opps := writeFile(t, dir, "opps.tsv", testOpps)

	db, err := LoadTSV(sites, opps)
	require.NoError(t, err)

	assert.Equal(t, []string{"TP53", "KRAS"}, db.Genes())

	s, ok := db.Lookup("17", 7577000, 'C', 'T')
	require.True(t, ok)
	assert.Equal(t, "TP53", s.GeneID)
	assert.Equal(t, mutation.ClassMissense, s.Class)
	assert.Equal(t, submodel.ParseSubtype("A[C>T]G"), s.Subtype)

	// The second alternate at the same position.
	s, ok = db.Lookup("17", 7577000, 'C', 'G')
	require.True(t, ok)
	assert.Equal(t, mutation.ClassNonsense, s.Class)

	// Chromosome names are normalized both ways.
	_, ok = db.Lookup("chr17", 7577000, 'C', 'T')
	assert.True(t, ok)
	_, ok = db.Lookup("12", 25398284, 'G', 'A')
	assert.True(t, ok)

	// Mismatched reference base or unknown alternate.
	_, ok = db.Lookup("17", 7577000, 'A', 'T')
	assert.False(t, ok)
	_, ok = db.Lookup("17", 7577000, 'C', 'A')
	assert.False(t, ok)
	_, ok = db.Lookup("17", 1, 'C', 'T')
	assert.False(t, ok)

	gene, ok := db.GeneAt("17", 7577000)
	require.True(t, ok)
	assert.Equal(t, "TP53", gene)
	_, ok = db.GeneAt("17", 2)
	assert.False(t, ok)

	opp, ok := db.Opportunities("TP53")
	require.True(t, ok)
	ct := submodel.ParseSubtype("A[C>T]G")
	assert.Equal(t, 120.5, opp.Sites[ct][mutation.ClassSynonymous])
	assert.Equal(t, 300.0, opp.Sites[ct][mutation.ClassMissense])

	_, ok = db.Opportunities("EGFR")
	assert.False(t, ok)
}

func TestLoadTSV_Malformed(t *testing.T) {
	dir := t.TempDir()
	goodSites := writeFile(t, dir, "sites.tsv", testSites)
	goodOpps := writeFile(t, dir, "opps.tsv", testOpps)

	tests := []struct {
		name  string
		sites string
		opps  string
	}{
		{"bad opportunity subtype", "", "TP53\tACTG\tsynonymous\t10\n"},
		{"indel opportunity class", "", "TP53\tA[C>T]G\tindel\t10\n"},
		{"negative site count", "", "TP53\tA[C>T]G\tsynonymous\t-1\n"},
		{"opportunity column count", "", "TP53\tA[C>T]G\tsynonymous\n"},
		{"bad position", "17\tx\tC\tT\tTP53\tA\tG\tmissense\n", ""},
		{"bad context base", "17\t100\tC\tT\tTP53\tN\tG\tmissense\n", ""},
		{"unknown class", "17\t100\tC\tT\tTP53\tA\tG\tstopgain\n", ""},
		{"conflicting reference", "17\t100\tC\tT\tTP53\tA\tG\tmissense\n17\t100\tG\tA\tTP53\tT\tC\tmissense\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sites, opps := goodSites, goodOpps
			if tt.sites != "" {
				sites = writeFile(t, t.TempDir(), "bad_sites.tsv", tt.sites)
			}
			if tt.opps != "" {
				opps = writeFile(t, t.TempDir(), "bad_opps.tsv", tt.opps)
			}
			_, err := LoadTSV(sites, opps)
			assert.Error(t, err)
		})
	}
}

func TestLoadTSV_MissingFile(t *testing.T) {
	dir := t.TempDir()
	opps := writeFile(t, dir, "opps.tsv", testOpps)
	_, err := LoadTSV(filepath.Join(dir, "absent.tsv"), opps)
	assert.Error(t, err)
}
