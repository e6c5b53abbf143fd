package annotate

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driverdx/dnds/internal/mutation"
	"github.com/driverdx/dnds/internal/submodel"
)

// fakeRef is an in-memory reference for tests: explicit site annotations
// keyed by position, one opportunity matrix per gene.
type fakeRef struct {
	sites map[string]Site
	genes map[string]*submodel.Opportunities
}

func newFakeRef() *fakeRef {
	return &fakeRef{sites: make(map[string]Site), genes: make(map[string]*submodel.Opportunities)}
}

func (f *fakeRef) addGene(id string) {
	opp := &submodel.Opportunities{}
	for j := 0; j < submodel.NumSubtypes; j++ {
		for c := 0; c < mutation.NumSubClasses; c++ {
			opp.Sites[j][c] = 1
		}
	}
	f.genes[id] = opp
}

// addSites registers n consecutive coding positions of gene on chrom,
// starting at pos start. Consequence class cycles with the position.
func (f *fakeRef) addSites(gene, chrom string, start int64, n int) {
	for i := int64(0); i < int64(n); i++ {
		pos := start + i
		f.sites[fmt.Sprintf("%s:%d", chrom, pos)] = Site{
			GeneID:  gene,
			Subtype: int(pos % submodel.NumSubtypes),
			Class:   mutation.Class(pos % mutation.NumSubClasses),
		}
	}
}

func (f *fakeRef) Lookup(chrom string, pos int64, ref, alt byte) (Site, bool) {
	s, ok := f.sites[fmt.Sprintf("%s:%d", chrom, pos)]
	return s, ok
}

func (f *fakeRef) GeneAt(chrom string, pos int64) (string, bool) {
	s, ok := f.sites[fmt.Sprintf("%s:%d", chrom, pos)]
	return s.GeneID, ok
}

func (f *fakeRef) Opportunities(geneID string) (*submodel.Opportunities, bool) {
	o, ok := f.genes[geneID]
	return o, ok
}

func (f *fakeRef) Genes() []string {
	var ids []string
	for id := range f.genes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

var (
	_ SiteSource        = (*fakeRef)(nil)
	_ OpportunitySource = (*fakeRef)(nil)
)

func twoGeneRef() *fakeRef {
	ref := newFakeRef()
	ref.addGene("g1")
	ref.addGene("g2")
	ref.addSites("g1", "1", 100, 200)
	ref.addSites("g2", "2", 100, 200)
	return ref
}

func snv(sample, chrom string, pos int64) mutation.Mutation {
	return mutation.Mutation{SampleID: sample, Chrom: chrom, Pos: pos, Ref: "A", Alt: "C"}
}

func TestAnnotate_PartitionsInput(t *testing.T) {
	ann := NewAnnotator(twoGeneRef(), twoGeneRef())

	muts := []mutation.Mutation{
		snv("s1", "1", 100),
		snv("s1", "2", 150),
		snv("s2", "1", 100), // duplicate event of the first
		snv("s1", "9", 5),   // unmappable
		{SampleID: "s1", Chrom: "1", Pos: 120, Ref: "AT", Alt: "A"}, // indel
	}

	tables, err := ann.Annotate(muts, Options{})
	require.NoError(t, err)

	assert.Equal(t, len(muts), len(tables.Retained)+len(tables.Excluded))

	seen := make(map[string]int)
	for _, m := range tables.Retained {
		seen[m.Key()]++
	}
	for _, m := range tables.Excluded {
		seen[m.Key()]++
	}
	for _, m := range muts {
		assert.Equal(t, 1, seen[m.Key()], m.Key())
	}
}

func TestAnnotate_Dedup(t *testing.T) {
	ann := NewAnnotator(twoGeneRef(), twoGeneRef())

	muts := []mutation.Mutation{
		snv("s1", "1", 100),
		snv("s2", "1", 100),
		snv("s3", "chr1", 100), // same event, prefixed chromosome name
	}

	tables, err := ann.Annotate(muts, Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, tables.DuplicateEvents)
	require.Len(t, tables.Retained, 1)
	assert.Equal(t, "s1", tables.Retained[0].SampleID)
	for _, e := range tables.Excluded {
		assert.Equal(t, mutation.ReasonDuplicate, e.Reason)
	}
}

func TestAnnotate_GeneListRestrictsUniverse(t *testing.T) {
	ann := NewAnnotator(twoGeneRef(), twoGeneRef())

	muts := []mutation.Mutation{
		snv("s1", "1", 100), // g1
		snv("s1", "2", 150), // g2, outside the list
	}

	tables, err := ann.Annotate(muts, Options{GeneList: []string{"g1"}})
	require.NoError(t, err)

	require.Len(t, tables.Genes, 1)
	assert.Equal(t, "g1", tables.Genes[0].GeneID)

	require.Len(t, tables.Retained, 1)
	assert.Equal(t, "g1", tables.Retained[0].GeneID)
	require.Len(t, tables.Excluded, 1)
	assert.Equal(t, mutation.ReasonUnannotated, tables.Excluded[0].Reason)
}

func TestAnnotate_GeneListUnknownGene(t *testing.T) {
	ann := NewAnnotator(twoGeneRef(), twoGeneRef())

	tables, err := ann.Annotate(nil, Options{GeneList: []string{"g1", "g9", "g1"}})
	require.NoError(t, err)

	// Duplicates collapse; unknown genes stay in the universe with empty
	// opportunities.
	require.Len(t, tables.Genes, 2)
	assert.Equal(t, "g1", tables.Genes[0].GeneID)
	assert.Equal(t, "g9", tables.Genes[1].GeneID)
	assert.Zero(t, tables.Genes[1].CodingLength())
}

func TestAnnotate_TargetedRequiresGeneList(t *testing.T) {
	ann := NewAnnotator(twoGeneRef(), twoGeneRef())

	_, err := ann.Annotate(nil, Options{TargetedPanel: true})
	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
}

func TestAnnotate_DisabledThresholdsKeepEverything(t *testing.T) {
	ann := NewAnnotator(twoGeneRef(), twoGeneRef())

	var muts []mutation.Mutation
	for i := int64(0); i < 50; i++ {
		muts = append(muts, snv("s1", "1", 100+i))
	}

	tables, err := ann.Annotate(muts, Options{
		MaxMutsPerGenePerSample: 0,
		MaxCodingMutsPerSample:  0,
		OutlierThreshold:        0,
	})
	require.NoError(t, err)

	assert.Len(t, tables.Retained, 50)
	assert.Empty(t, tables.Excluded)
	assert.Empty(t, tables.ExcludedSamples)
}

func TestAnnotate_HypermutatorByMedian(t *testing.T) {
	ann := NewAnnotator(twoGeneRef(), twoGeneRef())

	var muts []mutation.Mutation
	pos := int64(100)
	for _, s := range []string{"s1", "s2", "s3", "s4"} {
		for i := 0; i < 2; i++ {
			muts = append(muts, snv(s, "1", pos))
			pos++
		}
	}
	for i := 0; i < 30; i++ {
		muts = append(muts, snv("hyper", "2", 100+int64(i)))
	}

	tables, err := ann.Annotate(muts, Options{OutlierThreshold: 5})
	require.NoError(t, err)

	assert.Equal(t, []string{"hyper"}, tables.ExcludedSamples)
	assert.Len(t, tables.Retained, 8)
	assert.Len(t, tables.Excluded, 30)
	for _, e := range tables.Excluded {
		assert.Equal(t, mutation.ReasonHypermutator, e.Reason)
		assert.Equal(t, "hyper", e.SampleID)
	}
}

func TestAnnotate_HypermutatorByAbsoluteCap(t *testing.T) {
	ann := NewAnnotator(twoGeneRef(), twoGeneRef())

	var muts []mutation.Mutation
	for i := 0; i < 30; i++ {
		muts = append(muts, snv("hyper", "2", 100+int64(i)))
	}
	muts = append(muts, snv("s1", "1", 100))

	tables, err := ann.Annotate(muts, Options{MaxCodingMutsPerSample: 20})
	require.NoError(t, err)

	assert.Equal(t, []string{"hyper"}, tables.ExcludedSamples)
	assert.Len(t, tables.Retained, 1)
}

func TestAnnotate_CapClustersKeepsLowestCoordinates(t *testing.T) {
	ann := NewAnnotator(twoGeneRef(), twoGeneRef())

	// Shuffled input order must not affect which mutations survive.
	muts := []mutation.Mutation{
		snv("s1", "1", 105),
		snv("s1", "1", 103),
		snv("s1", "1", 101),
		snv("s1", "1", 104),
		snv("s1", "1", 102),
	}

	tables, err := ann.Annotate(muts, Options{MaxMutsPerGenePerSample: 3})
	require.NoError(t, err)

	var kept []int64
	for _, m := range tables.Retained {
		kept = append(kept, m.Pos)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i] < kept[j] })
	assert.Equal(t, []int64{101, 102, 103}, kept)

	require.Len(t, tables.Excluded, 2)
	for _, e := range tables.Excluded {
		assert.Equal(t, mutation.ReasonOvercap, e.Reason)
		assert.GreaterOrEqual(t, e.Pos, int64(104))
	}
}

func TestAnnotate_Tally(t *testing.T) {
	ann := NewAnnotator(twoGeneRef(), twoGeneRef())

	muts := []mutation.Mutation{
		snv("s1", "1", 100), // class 100%4 = 0: synonymous
		snv("s1", "1", 101), // missense
		snv("s2", "1", 105), // missense
		snv("s1", "2", 102), // nonsense in g2
		{SampleID: "s1", Chrom: "1", Pos: 110, Ref: "AT", Alt: "A"}, // indel in g1
	}

	tables, err := ann.Annotate(muts, Options{})
	require.NoError(t, err)

	g1 := tables.Gene("g1")
	require.NotNil(t, g1)
	assert.Equal(t, 1, g1.Obs[mutation.ClassSynonymous])
	assert.Equal(t, 2, g1.Obs[mutation.ClassMissense])
	assert.Equal(t, 1, g1.Obs[mutation.ClassIndel])

	g2 := tables.Gene("g2")
	require.NotNil(t, g2)
	assert.Equal(t, 1, g2.Obs[mutation.ClassNonsense])

	// Indels never enter the substitution spectrum.
	totals := tables.Spectrum.ClassTotals()
	assert.Equal(t, 1.0, totals[mutation.ClassSynonymous])
	assert.Equal(t, 2.0, totals[mutation.ClassMissense])
	assert.Equal(t, 1.0, totals[mutation.ClassNonsense])

	assert.Nil(t, tables.Gene("g9"))
}
