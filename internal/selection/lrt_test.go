package selection

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driverdx/dnds/internal/annotate"
	"github.com/driverdx/dnds/internal/mutation"
	"github.com/driverdx/dnds/internal/regression"
	"github.com/driverdx/dnds/internal/submodel"
)

const testRate = 0.01

func uniformModel() *submodel.Model {
	m := &submodel.Model{}
	for j := range m.Rates {
		m.Rates[j] = testRate
	}
	return m
}

// testGene builds a gene whose expected counts under uniformModel are
// exp[c] = opp[c] * testRate.
func testGeneCounts(id string, obs [mutation.NumClasses]int, expected [mutation.NumSubClasses]float64) *annotate.GeneCounts {
	g := &annotate.GeneCounts{GeneID: id, Obs: obs, Opp: &submodel.Opportunities{}}
	for c := 0; c < mutation.NumSubClasses; c++ {
		g.Opp.Sites[0][c] = expected[c] / testRate
	}
	return g
}

func flatPrior(genes []*annotate.GeneCounts, theta float64) *regression.Fit {
	f := &regression.Fit{Mode: "cv", Theta: theta}
	for _, g := range genes {
		f.Genes = append(f.Genes, regression.GeneRate{GeneID: g.GeneID, Mu: 1, Theta: theta})
	}
	return f
}

func neutralObs() [mutation.NumClasses]int {
	return [mutation.NumClasses]int{10, 20, 3, 1, 0}
}

func neutralExp() [mutation.NumSubClasses]float64 {
	return [mutation.NumSubClasses]float64{10, 20, 3, 1}
}

func TestEngine_NeutralGene(t *testing.T) {
	genes := []*annotate.GeneCounts{testGeneCounts("g1", neutralObs(), neutralExp())}
	eng := &Engine{Model: uniformModel(), Rates: flatPrior(genes, 1000)}

	rs := eng.Run(genes)
	require.Len(t, rs, 1)
	r := rs[0]

	assert.False(t, r.Degenerate)
	assert.InDelta(t, 1.0, r.Wmis, 0.05)
	assert.InDelta(t, 1.0, r.Wtru, 0.1)
	assert.InDelta(t, 1.0, r.Wall, 0.05)
	assert.Greater(t, r.Pmis, 0.9)
	assert.Greater(t, r.Ptrunc, 0.9)
	assert.Greater(t, r.Pallsubs, 0.9)
}

func TestEngine_NoNonsynonymousMutations(t *testing.T) {
	// Little expected and nothing observed: omega estimates collapse to
	// zero without claiming significance.
	obs := [mutation.NumClasses]int{10, 0, 0, 0, 0}
	exp := [mutation.NumSubClasses]float64{10, 0.5, 0.2, 0.1}
	genes := []*annotate.GeneCounts{testGeneCounts("g1", obs, exp)}
	eng := &Engine{Model: uniformModel(), Rates: flatPrior(genes, 1000)}

	r := eng.Run(genes)[0]

	assert.Zero(t, r.Wmis)
	assert.Zero(t, r.Wnon)
	assert.Zero(t, r.Wspl)
	assert.Zero(t, r.Wall)
	assert.Greater(t, r.Pallsubs, 0.2)
	assert.LessOrEqual(t, r.Wmis, 1.0)
}

func TestEngine_MissenseEnrichment(t *testing.T) {
	// 29 neutral genes plus one with a tenfold missense excess: only that
	// gene reaches significance on the missense column.
	var genes []*annotate.GeneCounts
	for i := 0; i < 29; i++ {
		genes = append(genes, testGeneCounts(fmt.Sprintf("g%02d", i), neutralObs(), neutralExp()))
	}
	hotObs := neutralObs()
	hotObs[mutation.ClassMissense] = 200
	genes = append(genes, testGeneCounts("hot", hotObs, neutralExp()))

	eng := &Engine{Model: uniformModel(), Rates: flatPrior(genes, 1000)}
	rs := eng.Run(genes)
	require.Len(t, rs, 30)

	for _, r := range rs {
		if r.GeneID == "hot" {
			assert.Greater(t, r.Wmis, 5.0)
			assert.Less(t, r.Qmis, 0.01)
			assert.Less(t, r.Qallsubs, 0.01)
			assert.Less(t, r.Qglobal, 0.01)
			continue
		}
		assert.Greater(t, r.Qmis, 0.1, r.GeneID)
	}

	// Results come back sorted by gene ID regardless of worker scheduling.
	for i := 1; i < len(rs); i++ {
		assert.Less(t, rs[i-1].GeneID, rs[i].GeneID)
	}

	// BH never reorders significance.
	for i := range rs {
		for j := range rs {
			if rs[i].Pmis < rs[j].Pmis {
				assert.LessOrEqual(t, rs[i].Qmis, rs[j].Qmis)
			}
		}
	}
}

func TestEngine_DegenerateGene(t *testing.T) {
	genes := []*annotate.GeneCounts{
		testGeneCounts("g1", neutralObs(), neutralExp()),
		{GeneID: "empty", Opp: &submodel.Opportunities{}},
	}
	eng := &Engine{Model: uniformModel(), Rates: flatPrior(genes, 1000)}

	rs := eng.Run(genes)
	require.Len(t, rs, 2)

	var empty *GeneResult
	for i := range rs {
		if rs[i].GeneID == "empty" {
			empty = &rs[i]
		}
	}
	require.NotNil(t, empty)
	assert.True(t, empty.Degenerate)
	assert.Equal(t, 1.0, empty.Pmis)
	assert.Equal(t, 1.0, empty.Pglobal)
	assert.Equal(t, 1.0, empty.Qmis) // still enters the BH universe
}

func TestEngine_IndelTest(t *testing.T) {
	neutral := testGeneCounts("neutral", neutralObs(), neutralExp())
	neutral.Obs[mutation.ClassIndel] = 11 // expected: rate * length

	hot := testGeneCounts("hot", neutralObs(), neutralExp())
	hot.Obs[mutation.ClassIndel] = 110

	genes := []*annotate.GeneCounts{neutral, hot}
	length := neutral.CodingLength()
	eng := &Engine{Model: uniformModel(), Rates: flatPrior(genes, 1000), IndelRate: 11 / length}

	rs := eng.Run(genes)
	byID := map[string]GeneResult{}
	for _, r := range rs {
		byID[r.GeneID] = r
	}

	assert.InDelta(t, 11.0, byID["neutral"].ExpInd, 1e-9)
	assert.InDelta(t, 1.0, byID["neutral"].Wind, 0.05)
	assert.Greater(t, byID["neutral"].Pind, 0.9)

	assert.Greater(t, byID["hot"].Wind, 5.0)
	assert.Less(t, byID["hot"].Pind, 1e-6)
}

func TestEngine_NoIndelRate(t *testing.T) {
	genes := []*annotate.GeneCounts{testGeneCounts("g1", neutralObs(), neutralExp())}
	eng := &Engine{Model: uniformModel(), Rates: flatPrior(genes, 1000)}

	r := eng.Run(genes)[0]
	assert.Zero(t, r.ExpInd)
	assert.Equal(t, 1.0, r.Pind)
}

func TestEngine_RunDeterministic(t *testing.T) {
	var genes []*annotate.GeneCounts
	for i := 0; i < 20; i++ {
		genes = append(genes, testGeneCounts(fmt.Sprintf("g%02d", i), neutralObs(), neutralExp()))
	}
	eng := &Engine{Model: uniformModel(), Rates: flatPrior(genes, 100)}

	a := eng.Run(genes)
	eng.Workers = 8
	b := eng.Run(genes)
	assert.Equal(t, a, b)
}
