package annotate

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driverdx/dnds/internal/mutation"
)

func TestOrderedCollect(t *testing.T) {
	const n = 100

	results := make(chan workResult, n)
	perm := rand.New(rand.NewSource(1)).Perm(n)
	for _, seq := range perm {
		results <- workResult{Seq: seq, OK: true}
	}
	close(results)

	var got []int
	orderedCollect(results, func(r workResult) {
		got = append(got, r.Seq)
	})

	require.Len(t, got, n)
	for i, seq := range got {
		assert.Equal(t, i, seq)
	}
}

func TestParallelLookup_Deterministic(t *testing.T) {
	ref := twoGeneRef()
	ann := NewAnnotator(ref, ref)

	var muts []mutation.Mutation
	for i := int64(0); i < 200; i++ {
		muts = append(muts, snv("s1", "1", 100+2*i)) // positions past the gene are unmappable
	}

	run := func(workers int) []string {
		tables, err := ann.Annotate(muts, Options{Workers: workers})
		require.NoError(t, err)
		var keys []string
		for _, m := range tables.Retained {
			keys = append(keys, m.Key())
		}
		return keys
	}

	one := run(1)
	eight := run(8)
	assert.Equal(t, one, eight)
}
