// Package annotate turns raw mutation catalogs into per-gene count tables:
// deduplication, gene-list restriction, hypermutator and clustered-artefact
// exclusion, and pooled spectrum accumulation.
package annotate

import (
	"fmt"
	"sort"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"

	"github.com/driverdx/dnds/internal/mutation"
	"github.com/driverdx/dnds/internal/submodel"
)

// ConfigurationError reports an invalid analysis configuration, detected
// before any computation starts.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return "configuration: " + e.Msg
}

// Options configure the annotation pipeline. The exclusion thresholds are
// independently disableable: a non-positive value means no limit.
type Options struct {
	// GeneList restricts the analysis universe. Mandatory for targeted
	// panels, where background estimation outside the captured region is
	// invalid.
	GeneList      []string
	TargetedPanel bool

	// MaxMutsPerGenePerSample caps mutations per gene per sample,
	// guarding against localized artefactual clusters.
	MaxMutsPerGenePerSample int

	// MaxCodingMutsPerSample is the absolute hypermutator cutoff.
	MaxCodingMutsPerSample int

	// OutlierThreshold excludes samples whose burden exceeds this
	// multiple of the cohort median.
	OutlierThreshold float64

	Workers int
}

// Annotator maps raw mutations to per-gene count tables through the external
// site annotation service.
type Annotator struct {
	sites  SiteSource
	opps   OpportunitySource
	logger *zap.Logger
}

// NewAnnotator creates an annotator over the given reference sources.
func NewAnnotator(sites SiteSource, opps OpportunitySource) *Annotator {
	return &Annotator{sites: sites, opps: opps, logger: zap.NewNop()}
}

// SetLogger sets the logger for warning and info messages.
func (a *Annotator) SetLogger(l *zap.Logger) {
	a.logger = l
}

// Annotate runs the full annotation pipeline. Every input mutation ends up
// exactly once in either the retained ledger or the exclusion ledger.
func (a *Annotator) Annotate(muts []mutation.Mutation, opts Options) (*Tables, error) {
	if opts.TargetedPanel && len(opts.GeneList) == 0 {
		return nil, &ConfigurationError{Msg: "targeted panel input requires a gene list"}
	}

	t := &Tables{Spectrum: &submodel.Spectrum{}}

	inUniverse := a.buildUniverse(t, opts.GeneList)

	// (a) deduplicate identical genomic events across samples.
	unique := a.dedup(muts, t)

	// (b,c of the record pipeline) annotate and drop unmapped or
	// out-of-universe mutations.
	annotated := a.lookupAll(unique, inUniverse, t, opts.Workers)

	// (c) hypermutator samples.
	annotated = a.dropHypermutators(annotated, t, opts)

	// (d) per-gene-per-sample cap.
	annotated = a.capClusters(annotated, t, opts.MaxMutsPerGenePerSample)

	t.Retained = annotated
	a.tally(t)

	a.logger.Info("annotation complete",
		zap.Int("retained", len(t.Retained)),
		zap.Int("excluded", len(t.Excluded)),
		zap.Int("genes", len(t.Genes)),
		zap.Int("excluded_samples", len(t.ExcludedSamples)))

	return t, nil
}

// buildUniverse fixes the analysis gene universe: the supplied gene list, or
// every gene the reference covers. Returns the membership predicate.
func (a *Annotator) buildUniverse(t *Tables, geneList []string) map[string]bool {
	var ids []string
	if len(geneList) > 0 {
		ids = append(ids, geneList...)
	} else {
		ids = a.opps.Genes()
	}
	sort.Strings(ids)

	in := make(map[string]bool, len(ids))
	for _, id := range ids {
		if in[id] {
			continue
		}
		in[id] = true
		g := &GeneCounts{GeneID: id}
		if opp, ok := a.opps.Opportunities(id); ok {
			g.Opp = opp
		} else {
			a.logger.Warn("gene has no reference opportunities", zap.String("gene", id))
			g.Opp = &submodel.Opportunities{}
		}
		t.Genes = append(t.Genes, g)
	}
	return in
}

func (a *Annotator) dedup(muts []mutation.Mutation, t *Tables) []mutation.Mutation {
	seen := make(map[string]bool, len(muts))
	var out []mutation.Mutation
	for _, m := range muts {
		key := m.EventKey()
		if seen[key] {
			t.DuplicateEvents++
			t.Excluded = append(t.Excluded, mutation.Excluded{Mutation: m, Reason: mutation.ReasonDuplicate})
			continue
		}
		seen[key] = true
		out = append(out, m)
	}
	if t.DuplicateEvents > 0 {
		a.logger.Warn("duplicate genomic events found across samples; kept first occurrence",
			zap.Int("duplicates", t.DuplicateEvents))
	}
	return out
}

// lookupOne annotates a single mutation through the site source.
func (a *Annotator) lookupOne(m mutation.Mutation) (mutation.Annotated, bool) {
	if m.IsSNV() {
		site, ok := a.sites.Lookup(m.Chrom, m.Pos, m.Ref[0], m.Alt[0])
		if !ok {
			return mutation.Annotated{}, false
		}
		return mutation.Annotated{Mutation: m, GeneID: site.GeneID, Subtype: site.Subtype, Class: site.Class}, true
	}
	gene, ok := a.sites.GeneAt(m.Chrom, m.Pos)
	if !ok {
		return mutation.Annotated{}, false
	}
	return mutation.Annotated{Mutation: m, GeneID: gene, Subtype: -1, Class: mutation.ClassIndel}, true
}

func (a *Annotator) lookupAll(muts []mutation.Mutation, inUniverse map[string]bool, t *Tables, workers int) []mutation.Annotated {
	items := make(chan workItem, len(muts))
	for i, m := range muts {
		items <- workItem{Seq: i, Mut: m}
	}
	close(items)

	var out []mutation.Annotated
	orderedCollect(a.parallelLookup(items, workers), func(r workResult) {
		if !r.OK || !inUniverse[r.Ann.GeneID] {
			t.Excluded = append(t.Excluded, mutation.Excluded{Mutation: muts[r.Seq], Reason: mutation.ReasonUnannotated})
			return
		}
		out = append(out, r.Ann)
	})
	return out
}

func (a *Annotator) dropHypermutators(anns []mutation.Annotated, t *Tables, opts Options) []mutation.Annotated {
	if opts.MaxCodingMutsPerSample <= 0 && opts.OutlierThreshold <= 0 {
		return anns
	}

	burden := make(map[string]int)
	for _, m := range anns {
		burden[m.SampleID]++
	}
	var burdens []float64
	for _, b := range burden {
		burdens = append(burdens, float64(b))
	}
	median := 0.0
	if len(burdens) > 0 {
		median, _ = stats.Median(burdens)
	}

	drop := make(map[string]bool)
	for sample, b := range burden {
		if opts.MaxCodingMutsPerSample > 0 && b > opts.MaxCodingMutsPerSample {
			drop[sample] = true
		}
		if opts.OutlierThreshold > 0 && median > 0 && float64(b) > opts.OutlierThreshold*median {
			drop[sample] = true
		}
	}
	if len(drop) == 0 {
		return anns
	}

	for sample := range drop {
		t.ExcludedSamples = append(t.ExcludedSamples, sample)
		a.logger.Warn("excluding hypermutator sample",
			zap.String("sample", sample),
			zap.Int("burden", burden[sample]),
			zap.Float64("cohort_median", median))
	}
	sort.Strings(t.ExcludedSamples)

	var out []mutation.Annotated
	for _, m := range anns {
		if drop[m.SampleID] {
			t.Excluded = append(t.Excluded, mutation.Excluded{Mutation: m.Mutation, Reason: mutation.ReasonHypermutator})
			continue
		}
		out = append(out, m)
	}
	return out
}

// capClusters subsamples per-gene-per-sample mutation counts down to cap.
// The kept subset is the cap lowest genomic coordinates, so identical inputs
// always keep identical mutations.
func (a *Annotator) capClusters(anns []mutation.Annotated, t *Tables, limit int) []mutation.Annotated {
	if limit <= 0 {
		return anns
	}

	type key struct{ gene, sample string }
	groups := make(map[key][]int)
	for i, m := range anns {
		k := key{m.GeneID, m.SampleID}
		groups[k] = append(groups[k], i)
	}

	dropped := make(map[int]bool)
	for k, idx := range groups {
		if len(idx) <= limit {
			continue
		}
		sorted := append([]int(nil), idx...)
		sort.Slice(sorted, func(x, y int) bool {
			mx, my := &anns[sorted[x]], &anns[sorted[y]]
			if mx.Chrom != my.Chrom {
				return mx.Chrom < my.Chrom
			}
			if mx.Pos != my.Pos {
				return mx.Pos < my.Pos
			}
			if mx.Ref != my.Ref {
				return mx.Ref < my.Ref
			}
			return mx.Alt < my.Alt
		})
		for _, i := range sorted[limit:] {
			dropped[i] = true
		}
		a.logger.Warn("capping mutation cluster",
			zap.String("gene", k.gene),
			zap.String("sample", k.sample),
			zap.Int("count", len(idx)),
			zap.Int("cap", limit))
	}
	if len(dropped) == 0 {
		return anns
	}

	var out []mutation.Annotated
	for i, m := range anns {
		if dropped[i] {
			t.Excluded = append(t.Excluded, mutation.Excluded{Mutation: m.Mutation, Reason: mutation.ReasonOvercap})
			continue
		}
		out = append(out, m)
	}
	return out
}

// tally fills the per-gene observed counts and the pooled spectrum from the
// retained ledger.
func (a *Annotator) tally(t *Tables) {
	byID := make(map[string]*GeneCounts, len(t.Genes))
	for _, g := range t.Genes {
		byID[g.GeneID] = g
		t.Spectrum.Opp.Add(g.Opp)
	}
	for _, m := range t.Retained {
		g, ok := byID[m.GeneID]
		if !ok {
			// Unreachable: lookupAll already filtered on the universe.
			panic(fmt.Sprintf("retained mutation in unknown gene %s", m.GeneID))
		}
		g.Obs[m.Class]++
		if m.Class < mutation.NumSubClasses {
			t.Spectrum.AddObservation(m.Subtype, m.Class)
		}
	}
}
