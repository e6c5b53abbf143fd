// Package main provides the dnds command-line tool.
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/driverdx/dnds/internal/annotate"
	"github.com/driverdx/dnds/internal/mutation"
	"github.com/driverdx/dnds/internal/output"
	"github.com/driverdx/dnds/internal/pipeline"
	"github.com/driverdx/dnds/internal/refdb"
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dnds",
		Short: "Estimate selection on genes (dN/dS) from mutation catalogs",
		Long: `dnds estimates selection pressure on genes from catalogs of somatic or
germline point mutations, using a trinucleotide-context substitution model,
a negative-binomial background-rate regression across genes, and per-gene
likelihood-ratio tests with Benjamini-Hochberg correction.`,
		SilenceUsage: true,
	}

	cobra.OnInitialize(initConfig)

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dnds version %s (%s) built %s\n", version, commit, date)
		},
	}
}

func initConfig() {
	home, err := os.UserHomeDir()
	if err == nil {
		viper.AddConfigPath(home)
		viper.SetConfigName(".dnds")
		viper.SetConfigType("yaml")
	}
	viper.SetEnvPrefix("DNDS")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig() // missing config file is fine
}

func newRunCmd() *cobra.Command {
	var (
		refSites   string
		refOpps    string
		refDB      string
		covPath    string
		genesPath  string
		outDir     string
	)

	cmd := &cobra.Command{
		Use:   "run <mutations.tsv>",
		Short: "Run the selection analysis on a mutation catalog",
		Long: `Run the full analysis: annotate the catalog against the reference
database, fit the substitution model, estimate per-gene background rates and
test each gene for selection.

The catalog is a 5-column table (sampleID, chr, pos, ref, mut); use '-' for
stdin. The reference is either a pair of TSV dumps (--sites and --opps) or a
DuckDB file (--refdb).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalysis(args[0], refSites, refOpps, refDB, covPath, genesPath, outDir)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&refSites, "sites", "", "Reference site annotation table (TSV)")
	fs.StringVar(&refOpps, "opps", "", "Reference opportunity table (TSV)")
	fs.StringVar(&refDB, "refdb", "", "Reference database (DuckDB file, alternative to --sites/--opps)")
	fs.StringVar(&covPath, "covariates", "", "Per-gene covariate table (TSV)")
	fs.StringVar(&genesPath, "gene-list", "", "Restrict the analysis to the genes listed in this file")
	fs.StringVarP(&outDir, "out", "o", ".", "Output directory")

	fs.String("model", "192", "Substitution model: 192, 12 or 2 rate classes")
	fs.String("estimator", "cv", "Background estimator: cv (regression) or loc (per-gene)")
	fs.Bool("targeted", false, "Targeted panel input (requires --gene-list)")
	fs.Int("max-muts-per-gene-per-sample", 3, "Per-gene-per-sample mutation cap (<=0 disables)")
	fs.Int("max-coding-muts-per-sample", 3000, "Hypermutator sample cap (<=0 disables)")
	fs.Float64("outlier-threshold", 5, "Exclude samples above this multiple of the median burden (<=0 disables)")
	fs.Int("workers", 0, "Worker count for per-mutation and per-gene stages (0 = all CPUs)")
	fs.Int("max-iter", 50, "Iteration budget for maximum-likelihood fits")
	fs.Float64("tol", 1e-8, "Relative log-likelihood convergence tolerance")

	for _, key := range []string{"model", "estimator", "targeted",
		"max-muts-per-gene-per-sample", "max-coding-muts-per-sample",
		"outlier-threshold", "workers", "max-iter", "tol"} {
		_ = viper.BindPFlag(key, fs.Lookup(key))
	}

	return cmd
}

func runAnalysis(mutsPath, refSites, refOpps, refDB, covPath, genesPath, outDir string) error {
	logCfg := zap.NewProductionConfig()
	logCfg.OutputPaths = []string{"stderr"}
	logger, err := logCfg.Build()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()

	// Load the reference database.
	var db *refdb.DB
	switch {
	case refDB != "":
		db, err = refdb.LoadDuckDB(refDB)
	case refSites != "" && refOpps != "":
		db, err = refdb.LoadTSV(refSites, refOpps)
	default:
		return &annotate.ConfigurationError{Msg: "a reference is required: --refdb or both --sites and --opps"}
	}
	if err != nil {
		return fmt.Errorf("loading reference: %w", err)
	}
	logger.Info("reference loaded", zap.Int("genes", len(db.Genes())))

	// Load the mutation catalog.
	parser, err := mutation.NewParser(mutsPath)
	if err != nil {
		return err
	}
	defer parser.Close()
	muts, parseErrs := mutation.ReadAll(parser)
	for _, e := range parseErrs {
		logger.Warn("skipping malformed catalog line", zap.Error(e))
	}
	logger.Info("catalog loaded", zap.Int("mutations", len(muts)))

	var cov *mutation.Covariates
	if covPath != "" {
		cov, err = mutation.ReadCovariates(covPath)
		if err != nil {
			return err
		}
	}

	cfg := pipeline.Config{
		SubstitutionModel:       viper.GetString("model"),
		Estimator:               viper.GetString("estimator"),
		TargetedPanel:           viper.GetBool("targeted"),
		MaxMutsPerGenePerSample: viper.GetInt("max-muts-per-gene-per-sample"),
		MaxCodingMutsPerSample:  viper.GetInt("max-coding-muts-per-sample"),
		OutlierThreshold:        viper.GetFloat64("outlier-threshold"),
		Workers:                 viper.GetInt("workers"),
		MaxIter:                 viper.GetInt("max-iter"),
		Tol:                     viper.GetFloat64("tol"),
	}
	if genesPath != "" {
		cfg.GeneList, err = readGeneList(genesPath)
		if err != nil {
			return err
		}
	}

	res, err := pipeline.Run(muts, db, db, cov, cfg, logger)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := writeResults(outDir, res); err != nil {
		return err
	}
	logger.Info("run complete", zap.String("out", outDir), zap.Int("genes", len(res.Genes)))
	return nil
}

func writeResults(dir string, res *pipeline.Result) error {
	write := func(name string, fn func(f *os.File) error) error {
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("creating %s: %w", name, err)
		}
		if err := fn(f); err != nil {
			f.Close()
			return fmt.Errorf("writing %s: %w", name, err)
		}
		return f.Close()
	}

	if err := write("sel_"+res.RateFit.Mode+".tsv", func(f *os.File) error {
		gw := output.NewGeneResultsWriter(f, res.RateFit.Mode)
		if err := gw.WriteHeader(); err != nil {
			return err
		}
		for i := range res.Genes {
			if err := gw.Write(&res.Genes[i]); err != nil {
				return err
			}
		}
		return gw.Flush()
	}); err != nil {
		return err
	}

	if err := write("global_dnds.tsv", func(f *os.File) error {
		return output.WriteGlobal(f, res.Global)
	}); err != nil {
		return err
	}
	if err := write("annotated_muts.tsv", func(f *os.File) error {
		return output.WriteAnnotated(f, res.Tables.Retained)
	}); err != nil {
		return err
	}
	if err := write("exclusions.tsv", func(f *os.File) error {
		return output.WriteExclusions(f, res.Tables.Excluded)
	}); err != nil {
		return err
	}
	if err := write("excluded_samples.tsv", func(f *os.File) error {
		return output.WriteExcludedSamples(f, res.Tables.ExcludedSamples)
	}); err != nil {
		return err
	}
	if err := write("rates.tsv", func(f *os.File) error {
		return output.WriteRates(f, res.Model)
	}); err != nil {
		return err
	}
	if err := write("model_comparison.tsv", func(f *os.File) error {
		return output.WriteModelComparison(f, res.Model, res.NullModel)
	}); err != nil {
		return err
	}
	return write("regression.tsv", func(f *os.File) error {
		return output.WriteRegression(f, res.RateFit)
	})
}

func readGeneList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gene list: %w", err)
	}
	defer f.Close()

	var genes []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		g := strings.TrimSpace(sc.Text())
		if g != "" && !strings.HasPrefix(g, "#") {
			genes = append(genes, g)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read gene list: %w", err)
	}
	return genes, nil
}
