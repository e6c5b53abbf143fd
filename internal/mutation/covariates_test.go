package mutation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cov.tsv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadCovariates(t *testing.T) {
	path := writeTemp(t, "gene\texpr\trepl_time\nTP53\t0.5\t-1.2\nKRAS\t1.5\t0.3\n")

	cov, err := ReadCovariates(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"expr", "repl_time"}, cov.Names)
	assert.Equal(t, []float64{0.5, -1.2}, cov.Values["TP53"])
	assert.Equal(t, []float64{1.5, 0.3}, cov.Values["KRAS"])
}

func TestReadCovariates_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"wrong column count", "gene\texpr\nTP53\t0.5\t9\n"},
		{"non-numeric value", "gene\texpr\nTP53\thigh\n"},
		{"header only one column", "gene\nTP53\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCovariates(writeTemp(t, tt.content))
			assert.Error(t, err)
		})
	}
}
