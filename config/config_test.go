package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/exomeflow/exomeflow/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

// scaffold creates a config file whose resource paths all exist.
func scaffold(t *testing.T) (dir, cfgPath string) {
	t.Helper()
	dir = t.TempDir()
	for _, name := range []string{
		"ref.fa", "target.bed", "dbsnp.vcf.gz", "mills.vcf.gz",
		"hapmap.vcf.gz", "omni.vcf.gz", "1000g.vcf.gz",
	} {
		writeFile(t, filepath.Join(dir, name), "x\n")
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "input"), 0755))
	body := `
reference: ` + filepath.Join(dir, "ref.fa") + `
target_bed: ` + filepath.Join(dir, "target.bed") + `
dbsnp: ` + filepath.Join(dir, "dbsnp.vcf.gz") + `
mills_indels: ` + filepath.Join(dir, "mills.vcf.gz") + `
hapmap: ` + filepath.Join(dir, "hapmap.vcf.gz") + `
omni: ` + filepath.Join(dir, "omni.vcf.gz") + `
snps_1000g: ` + filepath.Join(dir, "1000g.vcf.gz") + `
input_dir: ` + filepath.Join(dir, "input") + `
output_dir: ` + filepath.Join(dir, "output") + `
batch_size: 2
threads: 3
`
	cfgPath = writeFile(t, filepath.Join(dir, "exomeflow.yaml"), body)
	return dir, cfgPath
}

func TestLoad(t *testing.T) {
	dir, cfgPath := scaffold(t)
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.BatchSize)
	assert.Equal(t, 3, cfg.Threads)
	assert.Equal(t, filepath.Join(dir, "ref.fa"), cfg.Reference)
	// Defaults.
	assert.Equal(t, "bwa", cfg.BWA)
	assert.Equal(t, "gatk", cfg.GATK)
	assert.Equal(t, []string{cfg.DbSNP, cfg.MillsIndels}, cfg.KnownSites())
}

func TestLoadMissingResource(t *testing.T) {
	dir, cfgPath := scaffold(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "hapmap.vcf.gz")))
	_, err := config.Load(cfgPath)
	require.Error(t, err)
	assert.IsType(t, &config.Error{}, err)
}

func TestLoadEmptyResource(t *testing.T) {
	dir, cfgPath := scaffold(t)
	writeFile(t, filepath.Join(dir, "ref.fa"), "")
	_, err := config.Load(cfgPath)
	assert.Error(t, err)
}

func TestValidateBatchSize(t *testing.T) {
	_, cfgPath := scaffold(t)
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	cfg.BatchSize = 0
	assert.Error(t, cfg.Validate())
}

func TestLoadNoSuchFile(t *testing.T) {
	_, err := config.Load("/nonexistent/exomeflow.yaml")
	assert.Error(t, err)
}
