// Package config loads and validates the run configuration. Every path to a
// reference or resource file is checked up front so that a misconfigured run
// aborts before anything is dispatched.
package config

import (
	"fmt"
	"os"
	"runtime"

	"github.com/grailbio/base/errors"
	"github.com/spf13/viper"
)

// Config holds the resolved configuration for one run.
type Config struct {
	// Reference and resource files.
	Reference   string `mapstructure:"reference"`
	TargetBED   string `mapstructure:"target_bed"`
	DbSNP       string `mapstructure:"dbsnp"`
	MillsIndels string `mapstructure:"mills_indels"`
	HapMap      string `mapstructure:"hapmap"`
	Omni        string `mapstructure:"omni"`
	SNPs1000G   string `mapstructure:"snps_1000g"`

	// Tool binaries.
	BWA      string `mapstructure:"bwa"`
	Samtools string `mapstructure:"samtools"`
	GATK     string `mapstructure:"gatk"`

	// Directories.
	InputDir  string `mapstructure:"input_dir"`
	OutputDir string `mapstructure:"output_dir"`
	TempDir   string `mapstructure:"temp_dir"`

	// Sizing.
	BatchSize int `mapstructure:"batch_size"`
	Threads   int `mapstructure:"threads"`
	MemoryGB  int `mapstructure:"memory_gb"`

	// Cluster scheduler account/partition; ignored in local mode.
	Partition string `mapstructure:"partition"`
	Account   string `mapstructure:"account"`

	// KeepIntermediates disables eager deletion of per-stage intermediates.
	KeepIntermediates bool `mapstructure:"keep_intermediates"`
}

// Error indicates a fatal configuration problem detected before dispatch.
type Error struct {
	Msg string
}

func (e *Error) Error() string { return "configuration: " + e.Msg }

// Load reads the YAML configuration at path, applies defaults, and
// validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("exomeflow")
	v.AutomaticEnv()

	v.SetDefault("bwa", "bwa")
	v.SetDefault("samtools", "samtools")
	v.SetDefault("gatk", "gatk")
	v.SetDefault("batch_size", 4)
	v.SetDefault("threads", runtime.NumCPU())
	v.SetDefault("memory_gb", 16)
	v.SetDefault("temp_dir", os.TempDir())

	if err := v.ReadInConfig(); err != nil {
		return nil, &Error{Msg: fmt.Sprintf("reading %s: %v", path, err)}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, &Error{Msg: fmt.Sprintf("parsing %s: %v", path, err)}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required files and directories exist and sizing
// values are sane. It returns a *Error describing the first problem found.
func (c *Config) Validate() error {
	required := []struct{ name, path string }{
		{"reference", c.Reference},
		{"target_bed", c.TargetBED},
		{"dbsnp", c.DbSNP},
		{"mills_indels", c.MillsIndels},
		{"hapmap", c.HapMap},
		{"omni", c.Omni},
		{"snps_1000g", c.SNPs1000G},
	}
	for _, r := range required {
		if r.path == "" {
			return &Error{Msg: r.name + " is not set"}
		}
		if err := checkFile(r.path); err != nil {
			return &Error{Msg: fmt.Sprintf("%s: %v", r.name, err)}
		}
	}
	if c.InputDir == "" {
		return &Error{Msg: "input_dir is not set"}
	}
	if info, err := os.Stat(c.InputDir); err != nil || !info.IsDir() {
		return &Error{Msg: "input_dir " + c.InputDir + " is not a directory"}
	}
	if c.OutputDir == "" {
		return &Error{Msg: "output_dir is not set"}
	}
	if c.BatchSize < 1 {
		return &Error{Msg: fmt.Sprintf("batch_size must be positive, got %d", c.BatchSize)}
	}
	if c.Threads < 1 {
		return &Error{Msg: fmt.Sprintf("threads must be positive, got %d", c.Threads)}
	}
	return nil
}

// KnownSites returns the known-variant-site files handed to the base-quality
// recalibrator, in a fixed order.
func (c *Config) KnownSites() []string {
	return []string{c.DbSNP, c.MillsIndels}
}

func checkFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.E(err, path)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%s is empty", path)
	}
	return nil
}
