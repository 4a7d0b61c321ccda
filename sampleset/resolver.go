// Package sampleset discovers the input units of a run and fixes their
// canonical sample identifiers. Discovery tries a fixed list of paired-end
// naming conventions, most specific first; the first convention that matches
// anything wins and is applied to the whole input collection. Mixing
// conventions within one run is not supported.
package sampleset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/klauspost/compress/gzip"
)

// Convention is one paired-end file naming scheme.
type Convention struct {
	Name string
	R1   string // first-mate filename suffix
	R2   string // second-mate filename suffix
}

// conventions are tried in order. Keep the most specific suffixes first:
// a "_1.clean.fq.gz" file also ends in "_1.fq.gz", so the generic scheme
// must come after the clean/trimmed ones.
var conventions = []Convention{
	{Name: "clean", R1: "_1.clean.fq.gz", R2: "_2.clean.fq.gz"},
	{Name: "trimmed-gz", R1: "_1.trimmed.fq.gz", R2: "_2.trimmed.fq.gz"},
	{Name: "trimmed", R1: "_1.trimmed.fq", R2: "_2.trimmed.fq"},
	{Name: "paired", R1: "_1.fq.gz", R2: "_2.fq.gz"},
	{Name: "illumina", R1: "_R1.fastq.gz", R2: "_R2.fastq.gz"},
}

// Sample is one input unit: a canonical id plus its paired read files.
type Sample struct {
	ID string
	R1 string
	R2 string
}

// Set is the resolved input collection for a run, ordered by sample id.
type Set struct {
	Convention Convention
	Samples    []Sample
}

// DiscoveryError indicates that no sample could be recognized, or that a
// recognized sample's inputs are unusable. It is fatal for the run.
type DiscoveryError struct {
	Dir string
	Msg string
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("input discovery in %s: %s", e.Dir, e.Msg)
}

// Resolve scans dir for paired read files. The first convention yielding at
// least one complete pair wins. A first mate without its second mate under
// the winning convention is an error, not a silent drop.
func Resolve(dir string) (*Set, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &DiscoveryError{Dir: dir, Msg: err.Error()}
	}
	names := make(map[string]bool, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names[e.Name()] = true
		}
	}

	for _, conv := range conventions {
		var samples []Sample
		for name := range names {
			if !strings.HasSuffix(name, conv.R1) {
				continue
			}
			id := strings.TrimSuffix(name, conv.R1)
			mate := id + conv.R2
			if !names[mate] {
				return nil, &DiscoveryError{
					Dir: dir,
					Msg: fmt.Sprintf("sample %s: found %s but not its mate %s (%s convention)", id, name, mate, conv.Name),
				}
			}
			samples = append(samples, Sample{
				ID: id,
				R1: filepath.Join(dir, name),
				R2: filepath.Join(dir, mate),
			})
		}
		if len(samples) == 0 {
			continue
		}
		sort.Slice(samples, func(i, j int) bool { return samples[i].ID < samples[j].ID })
		for _, s := range samples {
			if err := probePair(s); err != nil {
				return nil, &DiscoveryError{Dir: dir, Msg: err.Error()}
			}
		}
		log.Printf("sampleset: %d sample(s) under %q convention (%s/%s)", len(samples), conv.Name, conv.R1, conv.R2)
		return &Set{Convention: conv, Samples: samples}, nil
	}
	return nil, &DiscoveryError{Dir: dir, Msg: "no samples match any supported naming convention"}
}

// IDs returns the ordered canonical sample ids.
func (s *Set) IDs() []string {
	ids := make([]string, len(s.Samples))
	for i, sm := range s.Samples {
		ids[i] = sm.ID
	}
	return ids
}

// Find returns the sample with the given canonical id.
func (s *Set) Find(id string) (Sample, bool) {
	for _, sm := range s.Samples {
		if sm.ID == id {
			return sm, true
		}
	}
	return Sample{}, false
}

// Nearest returns the known id closest to id by edit distance, for
// "unknown sample" error messages. Empty when ids is empty.
func Nearest(id string, ids []string) string {
	best, bestDist := "", -1
	for _, known := range ids {
		d := matchr.Levenshtein(id, known)
		if bestDist < 0 || d < bestDist {
			best, bestDist = known, d
		}
	}
	return best
}

// probePair rejects pairs whose read files are empty or, for compressed
// inputs, not valid gzip. This catches truncated uploads before any compute
// is spent on the sample.
func probePair(s Sample) error {
	for _, path := range []string{s.R1, s.R2} {
		info, err := os.Stat(path)
		if err != nil {
			return errors.E(err, path)
		}
		if info.Size() == 0 {
			return fmt.Errorf("%s: empty read file", path)
		}
		if strings.HasSuffix(path, ".gz") {
			if err := probeGzip(path); err != nil {
				return errors.E(err, fmt.Sprintf("sample %s", s.ID))
			}
		}
	}
	return nil
}

func probeGzip(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("%s: not a gzip file: %v", path, err)
	}
	defer zr.Close()
	var probe [1]byte
	if _, err := zr.Read(probe[:]); err != nil {
		return fmt.Errorf("%s: unreadable gzip stream: %v", path, err)
	}
	return nil
}
