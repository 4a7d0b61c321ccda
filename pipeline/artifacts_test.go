package pipeline

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestCheckArtifact(t *testing.T) {
	dir := t.TempDir()

	missing := filepath.Join(dir, "missing.txt")
	expect.NotNil(t, checkArtifact(missing))

	empty := filepath.Join(dir, "empty.txt")
	assert.NoError(t, os.WriteFile(empty, nil, 0644))
	expect.NotNil(t, checkArtifact(empty))

	plain := filepath.Join(dir, "plain.txt")
	assert.NoError(t, os.WriteFile(plain, []byte("ok"), 0644))
	expect.NoError(t, checkArtifact(plain))
}

func TestCheckArtifactBAM(t *testing.T) {
	dir := t.TempDir()

	// A structurally valid BAM passes.
	ref, err := sam.NewReference("chr1", "", "", 1000, nil, nil)
	assert.NoError(t, err)
	header, err := sam.NewHeader(nil, []*sam.Reference{ref})
	assert.NoError(t, err)
	var buf bytes.Buffer
	w, err := bam.NewWriter(&buf, header, 1)
	assert.NoError(t, err)
	assert.NoError(t, w.Close())
	good := filepath.Join(dir, "good.bam")
	assert.NoError(t, os.WriteFile(good, buf.Bytes(), 0644))
	expect.NoError(t, checkArtifact(good))

	// Garbage with a .bam name is rejected: a tool that died mid-write
	// must fail its stage, not poison the next one.
	bad := filepath.Join(dir, "bad.bam")
	assert.NoError(t, os.WriteFile(bad, []byte("not a bam at all"), 0644))
	expect.NotNil(t, checkArtifact(bad))
}
