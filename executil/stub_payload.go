package executil

import (
	"bytes"
	"strings"

	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
)

// stubPayload fabricates file contents for a stubbed tool output. Alignment
// outputs get a real (empty) BAM so that header validation downstream
// accepts them; everything else gets an arbitrary nonempty body.
func stubPayload(path string) []byte {
	if strings.HasSuffix(path, ".bam") {
		return stubBAM()
	}
	return []byte("stub output\n")
}

func stubBAM() []byte {
	ref, err := sam.NewReference("chr1", "", "", 1000, nil, nil)
	if err != nil {
		panic(err)
	}
	header, err := sam.NewHeader(nil, []*sam.Reference{ref})
	if err != nil {
		panic(err)
	}
	var buf bytes.Buffer
	w, err := bam.NewWriter(&buf, header, 1)
	if err != nil {
		panic(err)
	}
	if err := w.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
