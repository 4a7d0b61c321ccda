// exomeflow orchestrates a germline exome workflow: per-sample alignment
// through variant calling, then cohort joint genotyping and VQSR filtering.
// The heavy lifting is done by bwa, samtools, and gatk; this binary wires
// them together, locally or through a cluster scheduler.
package main

import (
	"log"

	"v.io/x/lib/cmdline"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(
		&cmdline.Command{
			Name:     "exomeflow",
			Short:    "Germline exome alignment, calling, and cohort filtering",
			LookPath: false,
			Children: []*cmdline.Command{
				newCmdRun(),
				newCmdSample(),
				newCmdFinalize(),
			},
		})
}
