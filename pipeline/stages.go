// Package pipeline drives one sample through the fixed per-sample stage
// sequence, from alignment through per-sample variant calling. A sample
// advances monotonically; the first failing stage fails the sample for the
// whole run.
package pipeline

import "fmt"

// Stage is an ordered position in the per-sample pipeline.
type Stage int

const (
	StageAlign Stage = iota
	StageFixMates
	StageSort
	StageMarkDuplicates
	StageIndex
	StageQC
	StageConvertToArchive
	StageIndexArchive
	StageRecalibrateBuild
	StageRecalibrateApply
	StageCallVariants
)

var stageNames = [...]string{
	"Align",
	"FixMates",
	"Sort",
	"MarkDuplicates",
	"Index",
	"QC",
	"ConvertToArchive",
	"IndexArchive",
	"RecalibrateBuild",
	"RecalibrateApply",
	"CallVariants",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageNames[s]
}

// ParseStage maps a stage name back to its Stage, for ledger entries read
// from disk.
func ParseStage(name string) (Stage, bool) {
	for i, n := range stageNames {
		if n == name {
			return Stage(i), true
		}
	}
	return 0, false
}

// Status is a sample's terminal state.
type Status int

const (
	Succeeded Status = iota
	Failed
)

func (s Status) String() string {
	if s == Succeeded {
		return "Succeeded"
	}
	return "Failed"
}

// StageError is a sample-scoped failure: one external tool call failed or
// produced an unusable artifact. It isolates the one sample and never
// escalates to abort the run.
type StageError struct {
	Sample string
	Stage  Stage
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("sample %s: stage %s: %v", e.Sample, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
