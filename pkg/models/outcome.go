package models

// OutcomeKind tags the result of one (submission, file type) pair.
type OutcomeKind string

const (
	OutcomeTransferred    OutcomeKind = "transferred"
	OutcomeAlreadyPresent OutcomeKind = "already-present"
	OutcomeNotSubmitted   OutcomeKind = "not-submitted"
	OutcomeFieldMissing   OutcomeKind = "field-missing"
	OutcomeFailed         OutcomeKind = "failed"
)

// Outcome is reported for every pair the engine looks at.
type Outcome struct {
	Index        int
	SubmissionID string
	Spec         FileTypeSpec
	Kind         OutcomeKind
	Path         string
	Bytes        int64
	Err          error
}

// PassResult summarises one pass of the sync engine.
type PassResult struct {
	Start     int
	Completed bool
	// FailedAt is the row index of the first failed transfer. Only valid
	// when Completed is false.
	FailedAt int
	Outcomes []Outcome
}

// Count returns how many outcomes of kind the pass produced.
func (r *PassResult) Count(kind OutcomeKind) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Kind == kind {
			n++
		}
	}
	return n
}

// TransferredBytes sums the bytes written by the pass.
func (r *PassResult) TransferredBytes() int64 {
	var total int64
	for _, o := range r.Outcomes {
		if o.Kind == OutcomeTransferred {
			total += o.Bytes
		}
	}
	return total
}
