package model

// Revision is one view of the refs and commits that are about to be
// deployed. BaseSHA and MergeSHA are nil when the source does not know them.
type Revision struct {
	HeadRef  string  `json:"head_ref"`
	HeadSHA  string  `json:"head_sha"`
	BaseRef  string  `json:"base_ref"`
	BaseSHA  *string `json:"base_sha,omitempty"`
	MergeSHA *string `json:"merge_sha"`
}

// NewPushRevision returns the revision of a pushed branch, which is its own base
func NewPushRevision(ref, sha string) *Revision {
	return &Revision{
		HeadRef: ref,
		HeadSHA: sha,
		BaseRef: ref,
	}
}

// NewPullRequestRevision returns a revision with every field populated
func NewPullRequestRevision(headRef, headSHA, baseRef, baseSHA, mergeSHA string) *Revision {
	return &Revision{
		HeadRef:  headRef,
		HeadSHA:  headSHA,
		BaseRef:  baseRef,
		BaseSHA:  &baseSHA,
		MergeSHA: &mergeSHA,
	}
}

// RevisionFromEvaluation maps a pull request evaluation to a revision. The
// evaluation never carries the base commit.
func RevisionFromEvaluation(eval *PullRequestEvaluation) *Revision {
	rev := &Revision{
		HeadRef: eval.HeadRef,
		HeadSHA: eval.HeadSHA,
		BaseRef: eval.BaseRef,
	}
	if eval.MergeSHA != nil {
		sha := *eval.MergeSHA
		rev.MergeSHA = &sha
	}
	return rev
}

// RevisionField is a single named field of a revision. Value is nil when the
// field is absent.
type RevisionField struct {
	Name  string
	Value *string
}

// Fields returns the revision fields in declaration order
func (r *Revision) Fields() []RevisionField {
	headRef, headSHA, baseRef := r.HeadRef, r.HeadSHA, r.BaseRef
	return []RevisionField{
		{Name: "head_ref", Value: &headRef},
		{Name: "head_sha", Value: &headSHA},
		{Name: "base_ref", Value: &baseRef},
		{Name: "base_sha", Value: r.BaseSHA},
		{Name: "merge_sha", Value: r.MergeSHA},
	}
}

// NamedRevision attributes a revision to the source it was collected from
type NamedRevision struct {
	Source   string
	Revision *Revision
}

const (
	RevisionSourceCurrent   = "current"
	RevisionSourceEvaluated = "evaluated"
	RevisionSourceBuilt     = "built"
)

// SourceValue is the value one source reported for a field
type SourceValue struct {
	Source string
	Value  string
}

// RevisionMismatch describes a field whose value differs between sources
type RevisionMismatch struct {
	Field  string
	Values []SourceValue
}
