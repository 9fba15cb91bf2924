package model

import (
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herder/pkg/domain/types"
)

// CriterionApproverIsCollaborator is set when the approving review came from a collaborator
const CriterionApproverIsCollaborator = "approver_is_collaborator"

// PullRequestEvaluation is the eligibility verdict computed by the pull
// request rules. It is consumed as-is and never recomputed.
type PullRequestEvaluation struct {
	HeadRef  string  `json:"head_ref"`
	HeadSHA  string  `json:"head_sha"`
	BaseRef  string  `json:"base_ref"`
	MergeSHA *string `json:"merge_sha"`

	MergePendingLabelPresent bool `json:"merge_pending_label_present"`
	PRIsEligible             bool `json:"pr_is_eligible"`
	PRMayBeEligible          bool `json:"pr_may_be_eligible"`

	PREligibility map[string]bool `json:"pr_eligibility"`

	// Raw is the verdict document as produced by the rules
	Raw json.RawMessage `json:"-"`
}

// ParsePullRequestEvaluation decodes a verdict document
func ParsePullRequestEvaluation(raw []byte) (*PullRequestEvaluation, error) {
	var eval PullRequestEvaluation
	if err := json.Unmarshal(raw, &eval); err != nil {
		return nil, goerr.Wrap(err, "failed to decode pull request evaluation",
			goerr.T(types.ErrTagMalformed),
			goerr.V("raw", string(raw)),
		)
	}

	if eval.HeadRef == "" || eval.HeadSHA == "" || eval.BaseRef == "" {
		return nil, goerr.New("pull request evaluation lacks head or base",
			goerr.T(types.ErrTagMalformed),
			goerr.V("raw", string(raw)),
		)
	}

	eval.Raw = append(json.RawMessage(nil), raw...)
	return &eval, nil
}

// Criterion reports a named eligibility criterion. ok is false when the
// verdict does not carry it.
func (e *PullRequestEvaluation) Criterion(name string) (value, ok bool) {
	value, ok = e.PREligibility[name]
	return value, ok
}

// NeedsLabelSync reports whether the pending label disagrees with the
// optimistic eligibility check
func (e *PullRequestEvaluation) NeedsLabelSync() bool {
	return e.PRMayBeEligible != e.MergePendingLabelPresent
}
