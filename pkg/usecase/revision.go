package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herder/pkg/domain/model"
	"github.com/m-mizutani/herder/pkg/domain/types"
)

// Keys of the explicit (pull request) revision info shape. A push-shaped
// document must not carry any of them.
var explicitRevisionKeys = []string{"head_ref", "head_sha", "base_ref", "base_ref_sha"}

// LoadRevisionMetadata reads the revision info recorded by the site build
func LoadRevisionMetadata(path string) (*model.Revision, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load revision info", goerr.V("path", path))
	}

	rev, err := ParseRevisionMetadata(data)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load revision info", goerr.V("path", path))
	}

	return rev, nil
}

// ParseRevisionMetadata decodes a revision info document. Two shapes are
// accepted: the explicit pull request shape (head_ref, head_sha, base_ref,
// base_ref_sha, sha, tree) and the push shape (ref, sha, tree) which must not
// contain any explicit key.
func ParseRevisionMetadata(data []byte) (*model.Revision, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, goerr.Wrap(err, "failed to parse revision info",
			goerr.T(types.ErrTagMalformed),
			goerr.V("content", string(data)),
		)
	}

	if fields, ok := stringFields(doc, "head_ref", "head_sha", "base_ref", "base_ref_sha", "sha", "tree"); ok {
		return model.NewPullRequestRevision(
			fields["head_ref"],
			fields["head_sha"],
			fields["base_ref"],
			fields["base_ref_sha"],
			fields["sha"],
		), nil
	}

	if fields, ok := stringFields(doc, "ref", "sha", "tree"); ok && !hasAnyKey(doc, explicitRevisionKeys...) {
		return model.NewPushRevision(fields["ref"], fields["sha"]), nil
	}

	return nil, goerr.Wrap(types.ErrMalformedRevisionMetadata,
		fmt.Sprintf("no known revision shape matches %s", indentJSON(doc)),
		goerr.T(types.ErrTagMalformed),
	)
}

func stringFields(doc map[string]any, keys ...string) (map[string]string, bool) {
	fields := make(map[string]string, len(keys))
	for _, key := range keys {
		s, ok := doc[key].(string)
		if !ok {
			return nil, false
		}
		fields[key] = s
	}
	return fields, true
}

func hasAnyKey(doc map[string]any, keys ...string) bool {
	for _, key := range keys {
		if _, ok := doc[key]; ok {
			return true
		}
	}
	return false
}

func indentJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// CheckRevisionConsistency compares every field across the named revisions.
// Sources that lack an optional field are skipped for that field. All
// mismatching fields are reported; the check itself never fails.
func CheckRevisionConsistency(ctx context.Context, sources []model.NamedRevision) (bool, []model.RevisionMismatch) {
	logger := ctxlog.From(ctx)

	if len(sources) == 0 {
		return true, nil
	}

	fieldSets := make([][]model.RevisionField, len(sources))
	for i, src := range sources {
		fieldSets[i] = src.Revision.Fields()
	}

	var mismatches []model.RevisionMismatch
	for idx, field := range fieldSets[0] {
		var values []model.SourceValue
		for i, src := range sources {
			if v := fieldSets[i][idx].Value; v != nil {
				values = append(values, model.SourceValue{Source: src.Source, Value: *v})
			}
		}

		if len(values) == 0 {
			continue
		}

		first := values[0].Value
		for _, other := range values[1:] {
			if other.Value != first {
				mismatches = append(mismatches, model.RevisionMismatch{
					Field:  field.Name,
					Values: values,
				})
				logger.Warn("stale revision",
					"field", field.Name,
					"values", formatSourceValues(values),
				)
				break
			}
		}
	}

	return len(mismatches) == 0, mismatches
}

func formatSourceValues(values []model.SourceValue) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%s %q", v.Source, v.Value)
	}
	return strings.Join(parts, ", ")
}
