package usecase_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/herder/pkg/domain/model"
	"github.com/m-mizutani/herder/pkg/domain/types"
	"github.com/m-mizutani/herder/pkg/usecase"
)

func strPtr(s string) *string { return &s }

func TestCheckRevisionConsistency(t *testing.T) {
	tests := []struct {
		name       string
		sources    []model.NamedRevision
		consistent bool
		fields     []string
	}{
		{
			name:       "No sources",
			sources:    nil,
			consistent: true,
		},
		{
			name: "All sources agree",
			sources: []model.NamedRevision{
				{Source: "current", Revision: model.NewPullRequestRevision("feature", "h1", "develop", "b1", "m1")},
				{Source: "built", Revision: model.NewPullRequestRevision("feature", "h1", "develop", "b1", "m1")},
			},
			consistent: true,
		},
		{
			name: "Optional field absent from some sources",
			sources: []model.NamedRevision{
				{Source: "current", Revision: model.NewPullRequestRevision("feature", "h1", "develop", "b1", "m1")},
				{Source: "evaluated", Revision: &model.Revision{HeadRef: "feature", HeadSHA: "h1", BaseRef: "develop", MergeSHA: strPtr("m1")}},
			},
			consistent: true,
		},
		{
			name: "Optional fields absent from every source",
			sources: []model.NamedRevision{
				{Source: "current", Revision: model.NewPushRevision("develop", "abc")},
				{Source: "built", Revision: model.NewPushRevision("develop", "abc")},
			},
			consistent: true,
		},
		{
			name: "Head sha differs",
			sources: []model.NamedRevision{
				{Source: "current", Revision: model.NewPushRevision("develop", "abc")},
				{Source: "built", Revision: model.NewPushRevision("develop", "def")},
			},
			consistent: false,
			fields:     []string{"head_sha"},
		},
		{
			name: "Every divergent field is reported",
			sources: []model.NamedRevision{
				{Source: "current", Revision: model.NewPullRequestRevision("feature", "h1", "develop", "b1", "m1")},
				{Source: "evaluated", Revision: &model.Revision{HeadRef: "feature", HeadSHA: "h2", BaseRef: "develop", MergeSHA: strPtr("m1")}},
				{Source: "built", Revision: model.NewPullRequestRevision("feature", "h1", "develop", "b2", "m2")},
			},
			consistent: false,
			fields:     []string{"head_sha", "base_sha", "merge_sha"},
		},
		{
			name: "Divergence against an absent first source",
			sources: []model.NamedRevision{
				{Source: "evaluated", Revision: &model.Revision{HeadRef: "feature", HeadSHA: "h1", BaseRef: "develop"}},
				{Source: "current", Revision: model.NewPullRequestRevision("feature", "h1", "develop", "b1", "m1")},
				{Source: "built", Revision: model.NewPullRequestRevision("feature", "h1", "develop", "b1", "m9")},
			},
			consistent: false,
			fields:     []string{"merge_sha"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			consistent, mismatches := usecase.CheckRevisionConsistency(context.Background(), tt.sources)
			gt.Equal(t, consistent, tt.consistent)

			var fields []string
			for _, m := range mismatches {
				fields = append(fields, m.Field)
			}
			gt.Equal(t, fields, tt.fields)
		})
	}
}

func TestCheckRevisionConsistency_ReportsEverySource(t *testing.T) {
	_, mismatches := usecase.CheckRevisionConsistency(context.Background(), []model.NamedRevision{
		{Source: "current", Revision: model.NewPullRequestRevision("feature", "h1", "develop", "b1", "m1")},
		{Source: "evaluated", Revision: &model.Revision{HeadRef: "feature", HeadSHA: "h1", BaseRef: "develop"}},
		{Source: "built", Revision: model.NewPullRequestRevision("feature", "h1", "develop", "b1", "m2")},
	})

	gt.A(t, mismatches).Length(1)
	gt.Equal(t, mismatches[0].Values, []model.SourceValue{
		{Source: "current", Value: "m1"},
		{Source: "built", Value: "m2"},
	})
}

func TestParseRevisionMetadata_ExplicitShape(t *testing.T) {
	rev, err := usecase.ParseRevisionMetadata([]byte(`{
		"head_ref": "feature/x",
		"head_sha": "1111",
		"base_ref": "develop",
		"base_ref_sha": "2222",
		"sha": "3333",
		"tree": "4444"
	}`))
	gt.NoError(t, err)

	gt.Equal(t, rev.HeadRef, "feature/x")
	gt.Equal(t, rev.HeadSHA, "1111")
	gt.Equal(t, rev.BaseRef, "develop")
	gt.Value(t, rev.BaseSHA).NotNil()
	gt.Equal(t, *rev.BaseSHA, "2222")
	gt.Value(t, rev.MergeSHA).NotNil()
	gt.Equal(t, *rev.MergeSHA, "3333")
}

func TestParseRevisionMetadata_PushShape(t *testing.T) {
	rev, err := usecase.ParseRevisionMetadata([]byte(`{"ref": "develop", "sha": "abcd", "tree": "ef01", "run": 12}`))
	gt.NoError(t, err)

	gt.Equal(t, rev.HeadRef, "develop")
	gt.Equal(t, rev.BaseRef, "develop")
	gt.Equal(t, rev.HeadSHA, "abcd")
	gt.Value(t, rev.BaseSHA).Nil()
	gt.Value(t, rev.MergeSHA).Nil()
}

func TestParseRevisionMetadata_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "Push shape without tree",
			content: `{"ref": "develop", "sha": "abcd"}`,
		},
		{
			name:    "Explicit shape without tree",
			content: `{"head_ref": "f", "head_sha": "1", "base_ref": "develop", "base_ref_sha": "2", "sha": "3"}`,
		},
		{
			name:    "Push shape mixed with an explicit key",
			content: `{"ref": "develop", "sha": "abcd", "tree": "ef01", "head_ref": "develop"}`,
		},
		{
			name:    "Push shape mixed with base_ref_sha",
			content: `{"ref": "develop", "sha": "abcd", "tree": "ef01", "base_ref_sha": "2"}`,
		},
		{
			name:    "Non-string field",
			content: `{"ref": "develop", "sha": 12, "tree": "ef01"}`,
		},
		{
			name:    "Empty object",
			content: `{}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rev, err := usecase.ParseRevisionMetadata([]byte(tt.content))
			gt.Error(t, err)
			gt.Value(t, rev).Nil()
			gt.True(t, errors.Is(err, types.ErrMalformedRevisionMetadata))
			gt.True(t, goerr.HasTag(err, types.ErrTagMalformed))
			gt.String(t, err.Error()).Contains("no known revision shape matches")
		})
	}
}

func TestParseRevisionMetadata_InvalidJSON(t *testing.T) {
	for _, content := range []string{`not json`, `["ref", "sha"]`} {
		rev, err := usecase.ParseRevisionMetadata([]byte(content))
		gt.Error(t, err)
		gt.Value(t, rev).Nil()
		gt.True(t, goerr.HasTag(err, types.ErrTagMalformed))
	}
}

func TestLoadRevisionMetadata(t *testing.T) {
	dir := t.TempDir()

	t.Run("reads file", func(t *testing.T) {
		path := filepath.Join(dir, "revision.json")
		gt.NoError(t, os.WriteFile(path, []byte(`{"ref": "develop", "sha": "abcd", "tree": "ef01"}`), 0600))

		rev, err := usecase.LoadRevisionMetadata(path)
		gt.NoError(t, err)
		gt.Equal(t, rev.HeadSHA, "abcd")
	})

	t.Run("missing file names the path", func(t *testing.T) {
		path := filepath.Join(dir, "missing.json")

		rev, err := usecase.LoadRevisionMetadata(path)
		gt.Error(t, err)
		gt.Value(t, rev).Nil()
		gt.String(t, err.Error()).Contains("failed to load revision info")
		gt.String(t, err.Error()).Contains("missing.json")
	})
}

func TestLoadBuiltReleaseVersion(t *testing.T) {
	dir := t.TempDir()

	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		gt.NoError(t, os.WriteFile(path, []byte(content), 0600))
		return path
	}

	t.Run("valid", func(t *testing.T) {
		version, err := usecase.LoadBuiltReleaseVersion(write("ok.json", `{"release_version": "site@1.2.3", "other": 1}`))
		gt.NoError(t, err)
		gt.Equal(t, version, "site@1.2.3")
	})

	t.Run("missing release_version", func(t *testing.T) {
		_, err := usecase.LoadBuiltReleaseVersion(write("missing.json", `{"version": "x"}`))
		gt.Error(t, err)
		gt.True(t, errors.Is(err, types.ErrMalformedTestMetadata))
		gt.String(t, err.Error()).Contains(`{"version": "x"}`)
	})

	t.Run("non-string release_version", func(t *testing.T) {
		_, err := usecase.LoadBuiltReleaseVersion(write("number.json", `{"release_version": 3}`))
		gt.Error(t, err)
		gt.True(t, errors.Is(err, types.ErrMalformedTestMetadata))
	})
}
