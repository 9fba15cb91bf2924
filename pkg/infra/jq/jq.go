package jq

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/itchyny/gojq"
	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/herder/pkg/domain/interfaces"
	"github.com/m-mizutani/herder/pkg/domain/types"
)

// Program is a compiled jq filter loaded from a rule file
type Program struct {
	path string
	code *gojq.Code

	once    sync.Once
	loadErr error
}

// Load parses and compiles the jq program at path
func Load(path string) (*Program, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read jq program", goerr.T(types.ErrTagConfig), goerr.V("path", path))
	}
	return Compile(path, string(src))
}

// Compile compiles src. path only labels errors.
func Compile(path, src string) (*Program, error) {
	query, err := gojq.Parse(src)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse jq program", goerr.T(types.ErrTagConfig), goerr.V("path", path))
	}

	code, err := gojq.Compile(query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to compile jq program", goerr.T(types.ErrTagConfig), goerr.V("path", path))
	}

	return &Program{path: path, code: code}, nil
}

// Deferred returns a program that is loaded from path on first use, so a
// run that never needs the rule does not require the file
func Deferred(path string) *Program {
	return &Program{path: path}
}

func (p *Program) compiled() (*gojq.Code, error) {
	p.once.Do(func() {
		if p.code != nil {
			return
		}
		loaded, err := Load(p.path)
		if err != nil {
			p.loadErr = err
			return
		}
		p.code = loaded.code
	})
	return p.code, p.loadErr
}

// First runs the program and returns its first output
func (p *Program) First(ctx context.Context, input any) (any, error) {
	code, err := p.compiled()
	if err != nil {
		return nil, err
	}

	iter := code.RunWithContext(ctx, input)

	v, ok := iter.Next()
	if !ok {
		return nil, goerr.New("jq program produced no output", goerr.V("path", p.path))
	}
	if err, ok := v.(error); ok {
		return nil, goerr.Wrap(err, "jq program failed", goerr.V("path", p.path))
	}
	return v, nil
}

// normalize converts arbitrary Go values to the plain JSON types gojq accepts
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode jq input")
	}

	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, goerr.Wrap(err, "failed to decode jq input")
	}
	return out, nil
}

// EligibilityRules evaluates pull request eligibility with the pull
// request rules program
type EligibilityRules struct {
	program *Program
}

var _ interfaces.EligibilityEvaluator = (*EligibilityRules)(nil)

func NewEligibilityRules(program *Program) *EligibilityRules {
	return &EligibilityRules{program: program}
}

// Evaluate runs the rules over the slurped pair [pullRequest, reviews]
func (r *EligibilityRules) Evaluate(ctx context.Context, pullRequest, reviews any) ([]byte, error) {
	input, err := normalize([]any{pullRequest, reviews})
	if err != nil {
		return nil, err
	}

	v, err := r.program.First(ctx, input)
	if err != nil {
		return nil, err
	}

	out, err := json.Marshal(v)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode eligibility verdict")
	}
	return out, nil
}

// ReleaseNamer derives the release version from a revision info file
type ReleaseNamer struct {
	program *Program
}

var _ interfaces.ReleaseVersioner = (*ReleaseNamer)(nil)

func NewReleaseNamer(program *Program) *ReleaseNamer {
	return &ReleaseNamer{program: program}
}

// ReleaseVersion returns the program output; strings are returned raw
func (n *ReleaseNamer) ReleaseVersion(ctx context.Context, revisionInfoPath string) (string, error) {
	data, err := os.ReadFile(revisionInfoPath)
	if err != nil {
		return "", goerr.Wrap(err, "failed to read revision info", goerr.V("path", revisionInfoPath))
	}

	var input any
	if err := json.Unmarshal(data, &input); err != nil {
		return "", goerr.Wrap(err, "failed to parse revision info",
			goerr.T(types.ErrTagMalformed),
			goerr.V("path", revisionInfoPath),
		)
	}

	v, err := n.program.First(ctx, input)
	if err != nil {
		return "", err
	}

	if s, ok := v.(string); ok {
		return s, nil
	}

	out, err := json.Marshal(v)
	if err != nil {
		return "", goerr.Wrap(err, "failed to encode release version")
	}
	return string(out), nil
}
