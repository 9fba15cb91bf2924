package usecase

import (
	"encoding/json"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herder/pkg/domain/types"
)

// LoadBuiltReleaseVersion reads the release version the site was built
// with from its test metadata file
func LoadBuiltReleaseVersion(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", goerr.Wrap(err, "failed to load test metadata", goerr.V("path", path))
	}

	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return "", goerr.Wrap(err, "failed to parse test metadata",
			goerr.T(types.ErrTagMalformed),
			goerr.V("path", path),
			goerr.V("content", string(data)),
		)
	}

	version, ok := meta["release_version"].(string)
	if !ok {
		return "", goerr.Wrap(types.ErrMalformedTestMetadata,
			"release_version is missing or not a string: "+string(data),
			goerr.T(types.ErrTagMalformed),
			goerr.V("path", path),
		)
	}

	return version, nil
}
