package types

import "github.com/m-mizutani/goerr/v2"

// Error tags classify failures so the CLI and callers can tell a bad
// invocation apart from bad input data or a failing collaborator.
var (
	// ErrTagConfig marks an invalid flag combination, branch name or missing credential
	ErrTagConfig = goerr.NewTag("config")

	// ErrTagMalformed marks external data that does not have a recognized shape
	ErrTagMalformed = goerr.NewTag("malformed")

	// ErrTagExternal marks a failed git, GitHub or release tracker call
	ErrTagExternal = goerr.NewTag("external")

	// ErrTagConcurrentUpdate marks a push rejected by its force-with-lease precondition
	ErrTagConcurrentUpdate = goerr.NewTag("concurrent_update")
)

var (
	ErrMalformedRevisionMetadata = goerr.New("unexpected deploy revision content", goerr.T(ErrTagMalformed))
	ErrMalformedTestMetadata     = goerr.New("unexpected test metadata content", goerr.T(ErrTagMalformed))
	ErrMissingBotToken           = goerr.New("bot token is required to approve pull requests", goerr.T(ErrTagConfig))
)
