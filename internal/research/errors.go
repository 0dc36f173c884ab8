package research

import "errors"

// Sentinel errors separating the safety taxonomy from ordinary fetch
// failures. Blocked domains and disabled capabilities are refusals, not
// transient errors, and callers requesting a state-changing action must see
// ErrPermissionDenied rather than an empty result.
var (
	// ErrBlockedDomain is returned when a URL's host fails the allow/block
	// check. No network call is made.
	ErrBlockedDomain = errors.New("domain refused by safety policy")

	// ErrPermissionDenied is returned when a state-changing action is
	// attempted while the capability flag is unset.
	ErrPermissionDenied = errors.New("state-changing actions are disabled")

	// ErrUnsupportedContent is returned for non-HTML/XML/text responses.
	ErrUnsupportedContent = errors.New("unsupported content type")

	// ErrThinContent is returned when extracted text is below the minimum
	// useful-content threshold.
	ErrThinContent = errors.New("content below useful length")
)
