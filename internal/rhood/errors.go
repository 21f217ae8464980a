package rhood

import "fmt"

// ConfigError reports missing or unusable credential material. It is
// raised before any network call is attempted.
type ConfigError struct {
	Missing []string
}

func (e *ConfigError) Error() string {
	msg := "one or more required credentials are not present"
	for i, m := range e.Missing {
		if i == 0 {
			msg += " ("
		} else {
			msg += "; "
		}
		msg += m
	}
	if len(e.Missing) > 0 {
		msg += ")"
	}
	return msg
}

// CallError is the generic upstream failure carrying the HTTP status and
// response body. The more specific taxonomy types below embed or mirror
// it so callers can branch with errors.As.
type CallError struct {
	Status int
	Body   string
	URL    string
}

func (e *CallError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("%d: %s (request URL: %s)", e.Status, e.Body, e.URL)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Body)
}

// BadRequestError surfaces a malformed identifier or an upstream 400.
// The upstream message is kept verbatim for the end user.
type BadRequestError struct {
	Message string
	URL     string
}

func (e *BadRequestError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("%s (request URL: %s)", e.Message, e.URL)
	}
	return e.Message
}

type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string { return e.Message }

type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string {
	if e.Message == "" {
		return "authentication credentials expired or not provided"
	}
	return e.Message
}

// NotFoundError reports that no instrument matched an identifier. Plain
// 404s from the pipeline are returned as absence, not as this error; the
// resolver raises it when a search produces zero candidates.
type NotFoundError struct {
	Kind       Kind
	Identifier string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no %ss found for %s", e.Kind, e.Identifier)
}

// ThrottledError reports an upstream 429. It is never retried by the
// pipeline; callers apply their own cooldown.
type ThrottledError struct {
	Message string
}

func (e *ThrottledError) Error() string { return "throttled: " + e.Message }

// InternalError reports a persistent 5xx or connection failure after the
// retry budget is exhausted.
type InternalError struct {
	Status  int
	Message string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("upstream internal error (%d): %s", e.Status, e.Message)
}

// MockMissError is raised when mock mode is enabled but a request has no
// mocked result. Failing fast beats silently hitting the network in tests.
type MockMissError struct {
	URL string
}

func (e *MockMissError) Error() string {
	return "mocking is enabled, but request has not been mocked: " + e.URL
}
