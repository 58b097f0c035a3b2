package source

import (
	"errors"
	"fmt"

	"github.com/ppiankov/vidwatch/internal/signing"
)

// UnsupportedHostError means no adapter handles the URL's host.
type UnsupportedHostError struct {
	Host string
}

func (e *UnsupportedHostError) Error() string {
	return fmt.Sprintf("unsupported host: %q", e.Host)
}

// NetworkError is a transport failure or a non-2xx response.
type NetworkError struct {
	Platform string
	Status   int // zero when no response arrived
	Err      error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: HTTP %d: %v", e.Platform, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: request failed: %v", e.Platform, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ParseError is a malformed offset, URL, or response body.
type ParseError struct {
	Platform string
	What     string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: parse %s: %v", e.Platform, e.What, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var errNoScript = errors.New("no signing script configured")

// SigningError is a failure to sign a request.
type SigningError = signing.Error
