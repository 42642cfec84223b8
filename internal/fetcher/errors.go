package fetcher

import "errors"

var (
	// ErrNoUpdatesFound is returned when the update server has no entry
	// for a title (non-success status or empty response body).
	ErrNoUpdatesFound = errors.New("no updates found for title ID")

	// ErrXMLParse is returned when the update XML cannot be decoded.
	ErrXMLParse = errors.New("failed to parse update XML")

	// ErrNetwork is returned for transport-level failures while talking
	// to the update server.
	ErrNetwork = errors.New("network error")
)
