// Package transit holds the departure model shared by the tracker, the
// renderers and the read API: bounded departure records, the fixed-capacity
// snapshot store and the defensive decoder for backend responses.
package transit

import (
	"errors"
	"unicode/utf8"
)

// Transit errors.
var (
	ErrMalformedResponse = errors.New("malformed departures response")
	ErrDocumentTooLarge  = errors.New("departures document exceeds budget")
)

const (
	// LineMaxLen is the maximum number of characters kept for a line identifier.
	LineMaxLen = 7

	// DestinationMaxLen is the maximum number of characters kept for a destination.
	DestinationMaxLen = 39

	// MaxETAMinutes is the largest accepted ETA.
	MaxETAMinutes = 255
)

// BoundedString is a string that never exceeds a fixed number of characters.
// Values longer than the limit keep their left-aligned prefix.
type BoundedString struct {
	value string
	limit int
}

// NewBoundedString truncates s to limit characters.
func NewBoundedString(limit int, s string) BoundedString {
	return BoundedString{value: Truncate(s, limit), limit: limit}
}

// String returns the stored value.
func (b BoundedString) String() string {
	return b.value
}

// Limit returns the maximum number of characters the string may hold.
func (b BoundedString) Limit() int {
	return b.limit
}

// Len returns the number of characters stored.
func (b BoundedString) Len() int {
	return utf8.RuneCountInString(b.value)
}

// IsEmpty reports whether the string holds no characters.
func (b BoundedString) IsEmpty() bool {
	return b.value == ""
}

// Truncate returns the first limit characters of s. Invalid UTF-8 bytes count
// as one character each. A non-positive limit yields the empty string.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

// Departure is a single upcoming departure near the current fix.
type Departure struct {
	// Line is the route identifier (e.g. "M4", "M10").
	Line BoundedString

	// Destination is the headsign of the departure.
	Destination BoundedString

	// ETAMinutes is the number of minutes until departure.
	ETAMinutes uint8
}

// NewDeparture builds a departure, truncating line and destination to their limits.
func NewDeparture(line, destination string, etaMinutes uint8) Departure {
	return Departure{
		Line:        NewBoundedString(LineMaxLen, line),
		Destination: NewBoundedString(DestinationMaxLen, destination),
		ETAMinutes:  etaMinutes,
	}
}
