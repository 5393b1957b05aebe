// Package location supplies the current position fix to the tracker.
package location

import "fmt"

// Location is a position reading with a validity flag.
type Location struct {
	// Latitude in degrees, positive north.
	Latitude float64

	// Longitude in degrees, positive east.
	Longitude float64

	// Valid is true if the position is based on a current fix.
	Valid bool
}

// String formats the location for logs.
func (l Location) String() string {
	if !l.Valid {
		return "no fix"
	}
	return fmt.Sprintf("%.6f,%.6f", l.Latitude, l.Longitude)
}

// Provider returns the most recent location.
type Provider interface {
	Location() Location
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func() Location

// Location calls f.
func (f ProviderFunc) Location() Location {
	return f()
}

// Static is a provider for installations at a fixed position.
type Static struct {
	Latitude  float64
	Longitude float64
}

// Location returns the configured position as a valid fix.
func (s Static) Location() Location {
	return Location{Latitude: s.Latitude, Longitude: s.Longitude, Valid: true}
}
