package backend

import (
	"fmt"

	"github.com/tramboard/tramboard/internal/location"
)

// DefaultWindowMinutes is the look-ahead window requested from the backend.
const DefaultWindowMinutes = 30

// PathBuilder formats departure query paths for a position.
type PathBuilder struct {
	// Minutes is the look-ahead window. Default: 30
	Minutes int
}

// Build returns the request path for loc. Coordinates are written with six
// decimals and nothing is URL-encoded.
func (b PathBuilder) Build(loc location.Location) string {
	minutes := b.Minutes
	if minutes <= 0 {
		minutes = DefaultWindowMinutes
	}
	return fmt.Sprintf("/v1/departures?lat=%.6f&lon=%.6f&minutes=%d", loc.Latitude, loc.Longitude, minutes)
}

// BuildPath returns the request path for loc with the default window.
func BuildPath(loc location.Location) string {
	return PathBuilder{Minutes: DefaultWindowMinutes}.Build(loc)
}
