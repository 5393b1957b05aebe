package backend_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tramboard/tramboard/internal/location"
	"github.com/tramboard/tramboard/internal/transit/backend"
)

func TestBuildPath(t *testing.T) {
	tests := []struct {
		name string
		loc  location.Location
		want string
	}{
		{
			name: "berlin",
			loc:  location.Location{Latitude: 52.520007, Longitude: 13.404954, Valid: true},
			want: "/v1/departures?lat=52.520007&lon=13.404954&minutes=30",
		},
		{
			name: "southern and western hemisphere",
			loc:  location.Location{Latitude: -33.8688, Longitude: -70.5, Valid: true},
			want: "/v1/departures?lat=-33.868800&lon=-70.500000&minutes=30",
		},
		{
			name: "origin",
			loc:  location.Location{Valid: true},
			want: "/v1/departures?lat=0.000000&lon=0.000000&minutes=30",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, backend.BuildPath(tt.loc))
		})
	}
}

func TestPathBuilder_Minutes(t *testing.T) {
	loc := location.Location{Latitude: 52.520007, Longitude: 13.404954, Valid: true}

	assert.Equal(t,
		"/v1/departures?lat=52.520007&lon=13.404954&minutes=45",
		backend.PathBuilder{Minutes: 45}.Build(loc))
	assert.Equal(t, backend.BuildPath(loc), backend.PathBuilder{}.Build(loc))
}
