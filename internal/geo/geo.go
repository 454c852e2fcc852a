// Package geo holds the small amount of spherical geometry the feed needs.
package geo

import (
	"fmt"
	"math"

	"github.com/and161185/flour/internal/model"
)

// EarthRadiusMeters is the mean Earth radius.
const EarthRadiusMeters = 6371008.8

// Distance returns the great-circle distance in meters (haversine).
func Distance(a, b model.Location) float64 {
	lat1 := rad(a.Latitude)
	lat2 := rad(b.Latitude)
	dLat := lat2 - lat1
	dLon := rad(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// WithinRadius reports whether loc lies inside the request's search radius.
func WithinRadius(r model.Request, loc model.Location) bool {
	return Distance(r.Location, loc) <= r.RadiusMeters
}

// Format renders a distance as "850 m" or "1.2 km".
func Format(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%.0f m", meters)
	}
	return fmt.Sprintf("%.1f km", meters/1000)
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }
