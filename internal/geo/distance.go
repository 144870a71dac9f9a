package geo

import (
	"math"

	"github.com/slugwatch/citation-cli/internal/model"
)

const (
	earthRadiusMiles = 3958.8
	feetPerMile      = 5280
)

// DistanceFeet returns the great-circle distance between two coordinates in
// feet, via the haversine formula on a spherical earth.
func DistanceFeet(a, b model.Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMiles * c * feetPerMile
}
