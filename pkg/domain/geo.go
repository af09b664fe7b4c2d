package domain

import (
	"encoding/json"
	"fmt"
	"math"
)

// EarthRadiusMeters is the mean Earth radius used for great-circle distances.
const EarthRadiusMeters = 6371000.0

// GeoPoint is a WGS 84 position in degrees. It marshals as [lon, lat].
type GeoPoint struct {
	Lon float64
	Lat float64
}

// NewGeoPoint creates a point from longitude and latitude.
func NewGeoPoint(lon, lat float64) GeoPoint {
	return GeoPoint{Lon: lon, Lat: lat}
}

// Validate reports whether the point lies within valid degree ranges.
func (p GeoPoint) Validate() error {
	if math.IsNaN(p.Lon) || math.IsNaN(p.Lat) {
		return fmt.Errorf("coordinate is not a number")
	}
	if p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("longitude out of range: %f", p.Lon)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("latitude out of range: %f", p.Lat)
	}
	return nil
}

// DistanceTo returns the haversine distance to q in meters.
func (p GeoPoint) DistanceTo(q GeoPoint) float64 {
	dLat := (q.Lat - p.Lat) * math.Pi / 180
	dLon := (q.Lon - p.Lon) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(p.Lat*math.Pi/180)*math.Cos(q.Lat*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// Interpolate returns the point at fraction t (0..1) of the way from p to q.
// Linear in degrees, which is accurate enough for road-segment lengths.
func (p GeoPoint) Interpolate(q GeoPoint, t float64) GeoPoint {
	return GeoPoint{
		Lon: p.Lon + (q.Lon-p.Lon)*t,
		Lat: p.Lat + (q.Lat-p.Lat)*t,
	}
}

// String renders the point as "lon,lat".
func (p GeoPoint) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lon, p.Lat)
}

// MarshalJSON encodes the point as a [lon, lat] pair.
func (p GeoPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.Lon, p.Lat})
}

// UnmarshalJSON decodes a [lon, lat] pair.
func (p *GeoPoint) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("geo point must be a [lon, lat] pair: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("geo point must have exactly 2 coordinates, got %d", len(pair))
	}
	p.Lon, p.Lat = pair[0], pair[1]
	return nil
}

// PathLength sums the great-circle distances between consecutive points.
func PathLength(points []GeoPoint) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += points[i-1].DistanceTo(points[i])
	}
	return total
}
