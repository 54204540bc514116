package store

import "math"

const earthRadiusKm = 6371.0

// haversineKm returns the great-circle distance between two points in km.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)
	a := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Pow(math.Sin(dLon/2), 2)
	return earthRadiusKm * 2 * math.Asin(math.Sqrt(a))
}

// within reports whether the store has coordinates inside the filter's radius.
func (f StoreFilter) within(lat, lon *float64) bool {
	if lat == nil || lon == nil {
		return false
	}
	return haversineKm(*f.Lat, *f.Lon, *lat, *lon) <= f.radius()
}
