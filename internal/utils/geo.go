package utils

import (
	"fmt"
	"strconv"
)

// DefaultMaxDistance is the proximity radius in meters when none is given.
const DefaultMaxDistance = 10000

type NearQuery struct {
	Latitude    float64
	Longitude   float64
	MaxDistance float64 // meters
}

// ParseNearQuery reads latitude, longitude and an optional maxDistance in meters.
func ParseNearQuery(lat, lng, maxDistance string) (NearQuery, error) {
	q := NearQuery{MaxDistance: DefaultMaxDistance}
	var err error
	if q.Latitude, err = strconv.ParseFloat(lat, 64); err != nil || q.Latitude < -90 || q.Latitude > 90 {
		return q, fmt.Errorf("latitude must be a number between -90 and 90")
	}
	if q.Longitude, err = strconv.ParseFloat(lng, 64); err != nil || q.Longitude < -180 || q.Longitude > 180 {
		return q, fmt.Errorf("longitude must be a number between -180 and 180")
	}
	if maxDistance != "" {
		d, err := strconv.ParseFloat(maxDistance, 64)
		if err != nil || d <= 0 {
			return q, fmt.Errorf("maxDistance must be a positive number of meters")
		}
		q.MaxDistance = d
	}
	return q, nil
}
