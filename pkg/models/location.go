package models

// Location is a WGS84 coordinate pair in decimal degrees.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Destination is a named place the user is travelling to.
type Destination struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

// Location returns the destination's coordinates.
func (d Destination) Location() Location {
	return Location{Lat: d.Lat, Lng: d.Lng}
}
