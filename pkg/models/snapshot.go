package models

import "time"

// Travel modes requested from the maps provider.
const (
	ModeDriving   = "driving"
	ModeWalking   = "walking"
	ModeBicycling = "bicycling"
)

// DefaultModes is the order in which modes are fetched and in which the
// primary route is chosen.
var DefaultModes = []string{ModeDriving, ModeWalking, ModeBicycling}

// Snapshot bundles route and weather data fetched for one origin and
// destination at one point in time. Snapshots are never modified after they
// are cached.
type Snapshot struct {
	ID          string               `json:"snapshot_id"`
	Origin      Location             `json:"origin"`
	Destination Destination          `json:"destination"`
	FetchedAt   time.Time            `json:"fetched_at"`
	Routes      map[string]RouteInfo `json:"routes"`
	Weather     WeatherInfo          `json:"weather"`
}

// PrimaryRoute returns the first mode in DefaultModes order that has a usable
// polyline.
func (s *Snapshot) PrimaryRoute() (string, RouteInfo, bool) {
	for _, mode := range DefaultModes {
		r, ok := s.Routes[mode]
		if ok && r.OK() && r.Polyline != "" {
			return mode, r, true
		}
	}
	return "", RouteInfo{}, false
}

// RouteInfo describes the main route for a single travel mode.
type RouteInfo struct {
	DistanceKm float64     `json:"distance_km"`
	EtaMin     int         `json:"eta_min"`
	Summary    string      `json:"route_summary"`
	Polyline   string      `json:"polyline"`
	Traffic    bool        `json:"traffic,omitempty"`
	Alternates []Alternate `json:"alternates"`
	// Error holds the upstream reason code when this mode could not be fetched.
	Error string `json:"error,omitempty"`
}

// OK reports whether the mode was fetched successfully.
func (r RouteInfo) OK() bool { return r.Error == "" }

// Alternate is a secondary route offered for the same mode.
type Alternate struct {
	Summary    string  `json:"summary"`
	DistanceKm float64 `json:"distance_km"`
	EtaMin     int     `json:"eta_min"`
}

// WeatherInfo is the current weather at a point.
type WeatherInfo struct {
	Description  string  `json:"status"`
	TemperatureC float64 `json:"temperature_c"`
}

// WeatherPoint is weather cached for a quantized coordinate.
type WeatherPoint struct {
	Lat          float64   `json:"lat"`
	Lng          float64   `json:"lng"`
	Description  string    `json:"description"`
	TemperatureC float64   `json:"temperature_c"`
	ObservedAt   time.Time `json:"observed_at"`
}

// Info converts the point into the WeatherInfo embedded in snapshots.
func (w WeatherPoint) Info() WeatherInfo {
	return WeatherInfo{Description: w.Description, TemperatureC: w.TemperatureC}
}

// RouteSegment is one piece of a cached route, stored for finer-grained reuse.
type RouteSegment struct {
	RouteID      string    `json:"route_id"`
	SegmentIndex int       `json:"segment_index"`
	Mode         string    `json:"mode"`
	Payload      RouteInfo `json:"payload"`
}
