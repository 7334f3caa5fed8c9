package models

// ChatRequest is the body of POST /api/chat. Lat and Lng are pointers so a
// missing coordinate is distinguishable from 0.
type ChatRequest struct {
	UserID      string   `json:"user_id"`
	Lat         *float64 `json:"lat"`
	Lng         *float64 `json:"lng"`
	Query       string   `json:"query"`
	Destination string   `json:"destination,omitempty"`
}

// ChatResponse is returned from POST /api/chat.
type ChatResponse struct {
	SnapshotID string    `json:"snapshot_id"`
	Source     string    `json:"source"`
	Decision   string    `json:"decision"`
	Answer     string    `json:"answer"`
	Snapshot   *Snapshot `json:"snapshot"`
}

// RouteInfoResponse is returned from GET /api/route-info.
type RouteInfoResponse struct {
	Source string `json:"source"`
	*Snapshot
}
