package models

import "time"

// UserSession is the per-user record kept between chat turns. LastSnapshotID
// is a weak reference: the snapshot it names may already have expired.
type UserSession struct {
	UserID          string    `json:"user_id"`
	LastSnapshotID  string    `json:"last_snapshot_id,omitempty"`
	LastLocation    Location  `json:"last_location"`
	LastQuery       string    `json:"last_query"`
	LastDestination string    `json:"last_destination,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}
