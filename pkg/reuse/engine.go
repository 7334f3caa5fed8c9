// Package reuse decides, for each chat turn, whether the snapshot cached for a
// user can answer the query or whether fresh route and weather data must be
// fetched.
//
// A turn starts from the user's session. The session names the last snapshot
// served to the user; if that snapshot is still cached and the user is still
// close to its route, it is reused as a whole. Otherwise the upstream
// collaborators are asked for new data and a new snapshot replaces it.
package reuse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/waypoint-ai/waypoint/pkg/cache"
	"github.com/waypoint-ai/waypoint/pkg/clock"
	"github.com/waypoint-ai/waypoint/pkg/geo"
	"github.com/waypoint-ai/waypoint/pkg/models"
	"github.com/waypoint-ai/waypoint/pkg/session"
)

var (
	// ErrUpstream wraps failures of the maps, weather or geocoding collaborators.
	ErrUpstream = errors.New("upstream failure")
	// ErrNoDestination is returned when a refetch is needed but neither the
	// request nor the session names a destination.
	ErrNoDestination = errors.New("destination required")
)

// Outcome is the result of evaluating a turn.
type Outcome string

const (
	OutcomeReuse   Outcome = "reuse"
	OutcomeRefetch Outcome = "refetch"
)

// Reasons attached to a Decision.
const (
	ReasonNoSession          = "no_session"
	ReasonNoSnapshot         = "no_snapshot"
	ReasonSnapshotExpired    = "snapshot_expired"
	ReasonDestinationChanged = "destination_changed"
	ReasonOnRoute            = "on_route"
	ReasonInBounds           = "in_bounds"
	ReasonOffRoute           = "off_route"
)

// Match selects how the probe location is compared with the route.
type Match string

const (
	// MatchVertex compares against route vertices only.
	MatchVertex Match = "vertex"
	// MatchSegment compares against the segments between vertices.
	MatchSegment Match = "segment"
)

// Options tune the reuse decision.
type Options struct {
	ToleranceMeters float64
	// BoundingBox accepts locations inside the origin/destination box padded
	// by the tolerance when the snapshot has no usable primary route.
	BoundingBox bool
	Match       Match
	// Modes requested on refetch, in primary-route order.
	Modes []string
}

// DefaultOptions returns the default reuse policy.
func DefaultOptions() Options {
	return Options{
		ToleranceMeters: geo.DefaultToleranceMeters,
		BoundingBox:     true,
		Match:           MatchVertex,
		Modes:           models.DefaultModes,
	}
}

// MapsClient fetches directions for several travel modes at once. A mode that
// fails upstream is reported through RouteInfo.Error rather than an error.
type MapsClient interface {
	FetchDirections(ctx context.Context, originLat, originLng float64, destination string, modes []string) (map[string]models.RouteInfo, error)
}

// WeatherClient fetches current weather at a point.
type WeatherClient interface {
	FetchWeather(ctx context.Context, lat, lng float64) (models.WeatherInfo, error)
}

// Geocoder resolves a destination name to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (models.Location, error)
}

// Upstream groups the collaborators used on refetch.
type Upstream struct {
	Maps     MapsClient
	Weather  WeatherClient
	Geocoder Geocoder
}

// Decision is the outcome of Evaluate.
type Decision struct {
	Outcome Outcome
	Reason  string
	// Session is the user's session, nil when there is none.
	Session *models.UserSession
	// Snapshot is set when the outcome is OutcomeReuse.
	Snapshot *models.Snapshot
}

// Engine evaluates and executes chat turns.
type Engine struct {
	store    *cache.Store
	sessions *session.Manager
	upstream Upstream
	opts     Options
	clock    clock.Clock

	refetches singleflight.Group
	seq       atomic.Uint64
}

// New creates an Engine. A nil clock means the wall clock.
func New(store *cache.Store, sessions *session.Manager, up Upstream, opts Options, c clock.Clock) *Engine {
	if c == nil {
		c = clock.Real{}
	}
	if opts.ToleranceMeters <= 0 {
		opts.ToleranceMeters = geo.DefaultToleranceMeters
	}
	if opts.Match == "" {
		opts.Match = MatchVertex
	}
	if len(opts.Modes) == 0 {
		opts.Modes = models.DefaultModes
	}
	return &Engine{store: store, sessions: sessions, upstream: up, opts: opts, clock: c}
}

// Evaluate decides whether the user's cached snapshot can be reused at loc.
// A non-empty destination that differs from the snapshot's forces a refetch.
// The only error is geo.ErrInvalidCoordinate for an out-of-range loc.
func (e *Engine) Evaluate(ctx context.Context, userID string, loc models.Location, destination string) (Decision, error) {
	probe := geo.Point{Lat: loc.Lat, Lng: loc.Lng}
	if err := probe.Validate(); err != nil {
		return Decision{}, err
	}

	sess, ok := e.sessions.Lookup(ctx, userID)
	if !ok {
		return Decision{Outcome: OutcomeRefetch, Reason: ReasonNoSession}, nil
	}
	d := Decision{Outcome: OutcomeRefetch, Session: &sess}
	if sess.LastSnapshotID == "" {
		d.Reason = ReasonNoSnapshot
		return d, nil
	}

	snap, ok := e.Snapshot(ctx, sess.LastSnapshotID)
	if !ok {
		d.Reason = ReasonSnapshotExpired
		return d, nil
	}
	if destination != "" && !sameDestination(destination, snap.Destination.Name) {
		d.Reason = ReasonDestinationChanged
		return d, nil
	}

	d.Reason = e.match(snap, probe)
	if d.Reason != ReasonOffRoute {
		d.Outcome = OutcomeReuse
		d.Snapshot = snap
	}
	return d, nil
}

// match returns ReasonOnRoute, ReasonInBounds or ReasonOffRoute. The
// bounding box is consulted only when the snapshot has no usable primary
// route; a decodable route is always authoritative.
func (e *Engine) match(snap *models.Snapshot, probe geo.Point) string {
	if mode, route, ok := snap.PrimaryRoute(); ok {
		onRoute := geo.OnRoute
		if e.opts.Match == MatchSegment {
			onRoute = geo.NearRoute
		}
		on, err := onRoute(probe, route.Polyline, e.opts.ToleranceMeters)
		switch {
		case err != nil:
			slog.Warn("cached route polyline unusable", "snapshot_id", snap.ID, "mode", mode, "error", err)
		case on:
			return ReasonOnRoute
		default:
			return ReasonOffRoute
		}
	}

	if e.opts.BoundingBox {
		bb := geo.BoundsOf(
			geo.Point{Lat: snap.Origin.Lat, Lng: snap.Origin.Lng},
			geo.Point{Lat: snap.Destination.Lat, Lng: snap.Destination.Lng},
		).Pad(e.opts.ToleranceMeters)
		if geo.InBoundingBox(probe, bb) {
			return ReasonInBounds
		}
	}
	return ReasonOffRoute
}

// TurnRequest is one chat turn.
type TurnRequest struct {
	UserID      string
	Location    models.Location
	Query       string
	Destination string
}

// TurnResult is the snapshot that answers a turn and how it was obtained.
type TurnResult struct {
	Decision Decision
	Snapshot *models.Snapshot
	Session  models.UserSession
}

// Source reports "cache" for a reused snapshot and "api" for a fresh one.
func (r TurnResult) Source() string {
	if r.Decision.Outcome == OutcomeReuse {
		return "cache"
	}
	return "api"
}

// Turn evaluates a chat turn, refetches when needed, and records the turn in
// the user's session. When the refetch fails nothing is cached and the
// session keeps its previous snapshot id, but the location and query are
// still recorded.
func (e *Engine) Turn(ctx context.Context, req TurnRequest) (TurnResult, error) {
	d, err := e.Evaluate(ctx, req.UserID, req.Location, req.Destination)
	if err != nil {
		return TurnResult{}, err
	}

	next := models.UserSession{
		LastLocation:    req.Location,
		LastQuery:       req.Query,
		LastDestination: strings.TrimSpace(req.Destination),
	}
	if d.Session != nil {
		next.LastSnapshotID = d.Session.LastSnapshotID
		if next.LastDestination == "" {
			next.LastDestination = d.Session.LastDestination
		}
	}

	if d.Outcome == OutcomeReuse {
		next.LastSnapshotID = d.Snapshot.ID
		next.LastDestination = d.Snapshot.Destination.Name
		sess := e.recordTurn(ctx, req.UserID, next)
		slog.Debug("reusing snapshot", "user_id", req.UserID, "snapshot_id", d.Snapshot.ID, "reason", d.Reason)
		return TurnResult{Decision: d, Snapshot: d.Snapshot, Session: sess}, nil
	}

	if next.LastDestination == "" {
		e.recordTurn(ctx, req.UserID, next)
		return TurnResult{Decision: d}, ErrNoDestination
	}

	slog.Debug("refetching snapshot", "user_id", req.UserID, "reason", d.Reason)
	snap, err := e.refetchFor(ctx, req.UserID, req.Location, next.LastDestination)
	if err != nil {
		e.recordTurn(ctx, req.UserID, next)
		return TurnResult{Decision: d}, err
	}

	next.LastSnapshotID = snap.ID
	next.LastDestination = snap.Destination.Name
	sess := e.recordTurn(ctx, req.UserID, next)
	return TurnResult{Decision: d, Snapshot: snap, Session: sess}, nil
}

// recordTurn writes the session. A failed write does not fail the turn: the
// snapshot is still a valid answer, and the next turn simply refetches.
func (e *Engine) recordTurn(ctx context.Context, userID string, s models.UserSession) models.UserSession {
	stored, err := e.sessions.Update(ctx, userID, s)
	if err != nil {
		slog.Warn("session update failed", "user_id", userID, "error", err)
		return s
	}
	return stored
}

// refetchFor coalesces concurrent refetches by the same user for the same
// destination into one upstream round trip. The shared call is detached from
// any single caller's cancellation; each caller still stops waiting when its
// own ctx is done.
func (e *Engine) refetchFor(ctx context.Context, userID string, origin models.Location, destination string) (*models.Snapshot, error) {
	key := userID + "\x00" + normalizeDestination(destination)
	ch := e.refetches.DoChan(key, func() (any, error) {
		return e.Refetch(context.WithoutCancel(ctx), origin, destination)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			slog.Debug("joined in-flight refetch", "user_id", userID)
		}
		return res.Val.(*models.Snapshot), nil
	}
}

// Snapshot returns the cached snapshot with the given id.
func (e *Engine) Snapshot(ctx context.Context, id string) (*models.Snapshot, bool) {
	var snap models.Snapshot
	if !e.store.Get(ctx, cache.NamespaceSnapshot, id, &snap) {
		return nil, false
	}
	return &snap, true
}

func sameDestination(a, b string) bool {
	return normalizeDestination(a) == normalizeDestination(b)
}

func normalizeDestination(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func upstreamError(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUpstream, what, err)
}
