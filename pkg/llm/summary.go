package llm

import (
	"context"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/waypoint-ai/waypoint/pkg/models"
)

// Summary answers every query with a plain-text digest of the snapshot. It
// needs no network and never fails, so it serves as the offline responder.
type Summary struct{}

// GenerateResponse implements Responder.
func (Summary) GenerateResponse(_ context.Context, snap *models.Snapshot, _ string) (string, error) {
	if snap == nil {
		return "I don't have live info for this trip.", nil
	}

	var b strings.Builder
	dest := snap.Destination.Name
	if dest == "" {
		dest = "your destination"
	}
	for _, mode := range models.DefaultModes {
		r, ok := snap.Routes[mode]
		if !ok {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		title := strings.ToUpper(mode[:1]) + mode[1:]
		if !r.OK() {
			b.WriteString(title + ": I don't have live info for this mode.")
			continue
		}
		b.WriteString(title + " to " + dest + ": " + humanize.FtoaWithDigits(r.DistanceKm, 1) + " km, about " +
			humanize.Comma(int64(r.EtaMin)) + " min")
		if r.Summary != "" {
			b.WriteString(" via " + r.Summary)
		}
		if r.Traffic {
			b.WriteString(" (with current traffic)")
		}
		b.WriteString(".")
		if n := len(r.Alternates); n > 0 {
			b.WriteString(" " + humanize.Comma(int64(n)) + " alternate " + plural(n, "route", "routes") + " available.")
		}
	}
	if b.Len() == 0 {
		b.WriteString("I don't have live route info for " + dest + ".")
	}
	if snap.Weather.Description != "" {
		b.WriteString(" Weather at " + dest + ": " + snap.Weather.Description + ", " +
			humanize.FtoaWithDigits(snap.Weather.TemperatureC, 1) + "°C.")
	}
	return b.String(), nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
