package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/waypoint-ai/waypoint/pkg/geo"
)

func newGeoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "geo",
		Short: "Geometry helpers for debugging routes",
	}

	distanceCmd := &cobra.Command{
		Use:   "distance LAT1,LNG1 LAT2,LNG2",
		Short: "Great-circle distance between two points",
		Long:  "Great-circle distance between two points. Put -- before negative coordinates.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := parsePoint(args[0])
			if err != nil {
				return err
			}
			b, err := parsePoint(args[1])
			if err != nil {
				return err
			}
			d, err := geo.Haversine(a.Lat, a.Lng, b.Lat, b.Lng)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s m\n", humanize.CommafWithDigits(d, 1))
			return nil
		},
	}

	decodeCmd := &cobra.Command{
		Use:   "decode POLYLINE",
		Short: "Decode an encoded polyline into points",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pts, err := geo.DecodePolyline(args[0])
			if err != nil {
				return err
			}
			for _, p := range pts {
				fmt.Fprintf(cmd.OutOrStdout(), "%s,%s\n",
					strconv.FormatFloat(p.Lat, 'f', -1, 64), strconv.FormatFloat(p.Lng, 'f', -1, 64))
			}
			return nil
		},
	}

	encodeCmd := &cobra.Command{
		Use:   "encode LAT,LNG [LAT,LNG...]",
		Short: "Encode points into a polyline",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pts := make([]geo.Point, 0, len(args))
			for _, arg := range args {
				p, err := parsePoint(arg)
				if err != nil {
					return err
				}
				pts = append(pts, p)
			}
			fmt.Fprintln(cmd.OutOrStdout(), geo.EncodePolyline(pts))
			return nil
		},
	}

	var tolerance float64
	onRouteCmd := &cobra.Command{
		Use:   "on-route LAT,LNG POLYLINE",
		Short: "Report whether a point is within tolerance of a route",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePoint(args[0])
			if err != nil {
				return err
			}
			vertex, err := geo.OnRoute(p, args[1], tolerance)
			if err != nil {
				return err
			}
			segment, err := geo.NearRoute(p, args[1], tolerance)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "vertex: %t\nsegment: %t\n", vertex, segment)
			return nil
		},
	}
	onRouteCmd.Flags().Float64Var(&tolerance, "tolerance", geo.DefaultToleranceMeters, "tolerance in meters")

	cmd.AddCommand(distanceCmd, decodeCmd, encodeCmd, onRouteCmd)
	return cmd
}

// parsePoint parses "lat,lng" and validates the range.
func parsePoint(s string) (geo.Point, error) {
	latStr, lngStr, ok := strings.Cut(s, ",")
	if !ok {
		return geo.Point{}, fmt.Errorf("point %q: want LAT,LNG", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("point %q: latitude: %w", s, err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(lngStr), 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("point %q: longitude: %w", s, err)
	}
	p := geo.Point{Lat: lat, Lng: lng}
	if err := p.Validate(); err != nil {
		return geo.Point{}, fmt.Errorf("point %q: %w", s, err)
	}
	return p, nil
}
