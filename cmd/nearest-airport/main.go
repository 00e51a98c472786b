package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/unklstewy/plane-spotter/pkg/airports"
	"github.com/unklstewy/plane-spotter/pkg/coordinates"
	"github.com/unklstewy/plane-spotter/pkg/proximity"
)

type query struct {
	catalogPath string
	lat, lon    float64
	maxKm       float64
	code        string
	asJSON      bool
}

type result struct {
	Latitude      float64  `json:"latitude"`
	Longitude     float64  `json:"longitude"`
	MaxDistanceKm *float64 `json:"max_distance_km,omitempty"`
	Code          string   `json:"code,omitempty"`
	Name          string   `json:"name,omitempty"`
	DistanceKm    float64  `json:"distance_km"`
	DistanceNm    float64  `json:"distance_nm"`
	Bearing       string   `json:"bearing,omitempty"`
	Matched       bool     `json:"matched"`
}

// main answers a single proximity query against an airport catalog, which
// is handy for checking a catalog file or a threshold before deploying.
// With -code it measures against that airport instead of searching.
func main() {
	var q query
	flag.StringVar(&q.catalogPath, "catalog", "data/airports.csv", "Path to airport catalog CSV")
	flag.Float64Var(&q.lat, "lat", math.NaN(), "Latitude in decimal degrees")
	flag.Float64Var(&q.lon, "lon", math.NaN(), "Longitude in decimal degrees")
	flag.Float64Var(&q.maxKm, "max-km", 0, "Maximum distance in km (0 or Inf = unbounded)")
	flag.StringVar(&q.code, "code", "", "Measure the distance to this airport code")
	flag.BoolVar(&q.asJSON, "json", false, "Print the result as JSON")
	flag.Parse()

	os.Exit(run(os.Stdout, q))
}

func run(out io.Writer, q query) int {
	catalog, err := airports.LoadFile(q.catalogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	bounded := q.maxKm != 0 && !math.IsInf(q.maxKm, 1)
	threshold := q.maxKm
	if !bounded {
		threshold = math.Inf(1)
	}

	point := coordinates.New(q.lat, q.lon)
	var match *proximity.Match
	if q.code != "" {
		match, err = measure(catalog, q.code, point, threshold)
	} else {
		match, err = proximity.Nearest(catalog, proximity.Query{Point: point, MaxDistanceKm: threshold})
	}
	if err != nil {
		var invalid *proximity.InvalidQueryError
		if errors.As(err, &invalid) {
			fmt.Fprintf(os.Stderr, "Error: %v (use -lat, -lon and a positive -max-km)\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 2
	}

	res := result{Latitude: q.lat, Longitude: q.lon}
	if bounded {
		res.MaxDistanceKm = &q.maxKm
	}
	if match != nil {
		res.Matched = true
		res.Code = match.Airport.Code
		res.Name = match.Airport.Name
		res.DistanceKm = match.DistanceKm
		res.DistanceNm = coordinates.DistanceNauticalMiles(point, match.Airport.Location)
		res.Bearing = coordinates.CompassPoint(coordinates.Bearing(point, match.Airport.Location))
	}

	if q.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 2
		}
		return 0
	}

	fmt.Fprintln(out, render(res, catalog.Len(), q.code))
	return 0
}

// measure checks one airport against the threshold. The query is validated
// the same way as a search.
func measure(catalog *airports.Catalog, code string, point coordinates.Coordinate, threshold float64) (*proximity.Match, error) {
	a, ok := catalog.Lookup(code)
	if !ok {
		return nil, fmt.Errorf("airport %q is not in the catalog", code)
	}
	one, err := airports.NewCatalog([]airports.Airport{a})
	if err != nil {
		return nil, err
	}
	return proximity.Nearest(one, proximity.Query{Point: point, MaxDistanceKm: threshold})
}

func render(res result, catalogSize int, code string) string {
	muted := lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	if !res.Matched {
		msg := "No airport in catalog"
		switch {
		case code != "" && res.MaxDistanceKm != nil:
			msg = fmt.Sprintf("%s is not within %.1f km", code, *res.MaxDistanceKm)
		case res.MaxDistanceKm != nil:
			msg = fmt.Sprintf("No airport within %.1f km", *res.MaxDistanceKm)
		}
		return lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Render(msg) +
			muted.Render(fmt.Sprintf("  (%d airports searched)", catalogSize))
	}

	name := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")).Render(res.Code)
	return fmt.Sprintf("%s %s\n%s", name, res.Name,
		muted.Render(fmt.Sprintf("%.2f km (%.2f nm) %s of %.4f, %.4f",
			res.DistanceKm, res.DistanceNm, res.Bearing, res.Latitude, res.Longitude)))
}
