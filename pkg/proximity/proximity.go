// Package proximity answers "what is the nearest known airport to point P,
// if any lies within D kilometers?".
//
// Distances are great-circle (haversine) distances on a sphere of radius
// coordinates.EarthRadiusKm. A lookup is a pure function of the catalog and
// the query; "no match" is returned as a nil *Match with a nil error and is
// never reported as a failure.
package proximity

import (
	"fmt"
	"math"

	"github.com/unklstewy/plane-spotter/pkg/airports"
	"github.com/unklstewy/plane-spotter/pkg/coordinates"
)

// TieEpsilonKm is the distance within which two airports are considered
// equidistant. The airport that comes first in catalog order wins a tie.
const TieEpsilonKm = 1e-9

// Query asks for the nearest airport to Point within MaxDistanceKm.
// MaxDistanceKm may be +Inf for an unbounded search.
type Query struct {
	Point         coordinates.Coordinate
	MaxDistanceKm float64
}

// Match is the nearest qualifying airport and its distance from the query point.
type Match struct {
	Airport    airports.Airport
	DistanceKm float64
}

// InvalidQueryError reports a query that violates the caller contract.
// It is never retried; it always indicates a bug or bad input upstream.
type InvalidQueryError struct {
	Field  string
	Reason string
}

func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("invalid proximity query: %s: %s", e.Field, e.Reason)
}

// Resolver finds the nearest airport for a query.
type Resolver interface {
	Nearest(q Query) (*Match, error)
}

// Validate checks the query before any distance is computed.
func (q Query) Validate() error {
	if err := q.Point.Validate(); err != nil {
		return &InvalidQueryError{Field: "point", Reason: err.Error()}
	}
	if math.IsNaN(q.MaxDistanceKm) || q.MaxDistanceKm <= 0 {
		return &InvalidQueryError{
			Field:  "max_distance_km",
			Reason: fmt.Sprintf("must be positive, got %v", q.MaxDistanceKm),
		}
	}
	return nil
}

// Nearest scans the catalog and returns the closest airport within
// q.MaxDistanceKm. The boundary is inclusive. If the closest airport is
// farther than the threshold the result is nil; the caller never receives a
// record it would need to filter again. An empty or nil catalog yields nil.
func Nearest(c *airports.Catalog, q Query) (*Match, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var best *Match
	for a := range c.All() {
		d := coordinates.DistanceKm(q.Point, a.Location)
		// Strictly closer by more than the epsilon; earlier records win ties
		if best == nil || d < best.DistanceKm-TieEpsilonKm {
			best = &Match{Airport: a, DistanceKm: d}
		}
	}

	if best == nil || best.DistanceKm > q.MaxDistanceKm {
		return nil, nil
	}
	return best, nil
}

// CatalogResolver is a Resolver over a fixed catalog. It holds no mutable
// state and is safe for concurrent use.
type CatalogResolver struct {
	catalog *airports.Catalog
}

// NewResolver returns a Resolver that scans c on every call.
func NewResolver(c *airports.Catalog) *CatalogResolver {
	return &CatalogResolver{catalog: c}
}

// Nearest implements Resolver.
func (r *CatalogResolver) Nearest(q Query) (*Match, error) {
	return Nearest(r.catalog, q)
}

