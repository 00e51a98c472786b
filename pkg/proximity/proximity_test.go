package proximity

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/unklstewy/plane-spotter/pkg/airports"
	"github.com/unklstewy/plane-spotter/pkg/coordinates"
)

func mustCatalog(t *testing.T, records ...airports.Airport) *airports.Catalog {
	t.Helper()
	c, err := airports.NewCatalog(records)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	return c
}

func airport(code string, lat, lon float64) airports.Airport {
	return airports.Airport{Code: code, Name: code + " Airport", Location: coordinates.New(lat, lon)}
}

// randomCatalog builds a catalog of n airports spread over the globe.
func randomCatalog(t *testing.T, rng *rand.Rand, n int) *airports.Catalog {
	t.Helper()
	records := make([]airports.Airport, n)
	for i := range records {
		records[i] = airport(fmt.Sprintf("A%03d", i), rng.Float64()*180-90, rng.Float64()*360-180)
	}
	return mustCatalog(t, records...)
}

// TestNearestScenarios tests the reference end-to-end lookups.
func TestNearestScenarios(t *testing.T) {
	jfk := mustCatalog(t, airport("JFK", 40.6413, -73.7781))

	t.Run("Aircraft on the JFK apron", func(t *testing.T) {
		m, err := Nearest(jfk, Query{Point: coordinates.New(40.6446, -73.7822), MaxDistanceKm: 1.0})
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if m == nil {
			t.Fatal("Expected a match, got none")
		}
		if m.Airport.Code != "JFK" {
			t.Errorf("Expected JFK, got %s", m.Airport.Code)
		}
		if m.DistanceKm < 0.3 || m.DistanceKm > 0.6 {
			t.Errorf("Expected distance ~0.5 km, got %.4f", m.DistanceKm)
		}
	})

	t.Run("Aircraft at Heathrow", func(t *testing.T) {
		m, err := Nearest(jfk, Query{Point: coordinates.New(51.4700, -0.4543), MaxDistanceKm: 1.0})
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if m != nil {
			t.Errorf("Expected no match, got %s at %.1f km", m.Airport.Code, m.DistanceKm)
		}
	})

	t.Run("Zero threshold is invalid", func(t *testing.T) {
		m, err := Nearest(jfk, Query{Point: coordinates.New(40.6446, -73.7822), MaxDistanceKm: 0})
		var iqe *InvalidQueryError
		if !errors.As(err, &iqe) {
			t.Fatalf("Expected InvalidQueryError, got %v", err)
		}
		if iqe.Field != "max_distance_km" {
			t.Errorf("Expected field max_distance_km, got %s", iqe.Field)
		}
		if m != nil {
			t.Error("Expected nil match alongside error")
		}
	})

	t.Run("Empty catalog", func(t *testing.T) {
		empty := mustCatalog(t)
		m, err := Nearest(empty, Query{Point: coordinates.New(10, 10), MaxDistanceKm: 100})
		if err != nil {
			t.Fatalf("Expected no error for empty catalog, got: %v", err)
		}
		if m != nil {
			t.Error("Expected no match for empty catalog")
		}

		m, err = Nearest(nil, Query{Point: coordinates.New(10, 10), MaxDistanceKm: math.Inf(1)})
		if err != nil || m != nil {
			t.Errorf("Expected (nil, nil) for nil catalog, got (%v, %v)", m, err)
		}
	})
}

// TestNearestInvalidQuery tests validation of the query.
func TestNearestInvalidQuery(t *testing.T) {
	c := mustCatalog(t, airport("JFK", 40.6413, -73.7781))

	tests := []struct {
		name      string
		query     Query
		wantField string
	}{
		{"Negative threshold", Query{coordinates.New(0, 0), -1}, "max_distance_km"},
		{"NaN threshold", Query{coordinates.New(0, 0), math.NaN()}, "max_distance_km"},
		{"Negative infinity threshold", Query{coordinates.New(0, 0), math.Inf(-1)}, "max_distance_km"},
		{"Latitude too high", Query{coordinates.New(90.5, 0), 10}, "point"},
		{"Longitude too low", Query{coordinates.New(0, -180.5), 10}, "point"},
		{"NaN latitude", Query{coordinates.New(math.NaN(), 0), 10}, "point"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Nearest(c, tt.query)
			var iqe *InvalidQueryError
			if !errors.As(err, &iqe) {
				t.Fatalf("Expected InvalidQueryError, got %v", err)
			}
			if iqe.Field != tt.wantField {
				t.Errorf("Expected field %s, got %s", tt.wantField, iqe.Field)
			}
		})
	}

	t.Run("Invalid point checked even with empty catalog", func(t *testing.T) {
		_, err := Nearest(mustCatalog(t), Query{coordinates.New(100, 0), 10})
		var iqe *InvalidQueryError
		if !errors.As(err, &iqe) {
			t.Errorf("Expected InvalidQueryError, got %v", err)
		}
	})
}

// TestNearestThresholdBoundary tests that the threshold is inclusive.
func TestNearestThresholdBoundary(t *testing.T) {
	c := mustCatalog(t, airport("EQ", 0, 1))
	point := coordinates.New(0, 0)
	eq, _ := c.Lookup("EQ")
	exact := coordinates.DistanceKm(point, eq.Location)

	m, err := Nearest(c, Query{Point: point, MaxDistanceKm: exact})
	if err != nil {
		t.Fatal(err)
	}
	if m == nil {
		t.Fatal("Expected airport at exactly the threshold to qualify")
	}
	if m.DistanceKm != exact {
		t.Errorf("Expected distance %v, got %v", exact, m.DistanceKm)
	}

	m, err = Nearest(c, Query{Point: point, MaxDistanceKm: math.Nextafter(exact, 0)})
	if err != nil {
		t.Fatal(err)
	}
	if m != nil {
		t.Errorf("Expected no match just inside the distance, got %s", m.Airport.Code)
	}

	m, err = Nearest(c, Query{Point: point, MaxDistanceKm: exact - 1e-6})
	if err != nil {
		t.Fatal(err)
	}
	if m != nil {
		t.Error("Expected no match when airport is beyond threshold by epsilon")
	}
}

// TestNearestReturnsNoMatchWhenClosestTooFar tests that a farther record is
// never returned just because the closest one is out of range.
func TestNearestReturnsNoMatchWhenClosestTooFar(t *testing.T) {
	c := mustCatalog(t,
		airport("NEAR", 0, 0.5),
		airport("FAR", 0, 5),
	)
	m, err := Nearest(c, Query{Point: coordinates.New(0, 0), MaxDistanceKm: 10})
	if err != nil {
		t.Fatal(err)
	}
	if m != nil {
		t.Errorf("Expected no match, got %s at %.2f km", m.Airport.Code, m.DistanceKm)
	}
}

// TestNearestAntimeridian tests longitude wraparound.
func TestNearestAntimeridian(t *testing.T) {
	c := mustCatalog(t,
		airport("WEST", 0, -179.9),
		airport("MID", 0, 0),
	)

	m, err := Nearest(c, Query{Point: coordinates.New(0, 179.9), MaxDistanceKm: 50})
	if err != nil {
		t.Fatal(err)
	}
	if m == nil {
		t.Fatal("Expected a match across the antimeridian")
	}
	if m.Airport.Code != "WEST" {
		t.Errorf("Expected WEST, got %s", m.Airport.Code)
	}
	if m.DistanceKm < 20 || m.DistanceKm > 25 {
		t.Errorf("Expected ~22 km, got %.2f", m.DistanceKm)
	}
}

// TestNearestHighLatitude tests that planar degree distance is not used.
func TestNearestHighLatitude(t *testing.T) {
	// At 80N a degree of longitude is ~19 km while a degree of latitude is
	// ~111 km. Planar distance on raw degrees would pick LAT.
	c := mustCatalog(t,
		airport("LAT", 80.9, 0),
		airport("LON", 80, 2),
	)

	m, err := Nearest(c, Query{Point: coordinates.New(80, 0), MaxDistanceKm: math.Inf(1)})
	if err != nil {
		t.Fatal(err)
	}
	if m == nil || m.Airport.Code != "LON" {
		t.Errorf("Expected LON to be nearest, got %+v", m)
	}
}

// TestNearestTieBreak tests that the earliest record wins equidistant ties.
func TestNearestTieBreak(t *testing.T) {
	point := coordinates.New(0, 0)

	t.Run("Exact tie", func(t *testing.T) {
		c := mustCatalog(t,
			airport("EAST", 0, 1),
			airport("WEST", 0, -1),
			airport("NORTH", 1, 0),
		)
		for i := 0; i < 10; i++ {
			m, err := Nearest(c, Query{Point: point, MaxDistanceKm: math.Inf(1)})
			if err != nil {
				t.Fatal(err)
			}
			if m.Airport.Code != "EAST" {
				t.Fatalf("Expected EAST (first in catalog), got %s", m.Airport.Code)
			}
		}
	})

	t.Run("Order reversed", func(t *testing.T) {
		c := mustCatalog(t,
			airport("WEST", 0, -1),
			airport("EAST", 0, 1),
		)
		m, err := Nearest(c, Query{Point: point, MaxDistanceKm: math.Inf(1)})
		if err != nil {
			t.Fatal(err)
		}
		if m.Airport.Code != "WEST" {
			t.Errorf("Expected WEST (first in catalog), got %s", m.Airport.Code)
		}
	})

	t.Run("Clearly closer later record wins", func(t *testing.T) {
		c := mustCatalog(t,
			airport("FIRST", 0, 1),
			airport("CLOSER", 0, 0.999),
		)
		m, err := Nearest(c, Query{Point: point, MaxDistanceKm: math.Inf(1)})
		if err != nil {
			t.Fatal(err)
		}
		if m.Airport.Code != "CLOSER" {
			t.Errorf("Expected CLOSER, got %s", m.Airport.Code)
		}
	})
}

// TestNearestProperties checks unbounded-threshold, minimality and
// determinism over random catalogs and points.
func TestNearestProperties(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	for trial := 0; trial < 50; trial++ {
		c := randomCatalog(t, rng, 1+rng.IntN(200))
		point := coordinates.New(rng.Float64()*180-90, rng.Float64()*360-180)

		q := Query{Point: point, MaxDistanceKm: math.Inf(1)}
		m, err := Nearest(c, q)
		if err != nil {
			t.Fatalf("trial %d: unexpected error: %v", trial, err)
		}
		if m == nil {
			t.Fatalf("trial %d: unbounded query over %d airports returned no match", trial, c.Len())
		}

		for a := range c.All() {
			if d := coordinates.DistanceKm(point, a.Location); d < m.DistanceKm-TieEpsilonKm {
				t.Fatalf("trial %d: %s at %.6f km is closer than result %s at %.6f km",
					trial, a.Code, d, m.Airport.Code, m.DistanceKm)
			}
		}

		again, err := Nearest(c, q)
		if err != nil {
			t.Fatal(err)
		}
		if *again != *m {
			t.Fatalf("trial %d: repeated query returned %+v, first returned %+v", trial, *again, *m)
		}

		bounded, err := Nearest(c, Query{Point: point, MaxDistanceKm: m.DistanceKm})
		if err != nil {
			t.Fatal(err)
		}
		if bounded == nil || *bounded != *m {
			t.Fatalf("trial %d: threshold equal to nearest distance should return the same match", trial)
		}
	}
}

// TestCatalogResolver tests the Resolver wrapper.
func TestCatalogResolver(t *testing.T) {
	c := mustCatalog(t, airport("JFK", 40.6413, -73.7781))
	var r Resolver = NewResolver(c)

	m, err := r.Nearest(Query{Point: coordinates.New(40.6446, -73.7822), MaxDistanceKm: 1})
	if err != nil {
		t.Fatal(err)
	}
	if m == nil || m.Airport.Code != "JFK" {
		t.Errorf("Expected JFK, got %+v", m)
	}
}
