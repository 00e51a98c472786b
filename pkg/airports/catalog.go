// Package airports loads the static reference table of known airports.
//
// A Catalog is built once from a CSV reference file and is read-only
// afterwards, so it can be shared between goroutines without locking.
// Columns are located by header name; both the project's own
// code,name,latitude,longitude layout and the public OurAirports
// airports.csv dump are accepted.
package airports

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strconv"
	"strings"

	"github.com/unklstewy/plane-spotter/pkg/coordinates"
)

// Airport is a single catalog record.
type Airport struct {
	// Code is the short identifier (e.g., "JFK" or "KJFK"), unique within a catalog
	Code string `json:"code"`

	// Name is the display name
	Name string `json:"name"`

	// Location is the airport reference point
	Location coordinates.Coordinate `json:"location"`
}

// Catalog is an ordered, immutable collection of airports.
type Catalog struct {
	airports []Airport
	byCode   map[string]int
}

// CatalogLoadError is returned when the reference data cannot be read or
// contains a malformed record. Line is 0 when the error is not tied to a
// specific row.
type CatalogLoadError struct {
	Path string
	Line int
	Err  error
}

func (e *CatalogLoadError) Error() string {
	src := e.Path
	if src == "" {
		src = "airport catalog"
	}
	if e.Line > 0 {
		return fmt.Sprintf("load %s: line %d: %v", src, e.Line, e.Err)
	}
	return fmt.Sprintf("load %s: %v", src, e.Err)
}

func (e *CatalogLoadError) Unwrap() error {
	return e.Err
}

// ErrDuplicateCode is wrapped by CatalogLoadError when two rows share a code.
var ErrDuplicateCode = errors.New("duplicate airport code")

// Header aliases, in order of preference.
var (
	codeColumns      = []string{"code", "ident", "icao", "icao_code", "gps_code", "iata_code"}
	nameColumns      = []string{"name"}
	latitudeColumns  = []string{"latitude", "latitude_deg", "lat"}
	longitudeColumns = []string{"longitude", "longitude_deg", "lon", "lng"}
)

// NewCatalog builds a catalog from in-memory records, applying the same
// validation as Load. The slice is copied.
func NewCatalog(records []Airport) (*Catalog, error) {
	c := &Catalog{
		airports: make([]Airport, 0, len(records)),
		byCode:   make(map[string]int, len(records)),
	}
	for i, a := range records {
		if err := c.add(a); err != nil {
			return nil, &CatalogLoadError{Line: i + 1, Err: err}
		}
	}
	return c, nil
}

// LoadFile reads a catalog from a CSV file on disk.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &CatalogLoadError{Path: path, Err: err}
	}
	defer f.Close()

	c, err := Load(f)
	if err != nil {
		var cle *CatalogLoadError
		if errors.As(err, &cle) {
			cle.Path = path
			return nil, cle
		}
		return nil, &CatalogLoadError{Path: path, Err: err}
	}
	return c, nil
}

// Load reads a catalog from CSV. The first non-comment row must be a header.
// Any malformed row fails the whole load.
func Load(r io.Reader) (*Catalog, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &CatalogLoadError{Err: errors.New("missing header row")}
	}
	if err != nil {
		return nil, &CatalogLoadError{Line: csvLine(err), Err: err}
	}

	cols, err := resolveColumns(header)
	if err != nil {
		return nil, &CatalogLoadError{Line: 1, Err: err}
	}

	c := &Catalog{byCode: make(map[string]int)}
	lines := make(map[string]int)

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &CatalogLoadError{Line: csvLine(err), Err: err}
		}
		line, _ := reader.FieldPos(0)

		a, err := cols.parse(record)
		if err != nil {
			return nil, &CatalogLoadError{Line: line, Err: err}
		}
		if first, ok := lines[a.Code]; ok {
			return nil, &CatalogLoadError{
				Line: line,
				Err:  fmt.Errorf("%w %q (first defined on line %d)", ErrDuplicateCode, a.Code, first),
			}
		}
		if err := c.add(a); err != nil {
			return nil, &CatalogLoadError{Line: line, Err: err}
		}
		lines[a.Code] = line
	}

	return c, nil
}

// add validates and appends a record. Code and name are stored trimmed,
// the form Load produces.
func (c *Catalog) add(a Airport) error {
	a.Code = strings.TrimSpace(a.Code)
	a.Name = strings.TrimSpace(a.Name)
	if a.Code == "" {
		return errors.New("airport code is empty")
	}
	if strings.HasPrefix(a.Code, "#") {
		return fmt.Errorf("airport code %q starts with the comment character", a.Code)
	}
	if err := a.Location.Validate(); err != nil {
		return fmt.Errorf("airport %q: %w", a.Code, err)
	}
	if _, ok := c.byCode[a.Code]; ok {
		return fmt.Errorf("%w %q", ErrDuplicateCode, a.Code)
	}
	c.byCode[a.Code] = len(c.airports)
	c.airports = append(c.airports, a)
	return nil
}

// Len returns the number of airports in the catalog.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.airports)
}

// All iterates the airports in load order. The order is stable across calls.
func (c *Catalog) All() iter.Seq[Airport] {
	return func(yield func(Airport) bool) {
		if c == nil {
			return
		}
		for _, a := range c.airports {
			if !yield(a) {
				return
			}
		}
	}
}

// Lookup returns the airport with the given code.
func (c *Catalog) Lookup(code string) (Airport, bool) {
	if c == nil {
		return Airport{}, false
	}
	i, ok := c.byCode[strings.TrimSpace(code)]
	if !ok {
		return Airport{}, false
	}
	return c.airports[i], true
}

// WriteCSV writes the catalog as code,name,latitude,longitude. Floats are
// formatted with the shortest representation that parses back to the same
// value, so Load(WriteCSV(c)) reproduces c exactly.
func (c *Catalog) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"code", "name", "latitude", "longitude"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for a := range c.All() {
		row := []string{
			a.Code,
			a.Name,
			strconv.FormatFloat(a.Location.Latitude, 'f', -1, 64),
			strconv.FormatFloat(a.Location.Longitude, 'f', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write %s: %w", a.Code, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// columns maps the required fields to header positions. name is -1 when
// the file has no name column.
type columns struct {
	code, name, lat, lon int
}

func resolveColumns(header []string) (columns, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}

	find := func(aliases []string) int {
		for _, a := range aliases {
			if i, ok := index[a]; ok {
				return i
			}
		}
		return -1
	}

	cols := columns{
		code: find(codeColumns),
		name: find(nameColumns),
		lat:  find(latitudeColumns),
		lon:  find(longitudeColumns),
	}

	var missing []string
	if cols.code < 0 {
		missing = append(missing, "code")
	}
	if cols.lat < 0 {
		missing = append(missing, "latitude")
	}
	if cols.lon < 0 {
		missing = append(missing, "longitude")
	}
	if len(missing) > 0 {
		return cols, fmt.Errorf("header is missing required column(s): %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

func (cols columns) parse(record []string) (Airport, error) {
	code := strings.TrimSpace(record[cols.code])
	if code == "" {
		return Airport{}, errors.New("airport code is empty")
	}

	lat, err := parseDegrees(record[cols.lat])
	if err != nil {
		return Airport{}, fmt.Errorf("airport %q: latitude: %w", code, err)
	}
	lon, err := parseDegrees(record[cols.lon])
	if err != nil {
		return Airport{}, fmt.Errorf("airport %q: longitude: %w", code, err)
	}

	a := Airport{
		Code:     code,
		Location: coordinates.New(lat, lon),
	}
	if cols.name >= 0 {
		a.Name = strings.TrimSpace(record[cols.name])
	}
	return a, nil
}

func parseDegrees(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("missing value")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	return v, nil
}

// csvLine extracts the line number from a csv.ParseError.
func csvLine(err error) int {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return pe.Line
	}
	return 0
}
