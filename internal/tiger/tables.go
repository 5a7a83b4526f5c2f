// Package tiger downloads Census TIGER/Line boundary shapefiles and reads them
// as geometry layers for export.
package tiger

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/parcel-analytics/internal/census"
)

// Product describes a per-state TIGER/Line boundary product.
type Product struct {
	Name       string // e.g. "TRACT", "TABBLOCK10"
	Dir        string // directory under TIGER<year>/, e.g. "TABBLOCK/2010"
	File       string // file token in tl_<year>_<fips>_<file>.zip
	Year       int    // fixed release year; 0 means the configured year
	KeyColumn  string // geographic identifier column
	Resolution census.Resolution
	Vintage    int
}

// Products lists the boundary products matching the six parcel geographies.
var Products = []Product{
	{Name: "TRACT", Dir: "TRACT", File: "tract", KeyColumn: "GEOID", Resolution: census.Tract, Vintage: 2020},
	{Name: "BG", Dir: "BG", File: "bg", KeyColumn: "GEOID", Resolution: census.BlockGroup, Vintage: 2020},
	{Name: "TABBLOCK20", Dir: "TABBLOCK20", File: "tabblock20", KeyColumn: "GEOID20", Resolution: census.Block, Vintage: 2020},
	{Name: "TRACT10", Dir: "TRACT/2010", File: "tract10", Year: 2010, KeyColumn: "GEOID10", Resolution: census.Tract, Vintage: 2010},
	{Name: "BG10", Dir: "BG/2010", File: "bg10", Year: 2010, KeyColumn: "GEOID10", Resolution: census.BlockGroup, Vintage: 2010},
	{Name: "TABBLOCK10", Dir: "TABBLOCK/2010", File: "tabblock10", Year: 2010, KeyColumn: "GEOID10", Resolution: census.Block, Vintage: 2010},
}

// FIPSCodes maps state abbreviation to 2-digit FIPS code for all 50 states + DC.
var FIPSCodes = map[string]string{
	"AL": "01", "AK": "02", "AZ": "04", "AR": "05", "CA": "06",
	"CO": "08", "CT": "09", "DE": "10", "DC": "11", "FL": "12",
	"GA": "13", "HI": "15", "ID": "16", "IL": "17", "IN": "18",
	"IA": "19", "KS": "20", "KY": "21", "LA": "22", "ME": "23",
	"MD": "24", "MA": "25", "MI": "26", "MN": "27", "MS": "28",
	"MO": "29", "MT": "30", "NE": "31", "NV": "32", "NH": "33",
	"NJ": "34", "NM": "35", "NY": "36", "NC": "37", "ND": "38",
	"OH": "39", "OK": "40", "OR": "41", "PA": "42", "RI": "44",
	"SC": "45", "SD": "46", "TN": "47", "TX": "48", "UT": "49",
	"VT": "50", "VA": "51", "WA": "53", "WV": "54", "WI": "55",
	"WY": "56",
}

// abbrByFIPS is a reverse lookup from FIPS code to state abbreviation.
var abbrByFIPS map[string]string

func init() {
	abbrByFIPS = make(map[string]string, len(FIPSCodes))
	for abbr, fips := range FIPSCodes {
		abbrByFIPS[fips] = abbr
	}
}

// AbbrFromFIPS returns the state abbreviation for a FIPS code.
func AbbrFromFIPS(fips string) (string, bool) {
	abbr, ok := abbrByFIPS[fips]
	return abbr, ok
}

// StateFIPS resolves a state given as abbreviation ("NC") or FIPS code ("37").
func StateFIPS(state string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(state))
	if fips, ok := FIPSCodes[s]; ok {
		return fips, nil
	}
	if len(s) == 1 {
		s = "0" + s
	}
	if _, ok := abbrByFIPS[s]; ok {
		return s, nil
	}
	return "", eris.Errorf("tiger: unknown state %q", state)
}

// ProductByName looks up a product by its name, ignoring case.
func ProductByName(name string) (Product, bool) {
	for _, p := range Products {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Product{}, false
}

// ProductFor returns the product covering a resolution and vintage.
func ProductFor(res census.Resolution, vintage int) (Product, error) {
	if err := res.Validate(); err != nil {
		return Product{}, eris.Wrap(err, "tiger")
	}
	for _, p := range Products {
		if p.Resolution == res && p.Vintage == vintage {
			return p, nil
		}
	}
	return Product{}, eris.Errorf("tiger: no %s product for vintage %d", res, vintage)
}

// ProductNames returns the product names in sorted order.
func ProductNames() []string {
	names := make([]string, len(Products))
	for i, p := range Products {
		names[i] = p.Name
	}
	sort.Strings(names)
	return names
}

// ReleaseYear is the TIGER release the product is downloaded from.
func (p Product) ReleaseYear(year int) int {
	if p.Year != 0 {
		return p.Year
	}
	return year
}

// DownloadURL builds the Census Bureau download URL for a per-state product:
// TIGER{year}/{dir}/tl_{year}_{fips}_{file}.zip.
func DownloadURL(base string, product Product, year int, stateFIPS string) string {
	if base == "" {
		base = DefaultBaseURL
	}
	y := product.ReleaseYear(year)
	return fmt.Sprintf("%s/TIGER%d/%s/tl_%d_%s_%s.zip",
		strings.TrimRight(base, "/"), y, product.Dir, y, stateFIPS, product.File)
}

// DefaultBaseURL is the root of the TIGER/Line file tree.
const DefaultBaseURL = "https://www2.census.gov/geo/tiger"
