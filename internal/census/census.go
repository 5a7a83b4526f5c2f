// Package census provides census estimate tables keyed by geographic identifier
// at tract, block and block group resolution.
package census

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/parcel-analytics/internal/table"
)

// Resolution is the geographic granularity of a census table.
type Resolution string

// Supported resolutions. The string value is also the column suffix tag.
const (
	Tract      Resolution = "t"
	Block      Resolution = "b"
	BlockGroup Resolution = "bg"
)

var (
	// ErrUnknownResolution is a caller error: the tag is not t, b or bg.
	ErrUnknownResolution = eris.New("census: unknown resolution")

	// ErrResolutionUnavailable means the source does not publish the resolution.
	ErrResolutionUnavailable = eris.New("census: resolution not available from source")
)

// Resolutions lists every supported resolution in join order.
var Resolutions = []Resolution{Tract, Block, BlockGroup}

// Vintages are the decennial geography vintages carried by the parcel data.
var Vintages = []int{2010, 2020}

// ParseResolution validates a resolution tag. Long names are accepted too.
func ParseResolution(s string) (Resolution, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "t", "tract":
		return Tract, nil
	case "b", "block":
		return Block, nil
	case "bg", "block_group", "blockgroup", "block-group":
		return BlockGroup, nil
	}
	return "", eris.Wrapf(ErrUnknownResolution, "%q (valid: t, b, bg)", s)
}

// Validate reports ErrUnknownResolution for tags outside t, b and bg.
func (r Resolution) Validate() error {
	switch r {
	case Tract, Block, BlockGroup:
		return nil
	}
	return eris.Wrapf(ErrUnknownResolution, "%q (valid: t, b, bg)", string(r))
}

// Suffix is the tag appended to census columns joined at this resolution.
func (r Resolution) Suffix() string { return "_" + string(r) }

// GeoColumn names the parcel column holding this resolution's identifier for a
// vintage, e.g. geo_id_bg2020.
func (r Resolution) GeoColumn(vintage int) string {
	return fmt.Sprintf("geo_id_%s%d", r, vintage)
}

// String returns the long name.
func (r Resolution) String() string {
	switch r {
	case Tract:
		return "tract"
	case Block:
		return "block"
	case BlockGroup:
		return "block_group"
	}
	return string(r)
}

// IDColumn is the identifier column of every census table.
const IDColumn = "GEOID"

// Estimate columns carried by every census table.
const (
	RentTotal        = "estimate_rent_total"
	RentTotalMOE     = "moe_rent_total"
	MedianHouseValue = "estimate_median_house_value"
	MedianYearBuilt  = "estimate_median_year_structure_build"
	HousingUnits     = "estimate_housing_units"
	PctVacant        = "pct_vacant"
	PctOwnerOccupied = "pct_owner_occupied"
)

// Columns is the fixed census table schema: identifier first, then estimates.
var Columns = []string{
	IDColumn,
	RentTotal,
	RentTotalMOE,
	MedianHouseValue,
	MedianYearBuilt,
	HousingUnits,
	PctVacant,
	PctOwnerOccupied,
}

// SuffixedColumns returns the estimate columns (identifier excluded) as they
// appear after a join at resolution r.
func SuffixedColumns(r Resolution) []string {
	out := make([]string, 0, len(Columns)-1)
	for _, c := range Columns[1:] {
		out = append(out, c+r.Suffix())
	}
	return out
}

// Source returns the census table for a year and resolution.
type Source interface {
	Fetch(ctx context.Context, year int, res Resolution) (*table.Table, error)
}

// Conform restricts t to Columns, failing with the missing column name.
func Conform(t *table.Table) (*table.Table, error) {
	out, err := t.Select(Columns...)
	if err != nil {
		return nil, eris.Wrap(err, "census: conform table")
	}
	return out, nil
}
