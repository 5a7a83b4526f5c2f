package census

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-analytics/internal/fetcher"
	"github.com/sells-group/parcel-analytics/internal/table"
)

const defaultBaseURL = "https://api.census.gov/data"

// ACS 5-year detailed table variables behind the census columns.
const (
	varRentTotal       = "B25063_001E"
	varRentTotalMOE    = "B25063_001M"
	varMedianValue     = "B25077_001E"
	varMedianYearBuilt = "B25035_001E"
	varHousingUnits    = "B25001_001E"
	varVacant          = "B25002_003E"
	varOccupied        = "B25003_001E"
	varOwnerOccupied   = "B25003_002E"
)

var acsVariables = []string{
	varRentTotal,
	varRentTotalMOE,
	varMedianValue,
	varMedianYearBuilt,
	varHousingUnits,
	varVacant,
	varOccupied,
	varOwnerOccupied,
}

// APIOptions configures the ACS API source.
type APIOptions struct {
	BaseURL    string // default https://api.census.gov/data
	Dataset    string // default acs/acs5
	Key        string // optional API key
	StateFIPS  string // two-digit state code, e.g. "37"
	CountyFIPS string // three-digit county code, e.g. "063"
}

// API fetches ACS 5-year estimates for one county from the Census Data API.
type API struct {
	f    fetcher.Fetcher
	opts APIOptions
}

// NewAPI creates an ACS source for the county in opts.
func NewAPI(f fetcher.Fetcher, opts APIOptions) (*API, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Dataset == "" {
		opts.Dataset = "acs/acs5"
	}
	if len(opts.StateFIPS) != 2 || len(opts.CountyFIPS) != 3 {
		return nil, eris.Errorf("census: state/county FIPS must be 2 and 3 digits, got %q/%q", opts.StateFIPS, opts.CountyFIPS)
	}
	return &API{f: f, opts: opts}, nil
}

// Fetch implements Source. Blocks are not published by the ACS.
func (a *API) Fetch(ctx context.Context, year int, res Resolution) (*table.Table, error) {
	if err := res.Validate(); err != nil {
		return nil, err
	}
	if res == Block {
		return nil, eris.Wrapf(ErrResolutionUnavailable, "%s from ACS %s", res, a.opts.Dataset)
	}

	log := zap.L().With(
		zap.String("component", "census.api"),
		zap.Int("year", year),
		zap.String("resolution", res.String()),
	)

	body, err := a.f.Download(ctx, a.url(year, res))
	if err != nil {
		return nil, eris.Wrapf(err, "census: fetch %s %d", res, year)
	}
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, eris.Wrap(err, "census: read response")
	}

	t, err := parseResponse(data, res)
	if err != nil {
		return nil, err
	}

	log.Info("census table fetched", zap.Int("rows", t.Len()))
	return t, nil
}

func (a *API) url(year int, res Resolution) string {
	q := url.Values{}
	q.Set("get", strings.Join(acsVariables, ","))
	switch res {
	case Tract:
		q.Set("for", "tract:*")
	case BlockGroup:
		q.Set("for", "block group:*")
	}
	q.Set("in", fmt.Sprintf("state:%s county:%s", a.opts.StateFIPS, a.opts.CountyFIPS))
	if a.opts.Key != "" {
		q.Set("key", a.opts.Key)
	}
	return fmt.Sprintf("%s/%d/%s?%s", a.opts.BaseURL, year, a.opts.Dataset, q.Encode())
}

// parseResponse converts the API's array-of-arrays JSON into a census table.
func parseResponse(data []byte, res Resolution) (*table.Table, error) {
	var raw [][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "census: unmarshal JSON")
	}
	if len(raw) == 0 {
		return nil, eris.New("census: empty response")
	}

	colIdx := make(map[string]int, len(raw[0]))
	for i, col := range raw[0] {
		colIdx[col] = i
	}

	geoParts := []string{"state", "county", "tract"}
	if res == BlockGroup {
		geoParts = append(geoParts, "block group")
	}
	for _, name := range append(append([]string{}, acsVariables...), geoParts...) {
		if _, ok := colIdx[name]; !ok {
			return nil, eris.Errorf("census: response missing column %q", name)
		}
	}

	rows := make([][]any, 0, len(raw)-1)
	for _, record := range raw[1:] {
		get := func(name string) string {
			i := colIdx[name]
			if i >= len(record) {
				return ""
			}
			return record[i]
		}

		var geoID strings.Builder
		for _, p := range geoParts {
			geoID.WriteString(get(p))
		}

		housing := estimate(get(varHousingUnits))
		occupied := estimate(get(varOccupied))
		rows = append(rows, []any{
			geoID.String(),
			estimate(get(varRentTotal)),
			estimate(get(varRentTotalMOE)),
			estimate(get(varMedianValue)),
			estimate(get(varMedianYearBuilt)),
			housing,
			percent(estimate(get(varVacant)), housing),
			percent(estimate(get(varOwnerOccupied)), occupied),
		})
	}

	return table.FromRows(Columns, rows)
}

// estimate parses an ACS value. Negative values are annotation codes
// (e.g. -666666666 for "not computed") and become null.
func estimate(s string) any {
	v := table.Infer(s)
	f, ok := table.AsFloat(v)
	if !ok || f < 0 {
		return nil
	}
	return v
}

// percent returns part/whole*100, null when either side is missing or whole is 0.
func percent(part, whole any) any {
	p, ok1 := table.AsFloat(part)
	w, ok2 := table.AsFloat(whole)
	if !ok1 || !ok2 || w == 0 {
		return nil
	}
	return p / w * 100
}
