package tiger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/parcel-analytics/internal/census"
)

func TestDownloadURL(t *testing.T) {
	tests := []struct {
		product string
		want    string
	}{
		{"TRACT", "https://www2.census.gov/geo/tiger/TIGER2020/TRACT/tl_2020_37_tract.zip"},
		{"BG", "https://www2.census.gov/geo/tiger/TIGER2020/BG/tl_2020_37_bg.zip"},
		{"TABBLOCK20", "https://www2.census.gov/geo/tiger/TIGER2020/TABBLOCK20/tl_2020_37_tabblock20.zip"},
		{"TRACT10", "https://www2.census.gov/geo/tiger/TIGER2010/TRACT/2010/tl_2010_37_tract10.zip"},
		{"BG10", "https://www2.census.gov/geo/tiger/TIGER2010/BG/2010/tl_2010_37_bg10.zip"},
		{"TABBLOCK10", "https://www2.census.gov/geo/tiger/TIGER2010/TABBLOCK/2010/tl_2010_37_tabblock10.zip"},
	}
	for _, tt := range tests {
		t.Run(tt.product, func(t *testing.T) {
			p, ok := ProductByName(tt.product)
			require.True(t, ok)
			assert.Equal(t, tt.want, DownloadURL("", p, 2020, "37"))
		})
	}

	p, _ := ProductByName("tract")
	assert.Equal(t, "http://mirror/TIGER2023/TRACT/tl_2023_12_tract.zip", DownloadURL("http://mirror/", p, 2023, "12"))
}

func TestProductFor(t *testing.T) {
	for _, res := range census.Resolutions {
		for _, vintage := range census.Vintages {
			p, err := ProductFor(res, vintage)
			require.NoError(t, err)
			assert.Equal(t, res, p.Resolution)
			assert.Equal(t, vintage, p.Vintage)
		}
	}

	_, err := ProductFor(census.Tract, 2000)
	assert.ErrorContains(t, err, "vintage 2000")

	_, err = ProductFor("zz", 2020)
	assert.True(t, errors.Is(err, census.ErrUnknownResolution))
}

func TestStateFIPS(t *testing.T) {
	for in, want := range map[string]string{"NC": "37", "nc": "37", "37": "37", "6": "06", " fl ": "12"} {
		got, err := StateFIPS(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := StateFIPS("ZZ")
	assert.Error(t, err)

	abbr, ok := AbbrFromFIPS("37")
	assert.True(t, ok)
	assert.Equal(t, "NC", abbr)
}

func TestProductNames(t *testing.T) {
	assert.Equal(t, []string{"BG", "BG10", "TABBLOCK10", "TABBLOCK20", "TRACT", "TRACT10"}, ProductNames())
	_, ok := ProductByName("EDGES")
	assert.False(t, ok)
}
