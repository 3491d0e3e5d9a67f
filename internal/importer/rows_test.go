package importer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCSVNormalizesHeaders(t *testing.T) {
	input := "Title,Release Date,Media-Type\nDune,2021-10-22,movie\nArrival, 2016-11-11 ,movie\n"
	rows, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "Dune", rows[0]["title"])
	assert.Equal(t, "2021-10-22", rows[0]["release_date"])
	assert.Equal(t, "movie", rows[0]["media_type"])
	assert.Equal(t, "2016-11-11", rows[1]["release_date"])
}

func TestParseCSVRaggedRows(t *testing.T) {
	input := "title,year,genre\nDune,2021\nArrival,2016,Sci-Fi,extra\n"
	rows, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Short rows leave trailing fields absent; long rows drop the overflow.
	_, ok := rows[0]["genre"]
	assert.False(t, ok)
	assert.Equal(t, "Sci-Fi", rows[1]["genre"])
}

func TestParseCSVEmptyFile(t *testing.T) {
	_, err := ParseCSV(strings.NewReader(""))
	assert.Error(t, err)
}

func TestParseLegacyXML(t *testing.T) {
	input := `<?xml version="1.0"?>
<collection>
  <item>
    <Title>The Matrix</Title>
    <ItemType>DVD</ItemType>
    <ReleaseYear>1999</ReleaseYear>
    <ContentRating>R</ContentRating>
    <Plot>A hacker learns the truth.</Plot>
    <Barcode>085391163718</Barcode>
  </item>
  <item>
    <Title>Hyperion</Title>
    <ItemType>Paperback</ItemType>
  </item>
</collection>`

	rows, err := ParseLegacyXML(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "The Matrix", rows[0]["title"])
	assert.Equal(t, "DVD", rows[0]["item_type"])
	assert.Equal(t, "1999", rows[0]["year"])
	assert.Equal(t, "R", rows[0]["rating"])
	assert.Equal(t, "A hacker learns the truth.", rows[0]["overview"])
	assert.Equal(t, "085391163718", rows[0]["upc"])
	assert.Equal(t, "Paperback", rows[1]["item_type"])
}

func TestParseLegacyXMLNoItems(t *testing.T) {
	_, err := ParseLegacyXML(strings.NewReader("<collection></collection>"))
	assert.Error(t, err)
}

func TestParseLegacyXMLMalformed(t *testing.T) {
	_, err := ParseLegacyXML(strings.NewReader("<collection><item><Title>Broken"))
	assert.Error(t, err)
}
