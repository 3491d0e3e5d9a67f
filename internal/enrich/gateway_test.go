package enrich

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/hkrewson/collectz/internal/models"
)

type fakeSearcher struct {
	calls      int
	candidates []Candidate
	err        error
}

func (f *fakeSearcher) Search(ctx context.Context, title string, year *int, mediaType models.MediaType) ([]Candidate, error) {
	f.calls++
	return f.candidates, f.err
}

func intp(n int) *int { return &n }

func TestGatewayCachesPositiveLookups(t *testing.T) {
	searcher := &fakeSearcher{candidates: []Candidate{
		{CatalogID: "42", Title: "Dune", Year: intp(1984), Votes: 100},
	}}
	g := NewGateway(searcher, rate.Inf)

	first, err := g.Lookup(context.Background(), "Dune", intp(1984), models.MediaTypeMovie)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "42", first.CatalogID)

	second, err := g.Lookup(context.Background(), "Dune", intp(1984), models.MediaTypeMovie)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.CatalogID, second.CatalogID)
	assert.Equal(t, 1, searcher.calls, "second lookup must hit the cache")
}

func TestGatewayCachesFailureAsMiss(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("service down")}
	g := NewGateway(searcher, rate.Inf)

	_, err := g.Lookup(context.Background(), "Heat", intp(1995), models.MediaTypeMovie)
	require.Error(t, err, "first failure surfaces to the caller")

	hit, err := g.Lookup(context.Background(), "Heat", intp(1995), models.MediaTypeMovie)
	require.NoError(t, err, "cached miss must not retry or re-fail")
	assert.Nil(t, hit)
	assert.Equal(t, 1, searcher.calls)
}

func TestGatewayNoCandidatesIsMiss(t *testing.T) {
	searcher := &fakeSearcher{}
	g := NewGateway(searcher, rate.Inf)

	hit, err := g.Lookup(context.Background(), "Totally Unknown", nil, models.MediaTypeBook)
	require.NoError(t, err)
	assert.Nil(t, hit)
}

func TestBestMatchPrefersExactTitleAndYear(t *testing.T) {
	candidates := []Candidate{
		{CatalogID: "remake", Title: "Dune", Year: intp(2021), Votes: 9000},
		{CatalogID: "original", Title: "Dune", Year: intp(1984), Votes: 500},
		{CatalogID: "doc", Title: "Jodorowsky's Dune", Year: intp(2013), Votes: 50},
	}

	best := BestMatch("Dune", intp(1984), candidates)
	require.NotNil(t, best)
	assert.Equal(t, "original", best.CatalogID)
}

func TestBestMatchTieBreaksByVotes(t *testing.T) {
	candidates := []Candidate{
		{CatalogID: "low", Title: "Solaris", Year: intp(1972), Votes: 10},
		{CatalogID: "high", Title: "Solaris", Year: intp(1972), Votes: 5000},
	}

	best := BestMatch("Solaris", intp(1972), candidates)
	require.NotNil(t, best)
	assert.Equal(t, "high", best.CatalogID)
}

func TestBestMatchRejectsDistantTitles(t *testing.T) {
	candidates := []Candidate{
		{CatalogID: "x", Title: "Completely Different Film", Year: intp(1984)},
	}
	assert.Nil(t, BestMatch("Dune", intp(1984), candidates))
}

func TestBestMatchDeterministic(t *testing.T) {
	candidates := []Candidate{
		{CatalogID: "a", Title: "The Thing", Year: intp(1982), Votes: 100},
		{CatalogID: "b", Title: "The Thing", Year: intp(1982), Votes: 100},
	}
	first := BestMatch("The Thing", intp(1982), candidates)
	for i := 0; i < 10; i++ {
		again := BestMatch("The Thing", intp(1982), candidates)
		require.NotNil(t, again)
		assert.Equal(t, first.CatalogID, again.CatalogID)
	}
}

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, "the empire strikes back", NormalizeTitle("  The   Empire Strikes Back "))
}
