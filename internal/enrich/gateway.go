package enrich

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/hkrewson/collectz/internal/models"
)

// Searcher is the outbound half of the gateway, satisfied by *Client.
type Searcher interface {
	Search(ctx context.Context, title string, year *int, mediaType models.MediaType) ([]Candidate, error)
}

// noMatch is the negative cache marker: a candidate list that produced no
// usable match (or a failed lookup) is not retried within the same run.
type noMatch struct{}

// Gateway wraps the lookup client with a per-run cache and a minimum-interval
// throttle. One Gateway is created per import run and discarded with it.
type Gateway struct {
	client  Searcher
	cache   *gocache.Cache
	limiter *rate.Limiter
}

// NewGateway builds a gateway throttled to one outbound call per
// minInterval. Cache hits bypass the limiter entirely.
func NewGateway(client Searcher, minInterval rate.Limit) *Gateway {
	return &Gateway{
		client:  client,
		cache:   gocache.New(gocache.NoExpiration, 0),
		limiter: rate.NewLimiter(minInterval, 1),
	}
}

func cacheKey(title string, year *int, mediaType models.MediaType) string {
	y := "any"
	if year != nil {
		y = fmt.Sprintf("%d", *year)
	}
	return string(mediaType) + ":" + NormalizeTitle(title) + "+" + y
}

// Lookup returns the best-matching candidate for title/year/type, or nil
// when nothing matches well enough. A lookup failure is returned once and
// then cached as a miss so a broken candidate cannot cause a retry storm.
func (g *Gateway) Lookup(ctx context.Context, title string, year *int, mediaType models.MediaType) (*Candidate, error) {
	key := cacheKey(title, year, mediaType)
	if v, found := g.cache.Get(key); found {
		switch hit := v.(type) {
		case *Candidate:
			return hit, nil
		case noMatch:
			return nil, nil
		}
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	candidates, err := g.client.Search(ctx, title, year, mediaType)
	if err != nil {
		g.cache.Set(key, noMatch{}, gocache.NoExpiration)
		return nil, err
	}

	best := BestMatch(title, year, candidates)
	if best == nil {
		g.cache.Set(key, noMatch{}, gocache.NoExpiration)
		return nil, nil
	}

	log.Printf("Enrich: %q → %q (catalog=%s/%s)", title, best.Title, best.CatalogSubtype, best.CatalogID)
	g.cache.Set(key, best, gocache.NoExpiration)
	return best, nil
}

// NormalizeTitle lowers, trims, and collapses inner whitespace.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(title))), " ")
}

// BestMatch scores candidates by title closeness and year proximity, with
// vote count as the tie-breaker. Deterministic for a given candidate list.
// Returns nil when no candidate clears the minimum title similarity.
func BestMatch(title string, year *int, candidates []Candidate) *Candidate {
	if len(candidates) == 0 {
		return nil
	}
	want := NormalizeTitle(title)

	type scored struct {
		idx   int
		score float64
	}
	var ranked []scored
	for i, c := range candidates {
		s := titleScore(want, NormalizeTitle(c.Title))
		if s < 0.5 {
			continue
		}
		score := s * 100
		if year != nil && c.Year != nil {
			switch diff := abs(*year - *c.Year); diff {
			case 0:
				score += 30
			case 1:
				score += 15
			}
		}
		ranked = append(ranked, scored{idx: i, score: score})
	}
	if len(ranked) == 0 {
		return nil
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		if ranked[a].score != ranked[b].score {
			return ranked[a].score > ranked[b].score
		}
		ca, cb := candidates[ranked[a].idx], candidates[ranked[b].idx]
		if ca.Votes != cb.Votes {
			return ca.Votes > cb.Votes
		}
		return ca.Popularity > cb.Popularity
	})

	best := candidates[ranked[0].idx]
	return &best
}

// titleScore is 1.0 for equality, 0.8 for containment either way, else a
// levenshtein-derived similarity in [0,1].
func titleScore(want, got string) float64 {
	if want == got {
		return 1.0
	}
	if want != "" && got != "" && (strings.Contains(got, want) || strings.Contains(want, got)) {
		return 0.8
	}
	longest := len(want)
	if len(got) > longest {
		longest = len(got)
	}
	if longest == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(want, got)
	return 1.0 - float64(dist)/float64(longest)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
