// Package marketindex implements MarketIndex (spec.md §4.5): an inverted
// token index over market questions, supporting fast home/away/league
// search without a linear scan, kept fresh by a singleflight-guarded
// refresh through the fetch function passed to New.
package marketindex

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/unicode/norm"

	"github.com/tradecore/inplay/internal/model"
)

// stopWords excludes modal verbs, determiners, pronouns, conjunctions,
// and prepositions from the token index so a market titled "Will ...
// return ..." never matches a team named "Will".
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "nor": {},
	"will": {}, "would": {}, "shall": {}, "should": {}, "can": {}, "could": {},
	"may": {}, "might": {}, "must": {},
	"he": {}, "she": {}, "it": {}, "they": {}, "we": {}, "you": {}, "i": {},
	"in": {}, "on": {}, "at": {}, "by": {}, "for": {}, "with": {}, "to": {},
	"of": {}, "from": {}, "into": {}, "over": {}, "under": {}, "vs": {},
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Tokenize strips diacritics, lowercases s, splits on non-alphanumeric
// runs, and drops tokens shorter than 3 characters or in the stop-word
// list. Diacritic stripping lets "Munchen" match a question spelling
// it "München".
func Tokenize(s string) []string {
	lower := strings.ToLower(stripDiacritics(s))
	parts := nonAlnum.Split(lower, -1)
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if len(p) < 3 {
			continue
		}
		if _, stop := stopWords[p]; stop {
			continue
		}
		tokens = append(tokens, p)
	}
	return tokens
}

func stripDiacritics(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range norm.NFD.String(s) {
		if !unicode.Is(unicode.Mn, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Index maintains market_id -> Market and an inverted token -> set of
// market_id index, refreshed via load/insert_many. Reads and writes are
// single-writer/many-reader per spec.md §3's ownership note.
type Index struct {
	mu       sync.RWMutex
	markets  map[string]model.Market
	inverted map[string]map[string]struct{}

	fetchGroup singleflight.Group
	fetch      func(ctx context.Context) ([]model.Market, error)
}

func New(fetch func(ctx context.Context) ([]model.Market, error)) *Index {
	return &Index{
		markets:  make(map[string]model.Market),
		inverted: make(map[string]map[string]struct{}),
		fetch:    fetch,
	}
}

func (idx *Index) tokensFor(m model.Market) []string {
	return Tokenize(m.Question)
}

// Load atomically replaces the entire index.
func (idx *Index) Load(markets []model.Market) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.markets = make(map[string]model.Market, len(markets))
	idx.inverted = make(map[string]map[string]struct{})
	for _, m := range markets {
		idx.insertLocked(m)
	}
}

// InsertMany upserts markets without wiping the existing index, used for
// REST-backfill of newly discovered markets.
func (idx *Index) InsertMany(markets []model.Market) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, m := range markets {
		idx.insertLocked(m)
	}
}

func (idx *Index) insertLocked(m model.Market) {
	idx.markets[m.ID] = m
	for _, tok := range idx.tokensFor(m) {
		set, ok := idx.inverted[tok]
		if !ok {
			set = make(map[string]struct{})
			idx.inverted[tok] = set
		}
		set[m.ID] = struct{}{}
	}
}

// Refresh fetches the full market set through the fetch function and
// calls Load, coalescing concurrent callers via singleflight so a burst
// of cache misses triggers one fetch, not N.
func (idx *Index) Refresh(ctx context.Context) error {
	_, err, _ := idx.fetchGroup.Do("refresh", func() (any, error) {
		markets, err := idx.fetch(ctx)
		if err != nil {
			return nil, err
		}
		idx.Load(markets)
		return nil, nil
	})
	return err
}

func candidateSet(inverted map[string]map[string]struct{}, tokens []string) map[string]struct{} {
	candidates := make(map[string]struct{})
	for _, tok := range tokens {
		if set, ok := inverted[tok]; ok {
			for id := range set {
				candidates[id] = struct{}{}
			}
		}
		// substring matches in both directions against all indexed tokens
		for indexedTok, set := range inverted {
			if indexedTok == tok {
				continue
			}
			if strings.Contains(indexedTok, tok) || strings.Contains(tok, indexedTok) {
				for id := range set {
					candidates[id] = struct{}{}
				}
			}
		}
	}
	return candidates
}

func intersect(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	small, big := a, b
	if len(b) < len(a) {
		small, big = b, a
	}
	for id := range small {
		if _, ok := big[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

// Search intersects the candidate sets for home and away tokens
// (matching exact and substring in both directions), filters to active
// markets, and sorts descending by volume. Among volume ties, the more
// recently fetched market (LastFetchedAt) comes first; no market expiry
// or game start time is consulted.
func (idx *Index) Search(home, away, league string) []model.Market {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	homeTokens := Tokenize(home)
	awayTokens := Tokenize(away)
	if len(homeTokens) == 0 || len(awayTokens) == 0 {
		return nil
	}

	homeCandidates := candidateSet(idx.inverted, homeTokens)
	awayCandidates := candidateSet(idx.inverted, awayTokens)
	both := intersect(homeCandidates, awayCandidates)

	results := make([]model.Market, 0, len(both))
	for id := range both {
		m, ok := idx.markets[id]
		if !ok || m.Status != model.MarketActive {
			continue
		}
		if league != "" && m.League != "" && m.League != league {
			continue
		}
		results = append(results, m)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Volume != results[j].Volume {
			return results[i].Volume > results[j].Volume
		}
		return results[i].LastFetchedAt.After(results[j].LastFetchedAt)
	})

	return results
}
