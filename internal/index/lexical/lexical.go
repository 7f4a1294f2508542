// Package lexical implements an inverted index over recipe fields with
// BM25-style scoring and a fuzzy pass for typo tolerance. An Index is an
// immutable snapshot: it is built once and then shared by concurrent
// readers without locking.
package lexical

import (
	"math"
	"sort"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/aicook/recipesearch/internal/domain"
)

// Field identifies a weighted recipe field.
type Field int

// Indexed fields, ordered by lexical weight.
const (
	FieldName Field = iota
	FieldTags
	FieldIngredients
	FieldTools
	FieldSteps

	numFields
)

// Options tunes index scoring. Zero values take defaults.
type Options struct {
	K1             float64 // BM25 term-frequency saturation (default 1.2)
	B              float64 // BM25 length normalization (default 0.75)
	FuzzyThreshold float64 // similarity floor for the fuzzy pass (default 0.8)
	FuzzyDiscount  float64 // score multiplier for fuzzy matches (default 0.6)
}

func (o Options) withDefaults() Options {
	if o.K1 <= 0 {
		o.K1 = 1.2
	}
	if o.B <= 0 {
		o.B = 0.75
	}
	if o.FuzzyThreshold <= 0 {
		o.FuzzyThreshold = 0.8
	}
	if o.FuzzyDiscount <= 0 {
		o.FuzzyDiscount = 0.6
	}
	return o
}

// fieldWeights mirror the original ranking ladder: name matches dominate,
// tags and ingredients follow, cookware and steps trail.
var fieldWeights = [numFields]float64{
	FieldName:        5.0,
	FieldTags:        3.0,
	FieldIngredients: 2.0,
	FieldTools:       1.5,
	FieldSteps:       1.0,
}

// exactNameBonus multiplies the score when every query term occurs in the
// recipe name; fullNameBonus applies when the terms cover the whole name.
// substringDiscount keeps containment matches below exact postings.
const (
	exactNameBonus    = 2.0
	fullNameBonus     = 4.0
	substringDiscount = 0.5
)

// Tokenizer produces normalized terms from field text.
type Tokenizer interface {
	Tokens(text string) []string
}

// posting holds one document's per-field term frequencies for one term.
type posting struct {
	docID string
	tf    [numFields]int
}

type docEntry struct {
	recipe    domain.Recipe
	nameLower string  // lowercased raw name, for substring recall
	length    float64 // total token count across fields, for BM25 normalization
	nameTerms int     // token count of the name field
}

// Index is an immutable inverted index snapshot.
type Index struct {
	postings map[string][]posting
	docs     map[string]*docEntry
	vocab    []string // sorted, for a deterministic fuzzy scan
	avgLen   float64
	opts     Options
}

// Build tokenizes every recipe field and constructs the index. Documents
// are never partially removed; reloading the dataset means rebuilding.
func Build(recipes []domain.Recipe, tok Tokenizer, opts Options) *Index {
	idx := &Index{
		postings: make(map[string][]posting),
		docs:     make(map[string]*docEntry, len(recipes)),
		opts:     opts.withDefaults(),
	}

	// term -> docID -> per-field tf, collapsed into postings lists below.
	acc := make(map[string]map[string]*[numFields]int)

	var totalLen float64
	for i := range recipes {
		r := recipes[i]
		entry := &docEntry{recipe: r, nameLower: strings.ToLower(r.Name())}

		for f, text := range fieldTexts(&r) {
			terms := tok.Tokens(text)
			entry.length += float64(len(terms))
			if Field(f) == FieldName {
				entry.nameTerms = len(terms)
			}
			for _, t := range terms {
				byDoc, ok := acc[t]
				if !ok {
					byDoc = make(map[string]*[numFields]int)
					acc[t] = byDoc
				}
				tf, ok := byDoc[r.ID()]
				if !ok {
					tf = &[numFields]int{}
					byDoc[r.ID()] = tf
				}
				tf[f]++
			}
		}

		idx.docs[r.ID()] = entry
		totalLen += entry.length
	}

	if len(idx.docs) > 0 {
		idx.avgLen = totalLen / float64(len(idx.docs))
	}

	idx.vocab = make([]string, 0, len(acc))
	for term, byDoc := range acc {
		idx.vocab = append(idx.vocab, term)
		list := make([]posting, 0, len(byDoc))
		for docID, tf := range byDoc {
			list = append(list, posting{docID: docID, tf: *tf})
		}
		sort.Slice(list, func(i, j int) bool { return list[i].docID < list[j].docID })
		idx.postings[term] = list
	}
	sort.Strings(idx.vocab)

	return idx
}

func fieldTexts(r *domain.Recipe) [numFields]string {
	return [numFields]string{
		FieldName:        r.Name(),
		FieldTags:        strings.Join(r.Tags(), " "),
		FieldIngredients: strings.Join(r.Ingredients(), " "),
		FieldTools:       strings.Join(r.Tools(), " "),
		FieldSteps:       strings.Join(r.Steps(), " ") + " " + r.Method(),
	}
}

// DocCount returns the number of indexed documents.
func (x *Index) DocCount() int { return len(x.docs) }

// TermCount returns the vocabulary size.
func (x *Index) TermCount() int { return len(x.vocab) }

// Recipe returns an indexed recipe by id.
func (x *Index) Recipe(id string) (domain.Recipe, bool) {
	e, ok := x.docs[id]
	if !ok {
		return domain.Recipe{}, false
	}
	return e.recipe, true
}

// Search scores documents for a query. Terms with exact postings score by
// BM25 with field weights; terms without a posting fall back to vocabulary
// containment, and the raw query is also matched as a substring of recipe
// names, so queries that cross token boundaries still recall their
// document. No match yields an empty result, not an error.
func (x *Index) Search(query string, terms []string, limit int) []domain.ChannelHit {
	if len(x.docs) == 0 {
		return nil
	}

	scores := make(map[string]float64)
	nameHits := make(map[string]int) // docID -> distinct query terms found in name

	uniq := dedupe(terms)
	for _, term := range uniq {
		list, ok := x.postings[term]
		if !ok {
			x.scoreContainment(term, scores)
			continue
		}
		idf := x.idf(len(list))
		for i := range list {
			p := &list[i]
			scores[p.docID] += idf * x.tfWeight(p, x.docs[p.docID].length)
			if p.tf[FieldName] > 0 {
				nameHits[p.docID]++
			}
		}
	}

	for docID, hits := range nameHits {
		if hits < len(uniq) {
			continue
		}
		// Every query term occurs in the name.
		bonus := exactNameBonus
		if x.docs[docID].nameTerms == len(uniq) {
			bonus = fullNameBonus
		}
		scores[docID] *= bonus
	}

	x.scoreNameSubstring(query, scores)

	return x.rank(scores, limit)
}

// scoreContainment matches a term that has no posting against vocabulary
// terms containing it or contained by it. The length ratio and the
// substring discount keep these below exact postings.
func (x *Index) scoreContainment(term string, scores map[string]float64) {
	tr := len([]rune(term))
	if tr < 2 {
		return
	}
	for _, cand := range x.vocab {
		if !strings.Contains(cand, term) && !strings.Contains(term, cand) {
			continue
		}
		cr := len([]rune(cand))
		ratio := float64(min(tr, cr)) / float64(max(tr, cr))
		list := x.postings[cand]
		idf := x.idf(len(list))
		for i := range list {
			p := &list[i]
			scores[p.docID] += ratio * substringDiscount * idf * x.tfWeight(p, x.docs[p.docID].length)
		}
	}
}

// scoreNameSubstring recalls documents whose name contains the raw query,
// however the query tokenized. Segmentation can split a name differently
// than a query quoting part of it, so posting lookups alone would miss
// these documents. Coverage of the name scales the contribution.
func (x *Index) scoreNameSubstring(query string, scores map[string]float64) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return
	}
	qRunes := float64(len([]rune(q)))
	for id, e := range x.docs {
		if e.nameLower == "" || !strings.Contains(e.nameLower, q) {
			continue
		}
		coverage := qRunes / float64(len([]rune(e.nameLower)))
		scores[id] += fieldWeights[FieldName] * substringDiscount * coverage
	}
}

// Fuzzy scores documents for query terms that have no exact posting,
// matching them against the vocabulary by edit-distance similarity. Fuzzy
// hits score strictly below the exact hits they approximate.
func (x *Index) Fuzzy(terms []string, limit int) []domain.ChannelHit {
	if len(terms) == 0 || len(x.docs) == 0 {
		return nil
	}

	scores := make(map[string]float64)
	for _, term := range dedupe(terms) {
		if _, exact := x.postings[term]; exact {
			continue
		}
		for _, cand := range x.vocab {
			sim, ok := x.fuzzyMatch(term, cand)
			if !ok {
				continue
			}
			list := x.postings[cand]
			idf := x.idf(len(list))
			for i := range list {
				p := &list[i]
				contribution := sim * x.opts.FuzzyDiscount * idf * x.tfWeight(p, x.docs[p.docID].length)
				scores[p.docID] += contribution
			}
		}
	}

	return x.rank(scores, limit)
}

// fuzzyMatch reports whether cand is an acceptable approximation of term
// and how similar they are. Short terms (<= 3 runes, common for CJK words)
// accept a single edit; longer terms must clear the similarity threshold.
func (x *Index) fuzzyMatch(term, cand string) (float64, bool) {
	sim := levenshtein.Similarity(term, cand, nil)
	if sim >= 1 {
		return 0, false // identical terms belong to the exact pass
	}
	if sim >= x.opts.FuzzyThreshold {
		return sim, true
	}
	if shortRunes(term) && shortRunes(cand) && levenshtein.Distance(term, cand, nil) <= 1 {
		return sim, true
	}
	return 0, false
}

func shortRunes(s string) bool { return len([]rune(s)) <= 3 }

// tfWeight is the BM25 term-frequency component with per-field weighting.
func (x *Index) tfWeight(p *posting, docLen float64) float64 {
	var wtf float64
	for f := 0; f < int(numFields); f++ {
		wtf += float64(p.tf[f]) * fieldWeights[f]
	}
	norm := 1 - x.opts.B + x.opts.B*docLen/math.Max(x.avgLen, 1)
	return wtf * (x.opts.K1 + 1) / (wtf + x.opts.K1*norm)
}

func (x *Index) idf(df int) float64 {
	n := float64(len(x.docs))
	return math.Log(1 + (n-float64(df)+0.5)/(float64(df)+0.5))
}

// rank sorts hits by score descending, then popularity descending, then id
// ascending, and caps the list.
func (x *Index) rank(scores map[string]float64, limit int) []domain.ChannelHit {
	if len(scores) == 0 {
		return nil
	}
	hits := make([]domain.ChannelHit, 0, len(scores))
	for id, s := range scores {
		hits = append(hits, domain.ChannelHit{ID: id, Score: s})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		pi, pj := x.docs[hits[i].ID].recipe.Popularity(), x.docs[hits[j].ID].recipe.Popularity()
		if pi != pj {
			return pi > pj
		}
		return hits[i].ID < hits[j].ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func dedupe(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
