package scoring

import (
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// Perturbation draws an independent offset in [-Spread, +Spread] per category.
// It stands in for a real visual/content analyzer.
type Perturbation struct {
	Spread float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPerturbation creates a seeded Perturbation.
func NewPerturbation(spread float64, seed uint64) *Perturbation {
	return &Perturbation{Spread: spread, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Offsets implements Heuristic.
func (p *Perturbation) Offsets(_ Stats, _ float64) map[Category]float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[Category]float64, len(Categories))
	for _, c := range Categories {
		out[c] = (p.rng.Float64()*2 - 1) * p.Spread
	}
	return out
}

// DOMAudit inspects the newest captured snapshot and penalizes structural
// gaps. Each penalty is bounded so the audit alone never zeroes a category.
type DOMAudit struct{}

const (
	penaltyMissingTitle       = 1.0
	penaltyMissingDescription = 0.5
	penaltyMissingH1          = 1.0
	penaltyImageAlt           = 0.25 // per image, capped below
	maxImageAltPenalty        = 1.5
	penaltyNoLinks            = 1.0
	penaltyEmptyBody          = 2.0
)

// Offsets implements Heuristic.
func (DOMAudit) Offsets(s Stats, _ float64) map[Category]float64 {
	out := make(map[Category]float64, len(Categories))
	if len(s.Snapshots) == 0 {
		return out
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s.Snapshots[len(s.Snapshots)-1]))
	if err != nil {
		return out
	}

	if strings.TrimSpace(doc.Find("title").First().Text()) == "" {
		out[Professionalism] -= penaltyMissingTitle
		out[Completeness] -= penaltyMissingTitle / 2
	}
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); !ok || strings.TrimSpace(desc) == "" {
		out[Content] -= penaltyMissingDescription
	}
	if doc.Find("h1").Length() == 0 {
		out[Design] -= penaltyMissingH1
		out[Content] -= penaltyMissingH1 / 2
	}

	missingAlt := 0
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		if alt, ok := img.Attr("alt"); !ok || strings.TrimSpace(alt) == "" {
			missingAlt++
		}
	})
	if missingAlt > 0 {
		p := float64(missingAlt) * penaltyImageAlt
		if p > maxImageAltPenalty {
			p = maxImageAltPenalty
		}
		out[Usability] -= p
	}

	if doc.Find("a[href], button, form").Length() == 0 {
		out[Usability] -= penaltyNoLinks
	}
	if strings.TrimSpace(doc.Find("body").Text()) == "" {
		out[Completeness] -= penaltyEmptyBody
	}
	return out
}

// Chain sums the offsets of several heuristics.
type Chain []Heuristic

// Offsets implements Heuristic.
func (c Chain) Offsets(s Stats, base float64) map[Category]float64 {
	out := make(map[Category]float64, len(Categories))
	for _, h := range c {
		for cat, v := range h.Offsets(s, base) {
			out[cat] += v
		}
	}
	return out
}

// Default is the heuristic used by sessions: a seeded perturbation plus the DOM audit.
func Default(seed uint64) Heuristic {
	return Chain{NewPerturbation(1.0, seed), DOMAudit{}}
}
