package scoring

import (
	"math"
	"testing"
)

func TestVerdictFor(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{0, VerdictPoor},
		{3.9, VerdictPoor},
		{4.0, VerdictOK},
		{5.9, VerdictOK},
		{6.0, VerdictGood},
		{7.9, VerdictGood},
		{8.0, VerdictExcellent},
		{8.9, VerdictExcellent},
		{9.0, VerdictWorldClass},
		{9.5, VerdictWorldClass},
		{10, VerdictWorldClass},
	}
	for _, tt := range tests {
		if got := VerdictFor(tt.score); got != tt.want {
			t.Errorf("VerdictFor(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestSeverityFor(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{0, SeverityCritical},
		{3.99, SeverityCritical},
		{4, SeverityHigh},
		{4.99, SeverityHigh},
		{5, SeverityMedium},
		{5.99, SeverityMedium},
	}
	for _, tt := range tests {
		if got := SeverityFor(tt.score); got != tt.want {
			t.Errorf("SeverityFor(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestEvaluate_OverallIsMeanOfSix(t *testing.T) {
	s := NewScorer(NewPerturbation(3, 99), 7.5)
	for i := 0; i <= 20; i++ {
		q := s.Evaluate(Stats{WebsiteID: "w", Success: i, Total: 20})
		if len(q.Categories) != 6 {
			t.Fatalf("categories = %d, want 6", len(q.Categories))
		}
		sum := 0.0
		for _, c := range Categories {
			v := q.Categories[c]
			if v < 0 || v > 10 {
				t.Fatalf("category %s = %v out of range", c, v)
			}
			sum += v
		}
		if math.Abs(q.OverallScore-sum/6) > 1e-9 {
			t.Fatalf("overall %v != mean %v", q.OverallScore, sum/6)
		}
		if q.Verdict != VerdictFor(q.OverallScore) {
			t.Fatalf("verdict %q inconsistent with overall %v", q.Verdict, q.OverallScore)
		}
	}
}

func TestEvaluate_FullSuccessMeetsThreshold(t *testing.T) {
	s := NewScorer(nil, 7.5)
	q := s.Evaluate(Stats{WebsiteID: "w", Success: 50, Total: 50})
	if q.OverallScore != 10 || !q.MeetsThreshold || q.Verdict != VerdictWorldClass {
		t.Errorf("score = %+v", q)
	}
	if len(q.Issues) != 0 {
		t.Errorf("issues = %v", q.Issues)
	}
}

func TestEvaluate_ZeroSuccessRaisesIssues(t *testing.T) {
	s := NewScorer(NewPerturbation(1, 1), 7.5)
	q := s.Evaluate(Stats{WebsiteID: "w", Success: 0, Total: 50})
	if q.MeetsThreshold {
		t.Error("zero success should not meet threshold")
	}
	if len(q.Issues) == 0 {
		t.Fatal("expected issues")
	}
	for _, is := range q.Issues {
		if is.Severity != SeverityCritical {
			t.Errorf("issue %s severity = %s, want critical", is.Category, is.Severity)
		}
	}
}

func TestEvaluate_EmptyRun(t *testing.T) {
	q := NewScorer(nil, 7.5).Evaluate(Stats{WebsiteID: "w"})
	if q.OverallScore != 0 || q.Verdict != VerdictPoor {
		t.Errorf("empty run = %+v", q)
	}
}

func TestPerturbation_Seeded(t *testing.T) {
	a := NewPerturbation(1, 5).Offsets(Stats{}, 5)
	b := NewPerturbation(1, 5).Offsets(Stats{}, 5)
	for _, c := range Categories {
		if a[c] != b[c] {
			t.Fatalf("category %s: %v != %v", c, a[c], b[c])
		}
		if math.Abs(a[c]) > 1 {
			t.Fatalf("offset %v exceeds spread", a[c])
		}
	}
}

func TestDOMAudit(t *testing.T) {
	good := `<html><head><title>Golden Bakery</title><meta name="description" content="Fresh bread"></head>
<body><h1>Golden Bakery</h1><img src="a.jpg" alt="bread"><a href="#contact">Contact</a></body></html>`
	bad := `<html><head></head><body><img src="a.jpg"><img src="b.jpg"></body></html>`

	if offs := (DOMAudit{}).Offsets(Stats{Snapshots: []string{good}}, 10); len(nonZero(offs)) != 0 {
		t.Errorf("good document penalized: %v", offs)
	}

	offs := (DOMAudit{}).Offsets(Stats{Snapshots: []string{good, bad}}, 10)
	for _, c := range []Category{Professionalism, Content, Design, Usability, Completeness} {
		if offs[c] >= 0 {
			t.Errorf("%s offset = %v, want negative", c, offs[c])
		}
	}
	if offs[Performance] != 0 {
		t.Errorf("performance offset = %v, want 0", offs[Performance])
	}
}

func TestDOMAudit_NoSnapshots(t *testing.T) {
	if offs := (DOMAudit{}).Offsets(Stats{}, 10); len(offs) != 0 {
		t.Errorf("offsets = %v", offs)
	}
}

func TestChain(t *testing.T) {
	h := Chain{fixed{Design: -1}, fixed{Design: -0.5, Content: 2}}
	q := NewScorer(h, 7.5).Evaluate(Stats{Success: 9, Total: 10})
	if math.Abs(q.Categories[Design]-7.5) > 1e-9 {
		t.Errorf("design = %v, want 7.5", q.Categories[Design])
	}
	if q.Categories[Content] != 10 {
		t.Errorf("content = %v, want clamped 10", q.Categories[Content])
	}
}

type fixed map[Category]float64

func (f fixed) Offsets(Stats, float64) map[Category]float64 { return f }

func nonZero(m map[Category]float64) map[Category]float64 {
	out := make(map[Category]float64)
	for k, v := range m {
		if v != 0 {
			out[k] = v
		}
	}
	return out
}
