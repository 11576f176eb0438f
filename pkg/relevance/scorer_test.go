package relevance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/easyops/agentcontext-go/pkg/token"
)

func TestExtractTerms(t *testing.T) {
	terms := ExtractTerms("Fix the parseConfig() bug in config.go and add schema validation")

	hasIdentifier := false
	for _, identifier := range terms.Identifiers {
		if identifier == "parseConfig" {
			hasIdentifier = true
		}
	}
	if !hasIdentifier {
		t.Errorf("expected parseConfig in identifiers, got %v", terms.Identifiers)
	}

	hasFilename := false
	for _, filename := range terms.Filenames {
		if filename == "config.go" {
			hasFilename = true
		}
	}
	if !hasFilename {
		t.Errorf("expected config.go in filenames, got %v", terms.Filenames)
	}

	hasSchema := false
	for _, concept := range terms.Concepts {
		if concept == "schema" {
			hasSchema = true
		}
	}
	if !hasSchema {
		t.Errorf("expected schema concept, got %v", terms.Concepts)
	}

	for _, keyword := range terms.Keywords {
		if keyword == "the" || keyword == "and" {
			t.Errorf("stopword %q leaked into keywords", keyword)
		}
	}
}

func TestScorer_ScoreRange(t *testing.T) {
	scorer := NewScorer()

	candidates := []Candidate{
		{Path: "a.go", Content: "package a\nfunc parseConfig() {}\n", ContentType: token.ContentTypeCode},
		{Path: "b.go", Content: "package b\n// config config config config\n", ContentType: token.ContentTypeCode},
		{Path: "c.md", Content: "design notes", ContentType: token.ContentTypeDocument},
	}

	scores := scorer.ScoreAll(context.Background(), &Input{
		Role:        "code",
		StoryID:     "story-1",
		Description: "Fix parseConfig() in the config loader",
		Candidates:  candidates,
	})

	if len(scores) != len(candidates) {
		t.Fatalf("got %d scores, want %d", len(scores), len(candidates))
	}

	for _, score := range scores {
		if score.Total < 0 || score.Total > 1 {
			t.Errorf("%s: total %f out of [0,1]", score.Path, score.Total)
		}
		for signal, value := range score.SubScores {
			if value < 0 || value > 1 {
				t.Errorf("%s: sub-score %s = %f out of [0,1]", score.Path, signal, value)
			}
		}
	}
}

func TestScorer_DirectMentionBeatsKeywordOverlap(t *testing.T) {
	scorer := NewScorer()

	exact := Candidate{
		Path:        "loader.go",
		Content:     "package loader\n\nfunc parseConfig() error { return nil }\n",
		ContentType: token.ContentTypeCode,
	}
	overlap := Candidate{
		Path:        "other.go",
		Content:     "package other\n// loads config sometimes\n",
		ContentType: token.ContentTypeCode,
	}

	scores := scorer.ScoreAll(context.Background(), &Input{
		Role:        "code",
		Description: "Fix parseConfig() handling of missing config",
		Candidates:  []Candidate{overlap, exact},
	})

	if scores[0].Path != "loader.go" {
		t.Errorf("exact function-name match should rank first, got %s", scores[0].Path)
	}

	var exactScore *Score
	for _, score := range scores {
		if score.Path == "loader.go" {
			exactScore = score
		}
	}
	if exactScore.SubScores[SignalDirectMention] < 0.3 {
		t.Errorf("direct_mention = %f, want >= 0.3", exactScore.SubScores[SignalDirectMention])
	}
}

func TestScorer_DeterministicTieBreak(t *testing.T) {
	scorer := NewScorer()

	candidates := []Candidate{
		{Path: "z.go", Content: "identical", ContentType: token.ContentTypeCode},
		{Path: "a.go", Content: "identical", ContentType: token.ContentTypeCode},
		{Path: "m.go", Content: "identical", ContentType: token.ContentTypeCode},
	}

	scores := scorer.ScoreAll(context.Background(), &Input{
		Role:        "code",
		Description: "unrelated task about databases",
		Candidates:  candidates,
	})

	if scores[0].Path != "a.go" || scores[1].Path != "m.go" || scores[2].Path != "z.go" {
		t.Errorf("ties should break by path: got %s, %s, %s",
			scores[0].Path, scores[1].Path, scores[2].Path)
	}
}

type failingOracle struct{}

func (failingOracle) DependenciesOf(_ context.Context, unit string) ([]string, error) {
	if unit == "bad.go" {
		return nil, errors.New("index offline")
	}
	return []string{"core/main.go"}, nil
}

func TestScorer_OracleFailureIsAbsorbed(t *testing.T) {
	scorer := NewScorer(WithDependencyOracle(failingOracle{}))

	scores := scorer.ScoreAll(context.Background(), &Input{
		Role:        "code",
		Description: "touch everything",
		Candidates: []Candidate{
			{Path: "bad.go", Content: "x", ContentType: token.ContentTypeCode},
			{Path: "good.go", Content: "x", ContentType: token.ContentTypeCode},
			{Path: "core/main.go", Content: "x", ContentType: token.ContentTypeCode},
		},
	})

	if len(scores) != 3 {
		t.Fatalf("oracle failure must not drop candidates: got %d scores", len(scores))
	}

	// core/main.go 仍应获得被依赖加权
	for _, score := range scores {
		if score.Path == "core/main.go" && score.SubScores[SignalDependency] == 0 {
			t.Error("dependency signal should survive partial oracle failure")
		}
	}
}

type staticHistory struct {
	records []InclusionRecord
}

func (h staticHistory) Inclusions(_ context.Context, _, _ string) ([]InclusionRecord, error) {
	return h.records, nil
}

func TestScorer_HistoricalRecencyWeighting(t *testing.T) {
	now := time.Now()
	scorer := NewScorer(WithHistoryProvider(staticHistory{records: []InclusionRecord{
		{Path: "recent.go", IncludedAt: now.Add(-1 * time.Hour)},
		{Path: "stale.go", IncludedAt: now.Add(-60 * 24 * time.Hour)},
	}}))

	scores := scorer.ScoreAll(context.Background(), &Input{
		Role:        "code",
		StoryID:     "story-9",
		Description: "unrelated",
		Candidates: []Candidate{
			{Path: "recent.go", Content: "x", ContentType: token.ContentTypeCode},
			{Path: "stale.go", Content: "x", ContentType: token.ContentTypeCode},
		},
	})

	byPath := make(map[string]*Score)
	for _, score := range scores {
		byPath[score.Path] = score
	}

	if byPath["recent.go"].SubScores[SignalHistorical] <= byPath["stale.go"].SubScores[SignalHistorical] {
		t.Errorf("recent inclusion should score higher: %f <= %f",
			byPath["recent.go"].SubScores[SignalHistorical],
			byPath["stale.go"].SubScores[SignalHistorical])
	}
}

func TestScorer_PhaseSignal(t *testing.T) {
	scorer := NewScorer()

	scores := scorer.ScoreAll(context.Background(), &Input{
		Role:        "test",
		Phase:       "red",
		Description: "write failing tests first",
		Candidates: []Candidate{
			{Path: "handler_test.go", Content: "func TestX(t *testing.T) {}", ContentType: token.ContentTypeTest},
			{Path: "handler.go", Content: "func X() {}", ContentType: token.ContentTypeCode},
		},
	})

	byPath := make(map[string]*Score)
	for _, score := range scores {
		byPath[score.Path] = score
	}

	if byPath["handler_test.go"].SubScores[SignalPhase] <= byPath["handler.go"].SubScores[SignalPhase] {
		t.Error("red phase should favor test-shaped content")
	}
}

func TestSelectTop(t *testing.T) {
	scores := []*Score{
		{Path: "a", Total: 0.9},
		{Path: "b", Total: 0.5},
		{Path: "c", Total: 0.2},
		{Path: "d", Total: 0.1},
	}

	selected := SelectTop(scores, 3, 0.3)
	if len(selected) != 2 {
		t.Fatalf("got %d selected, want 2", len(selected))
	}
	if selected[0].Path != "a" || selected[1].Path != "b" {
		t.Errorf("unexpected selection: %s, %s", selected[0].Path, selected[1].Path)
	}
}
