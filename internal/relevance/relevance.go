// Package relevance scores discovered candidates against the requested sector and area.
package relevance

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/palantir/business-contact-pipeline/internal/ai"
	"github.com/palantir/business-contact-pipeline/internal/leads"
	"github.com/palantir/business-contact-pipeline/pkg/pipeline/redact"
)

const (
	// NeutralScore is assigned to every candidate when scoring is unavailable.
	NeutralScore = 50

	maxScoringTokens = 2000
)

type Filter struct {
	ai     ai.Completer
	logger *zap.Logger
}

// New returns a Filter. A nil completer disables AI scoring.
func New(completer ai.Completer, logger *zap.Logger) *Filter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Filter{ai: completer, logger: logger.Named("relevance")}
}

type scoredItem struct {
	Name           string     `json:"name"`
	Website        string     `json:"website"`
	Address        string     `json:"address"`
	Phone          string     `json:"phone"`
	RelevanceScore ai.FlexInt `json:"relevanceScore"`
}

// Filter scores candidates. It never drops candidates on failure: when AI is
// not configured or its answer cannot be used, the input is returned in order
// with NeutralScore.
func (f *Filter) Filter(ctx context.Context, candidates []leads.Candidate, sector, area string) []leads.ScoredCandidate {
	if len(candidates) == 0 {
		return []leads.ScoredCandidate{}
	}
	if f.ai == nil {
		return Neutral(candidates)
	}

	start := time.Now()
	scored, err := f.score(ctx, candidates, sector, area)
	if err != nil {
		f.logger.Warn("scoring unavailable, using neutral scores",
			zap.Int("candidates", len(candidates)),
			zap.String("error", redact.Secrets(err.Error())),
		)
		return Neutral(candidates)
	}
	f.logger.Info("scored candidates",
		zap.Int("in", len(candidates)),
		zap.Int("out", len(scored)),
		zap.Duration("duration", time.Since(start)),
	)
	return scored
}

func (f *Filter) score(ctx context.Context, candidates []leads.Candidate, sector, area string) ([]leads.ScoredCandidate, error) {
	prompt, err := buildPrompt(candidates, sector, area)
	if err != nil {
		return nil, err
	}
	answer, err := f.ai.Complete(ctx, ai.Request{
		Prompt:      prompt,
		Temperature: ai.DefaultTemperature,
		MaxTokens:   maxScoringTokens,
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(answer) == "" {
		return nil, fmt.Errorf("empty scoring answer")
	}

	var items []scoredItem
	if err := ai.DecodeStrictJSON(answer, &items); err != nil {
		return nil, err
	}
	if items == nil {
		return nil, fmt.Errorf("scoring answer is not an array")
	}

	out := make([]leads.ScoredCandidate, 0, len(items))
	for _, it := range items {
		name := strings.TrimSpace(it.Name)
		if name == "" {
			continue
		}
		out = append(out, leads.ScoredCandidate{
			Candidate: leads.Candidate{
				Name:    name,
				Website: strings.TrimSpace(it.Website),
				Address: strings.TrimSpace(it.Address),
				Phone:   strings.TrimSpace(it.Phone),
			},
			RelevanceScore: clamp(int(it.RelevanceScore)),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RelevanceScore > out[j].RelevanceScore
	})
	return out, nil
}

// Neutral returns candidates in order, each scored NeutralScore.
func Neutral(candidates []leads.Candidate) []leads.ScoredCandidate {
	out := make([]leads.ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, leads.ScoredCandidate{Candidate: c, RelevanceScore: NeutralScore})
	}
	return out
}

// Keep returns the candidates scoring at least min, preserving order.
func Keep(scored []leads.ScoredCandidate, min int) []leads.ScoredCandidate {
	out := make([]leads.ScoredCandidate, 0, len(scored))
	for _, s := range scored {
		if s.RelevanceScore >= min {
			out = append(out, s)
		}
	}
	return out
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func buildPrompt(candidates []leads.Candidate, sector, area string) (string, error) {
	raw, err := json.MarshalIndent(candidates, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode candidates: %w", err)
	}
	return strings.TrimSpace(fmt.Sprintf(`
Tu es un expert en validation de données d'entreprises françaises.

CONTEXTE:
- Secteur recherché: %s
- Zone géographique: %s

RÉSULTATS BRUTS (%d entreprises):
%s

TÂCHE:
Pour chaque entreprise, évalue sa pertinence (score 0-100) par rapport au secteur et à la zone:
- 100 = correspond parfaitement au secteur ET à la zone géographique
- 50-99 = correspond au secteur mais zone incertaine
- 0-49 = ne correspond pas au secteur ou zone incorrecte
Corrige les noms d'entreprises si nécessaire (enlève les suffixes inutiles, normalise).

RÉPONDS UNIQUEMENT EN JSON VALIDE (sans markdown):
[
  {
    "name": "Nom corrigé",
    "website": "https://...",
    "address": "adresse",
    "phone": "téléphone",
    "relevanceScore": 85
  }
]

Trie par score de pertinence décroissant.
`, sector, area, len(candidates), raw)), nil
}
