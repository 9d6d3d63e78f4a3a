// Package contact turns a business website into contact email results.
//
// Each candidate goes through three strategies in order: AI extraction from
// the fetched page, a regex harvest of the page HTML, and finally synthesized
// contact@/info@ placeholders for the website's host.
package contact

import (
	"context"
	"fmt"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"go.uber.org/zap"

	"github.com/palantir/business-contact-pipeline/internal/ai"
	"github.com/palantir/business-contact-pipeline/internal/leads"
	"github.com/palantir/business-contact-pipeline/pkg/pipeline/core"
	"github.com/palantir/business-contact-pipeline/pkg/pipeline/redact"
)

const (
	maxPromptContent   = 8000
	maxExtractionToken = 500
)

// PageFetcher downloads a website.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string, timeout time.Duration) (Page, error)
}

type Extractor struct {
	fetcher PageFetcher
	ai      ai.Completer
	logger  *zap.Logger
	chain   *core.Chain[target, []leads.ContactResult]
}

// New returns an Extractor. A nil completer disables AI extraction.
func New(fetcher PageFetcher, completer ai.Completer, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fetcher == nil {
		fetcher = NewFetcher()
	}
	e := &Extractor{fetcher: fetcher, ai: completer, logger: logger.Named("contact")}
	e.chain = core.NewChain[target, []leads.ContactResult](
		core.StrategyFunc[target, []leads.ContactResult]{Label: "ai", Fn: e.fromAI},
		core.StrategyFunc[target, []leads.ContactResult]{Label: "regex", Fn: fromHarvest},
		core.StrategyFunc[target, []leads.ContactResult]{Label: "placeholder", Fn: fromPlaceholders},
	)
	return e
}

// target is the per-candidate input shared by the strategies.
type target struct {
	candidate leads.Candidate
	sector    string
	area      string
	page      Page
	fetchErr  error
}

func (t target) fetched() bool { return t.fetchErr == nil }

func (t target) result(email string, origin leads.EmailOrigin) leads.ContactResult {
	return leads.ContactResult{
		BusinessName: t.candidate.Name,
		Website:      t.candidate.Website,
		Email:        email,
		Phone:        t.candidate.Phone,
		Address:      t.candidate.Address,
		City:         t.area,
		EmailSource:  t.candidate.Website,
		Origin:       origin,
	}
}

// Extract returns the contact results for one candidate. It never fails:
// any error, including a panic, yields no results.
func (e *Extractor) Extract(ctx context.Context, c leads.Candidate, sector, area string) (out []leads.ContactResult) {
	if strings.TrimSpace(c.Website) == "" {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("extraction panicked",
				zap.String("business", c.Name),
				zap.String("panic", fmt.Sprint(r)),
			)
			out = nil
		}
	}()

	start := time.Now()
	timeout := HarvestTimeout
	if e.ai != nil {
		timeout = FullPageTimeout
	}
	page, err := e.fetcher.Fetch(ctx, c.Website, timeout)
	if err != nil {
		e.logger.Debug("website fetch failed",
			zap.String("website", c.Website),
			zap.String("error", redact.Secrets(err.Error())),
		)
	}

	t := target{candidate: c, sector: sector, area: area, page: page, fetchErr: err}
	results, strategy, attempts, err := e.chain.Run(ctx, t)
	if err != nil {
		fields := []zap.Field{zap.String("business", c.Name), zap.String("error", redact.Secrets(err.Error()))}
		for _, a := range attempts {
			if a.Err != nil {
				fields = append(fields, zap.String(a.Strategy, redact.Secrets(a.Err.Error())))
			}
		}
		e.logger.Warn("no contact extracted", fields...)
		return nil
	}
	e.logger.Debug("contact extracted",
		zap.String("business", c.Name),
		zap.String("strategy", strategy),
		zap.Int("emails", len(results)),
		zap.Duration("duration", time.Since(start)),
	)
	return results
}

type extraction struct {
	BusinessName   string         `json:"businessName"`
	Email          ai.FlexStrings `json:"email"`
	Phone          ai.FlexStrings `json:"phone"`
	Address        string         `json:"address"`
	Website        string         `json:"website"`
	IsRelevant     *bool          `json:"isRelevant"`
	RelevanceScore ai.FlexInt     `json:"relevanceScore"`
	ExtractedInfo  string         `json:"extractedInfo"`
}

func (e *Extractor) fromAI(ctx context.Context, t target) ([]leads.ContactResult, error) {
	if e.ai == nil {
		return nil, core.Unavailable("ai not configured")
	}
	if !t.fetched() {
		return nil, core.Unavailable("page not fetched")
	}
	answer, err := e.ai.Complete(ctx, ai.Request{
		Prompt:      extractionPrompt(t.page.URL, t.sector, t.area, pageContent(t.page.HTML)),
		Temperature: ai.DefaultTemperature,
		MaxTokens:   maxExtractionToken,
	})
	if err != nil {
		return nil, core.Unavailable("ai call: %v", err)
	}
	var x extraction
	if err := ai.DecodeJSON(answer, &x); err != nil {
		return nil, core.Unavailable("ai answer: %v", err)
	}
	if x.IsRelevant == nil {
		return nil, core.Unavailable("ai answer has no isRelevant verdict")
	}
	if !*x.IsRelevant {
		return nil, core.Unavailable("page judged not relevant (score %d)", int(x.RelevanceScore))
	}
	emails := leads.NormalizeEmails(x.Email)
	if len(emails) == 0 {
		return nil, core.Unavailable("no usable email in ai answer")
	}

	out := make([]leads.ContactResult, 0, len(emails))
	for _, email := range emails {
		r := t.result(email, leads.OriginAI)
		if name := strings.TrimSpace(x.BusinessName); name != "" {
			r.BusinessName = name
		}
		if phone := x.Phone.First(); phone != "" {
			r.Phone = phone
		}
		if addr := strings.TrimSpace(x.Address); addr != "" {
			r.Address = addr
		}
		out = append(out, r)
	}
	return out, nil
}

func fromHarvest(_ context.Context, t target) ([]leads.ContactResult, error) {
	if !t.fetched() {
		return nil, core.Unavailable("page not fetched")
	}
	emails := Harvest(t.page.HTML)
	if len(emails) == 0 {
		return nil, core.Unavailable("no email in page")
	}
	out := make([]leads.ContactResult, 0, len(emails))
	for _, email := range emails {
		out = append(out, t.result(email, leads.OriginRegex))
	}
	return out, nil
}

func fromPlaceholders(_ context.Context, t target) ([]leads.ContactResult, error) {
	emails := Placeholders(t.candidate.Website)
	if len(emails) == 0 {
		return nil, core.Unavailable("no hostname in %q", t.candidate.Website)
	}
	out := make([]leads.ContactResult, 0, len(emails))
	for _, email := range emails {
		out = append(out, t.result(email, leads.OriginPlaceholder))
	}
	return out, nil
}

// pageContent converts html to Markdown for the prompt, keeping the raw HTML
// when conversion fails, and truncates it.
func pageContent(html string) string {
	content := html
	if md, err := htmltomarkdown.ConvertString(html); err == nil && strings.TrimSpace(md) != "" {
		content = md
	}
	return ai.Truncate(content, maxPromptContent)
}

func extractionPrompt(pageURL, sector, area, content string) string {
	return strings.TrimSpace(fmt.Sprintf(`
Tu es un expert en extraction de données d'entreprises françaises. Analyse cette page web et extrais les informations suivantes :

CONTEXTE DE RECHERCHE:
- Secteur attendu : %[2]s
- Département/Ville : %[3]s

PAGE WEB:
URL: %[1]s
CONTENU:
%[4]s

TÂCHE:
1. Détermine si cette page correspond VRAIMENT à une entreprise du secteur "%[2]s" dans la zone "%[3]s"
2. Extrais les informations suivantes (si disponibles):
   - Nom exact de l'entreprise
   - Email(s) de contact (pas de noreply/donotreply)
   - Téléphone(s) français
   - Adresse complète
   - Site web
3. Donne un score de pertinence de 0 à 100:
   - 100 = correspond parfaitement au secteur ET à la zone géographique
   - 50-99 = correspond au secteur mais zone incertaine
   - 0-49 = ne correspond pas au secteur ou zone incorrecte

RÉPONDS UNIQUEMENT EN JSON VALIDE (sans markdown):
{
  "businessName": "nom exact",
  "email": ["email1@example.com"],
  "phone": ["+33123456789"],
  "address": "adresse complète",
  "website": "%[1]s",
  "isRelevant": true,
  "relevanceScore": 85,
  "extractedInfo": "brève explication de ce que fait l'entreprise"
}
`, pageURL, sector, area, content))
}
