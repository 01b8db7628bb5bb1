package agents

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"sigma-trader/internal/knowledge"
	"sigma-trader/internal/llm"
	"sigma-trader/internal/logging"
	"sigma-trader/internal/models"
)

// Sentiment tags.
const (
	SentimentBullish  = "Bullish"
	SentimentBearish  = "Bearish"
	SentimentNeutral  = "Neutral"
	SentimentVolatile = "Volatile"
)

// NewsTopic is the knowledge topic holding market headlines.
const NewsTopic = "market news"

const researchSystemPrompt = `You are a senior market analyst covering Indian index options.
Summarize the headlines below for an options seller.
Focus on the volatility index, FII/DII flows, global cues and scheduled events.
Conclude with a line "Sentiment: <Bullish|Bearish|Neutral|Volatile>".`

var sentimentPattern = regexp.MustCompile(`(?i)\b(bullish|bearish|neutral|volatile)\b`)

// Researcher summarizes market news into a sentiment-tagged summary.
type Researcher struct {
	BaseAgent
	knowledge knowledge.Lookup
	limit     int
}

// NewResearcher creates a researcher. A nil lookup yields no headlines.
func NewResearcher(client llm.Client, lookup knowledge.Lookup, route Route) *Researcher {
	return &Researcher{
		BaseAgent: NewBaseAgent(NodeResearcher, client, route),
		knowledge: lookup,
		limit:     5,
	}
}

// Research produces the run's research summary. It never fails: lookup and
// generation errors degrade to a rule-based summary with an annotation.
func (r *Researcher) Research(ctx context.Context, market *models.MarketSnapshot) models.ResearchSummary {
	logger := logging.FromContext(ctx).With().Str("agent", r.name).Logger()

	var notes []string
	headlines, err := r.headlines(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("News lookup failed")
		notes = append(notes, "news lookup failed: "+err.Error())
	}

	resp, err := r.ask(ctx, researchSystemPrompt, r.buildPrompt(market, headlines))
	if err != nil {
		notes = append(notes, "research generation failed; rule-based sentiment used")
		return models.ResearchSummary{
			Summary:     fallbackSummary(headlines),
			Sentiment:   estimateSentiment(strings.Join(headlines, " ")),
			Headlines:   headlines,
			Annotations: annotations(notes...),
		}
	}

	sentiment := ExtractSentiment(resp.Text)
	if sentiment == "" {
		sentiment = SentimentNeutral
		notes = append(notes, "no sentiment tag in research response; Neutral assumed")
	}
	logger.Debug().Str("sentiment", sentiment).Str("provider", resp.Provider).Msg("Research complete")

	return models.ResearchSummary{
		Summary:     strings.TrimSpace(resp.Text),
		Sentiment:   sentiment,
		Headlines:   headlines,
		Provider:    resp.Provider,
		Model:       resp.Model,
		Annotations: annotations(append(notes, r.fallbackNote(resp))...),
	}
}

func (r *Researcher) headlines(ctx context.Context) ([]string, error) {
	if r.knowledge == nil {
		return nil, nil
	}
	snippets, err := r.knowledge.Lookup(ctx, NewsTopic, r.limit)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(snippets))
	for _, s := range snippets {
		out = append(out, s.Content)
	}
	return out, nil
}

func (r *Researcher) buildPrompt(market *models.MarketSnapshot, headlines []string) string {
	var sb strings.Builder
	if market != nil {
		sb.WriteString(fmt.Sprintf("Underlying: %s\n", market.Symbol))
		sb.WriteString(fmt.Sprintf("Spot: %.2f\n", market.Spot))
		sb.WriteString(fmt.Sprintf("India VIX: %.2f\n\n", market.VolIndex))
	}
	sb.WriteString("Headlines:\n")
	if len(headlines) == 0 {
		sb.WriteString("- No headlines available.\n")
	}
	for _, h := range headlines {
		sb.WriteString("- " + h + "\n")
	}
	return sb.String()
}

// ExtractSentiment returns the last sentiment tag in text, or "".
func ExtractSentiment(text string) string {
	matches := sentimentPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return ""
	}
	last := strings.ToLower(matches[len(matches)-1])
	return strings.ToUpper(last[:1]) + last[1:]
}

func fallbackSummary(headlines []string) string {
	if len(headlines) == 0 {
		return "No news available."
	}
	return strings.Join(headlines, "\n")
}

var (
	positiveWords = anyWordPattern([]string{
		"surge", "surges", "rally", "rallies", "gain", "gains", "bullish", "upgrade", "strong",
		"positive", "record", "inflow", "inflows", "buying", "optimistic",
	})
	negativeWords = anyWordPattern([]string{
		"fall", "falls", "drop", "drops", "decline", "declines", "bearish", "downgrade", "weak",
		"negative", "outflow", "outflows", "selling", "concern", "concerns", "pessimistic",
	})
	volatileWords = anyWordPattern([]string{"volatile", "volatility spike", "uncertain", "war", "crash"})
)

// estimateSentiment tags text by counting whole directional words.
func estimateSentiment(content string) string {
	positiveCount := len(positiveWords.FindAllStringIndex(content, -1))
	negativeCount := len(negativeWords.FindAllStringIndex(content, -1))
	volatileCount := len(volatileWords.FindAllStringIndex(content, -1))

	switch {
	case volatileCount > 0 && volatileCount >= positiveCount && volatileCount >= negativeCount:
		return SentimentVolatile
	case positiveCount > negativeCount:
		return SentimentBullish
	case negativeCount > positiveCount:
		return SentimentBearish
	default:
		return SentimentNeutral
	}
}
