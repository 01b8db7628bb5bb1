package agents

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"sigma-trader/internal/config"
	"sigma-trader/internal/errors"
	"sigma-trader/internal/models"
)

// ParseStage names the parser stage that produced a result.
type ParseStage string

const (
	StageStructured ParseStage = "structured"
	StageKeyword    ParseStage = "keyword"
	StageDefault    ParseStage = "default"
)

const strategySchema = `{
	"type": "object",
	"required": ["strategy"],
	"properties": {
		"strategy": {"type": "string", "minLength": 1},
		"recommended_sigma": {"type": ["number", "string"]},
		"sigma": {"type": ["number", "string"]},
		"rationale": {"type": "string"},
		"constraints": {"type": "string"}
	}
}`

const riskSchema = `{
	"type": "object",
	"required": ["decision"],
	"properties": {
		"decision": {"type": "string", "enum": ["approved", "rejected", "approve", "reject", "APPROVED", "REJECTED", "Approved", "Rejected"]},
		"reason": {"type": "string"}
	}
}`

const monitorSchema = `{
	"type": "object",
	"required": ["decision"],
	"properties": {
		"decision": {"type": "string", "enum": ["HOLD", "ADJUST", "EXIT", "hold", "adjust", "exit", "Hold", "Adjust", "Exit"]},
		"reason": {"type": "string"}
	}
}`

// StrategyParse is the structured reading of a strategist response.
type StrategyParse struct {
	Strategy    models.Strategy
	Sigma       float64
	SigmaFound  bool
	Rationale   string
	Constraints string
	Stage       ParseStage
}

// RiskParse is the structured reading of a risk manager response.
type RiskParse struct {
	Decision models.RiskDecision
	Reason   string
	Stage    ParseStage
}

// MonitorParse is the structured reading of a position monitor response.
type MonitorParse struct {
	Action models.PositionAction
	Reason string
	Stage  ParseStage
}

// Parser turns free-text generation output into decisions in two stages:
// a schema-checked JSON decode, then a keyword match over a fixed vocabulary.
// When both fail it returns the fail-closed default together with an error
// wrapping ErrGenerationAmbiguous.
type Parser struct {
	strategies []phrase
	approve    *regexp.Regexp
	reject     *regexp.Regexp
	sigma      *regexp.Regexp
	monitor    []actionPattern

	strategySchema *jsonschema.Schema
	riskSchema     *jsonschema.Schema
	monitorSchema  *jsonschema.Schema
}

type phrase struct {
	re       *regexp.Regexp
	strategy models.Strategy
}

type actionPattern struct {
	re     *regexp.Regexp
	action models.PositionAction
}

// NewParser compiles the vocabulary and response schemas.
func NewParser(v config.Vocabulary) (*Parser, error) {
	p := &Parser{}
	for _, ph := range v.Strategies {
		s, err := models.ParseStrategy(ph.Strategy)
		if err != nil {
			return nil, fmt.Errorf("vocabulary phrase %q: %w", ph.Match, err)
		}
		p.strategies = append(p.strategies, phrase{re: wordPattern(strings.Fields(ph.Match)...), strategy: s})
	}
	if len(p.strategies) == 0 {
		return nil, errors.NewValidationError("vocabulary.strategies", nil, "must not be empty")
	}
	if len(v.Approve) == 0 || len(v.Reject) == 0 {
		return nil, errors.NewValidationError("vocabulary.approve/reject", nil, "must not be empty")
	}
	p.approve = anyWordPattern(v.Approve)
	p.reject = anyWordPattern(v.Reject)

	pattern := v.SigmaPattern
	if pattern == "" {
		pattern = config.DefaultVocabulary().SigmaPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.NewValidationError("vocabulary.sigma_pattern", pattern, err.Error())
	}
	if re.NumSubexp() < 1 {
		return nil, errors.NewValidationError("vocabulary.sigma_pattern", pattern, "needs one capture group")
	}
	p.sigma = re

	p.monitor = []actionPattern{
		{re: anyWordPattern([]string{"exit", "close"}), action: models.PositionExit},
		{re: anyWordPattern([]string{"adjust", "roll", "hedge"}), action: models.PositionAdjust},
		{re: anyWordPattern([]string{"hold"}), action: models.PositionHold},
	}

	if p.strategySchema, err = compileSchema("strategy.json", strategySchema); err != nil {
		return nil, err
	}
	if p.riskSchema, err = compileSchema("risk.json", riskSchema); err != nil {
		return nil, err
	}
	if p.monitorSchema, err = compileSchema("monitor.json", monitorSchema); err != nil {
		return nil, err
	}
	return p, nil
}

// MustParser is NewParser for the built-in vocabulary.
func MustParser() *Parser {
	p, err := NewParser(config.DefaultVocabulary())
	if err != nil {
		panic(err)
	}
	return p
}

func compileSchema(name, schema string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(schema)); err != nil {
		return nil, err
	}
	return compiler.Compile(name)
}

func wordPattern(words ...string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(strings.ToLower(w))
	}
	return regexp.MustCompile(`(?i)\b` + strings.Join(quoted, `\s+`) + `\b`)
}

func anyWordPattern(words []string) *regexp.Regexp {
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			quoted = append(quoted, regexp.QuoteMeta(w))
		}
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// ExtractJSON returns the first JSON object in text, looking inside a code
// fence first.
func ExtractJSON(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	if block, ok := fenced(text); ok {
		if obj, ok := firstObject(block); ok {
			return obj, true
		}
	}
	return firstObject(text)
}

func fenced(text string) (string, bool) {
	const fence = "```"
	start := strings.Index(text, fence)
	if start == -1 {
		return "", false
	}
	rest := text[start+len(fence):]
	end := strings.Index(rest, fence)
	if end == -1 {
		return "", false
	}
	block := strings.TrimLeft(rest[:end], "\r\n")
	if idx := strings.Index(block, "\n"); idx != -1 {
		// drop a language tag such as "json"
		if first := strings.TrimSpace(block[:idx]); first != "" && !strings.ContainsAny(first, "{[") {
			block = block[idx+1:]
		}
	}
	return strings.TrimSpace(block), true
}

func firstObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	if start == -1 {
		return "", false
	}
	depth := 0
	inString, escape := false, false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escape:
				escape = false
			case ch == '\\':
				escape = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				obj := text[start : i+1]
				if gjson.Valid(obj) {
					return obj, true
				}
				return "", false
			}
		}
	}
	return "", false
}

// structured extracts and schema-checks the JSON object in text.
func structured(schema *jsonschema.Schema, text string) (gjson.Result, bool) {
	raw, ok := ExtractJSON(text)
	if !ok {
		return gjson.Result{}, false
	}
	var doc interface{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return gjson.Result{}, false
	}
	if err := schema.Validate(doc); err != nil {
		return gjson.Result{}, false
	}
	return gjson.Parse(raw), true
}

// ParseStrategy reads a strategist response. The default is the lowest-risk
// strategy at the default sigma.
func (p *Parser) ParseStrategy(text string) (StrategyParse, error) {
	if doc, ok := p.structuredStrategy(text); ok {
		return doc, nil
	}

	out := StrategyParse{Rationale: strings.TrimSpace(text), Stage: StageKeyword}
	for _, ph := range p.strategies {
		if ph.re.MatchString(text) {
			out.Strategy = ph.strategy
			break
		}
	}
	if m := p.sigma.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			out.Sigma, out.SigmaFound = v, true
		}
	}
	if out.Strategy != "" {
		return out, nil
	}
	return StrategyParse{
		Strategy: models.DefaultStrategy,
		Sigma:    models.DefaultSigmaMult,
		Stage:    StageDefault,
	}, errors.Wrap(errors.ErrGenerationAmbiguous, "no strategy in response")
}

func (p *Parser) structuredStrategy(text string) (StrategyParse, bool) {
	doc, ok := structured(p.strategySchema, text)
	if !ok {
		return StrategyParse{}, false
	}
	s, err := models.ParseStrategy(doc.Get("strategy").String())
	if err != nil {
		return StrategyParse{}, false
	}
	out := StrategyParse{
		Strategy:    s,
		Rationale:   doc.Get("rationale").String(),
		Constraints: doc.Get("constraints").String(),
		Stage:       StageStructured,
	}
	for _, key := range []string{"recommended_sigma", "sigma"} {
		if v := doc.Get(key); v.Exists() {
			if f, err := strconv.ParseFloat(strings.TrimSpace(v.String()), 64); err == nil {
				out.Sigma, out.SigmaFound = f, true
				break
			}
		}
	}
	return out, true
}

// ParseRisk reads a risk manager response. Reject keywords are checked
// before approve keywords, and anything inconclusive is rejected.
func (p *Parser) ParseRisk(text string) (RiskParse, error) {
	if doc, ok := structured(p.riskSchema, text); ok {
		d := models.RiskRejected
		if strings.HasPrefix(strings.ToLower(doc.Get("decision").String()), "approve") {
			d = models.RiskApproved
		}
		return RiskParse{Decision: d, Reason: doc.Get("reason").String(), Stage: StageStructured}, nil
	}

	switch {
	case p.reject.MatchString(text):
		return RiskParse{Decision: models.RiskRejected, Reason: strings.TrimSpace(text), Stage: StageKeyword}, nil
	case p.approve.MatchString(text):
		return RiskParse{Decision: models.RiskApproved, Reason: strings.TrimSpace(text), Stage: StageKeyword}, nil
	}
	return RiskParse{
		Decision: models.RiskRejected,
		Reason:   "could not determine decision; rejected for safety",
		Stage:    StageDefault,
	}, errors.Wrap(errors.ErrGenerationAmbiguous, "no approve or reject keyword in response")
}

// ParseMonitor reads a position monitor response. Inconclusive answers hold.
func (p *Parser) ParseMonitor(text string) (MonitorParse, error) {
	if doc, ok := structured(p.monitorSchema, text); ok {
		return MonitorParse{
			Action: models.PositionAction(strings.ToUpper(doc.Get("decision").String())),
			Reason: doc.Get("reason").String(),
			Stage:  StageStructured,
		}, nil
	}
	for _, ap := range p.monitor {
		if ap.re.MatchString(text) {
			return MonitorParse{Action: ap.action, Reason: strings.TrimSpace(text), Stage: StageKeyword}, nil
		}
	}
	return MonitorParse{Action: models.PositionHold, Stage: StageDefault},
		errors.Wrap(errors.ErrGenerationAmbiguous, "no position action in response")
}
