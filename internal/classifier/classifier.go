// Package classifier implements the rule-based trade intent and price
// classifier for forum post bodies. It is pure: no network calls, no errors
// surfaced from classification itself. Bodies mix Indonesian slang and
// English, so keyword and price pattern sets cover both plus the S>/B>/T>
// shorthand.
package classifier

import (
	_ "embed"
	"os"
	"regexp"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/forumkita/marketpulse/internal/model"
)

// Version identifies the rule set revision stamped into TradeRecords.
const Version = "go-rules-v1"

//go:embed patterns.yaml
var embeddedPatterns []byte

// ruleFile mirrors the YAML document shape.
type ruleFile struct {
	Intents       []intentRuleYAML `yaml:"intents"`
	PricePatterns []priceRuleYAML  `yaml:"price_patterns"`
}

type intentRuleYAML struct {
	Intent   string   `yaml:"intent"`
	Patterns []string `yaml:"patterns"`
}

type priceRuleYAML struct {
	Name       string  `yaml:"name"`
	Regex      string  `yaml:"regex"`
	Currency   string  `yaml:"currency"`
	Multiplier float64 `yaml:"multiplier"`
	Confidence float64 `yaml:"confidence"`
}

type intentRule struct {
	intent   model.Intent
	patterns []*regexp.Regexp
}

type priceRule struct {
	name       string
	re         *regexp.Regexp
	currency   model.Currency
	multiplier float64
	confidence float64
}

// Classifier holds the compiled rule sets. Intent rules are evaluated in
// order with first-match priority (WTS before WTB before WTT); price rules
// are evaluated in order with first match winning.
type Classifier struct {
	intents []intentRule
	prices  []priceRule
}

// New compiles the embedded default rule sets.
func New() (*Classifier, error) {
	return compile(embeddedPatterns)
}

// NewFromFile compiles rule sets from a YAML file, for deployments that tune
// patterns without rebuilding.
func NewFromFile(path string) (*Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "classifier: read patterns %s", path)
	}
	return compile(data)
}

func compile(data []byte) (*Classifier, error) {
	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, eris.Wrap(err, "classifier: parse patterns")
	}
	if len(rf.Intents) == 0 || len(rf.PricePatterns) == 0 {
		return nil, eris.New("classifier: patterns file missing intents or price_patterns")
	}

	c := &Classifier{}
	for _, ir := range rf.Intents {
		rule := intentRule{intent: model.Intent(ir.Intent)}
		for _, p := range ir.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, eris.Wrapf(err, "classifier: compile intent pattern %q", p)
			}
			rule.patterns = append(rule.patterns, re)
		}
		c.intents = append(c.intents, rule)
	}
	for _, pr := range rf.PricePatterns {
		re, err := regexp.Compile(pr.Regex)
		if err != nil {
			return nil, eris.Wrapf(err, "classifier: compile price pattern %s", pr.Name)
		}
		c.prices = append(c.prices, priceRule{
			name:       pr.Name,
			re:         re,
			currency:   model.Currency(pr.Currency),
			multiplier: pr.Multiplier,
			confidence: pr.Confidence,
		})
	}
	return c, nil
}

// ParsedPrice is a price extracted from free text.
type ParsedPrice struct {
	Raw        string
	Normalized float64
	Currency   model.Currency
	Confidence float64
}

// Result is the outcome of classifying one post body.
type Result struct {
	Intent     model.Intent
	HasIntent  bool
	Price      *ParsedPrice
	Confidence float64
}

// Classify detects trade intent and extracts a price from a post body.
// No intent means not a trade: confidence 0, nothing else set. With an
// intent, confidence starts at 0.5 and an extracted price adds up to 0.3,
// capped at the winning pattern's own confidence.
func (c *Classifier) Classify(body string) Result {
	text := normalizeText(body)

	intent, ok := c.detectIntent(text)
	if !ok {
		return Result{}
	}

	res := Result{Intent: intent, HasIntent: true, Confidence: 0.5}
	if price, ok := c.parsePrice(text); ok {
		conf := res.Confidence + 0.3
		if conf > price.Confidence {
			conf = price.Confidence
		}
		res.Price = &price
		res.Confidence = conf
	}
	return res
}

// HasHighLikelihoodTradePattern gates expensive downstream classification:
// true only when the body carries both an intent keyword and a price
// indicator. Ordinary discussion posts fail this and are never sent to the
// AI fallback.
func (c *Classifier) HasHighLikelihoodTradePattern(body string) bool {
	text := normalizeText(body)
	if _, ok := c.detectIntent(text); !ok {
		return false
	}
	_, ok := c.parsePrice(text)
	return ok
}

// ParsePrice extracts a normalized price from free text. The boolean is
// false when no pattern matches.
func (c *Classifier) ParsePrice(text string) (ParsedPrice, bool) {
	return c.parsePrice(normalizeText(text))
}

func (c *Classifier) detectIntent(text string) (model.Intent, bool) {
	for _, rule := range c.intents {
		for _, re := range rule.patterns {
			if re.MatchString(text) {
				return rule.intent, true
			}
		}
	}
	return "", false
}

func (c *Classifier) parsePrice(text string) (ParsedPrice, bool) {
	for _, rule := range c.prices {
		m := rule.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		num, ok := normalizeNumber(m[1], rule.currency)
		if !ok {
			continue
		}
		return ParsedPrice{
			Raw:        m[0],
			Normalized: num * rule.multiplier,
			Currency:   rule.currency,
			Confidence: rule.confidence,
		}, true
	}
	return ParsedPrice{}, false
}
