// Package trade builds persisted TradeRecords from post bodies: rule-based
// classification first, with an AI fallback when the rules are unsure. A
// strong existing record short-circuits everything, which is what keeps
// repeated runs over the same posts cheap.
package trade

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/forumkita/marketpulse/internal/classifier"
	"github.com/forumkita/marketpulse/internal/model"
	"github.com/forumkita/marketpulse/pkg/aiassist"
)

// aiParserVersion stamps records produced by the AI fallback.
const aiParserVersion = "ai-fallback-v1"

// aiConfidence is assigned to AI-produced records; the external classifier
// reports no score of its own.
const aiConfidence = 0.9

// defaultMinConfidence is the parse confidence below which a rule-based
// result is considered weak and the AI fallback is consulted. It is also the
// skip threshold for existing records.
const defaultMinConfidence = 0.7

// Builder wraps the rule-based classifier and the optional AI fallback.
type Builder struct {
	rules         *classifier.Classifier
	ai            aiassist.Client
	clock         func() time.Time
	minConfidence float64
}

// Option configures a Builder.
type Option func(*Builder)

// WithMinConfidence overrides the weak-result threshold. Raising it makes the
// builder reclassify more existing records and escalate more rule results to
// the AI fallback.
func WithMinConfidence(c float64) Option {
	return func(b *Builder) {
		b.minConfidence = c
	}
}

// NewBuilder creates a Builder. ai may be nil to disable the fallback;
// clock may be nil to use time.Now.
func NewBuilder(rules *classifier.Classifier, ai aiassist.Client, clock func() time.Time, opts ...Option) *Builder {
	if clock == nil {
		clock = time.Now
	}
	b := &Builder{rules: rules, ai: ai, clock: clock, minConfidence: defaultMinConfidence}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Build classifies a post into a TradeRecord. The returned bool is false
// when the existing record was strong enough to keep untouched (confidence
// at or above the threshold with a non-null price): in that case the
// existing record is returned byte-identical and no classifier runs.
//
// A weak rule-based result escalates to the AI classifier, but only for
// posts that pass the high-likelihood gate; AI output, when it is a priced
// trade, replaces the rule-based record wholesale. AI failures are swallowed
// and the rule-based result stands.
func (b *Builder) Build(ctx context.Context, post model.Post) (*model.TradeRecord, bool) {
	existing := post.ExtendedData.Trade
	if existing != nil && existing.ParseConfidence >= b.minConfidence && existing.NormalizedPrice != nil {
		return existing, false
	}

	rec := b.classifyRules(post.Body)

	if b.ai != nil && b.isWeak(rec) && b.rules.HasHighLikelihoodTradePattern(post.Body) {
		if aiRec := b.classifyAI(ctx, post); aiRec != nil {
			rec = aiRec
		}
	}

	return rec, true
}

func (b *Builder) classifyRules(body string) *model.TradeRecord {
	res := b.rules.Classify(body)

	rec := &model.TradeRecord{
		IsTrade:         res.HasIntent,
		ParseConfidence: res.Confidence,
		ParserVersion:   classifier.Version,
		ParsedAt:        b.clock().UTC(),
	}
	if !res.HasIntent {
		return rec
	}

	rec.Intent = res.Intent
	rec.Status = model.TradeStatusActive
	if res.Price != nil {
		rec.DisplayPrice = res.Price.Raw
		rec.NormalizedPrice = model.Float64Ptr(res.Price.Normalized)
		rec.Currency = res.Price.Currency
	}
	return rec
}

func (b *Builder) classifyAI(ctx context.Context, post model.Post) *model.TradeRecord {
	result, err := b.ai.ClassifyTrade(ctx, post.Body)
	if err != nil {
		zap.L().Warn("trade: ai classification failed, keeping rule-based result",
			zap.String("post_id", post.ID),
			zap.Error(err),
		)
		return nil
	}
	// Only a priced trade verdict replaces the rule-based record.
	if !result.IsTrade || result.NormalizedPrice == nil {
		return nil
	}

	return &model.TradeRecord{
		IsTrade:         true,
		Intent:          result.Intent,
		Status:          model.TradeStatusActive,
		DisplayPrice:    result.DisplayPrice,
		NormalizedPrice: result.NormalizedPrice,
		Currency:        result.Currency,
		Unit:            result.Unit,
		ParseConfidence: aiConfidence,
		ParserVersion:   aiParserVersion,
		ParsedAt:        b.clock().UTC(),
		AccountFeatures: result.AccountFeatures,
	}
}

func (b *Builder) isWeak(rec *model.TradeRecord) bool {
	return rec == nil || !rec.IsTrade || rec.ParseConfidence < b.minConfidence || rec.NormalizedPrice == nil
}
