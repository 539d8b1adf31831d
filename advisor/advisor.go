// Package advisor answers decision and batch queries with either the risk
// rule set or the trained classifier.
package advisor

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/liamcoop/irrigation/batch"
	"github.com/liamcoop/irrigation/classifier"
	"github.com/liamcoop/irrigation/crops"
	"github.com/liamcoop/irrigation/i18n"
	"github.com/liamcoop/irrigation/internal/logger"
	"github.com/liamcoop/irrigation/irrigation"
	"github.com/liamcoop/irrigation/metrics"
	"github.com/liamcoop/irrigation/notify"
)

// Mode selects the decision back-end
type Mode string

const (
	ModeRules Mode = "rules"
	ModeModel Mode = "model"
)

// VerdictColumn is the column appended by Batch
const VerdictColumn = "verdict"

// ParseMode accepts "rules" and "model" in any case; empty means rules
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeRules:
		return ModeRules, nil
	case ModeModel:
		return ModeModel, nil
	}
	return "", fmt.Errorf("unknown mode %q: %w", s, irrigation.ErrInvalidInput)
}

// ParseModes is ParseMode plus "both", which asks for the rule verdict and
// then the model verdict
func ParseModes(s string) ([]Mode, error) {
	if strings.EqualFold(strings.TrimSpace(s), "both") {
		return []Mode{ModeRules, ModeModel}, nil
	}
	m, err := ParseMode(s)
	if err != nil {
		return nil, err
	}
	return []Mode{m}, nil
}

// RiskClassifier produces the three-level verdict and the id of the rule
// that decided it
type RiskClassifier interface {
	Classify(s irrigation.EnvironmentSample, cropIdx int) (irrigation.Verdict, string)
}

// Query is one decision request
type Query struct {
	SoilMoisture float64 `json:"soil"`
	Temperature  float64 `json:"temp"`
	Humidity     float64 `json:"humidity"`
	Crop         string  `json:"crop"`
	Region       string  `json:"region,omitempty"`
}

func (q Query) Sample() irrigation.EnvironmentSample {
	return irrigation.EnvironmentSample{
		SoilMoisture: q.SoilMoisture,
		Temperature:  q.Temperature,
		Humidity:     q.Humidity,
	}
}

// Result is a decision with everything needed to present it
type Result struct {
	Mode           Mode                `json:"mode"`
	Verdict        irrigation.Verdict  `json:"verdict"`
	RuleID         string              `json:"ruleId,omitempty"`
	Probability    *float64            `json:"probability,omitempty"`
	Crop           string              `json:"crop"`
	CropIndex      int                 `json:"cropIndex"`
	CropKnown      bool                `json:"cropKnown"`
	Region         string              `json:"region,omitempty"`
	RegionKnown    bool                `json:"regionKnown,omitempty"`
	InRegion       bool                `json:"inRegion,omitempty"`
	Recommendation i18n.Recommendation `json:"recommendation"`
	Notes          []string            `json:"notes,omitempty"`
}

type Advisor struct {
	catalog     *crops.Catalog
	risk        RiskClassifier
	model       *classifier.Provider
	messages    *i18n.Catalog
	publisher   notify.Publisher
	metrics     *metrics.Recorder
	defaultLang string
}

type Option func(*Advisor)

// WithPublisher sends a DecisionEvent for every Decide call
func WithPublisher(p notify.Publisher) Option {
	return func(a *Advisor) { a.publisher = p }
}

func WithMetrics(r *metrics.Recorder) Option {
	return func(a *Advisor) { a.metrics = r }
}

// WithMessages replaces the built-in recommendation texts
func WithMessages(c *i18n.Catalog) Option {
	return func(a *Advisor) { a.messages = c }
}

// WithDefaultLanguage is used when a query names no language
func WithDefaultLanguage(lang string) Option {
	return func(a *Advisor) { a.defaultLang = lang }
}

func New(catalog *crops.Catalog, risk RiskClassifier, model *classifier.Provider, opts ...Option) *Advisor {
	a := &Advisor{
		catalog:     catalog,
		risk:        risk,
		model:       model,
		messages:    i18n.Default(),
		publisher:   notify.NopPublisher{},
		metrics:     metrics.New(),
		defaultLang: i18n.English,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Advisor) Catalog() *crops.Catalog { return a.catalog }

func (a *Advisor) Model() *classifier.Provider { return a.model }

// Language resolves a language tag or Accept-Language header to one of the
// supported message languages
func (a *Advisor) Language(accept string) string {
	if strings.TrimSpace(accept) == "" {
		accept = a.defaultLang
	}
	return a.messages.Match(accept)
}

// crop resolves a crop name. Unknown names map to the default index and
// are counted, never rejected.
func (a *Advisor) crop(name string) (idx int, display string, known bool) {
	idx, known = a.catalog.Index(name)
	if !known {
		a.metrics.UnknownCrop()
		logger.Debug("unknown crop, using default index", "crop", name, "index", idx)
	}

	display = strings.TrimSpace(name)
	switch {
	case known:
		display = a.catalog.Name(idx)
	case display == "":
		display = a.catalog.Name(idx)
	}
	return idx, display, known
}

// verdict runs one back-end. The model is fitted on first use.
func (a *Advisor) verdict(ctx context.Context, mode Mode, s irrigation.EnvironmentSample, idx int) (v irrigation.Verdict, ruleID string, prob *float64, err error) {
	switch mode {
	case ModeRules:
		v, ruleID = a.risk.Classify(s, idx)
		return v, ruleID, nil, nil
	case ModeModel:
		m, err := a.model.Model(ctx)
		if err != nil {
			return "", "", nil, fmt.Errorf("classifier unavailable: %w", err)
		}
		v, p := m.Decide(s, idx)
		return v, "", &p, nil
	}
	return "", "", nil, fmt.Errorf("unknown mode %q: %w", mode, irrigation.ErrInvalidInput)
}

// Decide answers one query. lang may be a tag or an Accept-Language value.
// Event publishing failures are logged and counted but never fail the
// decision.
func (a *Advisor) Decide(ctx context.Context, q Query, mode Mode, lang string) (*Result, error) {
	idx, crop, known := a.crop(q.Crop)
	return a.decide(ctx, q, mode, lang, idx, crop, known)
}

// DecideAll answers one query with each mode in order. The crop is resolved
// once for the whole query.
func (a *Advisor) DecideAll(ctx context.Context, q Query, modes []Mode, lang string) ([]*Result, error) {
	idx, crop, known := a.crop(q.Crop)
	results := make([]*Result, 0, len(modes))
	for _, mode := range modes {
		res, err := a.decide(ctx, q, mode, lang, idx, crop, known)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (a *Advisor) decide(ctx context.Context, q Query, mode Mode, lang string, idx int, crop string, known bool) (*Result, error) {
	s := q.Sample()

	v, ruleID, prob, err := a.verdict(ctx, mode, s, idx)
	if err != nil {
		return nil, err
	}

	lang = a.Language(lang)
	res := &Result{
		Mode:           mode,
		Verdict:        v,
		RuleID:         ruleID,
		Probability:    prob,
		Crop:           crop,
		CropIndex:      idx,
		CropKnown:      known,
		Region:         strings.TrimSpace(q.Region),
		Recommendation: a.messages.Recommend(lang, v, crop),
	}

	if !known {
		res.Notes = append(res.Notes, a.messages.Render(lang, i18n.KeyUnknownCrop, a.catalog.Name(idx)))
	}
	if res.Region != "" {
		_, res.RegionKnown = a.catalog.Region(res.Region)
		res.InRegion = a.catalog.InRegion(res.Region, crop)
		if res.RegionKnown && !res.InRegion {
			res.Notes = append(res.Notes, a.messages.Render(lang, i18n.KeyRegionMismatch, crop))
		}
	}

	a.metrics.Decision(string(mode), string(v))
	logger.Debug("decision", "mode", mode, "verdict", v, "crop", crop, "rule", ruleID)

	ev := notify.NewDecisionEvent(string(mode), v, s, crop, idx, known, res.Region)
	if err := a.publisher.Publish(ctx, ev); err != nil {
		a.metrics.PublishFailure()
		logger.Warn("failed to publish decision event", "id", ev.ID, "error", err)
	}

	return res, nil
}

// Batch decides every row of a batch file and writes it back with a
// verdict column. Every row is decided before anything is written, so an
// invalid file produces no output at all.
func (a *Advisor) Batch(ctx context.Context, r io.Reader, w io.Writer, mode Mode) (int, error) {
	table, err := a.decideTable(ctx, r, mode)
	if err != nil {
		a.metrics.BatchFailure()
		return 0, err
	}

	if err := table.Write(w); err != nil {
		return 0, fmt.Errorf("write batch result: %w", err)
	}

	a.metrics.BatchRows(string(mode), table.Len())
	logger.Info("batch decided", "mode", mode, "rows", table.Len(), "columns", table.Columns())
	return table.Len(), nil
}

func (a *Advisor) decideTable(ctx context.Context, r io.Reader, mode Mode) (*batch.Table, error) {
	table, err := batch.Read(r)
	if err != nil {
		return nil, err
	}

	verdicts := make([]string, len(table.Records))
	for i, rec := range table.Records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		idx, _, _ := a.crop(rec.Crop)
		v, _, _, err := a.verdict(ctx, mode, rec.Sample, idx)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", rec.Line, err)
		}
		verdicts[i] = string(v)
	}

	if err := table.AppendColumn(VerdictColumn, verdicts); err != nil {
		return nil, err
	}
	return table, nil
}
