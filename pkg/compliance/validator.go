// Package compliance validates an astrological engine configuration against
// its request contract, evaluates seven compliance domains and assembles a
// response that is itself checked against the response contract.
//
// Validation is deterministic: the same request with the same
// now_utc_override produces byte-identical canonical output, whichever
// goroutine runs it.
package compliance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bazodiac/bafe/pkg/canonicalize"
	"github.com/bazodiac/bafe/pkg/contracts"
	"github.com/bazodiac/bafe/pkg/issues"
	"github.com/bazodiac/bafe/pkg/observability"
	"github.com/bazodiac/bafe/pkg/refdata"
	"github.com/bazodiac/bafe/pkg/ruleset"
)

// RulesetSource resolves ruleset ids. *ruleset.Cache implements it.
type RulesetSource interface {
	Get(id string) (*ruleset.Descriptor, error)
}

// Validator runs validations. It is safe for concurrent use.
type Validator struct {
	rulesets   RulesetSource
	clock      func() time.Time
	logger     *slog.Logger
	obs        *observability.Provider
	evaluators []Evaluator
}

// Option configures a Validator.
type Option func(*Validator)

// WithClock sets the clock used when a request carries no now_utc_override.
func WithClock(clock func() time.Time) Option {
	return func(v *Validator) { v.clock = clock }
}

func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) { v.logger = l }
}

// WithRulesets sets the ruleset source. The default is a cache over the
// built-in rulesets.
func WithRulesets(src RulesetSource) Option {
	return func(v *Validator) { v.rulesets = src }
}

// WithInstrumentation sets the tracing and metrics provider.
func WithInstrumentation(p *observability.Provider) Option {
	return func(v *Validator) { v.obs = p }
}

// New creates a validator.
func New(opts ...Option) *Validator {
	v := &Validator{
		clock:      time.Now,
		logger:     slog.Default(),
		evaluators: DefaultEvaluators(),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.rulesets == nil {
		v.rulesets = ruleset.NewCache(ruleset.NewStore(ruleset.Embedded()), v.logger)
	}
	v.logger = v.logger.With("component", "compliance")
	if v.obs == nil {
		v.obs = observability.Noop()
	}
	return v
}

// ValidateJSON validates a raw JSON request body.
func (v *Validator) ValidateJSON(ctx context.Context, raw []byte) (*Response, error) {
	doc, err := decodeJSON(raw)
	if err != nil {
		return nil, &InputError{Message: "request body is not valid JSON: " + err.Error()}
	}
	return v.Validate(ctx, doc)
}

// Validate validates a decoded request document. Numbers may be float64 or
// json.Number. The error is an *InputError when the request breaks its
// contract, an error wrapping ErrInternalContract on a validator defect, or
// a plain error when a ruleset cannot be loaded.
func (v *Validator) Validate(ctx context.Context, doc any) (resp *Response, err error) {
	reqID := uuid.NewString()
	logger := v.logger.With("request_id", reqID)
	ctx, done := v.obs.TrackValidation(ctx, attribute.String("bafe.request_id", reqID))
	start := time.Now()
	defer func() {
		status := ""
		if resp != nil {
			status = string(resp.ComplianceStatus)
		}
		done(status, err)

		var inErr *InputError
		switch {
		case err == nil:
			logger.InfoContext(ctx, "validation complete",
				"compliance_status", status,
				"errors", len(resp.Errors),
				"warnings", len(resp.Warnings),
				"duration", time.Since(start),
			)
		case errors.As(err, &inErr):
			logger.InfoContext(ctx, "validation rejected", "path", inErr.Path, "reason", inErr.Message)
		case errors.Is(err, ErrInternalContract):
			logger.ErrorContext(ctx, "validator defect", "error", err)
		default:
			logger.WarnContext(ctx, "validation failed", "error", err)
		}
	}()

	ec, err := v.prepare(doc)
	if err != nil {
		return nil, err
	}
	return v.evaluate(ec)
}

// prepare checks the request contract, applies defaults and resolves
// everything the evaluators share.
func (v *Validator) prepare(doc any) (*EvalContext, error) {
	violation, err := contracts.ValidateRequest(doc)
	if err != nil {
		return nil, &DefectError{Message: "request contract unavailable", Err: err}
	}
	if violation != nil {
		return nil, &InputError{
			Path:    violation.Path,
			Message: "ValidateRequest schema violation: " + violation.Message,
		}
	}

	root, _ := doc.(map[string]any)
	engineIn, _ := root["engine_config"].(map[string]any)
	rawCfg := applyDefaults(engineIn)

	typed := make(map[string]any, len(root))
	for k, val := range root {
		typed[k] = val
	}
	typed["engine_config"] = rawCfg
	if m, ok := typed["refdata_manifest_inline"].(map[string]any); ok && len(m) == 0 {
		// An empty manifest declares nothing.
		delete(typed, "refdata_manifest_inline")
	}

	var req Request
	if err := remarshal(typed, &req); err != nil {
		return nil, &InputError{Message: "request does not decode: " + err.Error()}
	}

	if req.ValidateLevel == "" {
		req.ValidateLevel = LevelBasic
	}
	cfg := &req.EngineConfig

	now := v.clock().UTC()
	if req.NowUTCOverride != nil && *req.NowUTCOverride != "" {
		t, err := refdata.ParseTimestamp(*req.NowUTCOverride)
		if err != nil {
			return nil, inputErrorf("/now_utc_override", "now_utc_override is not an ISO-8601 timestamp: %q", *req.NowUTCOverride)
		}
		now = t
	}

	g := cfg.Geometry()
	if err := g.Validate(); err != nil {
		return nil, inputErrorf("/engine_config/branch_width_deg", "%v", err)
	}
	if err := cfg.SoftKernel.Validate(); err != nil {
		return nil, inputErrorf("/engine_config/soft_kernel", "%v", err)
	}
	if err := cfg.FloatFormatPolicy.Validate(); err != nil {
		return nil, inputErrorf("/engine_config/float_format_policy", "%v", err)
	}
	if err := cfg.JSONCanonicalization.Validate(); err != nil {
		return nil, inputErrorf("/engine_config/json_canonicalization", "%v", err)
	}

	rs, err := v.rulesets.Get(cfg.BaziRulesetID)
	if errors.Is(err, ruleset.ErrNotFound) || errors.Is(err, ruleset.ErrInvalidID) {
		return nil, inputErrorf("/engine_config/bazi_ruleset_id", "unknown bazi_ruleset_id %q", cfg.BaziRulesetID)
	}
	if err != nil {
		return nil, fmt.Errorf("compliance: load ruleset %q: %w", cfg.BaziRulesetID, err)
	}

	fp, err := canonicalize.Fingerprint(rawCfg, rs.ID(), rs.Version(), cfg.Refdata.PackID,
		cfg.FloatFormatPolicy, cfg.JSONCanonicalization)
	if err != nil {
		return nil, inputErrorf("/engine_config", "engine_config cannot be canonicalized: %v", err)
	}

	return &EvalContext{
		Request:     &req,
		Config:      cfg,
		RawConfig:   rawCfg,
		Ruleset:     rs,
		Geometry:    g,
		Now:         now,
		Level:       req.ValidateLevel,
		Mode:        cfg.ComplianceMode,
		Fingerprint: fp,
		Evidence:    &Evidence{},
	}, nil
}

func (v *Validator) evaluate(ec *EvalContext) (*Response, error) {
	var all []issues.Issue
	floors := make(map[issues.Domain]issues.Status, len(v.evaluators))
	notes := make(map[issues.Domain][]string, len(v.evaluators))

	for _, e := range v.evaluators {
		out, err := runEvaluator(e, ec)
		if err != nil {
			return nil, err
		}
		all = append(all, out.Issues...)
		d := e.Domain()
		floors[d] = issues.Worst(floors[d], out.Status)
		notes[d] = append(notes[d], out.Notes...)
	}

	components := make(map[issues.Domain]Component, len(issues.Domains()))
	statuses := make([]issues.Status, 0, len(issues.Domains()))
	for _, d := range issues.Domains() {
		st := issues.Worst(issues.StatusFor(d, all), floors[d])
		n := notes[d]
		if n == nil {
			n = []string{}
		}
		components[d] = Component{Status: st, Notes: n}
		statuses = append(statuses, st)
	}

	issues.Sort(all)
	errs, warns := issues.Partition(all)
	resp := &Response{
		ComplianceStatus: issues.Overall(all, statuses),
		Components:       components,
		Errors:           errs,
		Warnings:         warns,
		Evidence:         *ec.Evidence,
	}
	if err := selfCheck(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// runEvaluator converts an evaluator panic into a defect.
func runEvaluator(e Evaluator, ec *EvalContext) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &DefectError{Message: fmt.Sprintf("evaluator %s panicked: %v", e.Domain(), r)}
		}
	}()
	return e.Evaluate(ec), nil
}

// selfCheck validates the response against the response contract.
func selfCheck(resp *Response) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return &DefectError{Message: "response does not encode", Err: err}
	}
	doc, err := decodeJSON(raw)
	if err != nil {
		return &DefectError{Message: "response does not decode", Err: err}
	}
	violation, err := contracts.ValidateResponse(doc)
	if err != nil {
		return &DefectError{Message: "response contract unavailable", Err: err}
	}
	if violation != nil {
		return &DefectError{Path: violation.Path, Message: violation.Message}
	}
	return nil
}

func decodeJSON(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after JSON value")
	}
	return doc, nil
}

func remarshal(in any, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
