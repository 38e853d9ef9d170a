package compliance

import (
	"time"

	"github.com/bazodiac/bafe/pkg/angular"
	"github.com/bazodiac/bafe/pkg/issues"
	"github.com/bazodiac/bafe/pkg/ruleset"
)

// Evaluator checks one compliance domain. Evaluators run in a fixed order
// and every one runs to completion; an evaluator never aborts the
// validation, it reports issues instead.
type Evaluator interface {
	// Domain returns the compliance component the evaluator reports under.
	Domain() issues.Domain

	// Evaluate inspects the request, writes its evidence section into
	// ec.Evidence and returns its findings.
	Evaluate(ec *EvalContext) Outcome
}

// Outcome is what an evaluator reports.
type Outcome struct {
	Issues []issues.Issue
	// Status floors the issue-derived status of the domain. Leave it empty
	// to let the issues decide alone.
	Status issues.Status
	Notes  []string
}

// EvalContext is shared by the evaluators of one validation.
type EvalContext struct {
	Request *Request
	Config  *EngineConfig
	// RawConfig is the engine configuration map after defaults. It is the
	// fingerprint input and must not be modified.
	RawConfig map[string]any
	Ruleset   *ruleset.Descriptor
	Geometry  angular.Geometry
	Now       time.Time
	Level     Level
	Mode      Mode
	// Fingerprint is the configuration fingerprint, computed before any
	// evaluator runs.
	Fingerprint string

	Evidence *Evidence

	// Set by the time evaluator.
	TLSTHours   *float64
	TTAvailable bool
}

// Strict reports whether the configuration runs in STRICT mode.
func (ec *EvalContext) Strict() bool { return ec.Mode == ModeStrict }

// DefaultEvaluators returns one evaluator per domain in report order.
func DefaultEvaluators() []Evaluator {
	return []Evaluator{
		refdataEvaluator{},
		timeEvaluator{},
		framesEvaluator{},
		ephemerisEvaluator{},
		discretizationEvaluator{},
		reproducibilityEvaluator{},
		interpretationEvaluator{},
	}
}
