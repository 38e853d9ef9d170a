package compliance

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bazodiac/bafe/pkg/angular"
	"github.com/bazodiac/bafe/pkg/harmonics"
	"github.com/bazodiac/bafe/pkg/issues"
	"github.com/bazodiac/bafe/pkg/kernel"
	"github.com/bazodiac/bafe/pkg/refdata"
	"github.com/bazodiac/bafe/pkg/timeres"
)

// Classification stability thresholds.
const (
	UnstableBoundaryDeg     = 0.1
	UnstableHourBoundaryMin = 1.0
	degPerSolarMinute       = 0.25
)

// HarmonicOrders are the harmonics reported over override longitudes.
var HarmonicOrders = []int{1, 2, 3, 4}

// --- REFDATA ---

type refdataEvaluator struct{}

func (refdataEvaluator) Domain() issues.Domain { return issues.DomainRefdata }

func (refdataEvaluator) Evaluate(ec *EvalContext) Outcome {
	res := refdata.Evaluate(ec.Config.Refdata, ec.Request.Manifest, ec.Now)
	ec.Evidence.Refdata = res.Evidence
	return Outcome{Issues: res.Issues, Notes: res.Notes}
}

// --- TIME ---

type timeEvaluator struct{}

func (timeEvaluator) Domain() issues.Domain { return issues.DomainTime }

func (timeEvaluator) Evaluate(ec *EvalContext) Outcome {
	in := timeres.Input{
		Standard:            ec.Config.TimeStandard,
		DSTPolicy:           ec.Config.DSTPolicy,
		Strict:              ec.Strict(),
		AllowTLSTWithoutUT1: ec.Config.TimeFallbackPolicy.AllowComputeTLSTWithoutUT1,
		BirthEvent:          ec.Request.BirthEvent,
	}
	if po := ec.Request.PositionsOverride; po != nil {
		in.PositionsTimeScale = po.TimeScale
	}
	res := timeres.Evaluate(in)
	ec.Evidence.Time = res.Evidence
	ec.TLSTHours = res.TLSTHours
	ec.TTAvailable = res.Evidence.TTQuality == timeres.QualityOK

	out := Outcome{Issues: res.Issues, Notes: res.Notes}
	if res.Degraded {
		out.Status = issues.StatusDegraded
	}

	// Year and month boundaries bound to TT cannot be trusted in a full
	// STRICT validation unless TT is available.
	if ec.Level == LevelFull && ec.Strict() && ec.Ruleset.RequiresTT() && !ec.TTAvailable {
		out.Issues = append(out.Issues, issues.Error(issues.MissingTT,
			"/positions_override/time_scale",
			"STRICT mode requires TT availability for year/month boundary computations (ruleset time_scale=TT)"))
	}
	return out
}

// --- FRAMES ---

type framesEvaluator struct{}

func (framesEvaluator) Domain() issues.Domain { return issues.DomainFrames }

func (framesEvaluator) Evaluate(ec *EvalContext) Outcome {
	cfg := ec.Config
	ec.Evidence.Frames = FramesEvidence{
		EpochID:           cfg.EpochID,
		PrecessionModelID: cfg.PrecessionModelID,
		ObliquityModelID:  cfg.ObliquityModelID,
		AyanamsaID:        cfg.AyanamsaID,
	}
	if cfg.ZodiacMode != "" {
		zm := cfg.ZodiacMode
		ec.Evidence.Frames.ZodiacMode = &zm
	}

	var out Outcome
	if strings.EqualFold(cfg.ZodiacMode, ZodiacSidereal) && !hasAyanamsa(cfg.AyanamsaID) {
		out.Issues = append(out.Issues, issues.Error(issues.MissingAyanamsaID,
			"/engine_config/ayanamsa_id",
			"zodiac_mode=sidereal requires ayanamsa_id"))
	}
	return out
}

// hasAyanamsa treats placeholder ids such as "MISSING" or "MISSING_X" as
// absent.
func hasAyanamsa(id *string) bool {
	if id == nil || strings.TrimSpace(*id) == "" {
		return false
	}
	return !strings.HasPrefix(strings.ToUpper(*id), "MISSING")
}

// --- EPHEMERIS ---

type ephemerisEvaluator struct{}

func (ephemerisEvaluator) Domain() issues.Domain { return issues.DomainEphemeris }

func (ephemerisEvaluator) Evaluate(ec *EvalContext) Outcome {
	ev := EphemerisEvidence{
		EphemerisID: ec.Config.Refdata.EphemerisID,
		Bodies:      []string{},
	}
	out := Outcome{Notes: []string{"positions_override_only=true"}}

	po := ec.Request.PositionsOverride
	if po == nil {
		// Nothing to evaluate positions from.
		out.Status = issues.StatusDegraded
		ec.Evidence.Ephemeris = ev
		return out
	}

	if po.TimeScale != "" {
		ts := strings.ToUpper(po.TimeScale)
		ev.TimeScale = &ts
	}
	for name := range po.Bodies {
		ev.Bodies = append(ev.Bodies, name)
	}
	sort.Strings(ev.Bodies)

	if len(ev.Bodies) > 0 {
		angles := make([]float64, len(ev.Bodies))
		weights := make([]float64, len(ev.Bodies))
		for i, name := range ev.Bodies {
			angles[i] = po.Bodies[name].LambdaDeg
			weights[i] = 1
		}
		feats, err := harmonics.Features(angles, weights, HarmonicOrders, harmonics.DefaultEpsilon)
		if err == nil {
			ev.Harmonics = feats
		} else {
			out.Notes = append(out.Notes, "harmonics_unavailable=true")
		}
	}
	ec.Evidence.Ephemeris = ev
	return out
}

// --- DISCRETIZATION ---

type discretizationEvaluator struct{}

func (discretizationEvaluator) Domain() issues.Domain { return issues.DomainDiscretization }

func (discretizationEvaluator) Evaluate(ec *EvalContext) Outcome {
	cfg := ec.Config
	g := ec.Geometry
	conv := cfg.BranchCoordinateConvention
	if !conv.Valid() {
		conv = angular.ShiftBoundaries
	}

	anchor := ec.Ruleset.DayCycleAnchor()
	ev := DiscretizationEvidence{
		IntervalConvention:         "HALF_OPEN",
		BranchCoordinateConvention: string(conv),
		EquivalenceSelfCheck:       SelfCheckNotApplicable,
		DayCycleAnchor:             anchor,
	}
	var out Outcome

	if conv == angular.ShiftLongitudes {
		ev.EquivalenceSelfCheck = SelfCheckPassed
		if m := angular.CheckEquivalence(angular.IndexShiftLongitudes, g, nil); m != nil {
			ev.EquivalenceSelfCheck = SelfCheckFailed
			out.Issues = append(out.Issues, issues.New(issues.InconsistentBranchOrigin, issues.SeverityError,
				"/engine_config/branch_coordinate_convention",
				"SHIFT_LONGITUDES mapping is inconsistent with canonical origin (K1 != K2)",
				map[string]any{"lambda_deg": m.LambdaDeg, "k1": m.Reference, "k2": m.Candidate}))
		}
	}

	if !anchor.Verified() {
		msg := fmt.Sprintf("Day-cycle anchor not verified (anchor_verification=%s); ", anchor.Verification)
		if ec.Strict() {
			out.Issues = append(out.Issues, issues.Error(issues.MissingDayCycleAnchor,
				"/ruleset/day_cycle_anchor", msg+"STRICT mode gates computation"))
		} else {
			out.Issues = append(out.Issues, issues.Warning(issues.MissingDayCycleAnchor,
				"/ruleset/day_cycle_anchor", msg+"RELAXED/DEV mode allows degraded operation"))
		}
	}

	if sun, ok := ec.Request.PositionsOverride.Sun(); ok {
		lambda := sun.LambdaDeg
		dist := angular.NearestBoundaryDistance(lambda, g)
		unstable := dist < UnstableBoundaryDeg
		ev.BoundaryDistanceDeg = &dist
		ev.ClassificationUnstable = &unstable

		idx := g.Index(conv, lambda)
		name := ec.Ruleset.BranchName(idx)
		ev.SunBranchIndex = &idx
		ev.SunBranch = &name

		if w, err := kernel.SoftBranchWeights(lambda, cfg.SoftKernel, g); err == nil {
			ev.SoftBranchWeights = w[:]
		}
	}

	if tlst := ec.TLSTHours; tlst != nil {
		idx := angular.HourBranchIndex(*tlst)
		name := ec.Ruleset.BranchName(idx)
		ev.HourBranchIndex = &idx
		ev.HourBranch = &name

		if ev.BoundaryDistanceDeg == nil {
			minutes := angular.NearestHourBoundaryMinutes(*tlst)
			dist := minutes * degPerSolarMinute
			unstable := minutes < UnstableHourBoundaryMin
			ev.BoundaryDistanceDeg = &dist
			ev.ClassificationUnstable = &unstable
		}
	}

	if ev.ClassificationUnstable != nil && *ev.ClassificationUnstable {
		out.Notes = append(out.Notes, "classification_unstable=true")
	}
	ec.Evidence.Discretization = ev
	return out
}

// --- REPRODUCIBILITY ---

type reproducibilityEvaluator struct{}

func (reproducibilityEvaluator) Domain() issues.Domain { return issues.DomainReproducibility }

func (reproducibilityEvaluator) Evaluate(ec *EvalContext) Outcome {
	cfg := ec.Config
	ec.Evidence.Reproducibility = ReproducibilityEvidence{
		ConfigFingerprint:    ec.Fingerprint,
		FloatFormatPolicy:    cfg.FloatFormatPolicy,
		JSONCanonicalization: cfg.JSONCanonicalization,
		RulesetID:            ec.Ruleset.ID(),
		RulesetVersion:       ec.Ruleset.Version(),
	}
	var out Outcome
	if !cfg.IsDeterministic() {
		out.Status = issues.StatusDegraded
		out.Notes = append(out.Notes, "deterministic=false")
	}
	return out
}

// --- INTERPRETATION_POLICY ---

type interpretationEvaluator struct{}

func (interpretationEvaluator) Domain() issues.Domain { return issues.DomainInterpretationPolicy }

func (interpretationEvaluator) Evaluate(ec *EvalContext) Outcome {
	ec.Evidence.Interpretation = InterpretationEvidence{}
	return Outcome{Notes: []string{"interpretation_layer=not_executed_in_validate"}}
}
