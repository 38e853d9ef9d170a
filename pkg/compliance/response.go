package compliance

import (
	"github.com/bazodiac/bafe/pkg/canonicalize"
	"github.com/bazodiac/bafe/pkg/harmonics"
	"github.com/bazodiac/bafe/pkg/issues"
	"github.com/bazodiac/bafe/pkg/refdata"
	"github.com/bazodiac/bafe/pkg/ruleset"
	"github.com/bazodiac/bafe/pkg/timeres"
)

// Component is the verdict of one compliance domain.
type Component struct {
	Status issues.Status `json:"status"`
	Notes  []string      `json:"notes"`
}

// FramesEvidence echoes the reference-frame identifiers.
type FramesEvidence struct {
	EpochID           *string `json:"epoch_id"`
	PrecessionModelID *string `json:"precession_model_id"`
	ObliquityModelID  *string `json:"obliquity_model_id"`
	ZodiacMode        *string `json:"zodiac_mode"`
	AyanamsaID        *string `json:"ayanamsa_id"`
}

// EphemerisEvidence describes the positions the validation saw.
type EphemerisEvidence struct {
	EphemerisID *string                      `json:"ephemeris_id"`
	TimeScale   *string                      `json:"time_scale"`
	Bodies      []string                     `json:"bodies"`
	Harmonics   map[string]harmonics.Feature `json:"harmonics"`
}

// Equivalence self-check outcomes.
const (
	SelfCheckPassed        = "passed"
	SelfCheckFailed        = "failed"
	SelfCheckNotApplicable = "not_applicable"
)

// DiscretizationEvidence records the branch mapping and its stability.
type DiscretizationEvidence struct {
	IntervalConvention         string         `json:"interval_convention"`
	BranchCoordinateConvention string         `json:"branch_coordinate_convention"`
	BoundaryDistanceDeg        *float64       `json:"boundary_distance_deg"`
	ClassificationUnstable     *bool          `json:"classification_unstable"`
	EquivalenceSelfCheck       string         `json:"equivalence_self_check"`
	DayCycleAnchor             ruleset.Anchor `json:"day_cycle_anchor"`
	SunBranch                  *string        `json:"sun_branch"`
	SunBranchIndex             *int           `json:"sun_branch_index"`
	SoftBranchWeights          []float64      `json:"soft_branch_weights"`
	HourBranch                 *string        `json:"hour_branch"`
	HourBranchIndex            *int           `json:"hour_branch_index"`
}

// ReproducibilityEvidence carries the configuration fingerprint and the
// policies it was computed under.
type ReproducibilityEvidence struct {
	ConfigFingerprint    string                   `json:"config_fingerprint"`
	FloatFormatPolicy    canonicalize.FloatPolicy `json:"float_format_policy"`
	JSONCanonicalization canonicalize.Policy      `json:"json_canonicalization"`
	RulesetID            string                   `json:"ruleset_id"`
	RulesetVersion       string                   `json:"ruleset_version"`
}

// InterpretationEvidence is empty until an interpretation layer runs.
type InterpretationEvidence struct {
	LintStatus         *string `json:"lint_status"`
	StatementsReturned *int    `json:"statements_returned"`
}

// Evidence holds one section per domain.
type Evidence struct {
	Refdata         refdata.Evidence        `json:"refdata"`
	Time            timeres.Evidence        `json:"time"`
	Frames          FramesEvidence          `json:"frames"`
	Ephemeris       EphemerisEvidence       `json:"ephemeris"`
	Discretization  DiscretizationEvidence  `json:"discretization"`
	Reproducibility ReproducibilityEvidence `json:"reproducibility"`
	Interpretation  InterpretationEvidence  `json:"interpretation"`
}

// Response is the result of a validation.
type Response struct {
	ComplianceStatus issues.ComplianceStatus     `json:"compliance_status"`
	Components       map[issues.Domain]Component `json:"compliance_components"`
	Errors           []issues.Issue              `json:"errors"`
	Warnings         []issues.Issue              `json:"warnings"`
	Evidence         Evidence                    `json:"evidence"`
}

// Canonical returns the canonical JSON encoding of the response. Two equal
// responses always encode to the same bytes.
func (r *Response) Canonical() ([]byte, error) {
	return canonicalize.EncodeDefault(r)
}
