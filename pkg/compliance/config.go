package compliance

import (
	"github.com/bazodiac/bafe/pkg/angular"
	"github.com/bazodiac/bafe/pkg/canonicalize"
	"github.com/bazodiac/bafe/pkg/kernel"
	"github.com/bazodiac/bafe/pkg/refdata"
	"github.com/bazodiac/bafe/pkg/timeres"
)

// Mode is the compliance mode of an engine configuration.
type Mode string

const (
	ModeStrict  Mode = "STRICT"
	ModeRelaxed Mode = "RELAXED"
	ModeDev     Mode = "DEV"
)

// Level is the requested validation depth.
type Level string

const (
	LevelBasic Level = "BASIC"
	LevelFull  Level = "FULL"
)

// Zodiac modes.
const (
	ZodiacTropical = "tropical"
	ZodiacSidereal = "sidereal"
)

// TimeFallbackPolicy relaxes time requirements.
type TimeFallbackPolicy struct {
	AllowComputeTLSTWithoutUT1 bool `json:"allow_compute_tlst_without_ut1"`
}

// EngineConfig is the typed engine configuration after defaults.
type EngineConfig struct {
	EngineVersion               string                   `json:"engine_version,omitempty"`
	ParameterSetID              string                   `json:"parameter_set_id,omitempty"`
	Deterministic               *bool                    `json:"deterministic,omitempty"`
	ComplianceMode              Mode                     `json:"compliance_mode"`
	BaziRulesetID               string                   `json:"bazi_ruleset_id"`
	EpochID                     *string                  `json:"epoch_id"`
	PrecessionModelID           *string                  `json:"precession_model_id"`
	ObliquityModelID            *string                  `json:"obliquity_model_id"`
	ZodiacMode                  string                   `json:"zodiac_mode"`
	AyanamsaID                  *string                  `json:"ayanamsa_id"`
	TimeStandard                timeres.Standard         `json:"time_standard"`
	DSTPolicy                   timeres.Policy           `json:"dst_policy"`
	IntervalConvention          string                   `json:"interval_convention"`
	BranchCoordinateConvention  angular.Convention       `json:"branch_coordinate_convention"`
	PhiApexOffsetDeg            float64                  `json:"phi_apex_offset_deg"`
	ZiApexDeg                   float64                  `json:"zi_apex_deg"`
	BranchWidthDeg              float64                  `json:"branch_width_deg"`
	MonthBoundaryMode           string                   `json:"month_boundary_mode"`
	MonthStartSolarLongitudeDeg float64                  `json:"month_start_solar_longitude_deg"`
	JSONCanonicalization        canonicalize.Policy      `json:"json_canonicalization"`
	FloatFormatPolicy           canonicalize.FloatPolicy `json:"float_format_policy"`
	SoftKernel                  kernel.Spec              `json:"soft_kernel"`
	TimeFallbackPolicy          TimeFallbackPolicy       `json:"time_fallback_policy"`
	Refdata                     refdata.Config           `json:"refdata"`
}

// Geometry returns the sector grid the configuration describes.
func (c *EngineConfig) Geometry() angular.Geometry {
	return angular.Geometry{
		ApexDeg:      c.ZiApexDeg,
		WidthDeg:     c.BranchWidthDeg,
		PhiOffsetDeg: c.PhiApexOffsetDeg,
	}
}

// IsDeterministic reports whether the configuration asks for deterministic
// operation. An absent flag counts as deterministic.
func (c *EngineConfig) IsDeterministic() bool {
	return c.Deterministic == nil || *c.Deterministic
}

// defaultEngineConfig returns the documented engine defaults. It returns a
// fresh map on every call; the nested maps are not shared.
func defaultEngineConfig() map[string]any {
	return map[string]any{
		"compliance_mode":                 string(ModeRelaxed),
		"epoch_id":                        "ofDate",
		"zodiac_mode":                     ZodiacTropical,
		"time_standard":                   string(timeres.StandardCivil),
		"dst_policy":                      string(timeres.PolicyError),
		"interval_convention":             "HALF_OPEN",
		"branch_coordinate_convention":    string(angular.ShiftBoundaries),
		"phi_apex_offset_deg":             15.0,
		"zi_apex_deg":                     270.0,
		"branch_width_deg":                30.0,
		"month_boundary_mode":             "JIEQI_CROSSING",
		"month_start_solar_longitude_deg": 315.0,
		"json_canonicalization": map[string]any{
			"sorted_keys": true,
			"utf8":        true,
		},
		"float_format_policy": map[string]any{
			"mode":           string(canonicalize.FloatShortestRoundTrip),
			"fixed_decimals": nil,
		},
		"soft_kernel": map[string]any{
			"type":  kernel.TypeVonMises,
			"kappa": kernel.DefaultKappa,
		},
	}
}

// applyDefaults returns a shallow copy of cfg with every absent top-level
// key filled from the defaults. Keys present in cfg, including explicit
// nulls, are kept as given.
func applyDefaults(cfg map[string]any) map[string]any {
	out := make(map[string]any, len(cfg)+16)
	for k, v := range cfg {
		out[k] = v
	}
	for k, v := range defaultEngineConfig() {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}
