package compliance

import (
	"github.com/bazodiac/bafe/pkg/refdata"
	"github.com/bazodiac/bafe/pkg/timeres"
)

// Body is one body of a positions override.
type Body struct {
	LambdaDeg      float64  `json:"lambda_deg"`
	BetaDeg        *float64 `json:"beta_deg,omitempty"`
	DistanceAU     *float64 `json:"distance_au,omitempty"`
	SpeedDegPerDay *float64 `json:"speed_deg_per_day,omitempty"`
}

// PositionsOverride supplies precomputed body positions and declares the
// time scale they were computed in.
type PositionsOverride struct {
	TimeScale string          `json:"time_scale"`
	Bodies    map[string]Body `json:"bodies,omitempty"`
}

// Sun returns the Sun entry, if any.
func (p *PositionsOverride) Sun() (Body, bool) {
	if p == nil {
		return Body{}, false
	}
	b, ok := p.Bodies["Sun"]
	return b, ok
}

// Request is the typed form of a validate request after defaults.
type Request struct {
	ValidateLevel     Level               `json:"validate_level"`
	NowUTCOverride    *string             `json:"now_utc_override,omitempty"`
	EngineConfig      EngineConfig        `json:"engine_config"`
	Manifest          *refdata.Manifest   `json:"refdata_manifest_inline,omitempty"`
	BirthEvent        *timeres.BirthEvent `json:"birth_event,omitempty"`
	PositionsOverride *PositionsOverride  `json:"positions_override,omitempty"`
}
