package timeres

import (
	"fmt"
	"strings"
	"time"

	"github.com/bazodiac/bafe/pkg/issues"
	"github.com/bazodiac/bafe/pkg/solar"
)

// Standard is the engine's civil-time standard.
type Standard string

const (
	StandardCivil Standard = "CIVIL"
	StandardLMT   Standard = "LMT"
	StandardTLST  Standard = "TLST"
)

// Valid reports whether s is a known standard.
func (s Standard) Valid() bool {
	return s == StandardCivil || s == StandardLMT || s == StandardTLST
}

// Quality grades.
const (
	QualityOK       = "ok"
	QualityDegraded = "degraded"
	QualityMissing  = "missing"
)

// ProvenanceApproxFormula marks solar time derived from the equation-of-time
// series rather than an Earth-rotation measurement.
const ProvenanceApproxFormula = "approx_formula"

// BirthEvent is the optional birth-event section of a request.
type BirthEvent struct {
	LocalDatetime string  `json:"local_datetime"`
	TzID          *string `json:"tz_id,omitempty"`
	TzOffsetSec   *int    `json:"tz_offset_sec,omitempty"`
	GeoLonDeg     float64 `json:"geo_lon_deg"`
	GeoLatDeg     float64 `json:"geo_lat_deg"`
	DSTPolicy     *Policy `json:"dst_policy,omitempty"`
}

// Input gathers everything the time evaluator needs.
type Input struct {
	Standard            Standard
	DSTPolicy           Policy
	Strict              bool
	AllowTLSTWithoutUT1 bool
	BirthEvent          *BirthEvent
	// PositionsTimeScale is the time scale of a positions override, or ""
	// when none was supplied.
	PositionsTimeScale string
}

// Evidence is the time section of a validation response.
type Evidence struct {
	TimeStandard          string   `json:"time_standard"`
	DSTPolicy             string   `json:"dst_policy"`
	UT1Quality            string   `json:"ut1_quality"`
	TTQuality             string   `json:"tt_quality"`
	TLSTQuality           string   `json:"tlst_quality"`
	EoTProvenance         *string  `json:"eot_provenance"`
	UncertaintyBudgetSec  *float64 `json:"uncertainty_budget_sec"`
	LocalTimeStatus       *string  `json:"local_time_status,omitempty"`
	ResolvedLocalDatetime *string  `json:"resolved_local_datetime,omitempty"`
	UTCOffsetSec          *int     `json:"utc_offset_sec,omitempty"`
	DSTShiftMinutes       *int     `json:"dst_shift_minutes,omitempty"`
	TLSTHours             *float64 `json:"tlst_hours,omitempty"`
	LMTHours              *float64 `json:"lmt_hours,omitempty"`
}

// Result is the outcome of Evaluate.
type Result struct {
	Issues   []issues.Issue
	Evidence Evidence
	Notes    []string
	// TLSTHours is set when true local solar time was derived.
	TLSTHours *float64
	// Degraded is set when a STRICT TLST configuration could not derive
	// solar time.
	Degraded bool
}

// civilInstant is a birth event placed on the time line.
type civilInstant struct {
	local  time.Time
	offset int
}

// Evaluate reports UT1/TT availability, resolves the birth event's local time
// once under the effective DST policy and derives TLST or LMT when the
// configured standard asks for it.
func Evaluate(in Input) Result {
	policy := in.DSTPolicy
	if in.BirthEvent != nil && in.BirthEvent.DSTPolicy != nil {
		policy = *in.BirthEvent.DSTPolicy
	}
	if !policy.Valid() {
		policy = PolicyError
	}
	standard := in.Standard
	if !standard.Valid() {
		standard = StandardCivil
	}

	res := Result{Evidence: Evidence{
		TimeStandard: string(standard),
		DSTPolicy:    string(policy),
		UT1Quality:   QualityMissing,
		TTQuality:    QualityMissing,
		TLSTQuality:  QualityMissing,
	}}
	switch strings.ToUpper(in.PositionsTimeScale) {
	case "UT1":
		res.Evidence.UT1Quality = QualityOK
	case "TT":
		res.Evidence.TTQuality = QualityOK
	}
	ut1 := res.Evidence.UT1Quality == QualityOK

	var notes []string
	var civil *civilInstant
	if be := in.BirthEvent; be != nil {
		var note string
		civil, note = res.place(be, policy)
		if note != "" {
			notes = append(notes, note)
		}
	}

	switch standard {
	case StandardTLST:
		if civil != nil && (ut1 || in.AllowTLSTWithoutUT1 || !in.Strict) {
			tlst := solar.TrueSolarTime(clockHours(civil.local), in.BirthEvent.GeoLonDeg, civil.local.YearDay(), float64(civil.offset)/3600)
			res.TLSTHours = &tlst
			res.Evidence.TLSTHours = &tlst
			prov := ProvenanceApproxFormula
			res.Evidence.EoTProvenance = &prov
			if ut1 {
				res.Evidence.TLSTQuality = QualityOK
			} else {
				res.Evidence.TLSTQuality = QualityDegraded
			}
		}
		res.Degraded = res.TLSTHours == nil && in.Strict
	case StandardLMT:
		if civil != nil {
			lmt := solar.LocalMeanTime(clockHours(civil.local.UTC()), in.BirthEvent.GeoLonDeg)
			res.Evidence.LMTHours = &lmt
		}
	}

	res.Notes = append([]string{
		"time_standard=" + string(standard),
		"dst_policy=" + string(policy),
	}, notes...)
	if standard == StandardTLST {
		res.Notes = append(res.Notes, "tlst_quality="+res.Evidence.TLSTQuality)
	}
	return res
}

// place resolves the birth event's civil time. It returns nil with a note
// when the event cannot be placed.
func (res *Result) place(be *BirthEvent, policy Policy) (*civilInstant, string) {
	naive, err := ParseLocal(be.LocalDatetime)
	if err != nil {
		return nil, "local_datetime_unparseable=true"
	}

	if be.TzID != nil && *be.TzID != "" {
		loc, err := time.LoadLocation(*be.TzID)
		if err != nil {
			return nil, fmt.Sprintf("tz_id_unknown=%s", *be.TzID)
		}
		r, found := Resolve(naive, loc, policy)
		res.Issues = append(res.Issues, found...)
		status := string(r.Status)
		res.Evidence.LocalTimeStatus = &status
		if !r.Resolved {
			return nil, ""
		}
		resolved := r.Time.Format(time.RFC3339Nano)
		off := r.OffsetSeconds()
		res.Evidence.ResolvedLocalDatetime = &resolved
		res.Evidence.UTCOffsetSec = &off
		if r.ShiftMinutes > 0 {
			shift := r.ShiftMinutes
			res.Evidence.DSTShiftMinutes = &shift
		}
		return &civilInstant{local: r.Time, offset: off}, ""
	}

	if be.TzOffsetSec != nil {
		off := *be.TzOffsetSec
		local := time.Date(naive.Year(), naive.Month(), naive.Day(), naive.Hour(), naive.Minute(),
			naive.Second(), naive.Nanosecond(), time.FixedZone("", off))
		resolved := local.Format(time.RFC3339Nano)
		res.Evidence.ResolvedLocalDatetime = &resolved
		res.Evidence.UTCOffsetSec = &off
		return &civilInstant{local: local, offset: off}, ""
	}

	return nil, "timezone_unspecified=true"
}

// clockHours returns the wall-clock time of day of t in fractional hours.
func clockHours(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60 +
		(float64(t.Second())+float64(t.Nanosecond())/1e9)/3600
}
