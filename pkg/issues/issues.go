// Package issues defines the closed catalog of compliance issue codes and the
// Issue value every evaluator reports.
//
// Codes are stable identifiers bound to the response contract. They MUST NOT
// change between releases. Code has unexported fields so no package outside
// this one can mint a new code; the only values are the ones declared below.
package issues

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Domain is one of the seven compliance components.
type Domain string

const (
	DomainRefdata              Domain = "REFDATA"
	DomainTime                 Domain = "TIME"
	DomainFrames               Domain = "FRAMES"
	DomainEphemeris            Domain = "EPHEMERIS"
	DomainDiscretization       Domain = "DISCRETIZATION"
	DomainReproducibility      Domain = "REPRODUCIBILITY"
	DomainInterpretationPolicy Domain = "INTERPRETATION_POLICY"
)

// Domains lists every domain in report order.
func Domains() []Domain {
	return []Domain{
		DomainRefdata,
		DomainTime,
		DomainFrames,
		DomainEphemeris,
		DomainDiscretization,
		DomainReproducibility,
		DomainInterpretationPolicy,
	}
}

// Code is a catalog entry.
type Code struct {
	name   string
	domain Domain
}

// String returns the wire identifier.
func (c Code) String() string { return c.name }

// Domain returns the compliance component the code is reported under.
func (c Code) Domain() Domain { return c.domain }

// IsZero reports whether c is the zero value, which is not a catalog entry.
func (c Code) IsZero() bool { return c.name == "" }

// MarshalJSON encodes the wire identifier.
func (c Code) MarshalJSON() ([]byte, error) {
	if c.IsZero() {
		return nil, fmt.Errorf("issues: zero code is not in the catalog")
	}
	return json.Marshal(c.name)
}

// UnmarshalJSON accepts only catalog identifiers.
func (c *Code) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	found, ok := Lookup(name)
	if !ok {
		return fmt.Errorf("issues: unknown code %q", name)
	}
	*c = found
	return nil
}

// --- RefData ---
var (
	RefdataNetworkForbidden = Code{"REFDATA_NETWORK_FORBIDDEN", DomainRefdata}
	RefdataManifestMissing  = Code{"REFDATA_MANIFEST_MISSING", DomainRefdata}
	EphemerisHashMismatch   = Code{"EPHEMERIS_HASH_MISMATCH", DomainRefdata}
	EphemerisMissing        = Code{"EPHEMERIS_MISSING", DomainRefdata}
	TzdbSignatureInvalid    = Code{"TZDB_SIGNATURE_INVALID", DomainRefdata}
	LeapSecondsFileExpired  = Code{"LEAP_SECONDS_FILE_EXPIRED", DomainRefdata} // also: expiry missing, cannot enforce
	EOPMissing              = Code{"EOP_MISSING", DomainRefdata}
	EOPStale                = Code{"EOP_STALE", DomainRefdata}
	EOPPredictedRegionUsed  = Code{"EOP_PREDICTED_REGION_USED", DomainRefdata}
)

// --- Time ---
var (
	MissingTT               = Code{"MISSING_TT", DomainTime}
	DSTAmbiguousLocalTime   = Code{"DST_AMBIGUOUS_LOCAL_TIME", DomainTime}
	DSTNonexistentLocalTime = Code{"DST_NONEXISTENT_LOCAL_TIME", DomainTime}
)

// --- Frames ---
var MissingAyanamsaID = Code{"MISSING_AYANAMSA_ID", DomainFrames}

// --- Discretization ---
var (
	InconsistentBranchOrigin = Code{"INCONSISTENT_BRANCH_ORIGIN_FOR_SHIFTED_LONGITUDES", DomainDiscretization}
	MissingDayCycleAnchor    = Code{"MISSING_DAY_CYCLE_ANCHOR", DomainDiscretization}
)

// --- Interpretation ---
var (
	InterpDerivationEmpty = Code{"INTERP_DERIVATION_EMPTY", DomainInterpretationPolicy}
	InterpLintFail        = Code{"INTERP_LINT_FAIL", DomainInterpretationPolicy}
)

// Codes returns the full catalog in contract order.
func Codes() []Code {
	return []Code{
		RefdataNetworkForbidden,
		RefdataManifestMissing,
		EphemerisHashMismatch,
		EphemerisMissing,
		TzdbSignatureInvalid,
		LeapSecondsFileExpired,
		MissingTT,
		EOPMissing,
		EOPStale,
		EOPPredictedRegionUsed,
		DSTAmbiguousLocalTime,
		DSTNonexistentLocalTime,
		InconsistentBranchOrigin,
		MissingDayCycleAnchor,
		MissingAyanamsaID,
		InterpDerivationEmpty,
		InterpLintFail,
	}
}

// Lookup resolves a wire identifier to its catalog entry.
func Lookup(name string) (Code, bool) {
	for _, c := range Codes() {
		if c.name == name {
			return c, true
		}
	}
	return Code{}, false
}

// Severity classifies an issue.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

// Issue is a single, typed domain finding.
type Issue struct {
	Code     Code           `json:"code"`
	Message  string         `json:"message"`
	Severity Severity       `json:"severity"`
	Path     *string        `json:"path"`
	Details  map[string]any `json:"details"`
}

// New builds an issue. A zero code is a programming defect and panics.
func New(code Code, severity Severity, path, message string, details map[string]any) Issue {
	if code.IsZero() {
		panic("issues: zero code is not in the catalog")
	}
	if severity != SeverityError && severity != SeverityWarning {
		panic(fmt.Sprintf("issues: unknown severity %q", severity))
	}
	is := Issue{Code: code, Message: message, Severity: severity, Details: details}
	if path != "" {
		p := path
		is.Path = &p
	}
	return is
}

// Error builds an ERROR issue without details.
func Error(code Code, path, message string) Issue {
	return New(code, SeverityError, path, message, nil)
}

// Warning builds a WARNING issue without details.
func Warning(code Code, path, message string) Issue {
	return New(code, SeverityWarning, path, message, nil)
}

// WithDetails returns a copy of the issue carrying details.
func (i Issue) WithDetails(details map[string]any) Issue {
	i.Details = details
	return i
}

// PathString returns the path or "" when absent.
func (i Issue) PathString() string {
	if i.Path == nil {
		return ""
	}
	return *i.Path
}

// Sort orders issues by (code, severity, path, message) in place.
func Sort(list []Issue) {
	sort.SliceStable(list, func(a, b int) bool {
		x, y := list[a], list[b]
		if x.Code.name != y.Code.name {
			return x.Code.name < y.Code.name
		}
		if x.Severity != y.Severity {
			return x.Severity < y.Severity
		}
		if px, py := x.PathString(), y.PathString(); px != py {
			return px < py
		}
		return x.Message < y.Message
	})
}

// Partition splits issues by severity, preserving order.
func Partition(list []Issue) (errs, warns []Issue) {
	errs = make([]Issue, 0)
	warns = make([]Issue, 0)
	for _, is := range list {
		if is.Severity == SeverityError {
			errs = append(errs, is)
		} else {
			warns = append(warns, is)
		}
	}
	return errs, warns
}
