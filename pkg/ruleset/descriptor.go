// Package ruleset loads immutable, versioned calendrical rulesets: branch
// ordering, hidden-stem tables, the day-cycle anchor and the time scales of
// the year and month boundary computations.
package ruleset

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/bazodiac/bafe/pkg/angular"
)

var (
	// ErrNotFound is returned when no store layer holds the requested id.
	ErrNotFound = errors.New("ruleset: not found")
	// ErrInvalidID is returned for ids that cannot name a ruleset document.
	ErrInvalidID = errors.New("ruleset: invalid id")
	// ErrMalformed is returned when a document exists but fails validation.
	ErrMalformed = errors.New("ruleset: malformed")
)

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]*$`)

// ValidID reports whether id is a well-formed ruleset id.
func ValidID(id string) bool {
	return idPattern.MatchString(id) && !strings.Contains(id, "..")
}

// Verification is the trust status of a day-cycle anchor.
type Verification string

const (
	Verified   Verification = "verified"
	Unverified Verification = "unverified"
	Missing    Verification = "missing"
)

// Anchor is the day-cycle anchor of a ruleset.
type Anchor struct {
	JDN          *int64       `json:"anchor_jdn"`
	Verification Verification `json:"anchor_verification"`
}

// Verified reports whether the anchor is present and verified.
func (a Anchor) Verified() bool {
	return a.JDN != nil && a.Verification == Verified
}

// WeightedStem is a hidden stem with its positional weight.
type WeightedStem struct {
	Stem   string  `json:"stem"`
	Weight float64 `json:"weight"`
}

// document is the on-disk YAML shape.
type document struct {
	RulesetID      string   `yaml:"ruleset_id"`
	RulesetVersion string   `yaml:"ruleset_version"`
	Description    string   `yaml:"description"`
	BranchOrder    []string `yaml:"branch_order"`
	HiddenStems    struct {
		PositionWeights []float64           `yaml:"position_weights"`
		BranchToHidden  map[string][]string `yaml:"branch_to_hidden"`
	} `yaml:"hidden_stems"`
	DayCycleAnchor struct {
		AnchorJDN          *int64 `yaml:"anchor_jdn"`
		AnchorVerification string `yaml:"anchor_verification"`
	} `yaml:"day_cycle_anchor"`
	YearBoundary  boundary `yaml:"year_boundary"`
	MonthBoundary boundary `yaml:"month_boundary"`
}

type boundary struct {
	TimeScale string `yaml:"time_scale"`
}

// Descriptor is a loaded ruleset. It is never mutated after Parse returns;
// accessors hand out copies.
type Descriptor struct {
	id          string
	version     *semver.Version
	rawVersion  string
	description string
	branches    [angular.BranchCount]string
	branchIndex map[string]int
	hidden      map[string][]string
	weights     []float64
	anchor      Anchor
	yearScale   string
	monthScale  string
}

// Parse decodes and validates a ruleset document. When expectID is non-empty
// the document's ruleset_id must match it.
func Parse(data []byte, expectID string) (*Descriptor, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrMalformed, err)
	}

	if !ValidID(doc.RulesetID) {
		return nil, fmt.Errorf("%w: ruleset_id %q", ErrMalformed, doc.RulesetID)
	}
	if expectID != "" && doc.RulesetID != expectID {
		return nil, fmt.Errorf("%w: ruleset id mismatch in file (%q != %q)", ErrMalformed, doc.RulesetID, expectID)
	}

	v, err := semver.NewVersion(doc.RulesetVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: ruleset_version %q: %v", ErrMalformed, doc.RulesetVersion, err)
	}

	d := &Descriptor{
		id:          doc.RulesetID,
		version:     v,
		rawVersion:  doc.RulesetVersion,
		description: strings.TrimSpace(doc.Description),
		branchIndex: make(map[string]int, angular.BranchCount),
		hidden:      make(map[string][]string, angular.BranchCount),
		yearScale:   strings.ToUpper(doc.YearBoundary.TimeScale),
		monthScale:  strings.ToUpper(doc.MonthBoundary.TimeScale),
	}

	if len(doc.BranchOrder) != angular.BranchCount {
		return nil, fmt.Errorf("%w: branch_order must list %d branches, got %d", ErrMalformed, angular.BranchCount, len(doc.BranchOrder))
	}
	for i, b := range doc.BranchOrder {
		if b == "" {
			return nil, fmt.Errorf("%w: branch_order[%d] is empty", ErrMalformed, i)
		}
		if _, dup := d.branchIndex[b]; dup {
			return nil, fmt.Errorf("%w: branch %q listed twice", ErrMalformed, b)
		}
		d.branches[i] = b
		d.branchIndex[b] = i
	}

	weights := doc.HiddenStems.PositionWeights
	if len(weights) == 0 {
		return nil, fmt.Errorf("%w: hidden_stems.position_weights is empty", ErrMalformed)
	}
	for i, w := range weights {
		if w <= 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("%w: position_weights[%d]=%v must be positive", ErrMalformed, i, w)
		}
	}
	d.weights = append([]float64(nil), weights...)

	for name := range doc.HiddenStems.BranchToHidden {
		if _, ok := d.branchIndex[name]; !ok {
			return nil, fmt.Errorf("%w: hidden stems for unknown branch %q", ErrMalformed, name)
		}
	}
	for _, b := range d.branches {
		stems, ok := doc.HiddenStems.BranchToHidden[b]
		if !ok || len(stems) == 0 {
			return nil, fmt.Errorf("%w: hidden stems missing for branch %q", ErrMalformed, b)
		}
		if len(stems) > len(weights) {
			return nil, fmt.Errorf("%w: branch %q has %d hidden stems but only %d position weights", ErrMalformed, b, len(stems), len(weights))
		}
		d.hidden[b] = append([]string(nil), stems...)
	}

	verification := Verification(strings.ToLower(doc.DayCycleAnchor.AnchorVerification))
	switch verification {
	case "":
		verification = Missing
	case Verified, Unverified, Missing:
	default:
		return nil, fmt.Errorf("%w: anchor_verification %q", ErrMalformed, doc.DayCycleAnchor.AnchorVerification)
	}
	if doc.DayCycleAnchor.AnchorJDN != nil {
		jdn := *doc.DayCycleAnchor.AnchorJDN
		d.anchor.JDN = &jdn
	}
	d.anchor.Verification = verification

	return d, nil
}

// ID returns the ruleset id.
func (d *Descriptor) ID() string { return d.id }

// Version returns the version string as written in the document.
func (d *Descriptor) Version() string { return d.rawVersion }

// SemVer returns the parsed version.
func (d *Descriptor) SemVer() *semver.Version { return d.version }

func (d *Descriptor) Description() string { return d.description }

// BranchOrder returns the twelve branch names in ruleset order.
func (d *Descriptor) BranchOrder() []string {
	return append([]string(nil), d.branches[:]...)
}

// BranchName maps a sector index (any integer) to its branch name.
func (d *Descriptor) BranchName(i int) string {
	return d.branches[((i%angular.BranchCount)+angular.BranchCount)%angular.BranchCount]
}

// BranchIndex is the inverse of BranchName.
func (d *Descriptor) BranchIndex(name string) (int, bool) {
	i, ok := d.branchIndex[name]
	return i, ok
}

// HiddenStems returns the ordered hidden stems of a branch.
func (d *Descriptor) HiddenStems(branch string) ([]string, error) {
	stems, ok := d.hidden[branch]
	if !ok {
		return nil, fmt.Errorf("ruleset %s: hidden stems missing for branch %q", d.id, branch)
	}
	return append([]string(nil), stems...), nil
}

// WeightedHiddenStems returns the hidden stems of a branch weighted by
// position, normalised to sum to 1 over the stems present.
func (d *Descriptor) WeightedHiddenStems(branch string) ([]WeightedStem, error) {
	stems, err := d.HiddenStems(branch)
	if err != nil {
		return nil, err
	}
	var sum float64
	for i := range stems {
		sum += d.weights[i]
	}
	out := make([]WeightedStem, len(stems))
	for i, s := range stems {
		out[i] = WeightedStem{Stem: s, Weight: d.weights[i] / sum}
	}
	return out, nil
}

// DayCycleAnchor returns a copy of the anchor.
func (d *Descriptor) DayCycleAnchor() Anchor {
	a := Anchor{Verification: d.anchor.Verification}
	if d.anchor.JDN != nil {
		jdn := *d.anchor.JDN
		a.JDN = &jdn
	}
	return a
}

// YearBoundaryTimeScale returns the upper-cased time scale of the year boundary.
func (d *Descriptor) YearBoundaryTimeScale() string { return d.yearScale }

// MonthBoundaryTimeScale returns the upper-cased time scale of month boundaries.
func (d *Descriptor) MonthBoundaryTimeScale() string { return d.monthScale }

// RequiresTT reports whether year or month boundaries are computed in
// Terrestrial Time.
func (d *Descriptor) RequiresTT() bool {
	return d.yearScale == "TT" || d.monthScale == "TT"
}

// SexagenaryDayIndex returns the position of a Julian day number in the
// 60-day cycle, 0 being the anchor day. It fails without an anchor.
func (d *Descriptor) SexagenaryDayIndex(jdn int64) (int, error) {
	if d.anchor.JDN == nil {
		return 0, fmt.Errorf("ruleset %s: no day-cycle anchor", d.id)
	}
	m := (jdn - *d.anchor.JDN) % 60
	if m < 0 {
		m += 60
	}
	return int(m), nil
}

// Summary is the public description of a loaded ruleset.
type Summary struct {
	ID                     string   `json:"ruleset_id"`
	Version                string   `json:"ruleset_version"`
	Description            string   `json:"description,omitempty"`
	BranchOrder            []string `json:"branch_order"`
	DayCycleAnchor         Anchor   `json:"day_cycle_anchor"`
	YearBoundaryTimeScale  string   `json:"year_boundary_time_scale"`
	MonthBoundaryTimeScale string   `json:"month_boundary_time_scale"`
	RequiresTT             bool     `json:"requires_tt"`
}

func (d *Descriptor) Summary() Summary {
	return Summary{
		ID:                     d.id,
		Version:                d.rawVersion,
		Description:            d.description,
		BranchOrder:            d.BranchOrder(),
		DayCycleAnchor:         d.DayCycleAnchor(),
		YearBoundaryTimeScale:  d.yearScale,
		MonthBoundaryTimeScale: d.monthScale,
		RequiresTT:             d.RequiresTT(),
	}
}
