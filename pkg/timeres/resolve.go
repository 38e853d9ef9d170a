// Package timeres resolves naive local civil times within a named time zone
// under a DST policy, and derives solar time standards from the result.
package timeres

import (
	"fmt"
	"sort"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/bazodiac/bafe/pkg/issues"
)

// MaxForwardShiftMinutes bounds the search for the next valid local time.
const MaxForwardShiftMinutes = 180

const localPath = "/birth_event/local_datetime"

// Status classifies a naive local time.
type Status string

const (
	StatusOK          Status = "ok"
	StatusAmbiguous   Status = "ambiguous"
	StatusNonexistent Status = "nonexistent"
)

// Policy selects how ambiguous and nonexistent local times are resolved.
type Policy string

const (
	PolicyError        Policy = "error"
	PolicyEarlier      Policy = "earlier"
	PolicyLater        Policy = "later"
	PolicyShiftForward Policy = "shift_forward"
)

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	switch p {
	case PolicyError, PolicyEarlier, PolicyLater, PolicyShiftForward:
		return true
	}
	return false
}

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
}

// ParseLocal parses a zone-less ISO-8601 local timestamp. The result carries
// the wall-clock fields in time.UTC and must be placed in a zone with Detect
// or Resolve.
func ParseLocal(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("timeres: %q is not a zone-less local timestamp", s)
}

// FormatLocal renders the wall-clock fields of t without a zone.
func FormatLocal(t time.Time) string {
	return t.Format("2006-01-02T15:04:05.999999999")
}

func sameWall(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd &&
		a.Hour() == b.Hour() && a.Minute() == b.Minute() && a.Second() == b.Second() &&
		a.Nanosecond() == b.Nanosecond()
}

// candidates returns every instant in loc whose wall clock equals naive,
// earliest first.
func candidates(naive time.Time, loc *time.Location) []time.Time {
	wall := time.Date(naive.Year(), naive.Month(), naive.Day(),
		naive.Hour(), naive.Minute(), naive.Second(), naive.Nanosecond(), time.UTC)

	offsets := make(map[int]struct{}, 2)
	for _, h := range []int{-48, -24, -12, 0, 12, 24, 48} {
		_, off := wall.Add(time.Duration(h) * time.Hour).In(loc).Zone()
		offsets[off] = struct{}{}
	}

	var out []time.Time
	for off := range offsets {
		instant := wall.Add(-time.Duration(off) * time.Second)
		local := instant.In(loc)
		if sameWall(local, wall) {
			out = append(out, local)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Detect classifies naive within loc: nonexistent when no offset round-trips
// to the same wall clock, ambiguous when two offsets do.
func Detect(naive time.Time, loc *time.Location) Status {
	switch len(candidates(naive, loc)) {
	case 0:
		return StatusNonexistent
	case 1:
		return StatusOK
	default:
		return StatusAmbiguous
	}
}

// Resolution is a resolved local time.
type Resolution struct {
	Status       Status
	Resolved     bool
	Time         time.Time // in the requested zone; zero unless Resolved
	Fold         int
	ShiftMinutes int
}

// OffsetSeconds returns the UTC offset of the resolved time.
func (r Resolution) OffsetSeconds() int {
	_, off := r.Time.Zone()
	return off
}

// Resolve places naive in loc according to policy. Ambiguous times resolve
// to fold 0 (the earlier instant) under earlier and shift_forward and to
// fold 1 under later. Nonexistent times move forward minute by minute to
// the next valid wall clock under every policy but error. The error policy,
// or an exhausted search, yields an ERROR issue; a forward shift yields a
// WARNING carrying the shift.
func Resolve(naive time.Time, loc *time.Location, policy Policy) (Resolution, []issues.Issue) {
	details := func() map[string]any {
		return map[string]any{"tz_id": loc.String(), "local_datetime": FormatLocal(naive)}
	}

	found := candidates(naive, loc)
	switch len(found) {
	case 1:
		return Resolution{Status: StatusOK, Resolved: true, Time: found[0]}, nil

	case 0:
		if policy == PolicyError {
			return Resolution{Status: StatusNonexistent}, []issues.Issue{
				issues.New(issues.DSTNonexistentLocalTime, issues.SeverityError, localPath,
					"Nonexistent local time (DST gap) with dst_policy=error", details()),
			}
		}
		for m := 1; m <= MaxForwardShiftMinutes; m++ {
			shifted := naive.Add(time.Duration(m) * time.Minute)
			if c := candidates(shifted, loc); len(c) > 0 {
				d := details()
				d["resolved_local_datetime"] = FormatLocal(shifted)
				d["shift_minutes"] = m
				return Resolution{Status: StatusNonexistent, Resolved: true, Time: c[0], ShiftMinutes: m},
					[]issues.Issue{issues.New(issues.DSTNonexistentLocalTime, issues.SeverityWarning, localPath,
						fmt.Sprintf("Nonexistent local time (DST gap) shifted forward by %d minutes to %s", m, FormatLocal(shifted)), d)}
			}
		}
		d := details()
		d["max_shift_minutes"] = MaxForwardShiftMinutes
		return Resolution{Status: StatusNonexistent}, []issues.Issue{
			issues.New(issues.DSTNonexistentLocalTime, issues.SeverityError, localPath,
				"Could not resolve nonexistent local time within the forward search bound", d),
		}

	default:
		if policy == PolicyError {
			return Resolution{Status: StatusAmbiguous}, []issues.Issue{
				issues.New(issues.DSTAmbiguousLocalTime, issues.SeverityError, localPath,
					"Ambiguous local time (DST fold) with dst_policy=error", details()),
			}
		}
		fold := 0
		if policy == PolicyLater {
			fold = 1
		}
		return Resolution{Status: StatusAmbiguous, Resolved: true, Time: found[fold], Fold: fold}, nil
	}
}
