package issues

// Status is a per-domain compliance verdict.
type Status string

const (
	StatusOK       Status = "OK"
	StatusDegraded Status = "DEGRADED"
	StatusFail     Status = "FAIL"
)

func (s Status) rank() int {
	switch s {
	case StatusFail:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}

// Worst returns the more severe of two statuses.
func Worst(a, b Status) Status {
	if b.rank() > a.rank() {
		return b
	}
	if a == "" {
		return StatusOK
	}
	return a
}

// StatusFor derives a domain status from the issues reported under it:
// FAIL on any error, DEGRADED on any warning, OK otherwise.
func StatusFor(d Domain, list []Issue) Status {
	st := StatusOK
	for _, is := range list {
		if is.Code.Domain() != d {
			continue
		}
		if is.Severity == SeverityError {
			return StatusFail
		}
		st = StatusDegraded
	}
	return st
}

// ComplianceStatus is the overall verdict.
type ComplianceStatus string

const (
	Compliant    ComplianceStatus = "COMPLIANT"
	Degraded     ComplianceStatus = "DEGRADED"
	NonCompliant ComplianceStatus = "NON_COMPLIANT"
)

// Overall combines issues and per-domain statuses: NON_COMPLIANT if any error
// or failed domain, DEGRADED if any warning or degraded domain, else COMPLIANT.
func Overall(list []Issue, statuses []Status) ComplianceStatus {
	worst := StatusOK
	for _, s := range statuses {
		worst = Worst(worst, s)
	}
	for _, is := range list {
		if is.Severity == SeverityError {
			worst = StatusFail
			break
		}
		worst = Worst(worst, StatusDegraded)
	}
	switch worst {
	case StatusFail:
		return NonCompliant
	case StatusDegraded:
		return Degraded
	default:
		return Compliant
	}
}
