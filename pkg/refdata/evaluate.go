package refdata

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bazodiac/bafe/pkg/issues"
)

const manifestPath = "/refdata_manifest_inline"

func artifactPath(id, field string) string {
	return manifestPath + "/artifacts/" + id + "/" + field
}

// ArtifactEvidence is the audit record of one artifact category.
type ArtifactEvidence struct {
	LogicalID   string   `json:"logical_id"`
	Present     bool     `json:"present"`
	Verified    *bool    `json:"verified"`
	HashSHA256  *string  `json:"hash_sha256"`
	SignatureOK *bool    `json:"signature_ok"`
	ExpiresUTC  *string  `json:"expires_utc"`
	Stale       *bool    `json:"stale"`
	Notes       []string `json:"notes"`
}

// ArtifactsEvidence holds one record per category.
type ArtifactsEvidence struct {
	Ephemeris ArtifactEvidence `json:"ephemeris"`
	Tzdb      ArtifactEvidence `json:"tzdb"`
	Leaps     ArtifactEvidence `json:"leaps"`
	EOP       ArtifactEvidence `json:"eop"`
}

func (a *ArtifactsEvidence) get(id string) *ArtifactEvidence {
	switch id {
	case Ephemeris:
		return &a.Ephemeris
	case Tzdb:
		return &a.Tzdb
	case Leaps:
		return &a.Leaps
	default:
		return &a.EOP
	}
}

// Evidence is the refdata section of a validation response.
type Evidence struct {
	RefdataPackID string            `json:"refdata_pack_id"`
	AllowNetwork  bool              `json:"allow_network"`
	Mode          string            `json:"mode"`
	Artifacts     ArtifactsEvidence `json:"artifacts"`
}

// Result is the outcome of Evaluate.
type Result struct {
	Issues   []issues.Issue
	Evidence Evidence
	Notes    []string
}

// Evaluate checks a manifest against the configuration's verification
// policy. A nil manifest means none was supplied. now is the evaluation
// time used for expiry checks.
func Evaluate(cfg Config, m *Manifest, now time.Time) Result {
	now = now.UTC()
	packID := cfg.PackID
	if packID == "" {
		packID = "MISSING"
	}

	var res Result
	res.Evidence = Evidence{
		RefdataPackID: packID,
		AllowNetwork:  cfg.AllowNetwork,
		Mode:          string(cfg.Mode),
	}
	for _, id := range LogicalIDs() {
		*res.Evidence.Artifacts.get(id) = ArtifactEvidence{LogicalID: id, Notes: []string{}}
	}

	if cfg.Mode.Offline() && cfg.AllowNetwork {
		res.Issues = append(res.Issues, issues.Error(issues.RefdataNetworkForbidden,
			"/engine_config/refdata/allow_network",
			fmt.Sprintf("refdata_mode=%s forbids allow_network=true", cfg.Mode)))
	}
	if cfg.Mode.Offline() && m == nil {
		res.Issues = append(res.Issues, issues.Error(issues.RefdataManifestMissing,
			manifestPath,
			fmt.Sprintf("refdata_mode=%s requires a refdata manifest (inline or on disk)", cfg.Mode)))
	}

	res.Notes = []string{
		"mode=" + string(cfg.Mode),
		fmt.Sprintf("allow_network=%t", cfg.AllowNetwork),
	}
	if m == nil {
		return res
	}

	if declared := m.DeclaredPackID(); declared != "" && declared != packID {
		res.Notes = append(res.Notes, "manifest_pack_id_mismatch=true")
	}

	root := ""
	if cfg.RootPath != nil {
		root = *cfg.RootPath
	}
	digests := make(map[string]fileDigest, 4)
	for _, id := range LogicalIDs() {
		a := m.Artifacts.Get(id)
		if a == nil {
			continue
		}
		ev := res.Evidence.Artifacts.get(id)
		*ev = ArtifactEvidence{
			LogicalID:   id,
			Present:     a.IsPresent(),
			Verified:    a.Verified,
			HashSHA256:  a.HashSHA256,
			SignatureOK: a.SignatureOK,
			ExpiresUTC:  a.ExpiresUTC,
			Stale:       a.Stale,
			Notes:       append([]string{}, a.Notes...),
		}
		if d, ok := verifyArtifact(a, root); ok {
			digests[id] = d
			match := d.matches
			ev.Verified = &match
		}
	}

	policy := cfg.VerificationPolicy
	ev := &res.Evidence.Artifacts

	if policy.TzdbGPGRequired && (ev.Tzdb.SignatureOK == nil || !*ev.Tzdb.SignatureOK) {
		res.Issues = append(res.Issues, issues.Error(issues.TzdbSignatureInvalid,
			artifactPath(Tzdb, "signature_ok"),
			"tzdb_gpg_required=true but tzdb signature_ok is not true"))
	}

	if policy.EphemerisHashRequired {
		res.Issues = append(res.Issues, checkEphemerisHash(ev.Ephemeris, digests)...)
	}

	if policy.LeapsExpiryEnforced {
		res.Issues = append(res.Issues, checkLeapsExpiry(ev.Leaps, now)...)
	}

	if policy.EOPRedundancyRequired {
		if !ev.EOP.Present {
			res.Issues = append(res.Issues, issues.Error(issues.EOPMissing,
				artifactPath(EOP, "present"),
				"eop_redundancy_required=true but EOP artifact missing"))
		} else if ev.EOP.Stale != nil && *ev.EOP.Stale {
			res.Issues = append(res.Issues, issues.Warning(issues.EOPStale,
				artifactPath(EOP, "stale"),
				"EOP artifact marked stale"))
		}
	}

	if eop := m.Artifacts.EOP; eop.IsPresent() && eop.PredictedRegionUsed != nil && *eop.PredictedRegionUsed {
		res.Issues = append(res.Issues, issues.Warning(issues.EOPPredictedRegionUsed,
			artifactPath(EOP, "predicted_region_used"),
			"EOP artifact relies on the predicted (non-final) region"))
	}

	return res
}

func checkEphemerisHash(ev ArtifactEvidence, digests map[string]fileDigest) []issues.Issue {
	if !ev.Present {
		return []issues.Issue{issues.Error(issues.EphemerisMissing,
			artifactPath(Ephemeris, "present"),
			"ephemeris_hash_required=true but ephemeris is missing")}
	}
	d, ok := digests[Ephemeris]
	if !ok {
		// An unverifiable hash is reported as a mismatch.
		return []issues.Issue{issues.Error(issues.EphemerisHashMismatch,
			artifactPath(Ephemeris, "hash_sha256"),
			"ephemeris_hash_required=true but ephemeris hash could not be verified (missing file or hash)")}
	}
	if !d.matches {
		return []issues.Issue{issues.New(issues.EphemerisHashMismatch, issues.SeverityError,
			artifactPath(Ephemeris, "hash_sha256"),
			"ephemeris hash mismatch (sha256)",
			map[string]any{"declared": d.declared, "actual": d.actual})}
	}
	return nil
}

func checkLeapsExpiry(ev ArtifactEvidence, now time.Time) []issues.Issue {
	path := artifactPath(Leaps, "expires_utc")
	if ev.ExpiresUTC == nil {
		return []issues.Issue{issues.Warning(issues.LeapSecondsFileExpired, path,
			"leaps_expiry_enforced=true but leaps.expires_utc is missing; cannot enforce deterministically")}
	}
	expires, err := ParseTimestamp(*ev.ExpiresUTC)
	if err != nil {
		return []issues.Issue{issues.New(issues.LeapSecondsFileExpired, issues.SeverityWarning, path,
			"leaps_expiry_enforced=true but leaps.expires_utc is not a timestamp; cannot enforce deterministically",
			map[string]any{"expires_utc": *ev.ExpiresUTC})}
	}
	if expires.Before(now) {
		return []issues.Issue{issues.New(issues.LeapSecondsFileExpired, issues.SeverityError, path,
			"leap seconds file expired under leaps_expiry_enforced=true",
			map[string]any{"expires_utc": *ev.ExpiresUTC, "now_utc": FormatTimestamp(now)})}
	}
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 timestamp. A missing zone means UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("refdata: unparseable timestamp %q", s)
}

// FormatTimestamp renders t in UTC with a Z suffix.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

type fileDigest struct {
	declared string
	actual   string
	matches  bool
}

// maxArtifactBytes bounds how much of one artifact is read for hashing.
const maxArtifactBytes = 1 << 30

// verifyArtifact hashes the artifact's file when both a resolvable path and
// a usable declared hash exist. ok is false when verification is impossible.
func verifyArtifact(a *Artifact, root string) (fileDigest, bool) {
	if a.HashSHA256 == nil || a.Path == nil {
		return fileDigest{}, false
	}
	declared := strings.TrimSpace(*a.HashSHA256)
	if declared == "" || strings.EqualFold(declared, "MISSING") {
		return fileDigest{}, false
	}
	rel, ok := resolvePath(*a.Path, root)
	if !ok {
		return fileDigest{}, false
	}
	actual, err := hashFile(root, rel)
	if err != nil {
		return fileDigest{}, false
	}
	return fileDigest{
		declared: declared,
		actual:   actual,
		matches:  strings.EqualFold(declared, actual),
	}, true
}

// resolvePath returns p relative to root. Absolute and relative paths are
// both accepted only when they stay under root; without a root nothing is.
func resolvePath(p, root string) (string, bool) {
	if p == "" || root == "" {
		return "", false
	}
	rel := p
	if filepath.IsAbs(p) {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return "", false
		}
		if rel, err = filepath.Rel(absRoot, p); err != nil {
			return "", false
		}
	}
	if !filepath.IsLocal(rel) {
		return "", false
	}
	return rel, true
}

// hashFile opens name through an os.Root so symlinks cannot leave root.
func hashFile(root, name string) (string, error) {
	f, err := os.OpenInRoot(root, name)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("refdata: %s is not a regular file", name)
	}
	if info.Size() > maxArtifactBytes {
		return "", fmt.Errorf("refdata: %s exceeds %d bytes", name, maxArtifactBytes)
	}

	h := sha256.New()
	if _, err := io.Copy(h, io.LimitReader(f, maxArtifactBytes)); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
