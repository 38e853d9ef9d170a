// Package refdata evaluates a reference-data manifest (ephemeris, tzdb,
// leap-second table, earth-orientation parameters) against a verification
// policy. Evaluation is offline and deterministic given the manifest, the
// files it points at and the injected evaluation time.
package refdata

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Mode is the reference-data access mode.
type Mode string

const (
	ModeBundledOffline Mode = "BUNDLED_OFFLINE"
	ModeLocalMirror    Mode = "LOCAL_MIRROR"
	ModeOnline         Mode = "ONLINE"
)

// Offline reports whether the mode forbids network access.
func (m Mode) Offline() bool {
	return m == ModeBundledOffline || m == ModeLocalMirror
}

// VerificationPolicy selects which artifact checks are enforced.
type VerificationPolicy struct {
	TzdbGPGRequired       bool `json:"tzdb_gpg_required"`
	EphemerisHashRequired bool `json:"ephemeris_hash_required"`
	LeapsExpiryEnforced   bool `json:"leaps_expiry_enforced"`
	EOPRedundancyRequired bool `json:"eop_redundancy_required"`
}

// Config is the refdata sub-configuration of an engine configuration.
type Config struct {
	PackID             string             `json:"refdata_pack_id"`
	Mode               Mode               `json:"refdata_mode"`
	AllowNetwork       bool               `json:"allow_network"`
	RootPath           *string            `json:"refdata_root_path"`
	EphemerisID        *string            `json:"ephemeris_id"`
	TzdbVersionID      *string            `json:"tzdb_version_id"`
	LeapsSourceID      *string            `json:"leaps_source_id"`
	EOPSourceID        *string            `json:"eop_source_id"`
	VerificationPolicy VerificationPolicy `json:"verification_policy"`
}

// Logical artifact ids.
const (
	Ephemeris = "ephemeris"
	Tzdb      = "tzdb"
	Leaps     = "leaps"
	EOP       = "eop"
)

// LogicalIDs lists the artifact categories in evaluation order.
func LogicalIDs() []string {
	return []string{Ephemeris, Tzdb, Leaps, EOP}
}

// Artifact is one declared reference artifact. Absent fields are nil.
type Artifact struct {
	LogicalID           string   `json:"logical_id,omitempty"`
	Present             *bool    `json:"present,omitempty"`
	Verified            *bool    `json:"verified,omitempty"`
	HashSHA256          *string  `json:"hash_sha256,omitempty"`
	SignatureOK         *bool    `json:"signature_ok,omitempty"`
	ExpiresUTC          *string  `json:"expires_utc,omitempty"`
	Stale               *bool    `json:"stale,omitempty"`
	Path                *string  `json:"path,omitempty"`
	Notes               []string `json:"notes,omitempty"`
	PredictedRegionUsed *bool    `json:"predicted_region_used,omitempty"`
}

// IsPresent reports presence; a declared artifact is present unless it says
// otherwise.
func (a *Artifact) IsPresent() bool {
	return a != nil && (a.Present == nil || *a.Present)
}

// ArtifactSet holds at most one artifact per category.
type ArtifactSet struct {
	Ephemeris *Artifact
	Tzdb      *Artifact
	Leaps     *Artifact
	EOP       *Artifact
}

// Get returns the artifact for a logical id, or nil.
func (s *ArtifactSet) Get(logicalID string) *Artifact {
	switch logicalID {
	case Ephemeris:
		return s.Ephemeris
	case Tzdb:
		return s.Tzdb
	case Leaps:
		return s.Leaps
	case EOP:
		return s.EOP
	}
	return nil
}

func (s *ArtifactSet) set(logicalID string, a *Artifact) {
	switch logicalID {
	case Ephemeris:
		s.Ephemeris = a
	case Tzdb:
		s.Tzdb = a
	case Leaps:
		s.Leaps = a
	case EOP:
		s.EOP = a
	}
}

// UnmarshalJSON accepts either a list of artifacts tagged by logical_id (the
// first entry per id wins) or an object keyed by logical id. Unknown ids are
// ignored.
func (s *ArtifactSet) UnmarshalJSON(data []byte) error {
	*s = ArtifactSet{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	switch trimmed[0] {
	case '[':
		var list []Artifact
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return fmt.Errorf("refdata: artifacts list: %w", err)
		}
		for i := range list {
			a := list[i]
			if s.Get(a.LogicalID) == nil {
				s.set(a.LogicalID, &a)
			}
		}
	case '{':
		var byID map[string]Artifact
		if err := json.Unmarshal(trimmed, &byID); err != nil {
			return fmt.Errorf("refdata: artifacts object: %w", err)
		}
		for _, id := range LogicalIDs() {
			if a, ok := byID[id]; ok {
				a.LogicalID = id
				s.set(id, &a)
			}
		}
	default:
		return fmt.Errorf("refdata: artifacts must be a list or an object")
	}
	return nil
}

// MarshalJSON emits the list form.
func (s ArtifactSet) MarshalJSON() ([]byte, error) {
	list := make([]Artifact, 0, 4)
	for _, id := range LogicalIDs() {
		if a := s.Get(id); a != nil {
			c := *a
			c.LogicalID = id
			list = append(list, c)
		}
	}
	return json.Marshal(list)
}

// Manifest is a reference-data manifest.
type Manifest struct {
	PackID        string      `json:"pack_id,omitempty"`
	RefdataPackID string      `json:"refdata_pack_id,omitempty"`
	Artifacts     ArtifactSet `json:"artifacts"`
}

// DeclaredPackID returns pack_id, falling back to refdata_pack_id.
func (m *Manifest) DeclaredPackID() string {
	if m.PackID != "" {
		return m.PackID
	}
	return m.RefdataPackID
}

// ParseManifest decodes a manifest document.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("refdata: manifest: %w", err)
	}
	return &m, nil
}
