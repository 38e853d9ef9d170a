// Package canonicalize provides deterministic JSON encoding and the
// configuration fingerprint used for reproducibility audits.
//
// Output is RFC 8785 (JSON Canonicalization Scheme) shaped: keys sorted at
// every level, no insignificant whitespace, no HTML escaping and ES6
// shortest round-trip numbers. Two policies refine it: a float policy
// (shortest round-trip or a fixed number of decimals, never implicit) and a
// text policy (raw UTF-8 or \u-escaped ASCII). Strings are NFC-normalised
// so visually identical text fingerprints identically.
package canonicalize

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gowebpki/jcs"
	"golang.org/x/text/unicode/norm"
)

// FloatMode selects how non-integer numbers are rendered.
type FloatMode string

const (
	FloatShortestRoundTrip FloatMode = "shortest_roundtrip"
	FloatFixed             FloatMode = "fixed"
)

// FloatPolicy is the float-formatting policy of an engine configuration.
type FloatPolicy struct {
	Mode          FloatMode `json:"mode"`
	FixedDecimals *int      `json:"fixed_decimals"`
}

// Validate rejects unknown modes and a fixed mode without a decimal count.
func (f FloatPolicy) Validate() error {
	switch f.Mode {
	case FloatShortestRoundTrip:
		return nil
	case FloatFixed:
		if f.FixedDecimals == nil {
			return errors.New("canonicalize: fixed_decimals is required when mode=fixed")
		}
		if *f.FixedDecimals < 0 || *f.FixedDecimals > 17 {
			return fmt.Errorf("canonicalize: fixed_decimals must be in [0,17], got %d", *f.FixedDecimals)
		}
		return nil
	default:
		return fmt.Errorf("canonicalize: unsupported float mode %q", f.Mode)
	}
}

// Policy is the canonicalization policy of an engine configuration.
type Policy struct {
	SortedKeys bool `json:"sorted_keys"`
	UTF8       bool `json:"utf8"`
}

// DefaultFloatPolicy renders floats in shortest round-trip form.
func DefaultFloatPolicy() FloatPolicy {
	return FloatPolicy{Mode: FloatShortestRoundTrip}
}

// DefaultPolicy sorts keys and emits raw UTF-8.
func DefaultPolicy() Policy {
	return Policy{SortedKeys: true, UTF8: true}
}

// Validate rejects unsorted output: Go maps have no insertion order to preserve.
func (p Policy) Validate() error {
	if !p.SortedKeys {
		return errors.New("canonicalize: sorted_keys=false cannot be encoded deterministically")
	}
	return nil
}

// Encode returns the canonical representation of v under the given policies.
//
// Strategy: marshal to intermediate JSON (respects struct tags), decode with
// UseNumber, normalise strings and numbers, then hand the result to the JCS
// transformer for ordering and number formatting.
func Encode(v any, fp FloatPolicy, p Policy) ([]byte, error) {
	if err := fp.Validate(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: pre-marshal failed: %w", err)
	}

	var generic any
	decoder := json.NewDecoder(bytes.NewReader(intermediate))
	decoder.UseNumber()
	if err := decoder.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonicalize: intermediate decode failed: %w", err)
	}

	normalized, err := normalize(generic, fp)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, fmt.Errorf("canonicalize: marshal failed: %w", err)
	}

	out, err := jcs.Transform(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}))
	if err != nil {
		return nil, fmt.Errorf("canonicalize: jcs transform failed: %w", err)
	}
	if !p.UTF8 {
		out = escapeNonASCII(out)
	}
	return out, nil
}

// EncodeDefault encodes with DefaultFloatPolicy and DefaultPolicy.
func EncodeDefault(v any) ([]byte, error) {
	return Encode(v, DefaultFloatPolicy(), DefaultPolicy())
}

// CanonicalHash returns the SHA-256 hex digest of the canonical form of v.
func CanonicalHash(v any, fp FloatPolicy, p Policy) (string, error) {
	b, err := Encode(v, fp, p)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes computes SHA-256 hash of raw bytes and returns hex string
func HashBytes(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Fingerprint identifies an engine configuration together with the ruleset
// and reference-data pack it is evaluated against. It is independent of key
// insertion order at every depth.
func Fingerprint(engineConfig any, rulesetID, rulesetVersion, refdataPackID string, fp FloatPolicy, p Policy) (string, error) {
	payload := map[string]any{
		"engine_config": engineConfig,
		"ruleset": map[string]any{
			"id":      rulesetID,
			"version": rulesetVersion,
		},
		"refdata": map[string]any{
			"pack_id": refdataPackID,
		},
	}
	return CanonicalHash(payload, fp, p)
}

func normalize(v any, fp FloatPolicy) (any, error) {
	switch t := v.(type) {
	case nil, bool:
		return t, nil
	case string:
		return norm.NFC.String(t), nil
	case json.Number:
		return normalizeNumber(t, fp)
	case []any:
		out := make([]any, len(t))
		for i, elem := range t {
			n, err := normalize(elem, fp)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, elem := range t {
			nk := norm.NFC.String(k)
			if _, dup := out[nk]; dup {
				return nil, fmt.Errorf("canonicalize: keys collide after NFC normalisation: %q", nk)
			}
			n, err := normalize(elem, fp)
			if err != nil {
				return nil, err
			}
			out[nk] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("canonicalize: unexpected type %T", v)
	}
}

func normalizeNumber(n json.Number, fp FloatPolicy) (any, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: invalid number %q: %w", s, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("canonicalize: non-finite number %q", s)
	}
	if fp.Mode == FloatFixed {
		f, err = strconv.ParseFloat(strconv.FormatFloat(f, 'f', *fp.FixedDecimals, 64), 64)
		if err != nil {
			return nil, err
		}
	}
	return json.Number(strconv.FormatFloat(f, 'g', -1, 64)), nil
}

// escapeNonASCII rewrites every non-ASCII rune as a \u escape. Canonical
// JSON only carries non-ASCII bytes inside strings, so no tokenising is needed.
func escapeNonASCII(b []byte) []byte {
	var out bytes.Buffer
	out.Grow(len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		b = b[size:]
		if r < utf8.RuneSelf {
			out.WriteRune(r)
			continue
		}
		if r > 0xFFFF {
			r -= 0x10000
			fmt.Fprintf(&out, `\u%04x\u%04x`, 0xD800+(r>>10), 0xDC00+(r&0x3FF))
			continue
		}
		fmt.Fprintf(&out, `\u%04x`, r)
	}
	return out.Bytes()
}
