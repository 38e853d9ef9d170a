package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazodiac/bafe/pkg/compliance"
)

const request = `{
  "validate_level": "FULL",
  "now_utc_override": "2026-01-01T00:00:00Z",
  "refdata_manifest_inline": {"pack_id": "refpack-test-001", "artifacts": []},
  "engine_config": {
    "engine_version": "1.0.0-rc0",
    "parameter_set_id": "standard",
    "deterministic": true,
    "compliance_mode": "RELAXED",
    "bazi_ruleset_id": "standard_bazi_2026",
    "refdata": {
      "refdata_pack_id": "refpack-test-001",
      "refdata_mode": "BUNDLED_OFFLINE",
      "allow_network": false,
      "refdata_root_path": null,
      "ephemeris_id": "swisseph-2026",
      "tzdb_version_id": "tzdb-2026a",
      "leaps_source_id": "leaps-iers",
      "eop_source_id": null,
      "verification_policy": {
        "tzdb_gpg_required": false,
        "ephemeris_hash_required": false,
        "leaps_expiry_enforced": false,
        "eop_redundancy_required": false
      }
    }
  }
}`

type result struct {
	code   int
	stdout string
	stderr string
}

func run(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), append([]string{"bafe"}, args...), strings.NewReader(stdin), &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestValidate_DegradedExitsZero(t *testing.T) {
	r := run(t, request, "validate")
	require.Equal(t, exitOK, r.code, r.stderr)

	var resp map[string]any
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &resp))
	assert.Equal(t, "DEGRADED", resp["compliance_status"])
}

func TestValidate_NonCompliantExitsOne(t *testing.T) {
	body := strings.Replace(request, `"refdata_manifest_inline": {"pack_id": "refpack-test-001", "artifacts": []},`, "", 1)
	path := writeFile(t, "request.json", body)

	r := run(t, "", "validate", "--file", path)
	require.Equal(t, exitNonCompliant, r.code, r.stderr)
	assert.Contains(t, r.stdout, "REFDATA_MANIFEST_MISSING")
}

func TestValidate_Summary(t *testing.T) {
	body := strings.Replace(request, `"refdata_manifest_inline": {"pack_id": "refpack-test-001", "artifacts": []},`, "", 1)
	r := run(t, body, "validate", "--summary")
	require.Equal(t, exitNonCompliant, r.code, r.stderr)
	assert.Contains(t, r.stdout, "NON_COMPLIANT")
	assert.Contains(t, r.stdout, "INTERPRETATION_POLICY")
	assert.Contains(t, r.stdout, "REFDATA_MANIFEST_MISSING")
	assert.Contains(t, r.stdout, "/refdata_manifest_inline")

	r = run(t, request, "validate", "--summary", "--canonical")
	assert.Equal(t, exitUsage, r.code)
}

func TestValidate_CanonicalOutputIsStable(t *testing.T) {
	first := run(t, request, "validate", "--canonical")
	second := run(t, request, "validate", "--canonical")
	require.Equal(t, exitOK, first.code, first.stderr)
	assert.Equal(t, first.stdout, second.stdout)
	assert.Equal(t, 1, strings.Count(first.stdout, "\n"), "canonical output is a single line")
}

func TestValidate_RejectedRequestsExitTwo(t *testing.T) {
	tests := []struct {
		name  string
		stdin string
		args  []string
		want  string
	}{
		{"schema violation", strings.Replace(request, `"BUNDLED_OFFLINE"`, `"CARRIER_PIGEON"`, 1), nil, "/engine_config/refdata/refdata_mode"},
		{"malformed json", `{"engine_config":`, nil, "not valid JSON"},
		{"bad --now", request, []string{"--now", "yesterday"}, "--now"},
		{"missing file", "", []string{"--file", "/nonexistent/request.json"}, "read request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := run(t, tt.stdin, append([]string{"validate"}, tt.args...)...)
			assert.Equal(t, exitUsage, r.code)
			assert.Contains(t, r.stderr, tt.want)
		})
	}
}

func TestValidate_NowFlagUsedWithoutOverride(t *testing.T) {
	body := strings.Replace(request, `"now_utc_override": "2026-01-01T00:00:00Z",`, "", 1)
	r := run(t, body, "validate", "--now", "2026-03-01T00:00:00Z", "--canonical")
	require.Equal(t, exitOK, r.code, r.stderr)

	with := run(t, request, "validate", "--canonical")
	assert.Equal(t, with.stdout, r.stdout, "now only affects expiry checks, which are off")
}

func TestFingerprint(t *testing.T) {
	r := run(t, request, "fingerprint")
	require.Equal(t, exitOK, r.code, r.stderr)
	fp := strings.TrimSpace(r.stdout)
	assert.Regexp(t, `^[0-9a-f]{64}$`, fp)

	v := run(t, request, "validate")
	assert.Contains(t, v.stdout, fp)
}

func TestRulesets(t *testing.T) {
	r := run(t, "", "rulesets", "show", "standard_bazi_2026")
	require.Equal(t, exitOK, r.code, r.stderr)
	assert.Contains(t, r.stdout, `"ruleset_id": "standard_bazi_2026"`)

	r = run(t, "", "rulesets", "show", "no_such_ruleset")
	assert.Equal(t, exitUsage, r.code)
	assert.Contains(t, r.stderr, "unknown ruleset")

	r = run(t, "", "rulesets", "list")
	require.Equal(t, exitOK, r.code, r.stderr)
	assert.Contains(t, r.stdout, "standard_bazi_2026\n")
	assert.Contains(t, r.stdout, "provisional_bazi_2026\n")
}

func TestRulesets_DirectoryOverlay(t *testing.T) {
	src, err := os.ReadFile(filepath.Join("..", "..", "pkg", "ruleset", "rulesets", "standard_bazi_2026.yaml"))
	require.NoError(t, err)
	dir := t.TempDir()
	custom := strings.Replace(string(src), "standard_bazi_2026", "house_bazi_2026", 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "house_bazi_2026.yaml"), []byte(custom), 0o600))

	r := run(t, "", "rulesets", "list", "--ruleset-dir", dir)
	require.Equal(t, exitOK, r.code, r.stderr)
	assert.Contains(t, r.stdout, "house_bazi_2026\n")
	assert.Contains(t, r.stdout, "standard_bazi_2026\n")

	r = run(t, "", "rulesets", "show", "house_bazi_2026", "--ruleset-dir", dir)
	assert.Equal(t, exitOK, r.code, r.stderr)
}

func TestConfigErrorsExitTwo(t *testing.T) {
	r := run(t, "", "rulesets", "list", "--config", "/nonexistent/bafe.yaml")
	assert.Equal(t, exitUsage, r.code)

	t.Setenv("BAFE_LOG_FORMAT", "xml")
	r = run(t, "", "rulesets", "list")
	assert.Equal(t, exitUsage, r.code)
	assert.Contains(t, r.stderr, "log_format")
}

func TestConfigFile(t *testing.T) {
	path := writeFile(t, "bafe.yaml", "log_level: ERROR\nlog_format: json\n")
	r := run(t, request, "validate", "--config", path)
	require.Equal(t, exitOK, r.code)
	assert.Empty(t, r.stderr, "info logs are filtered at ERROR")
}

func TestUnknownCommandExitsTwo(t *testing.T) {
	r := run(t, "", "frobnicate")
	assert.Equal(t, exitUsage, r.code)
}

func TestServe_StopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var stdout, stderr bytes.Buffer
	code := Run(ctx, []string{"bafe", "serve", "--addr", "127.0.0.1:0"}, strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, exitOK, code, stderr.String())
}

func TestValidationExit(t *testing.T) {
	var ee *exitError
	require.True(t, errors.As(validationExit(&compliance.DefectError{Message: "x"}), &ee))
	assert.Equal(t, exitDefect, ee.code)
	require.True(t, errors.As(validationExit(&compliance.InputError{Message: "x"}), &ee))
	assert.Equal(t, exitUsage, ee.code)
}
