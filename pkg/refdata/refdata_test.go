package refdata

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazodiac/bafe/pkg/issues"
)

var evalTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func baseConfig() Config {
	return Config{PackID: "refpack-test-001", Mode: ModeBundledOffline}
}

func manifest(t *testing.T, doc string) *Manifest {
	t.Helper()
	m, err := ParseManifest([]byte(doc))
	require.NoError(t, err)
	return m
}

func codes(list []issues.Issue) []string {
	out := make([]string, 0, len(list))
	for _, is := range list {
		out = append(out, is.Code.String()+"/"+string(is.Severity))
	}
	return out
}

func TestArtifactSet_ListAndObjectForms(t *testing.T) {
	list := manifest(t, `{"pack_id":"p","artifacts":[
		{"logical_id":"tzdb","signature_ok":true},
		{"logical_id":"tzdb","signature_ok":false},
		{"logical_id":"unknown"},
		{"logical_id":"eop","present":false}]}`)
	require.NotNil(t, list.Artifacts.Tzdb)
	assert.True(t, *list.Artifacts.Tzdb.SignatureOK, "first entry wins")
	assert.False(t, list.Artifacts.EOP.IsPresent())
	assert.Nil(t, list.Artifacts.Ephemeris)

	obj := manifest(t, `{"refdata_pack_id":"p","artifacts":{"leaps":{"expires_utc":"2099-01-01T00:00:00Z"}}}`)
	require.NotNil(t, obj.Artifacts.Leaps)
	assert.Equal(t, Leaps, obj.Artifacts.Leaps.LogicalID)
	assert.True(t, obj.Artifacts.Leaps.IsPresent())
	assert.Equal(t, "p", obj.DeclaredPackID())

	_, err := ParseManifest([]byte(`{"artifacts":"nope"}`))
	assert.Error(t, err)

	b, err := json.Marshal(obj.Artifacts)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"logical_id":"leaps","expires_utc":"2099-01-01T00:00:00Z"}]`, string(b))
}

func TestEvaluate_NetworkAndManifest(t *testing.T) {
	cfg := baseConfig()
	cfg.AllowNetwork = true
	res := Evaluate(cfg, nil, evalTime)
	assert.Equal(t, []string{"REFDATA_NETWORK_FORBIDDEN/ERROR", "REFDATA_MANIFEST_MISSING/ERROR"}, codes(res.Issues))
	assert.Equal(t, []string{"mode=BUNDLED_OFFLINE", "allow_network=true"}, res.Notes)
	assert.False(t, res.Evidence.Artifacts.Ephemeris.Present)

	cfg.Mode = ModeOnline
	res = Evaluate(cfg, nil, evalTime)
	assert.Empty(t, res.Issues)

	cfg.Mode = ModeLocalMirror
	cfg.AllowNetwork = false
	res = Evaluate(cfg, manifest(t, `{"pack_id":"other","artifacts":[]}`), evalTime)
	assert.Empty(t, res.Issues)
	assert.Contains(t, res.Notes, "manifest_pack_id_mismatch=true")
}

func TestEvaluate_PolicyScenarios(t *testing.T) {
	tests := []struct {
		name   string
		policy VerificationPolicy
		doc    string
		want   []string
	}{
		{
			name:   "leaps expired",
			policy: VerificationPolicy{LeapsExpiryEnforced: true},
			doc:    `{"artifacts":[{"logical_id":"leaps","expires_utc":"2020-01-01T00:00:00Z"}]}`,
			want:   []string{"LEAP_SECONDS_FILE_EXPIRED/ERROR"},
		},
		{
			name:   "leaps valid",
			policy: VerificationPolicy{LeapsExpiryEnforced: true},
			doc:    `{"artifacts":[{"logical_id":"leaps","expires_utc":"2099-01-01T00:00:00Z"}]}`,
			want:   []string{},
		},
		{
			name:   "leaps expiry missing",
			policy: VerificationPolicy{LeapsExpiryEnforced: true},
			doc:    `{"artifacts":[]}`,
			want:   []string{"LEAP_SECONDS_FILE_EXPIRED/WARNING"},
		},
		{
			name:   "leaps expiry unparseable",
			policy: VerificationPolicy{LeapsExpiryEnforced: true},
			doc:    `{"artifacts":[{"logical_id":"leaps","expires_utc":"soon"}]}`,
			want:   []string{"LEAP_SECONDS_FILE_EXPIRED/WARNING"},
		},
		{
			name:   "tzdb signature false",
			policy: VerificationPolicy{TzdbGPGRequired: true},
			doc:    `{"artifacts":[{"logical_id":"tzdb","signature_ok":false}]}`,
			want:   []string{"TZDB_SIGNATURE_INVALID/ERROR"},
		},
		{
			name:   "tzdb absent",
			policy: VerificationPolicy{TzdbGPGRequired: true},
			doc:    `{"artifacts":[]}`,
			want:   []string{"TZDB_SIGNATURE_INVALID/ERROR"},
		},
		{
			name:   "ephemeris not present",
			policy: VerificationPolicy{EphemerisHashRequired: true},
			doc:    `{"artifacts":[{"logical_id":"ephemeris","present":false,"hash_sha256":"deadbeef"}]}`,
			want:   []string{"EPHEMERIS_MISSING/ERROR"},
		},
		{
			name:   "ephemeris unverifiable",
			policy: VerificationPolicy{EphemerisHashRequired: true},
			doc:    `{"artifacts":[{"logical_id":"ephemeris","present":true,"hash_sha256":"MISSING"}]}`,
			want:   []string{"EPHEMERIS_HASH_MISMATCH/ERROR"},
		},
		{
			name:   "eop missing",
			policy: VerificationPolicy{EOPRedundancyRequired: true},
			doc:    `{"artifacts":[]}`,
			want:   []string{"EOP_MISSING/ERROR"},
		},
		{
			name:   "eop stale and predicted",
			policy: VerificationPolicy{EOPRedundancyRequired: true},
			doc:    `{"artifacts":[{"logical_id":"eop","stale":true,"predicted_region_used":true}]}`,
			want:   []string{"EOP_STALE/WARNING", "EOP_PREDICTED_REGION_USED/WARNING"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			cfg.VerificationPolicy = tt.policy
			res := Evaluate(cfg, manifest(t, tt.doc), evalTime)
			assert.Equal(t, tt.want, codes(res.Issues))
		})
	}
}

func TestEvaluate_LeapsExpiryUsesInjectedTime(t *testing.T) {
	cfg := baseConfig()
	cfg.VerificationPolicy.LeapsExpiryEnforced = true
	m := manifest(t, `{"artifacts":[{"logical_id":"leaps","expires_utc":"2025-06-28T00:00:00Z"}]}`)

	assert.Empty(t, Evaluate(cfg, m, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)).Issues)

	res := Evaluate(cfg, m, evalTime)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, "2026-01-01T00:00:00Z", res.Issues[0].Details["now_utc"])
}

func TestEvaluate_EphemerisHashFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "de440.bin"), []byte("ephemeris"), 0o600))
	good := HashBytesForTest([]byte("ephemeris"))

	cfg := baseConfig()
	cfg.RootPath = &root
	cfg.VerificationPolicy.EphemerisHashRequired = true

	res := Evaluate(cfg, manifest(t, `{"artifacts":[{"logical_id":"ephemeris","path":"de440.bin","hash_sha256":"`+good+`"}]}`), evalTime)
	assert.Empty(t, res.Issues)
	require.NotNil(t, res.Evidence.Artifacts.Ephemeris.Verified)
	assert.True(t, *res.Evidence.Artifacts.Ephemeris.Verified)

	res = Evaluate(cfg, manifest(t, `{"artifacts":[{"logical_id":"ephemeris","path":"de440.bin","hash_sha256":"00ff"}]}`), evalTime)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, issues.EphemerisHashMismatch, res.Issues[0].Code)
	assert.Equal(t, good, res.Issues[0].Details["actual"])
	assert.Equal(t, "00ff", res.Issues[0].Details["declared"])
	assert.False(t, *res.Evidence.Artifacts.Ephemeris.Verified)

	// Escaping the root makes the artifact unverifiable.
	res = Evaluate(cfg, manifest(t, `{"artifacts":[{"logical_id":"ephemeris","path":"../de440.bin","hash_sha256":"`+good+`"}]}`), evalTime)
	assert.Equal(t, []string{"EPHEMERIS_HASH_MISMATCH/ERROR"}, codes(res.Issues))
	assert.Nil(t, res.Issues[0].Details)

	// Absolute paths are accepted only under the root.
	abs := filepath.Join(root, "de440.bin")
	res = Evaluate(cfg, manifest(t, `{"artifacts":[{"logical_id":"ephemeris","path":"`+filepath.ToSlash(abs)+`","hash_sha256":"`+good+`"}]}`), evalTime)
	assert.Empty(t, res.Issues)

	cfg.RootPath = nil
	res = Evaluate(cfg, manifest(t, `{"artifacts":[{"logical_id":"ephemeris","path":"`+filepath.ToSlash(abs)+`","hash_sha256":"`+good+`"}]}`), evalTime)
	assert.Equal(t, []string{"EPHEMERIS_HASH_MISMATCH/ERROR"}, codes(res.Issues))
	assert.Nil(t, res.Issues[0].Details)
}

func TestEvaluate_ArtifactOutsideRootIsUnverifiable(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(t.TempDir(), "secret.bin")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o600))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link.bin")))

	cfg := baseConfig()
	cfg.RootPath = &root
	cfg.VerificationPolicy.EphemerisHashRequired = true

	for _, path := range []string{filepath.ToSlash(outside), "link.bin"} {
		res := Evaluate(cfg, manifest(t, `{"artifacts":[{"logical_id":"ephemeris","path":"`+path+`","hash_sha256":"00"}]}`), evalTime)
		require.Equal(t, []string{"EPHEMERIS_HASH_MISMATCH/ERROR"}, codes(res.Issues), path)
		assert.Contains(t, res.Issues[0].Message, "could not be verified", path)
		assert.Nil(t, res.Issues[0].Details, path)
		assert.Nil(t, res.Evidence.Artifacts.Ephemeris.Verified, path)
	}
}

func TestEvaluate_HashesEveryResolvableArtifact(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "leap-seconds.list"), []byte("leaps"), 0o600))

	cfg := baseConfig()
	cfg.RootPath = &root
	res := Evaluate(cfg, manifest(t, `{"artifacts":{"leaps":{"path":"leap-seconds.list","hash_sha256":"`+HashBytesForTest([]byte("leaps"))+`","verified":false}}}`), evalTime)
	assert.Empty(t, res.Issues)
	require.NotNil(t, res.Evidence.Artifacts.Leaps.Verified)
	assert.True(t, *res.Evidence.Artifacts.Leaps.Verified)
}

func TestParseTimestamp(t *testing.T) {
	for _, s := range []string{"2026-01-01T00:00:00Z", "2026-01-01T01:00:00+01:00", "2026-01-01T00:00:00", "2026-01-01"} {
		ts, err := ParseTimestamp(s)
		require.NoError(t, err, s)
		assert.True(t, ts.Equal(evalTime), s)
	}
	_, err := ParseTimestamp("yesterday")
	assert.Error(t, err)
}
