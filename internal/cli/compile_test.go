package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/latch/internal/ir"
	"github.com/roach88/latch/internal/lifecycle"
)

func TestCompile_Stdout(t *testing.T) {
	out, _, err := execute(t, nil, "compile", quickRules)
	require.NoError(t, err)

	var doc struct {
		IRVersion   string           `json:"ir_version"`
		Lifecycle   map[string]any   `json:"lifecycle"`
		Rules       []map[string]any `json:"rules"`
		RulesetHash string           `json:"ruleset_hash"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, ir.IRVersion, doc.IRVersion)
	assert.Len(t, doc.Rules, 6)
	assert.NotEmpty(t, doc.RulesetHash)
	assert.Equal(t, "idle_to_ready", doc.Rules[0]["id"])
}

func TestCompile_OutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ruleset.json")

	out, _, err := execute(t, nil, "compile", quickRules, "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Compiled 6 rules to "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ruleset_hash"`)
}

func TestCompile_Failure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lifecycle.cue", "package rules\nlifecycle: dwell_ready_ms: -5\n")

	out, _, err := execute(t, nil, "compile", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E_COMPILE_FAILED]")
}

func TestCompileRuleset_Deterministic(t *testing.T) {
	cfg := ir.DefaultConfig()
	rules := lifecycle.CanonicalRules(cfg)

	a, hashA, err := CompileRuleset(rules, cfg)
	require.NoError(t, err)
	b, hashB, err := CompileRuleset(rules, cfg)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, hashA, hashB)

	want, err := ir.RulesetHash(rules, cfg)
	require.NoError(t, err)
	assert.Equal(t, want, hashA)

	cfg.DwellReadyMs = 60
	_, hashC, err := CompileRuleset(lifecycle.CanonicalRules(cfg), cfg)
	require.NoError(t, err)
	assert.NotEqual(t, hashA, hashC)
}
