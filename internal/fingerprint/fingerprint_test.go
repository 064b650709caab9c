package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMessage(t *testing.T) {
	assert.Equal(t, "error at <ip> for user abc<n>", NormalizeMessage("Error at 192.168.1.1 for user abc123"))
	assert.Equal(t, "failed for <uuid>", NormalizeMessage("Failed for 550e8400-e29b-41d4-a716-446655440000"))
	assert.Equal(t, "timeout after <n>ms", NormalizeMessage("  Timeout after 5000ms  "))
}

func TestExtractTopFrame(t *testing.T) {
	stack := "  at MyApp.handleError (src/handler.ts:42:10)\n  at node_modules/express/lib/router.js:100:5"
	assert.Equal(t, "at MyApp.handleError (src/handler.ts)", ExtractTopFrame(stack))
}

func TestExtractTopFrameEmpty(t *testing.T) {
	assert.Equal(t, "", ExtractTopFrame(""))
}

func TestExtractTopFrameAllFramework(t *testing.T) {
	stack := "at node_modules/a.js:1\nat node_modules/b.js:2"
	assert.Equal(t, "at node_modules/a.js:1", ExtractTopFrame(stack))
}

func TestComputeDeterministic(t *testing.T) {
	fp1 := Compute("api", "TypeError", "/users", "Cannot read property 'id' of undefined", "")
	fp2 := Compute("api", "TypeError", "/users", "Cannot read property 'id' of undefined", "")
	require.Equal(t, fp1, fp2)
	require.Len(t, fp1, 16)
}

func TestComputeNormalizesNumbers(t *testing.T) {
	fp1 := Compute("api", "TimeoutError", "", "Timeout after 5000ms", "")
	fp2 := Compute("api", "TimeoutError", "", "Timeout after 3000ms", "")
	assert.Equal(t, fp1, fp2, "different numbers should produce same fingerprint")
}

func TestResolveClientOverride(t *testing.T) {
	client := "ABCDEF0123456789"
	got := Resolve(client, "api", "TypeError", "", "whatever", "")
	assert.Equal(t, "abcdef0123456789", got)
}

func TestResolveClientOverrideInvalidFallsBackToDerived(t *testing.T) {
	derived := Compute("api", "TypeError", "", "whatever", "")
	got := Resolve("not-hex", "api", "TypeError", "", "whatever", "")
	assert.Equal(t, derived, got)
}
