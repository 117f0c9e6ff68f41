package harness

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGoldenLifesteal(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/lifesteal.yaml")
	require.NoError(t, err)
	require.NoError(t, RunWithGolden(t, s))
}

func TestAssertGoldenPermissionDenied(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/permission_denied.yaml")
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	require.NoError(t, AssertGolden(t, s.Name, result))
}
