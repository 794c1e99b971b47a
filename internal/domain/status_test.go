package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestForwardChainOnly(t *testing.T) {
	chain := []SessionStatus{
		StatusCreated, StatusKeypointsUploaded, StatusAnalyzing,
		StatusVideoUploaded, StatusCompleted,
	}
	for i := range chain {
		for j := range chain {
			got := CanTransition(chain[i], chain[j])
			if j >= i {
				require.True(t, got, "%s -> %s should be allowed", chain[i], chain[j])
			} else if chain[i] == StatusAnalyzing && chain[j] == StatusKeypointsUploaded {
				// dispatch-failure revert
				require.True(t, got)
			} else {
				require.False(t, got, "%s -> %s should be rejected", chain[i], chain[j])
			}
		}
	}
}

func TestCancellationFromAnywhere(t *testing.T) {
	for _, from := range []SessionStatus{
		StatusCreated, StatusKeypointsUploaded, StatusAnalyzing,
		StatusVideoUploaded, StatusCompleted, StatusFailed,
		StatusUploaded, StatusProcessing, StatusCancelled,
	} {
		require.True(t, CanTransition(from, StatusCancelled), "%s -> cancelled", from)
	}
}

func TestFailureAndRetry(t *testing.T) {
	for _, from := range []SessionStatus{
		StatusCreated, StatusKeypointsUploaded, StatusAnalyzing, StatusVideoUploaded,
	} {
		require.True(t, CanTransition(from, StatusFailed), "%s -> failed", from)
	}
	// terminal states never fail
	require.False(t, CanTransition(StatusCompleted, StatusFailed))
	require.False(t, CanTransition(StatusCancelled, StatusFailed))

	// failed is retriable toward analyzing, and nothing else
	require.True(t, CanTransition(StatusFailed, StatusAnalyzing))
	require.False(t, CanTransition(StatusFailed, StatusCompleted))
	require.False(t, CanTransition(StatusFailed, StatusVideoUploaded))
}

func TestTerminalStates(t *testing.T) {
	require.True(t, StatusCompleted.IsTerminal())
	require.True(t, StatusCancelled.IsTerminal())
	require.False(t, StatusFailed.IsTerminal())
	require.False(t, StatusAnalyzing.IsTerminal())
}

func TestLegacyAliasesShareTheChain(t *testing.T) {
	require.Equal(t, StatusKeypointsUploaded.Rank(), StatusUploaded.Rank())
	require.Equal(t, StatusAnalyzing.Rank(), StatusProcessing.Rank())
	require.True(t, CanTransition(StatusUploaded, StatusProcessing))
	require.True(t, CanTransition(StatusProcessing, StatusCompleted))
}

func TestParseDeviceInfo(t *testing.T) {
	known, err := ParseDeviceInfo([]byte(`{"source":"android","uploadMode":"wifi","fps":60,"extra":"ignored"}`))
	require.NoError(t, err)
	require.Equal(t, "android", known.Source)
	require.Equal(t, "wifi", known.UploadMode)
	require.Equal(t, 60, known.FPS)

	known, err = ParseDeviceInfo(nil)
	require.NoError(t, err)
	require.Zero(t, known)
}
