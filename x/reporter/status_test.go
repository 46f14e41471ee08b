package reporter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusRecoveryOverlay(t *testing.T) {
	t.Parallel()

	h := NewStatusHolder()
	require.Equal(t, StatusNotWorking, h.Get())

	h.Set(StatusMonitoring)
	require.Equal(t, StatusMonitoring, h.Get())

	// Recovery shadows any base state and releases back to it.
	h.SetRecovering(true)
	require.Equal(t, StatusRecovering, h.Get())

	h.Set(StatusProcessing)
	require.Equal(t, StatusRecovering, h.Get())

	h.SetRecovering(false)
	require.Equal(t, StatusProcessing, h.Get())
}
