package boundary

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoopVoiceBridgeNeverErrors(t *testing.T) {
	var b VoiceBridge = NoopVoiceBridge{}
	require.NoError(t, b.Speak("anything"))
}
