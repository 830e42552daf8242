package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		env     string
		debugOn bool
	}{
		{"local", true},
		{"prod", false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			l, err := New("crash-api", tt.env)
			require.NoError(t, err)
			defer l.Sync()

			assert.Equal(t, tt.debugOn, l.Core().Enabled(zapcore.DebugLevel))
			assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
		})
	}
}
