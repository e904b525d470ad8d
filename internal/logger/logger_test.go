package logger

import (
	"testing"

	"pnl-arena/internal/config"
	"pnl-arena/internal/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.Logger
		level   zapcore.Level
		wantErr bool
	}{
		{name: "console debug", cfg: config.Logger{Level: "debug", Format: "console"}, level: zapcore.DebugLevel},
		{name: "json warn", cfg: config.Logger{Level: "warn", Format: "json"}, level: zapcore.WarnLevel},
		{name: "default format", cfg: config.Logger{Level: "info"}, level: zapcore.InfoLevel},
		{name: "bad level", cfg: config.Logger{Level: "loud"}, wantErr: true},
		{name: "bad format", cfg: config.Logger{Level: "info", Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewLogger(tt.cfg)

			if tt.wantErr {
				assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)
				return
			}
			require.NoError(t, err)
			assert.True(t, l.Core().Enabled(tt.level))
			assert.False(t, l.Core().Enabled(tt.level-1))
		})
	}
}
