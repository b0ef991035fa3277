package logger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/faradayfan/dedicated-server-manager/internal/logger"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     logger.Config
		enabled zapcore.Level
		wantErr bool
	}{
		{name: "defaults", cfg: logger.Config{}, enabled: zapcore.InfoLevel},
		{name: "debug console", cfg: logger.Config{Level: "debug", Format: "console"}, enabled: zapcore.DebugLevel},
		{name: "warn json", cfg: logger.Config{Level: "warn", Format: "json"}, enabled: zapcore.WarnLevel},
		{name: "bad level", cfg: logger.Config{Level: "loud"}, wantErr: true},
		{name: "bad format", cfg: logger.Config{Format: "xml"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := logger.New(&tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, l.Core().Enabled(tt.enabled))
			if tt.enabled > zapcore.DebugLevel {
				assert.False(t, l.Core().Enabled(tt.enabled-1))
			}
		})
	}
}
