package utils

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
	}{
		{"u-123", false},
		{"ou_7d8a6e6df7621556ce0d21922b676706", false},
		{"hr.manager", false},
		{"", true},
		{"has space", true},
		{"semi;colon", true},
		{strings.Repeat("a", MaxIdentifierLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			err := ValidateIdentifier("user id", tt.id)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateAmount(t *testing.T) {
	neg, zero := -1.5, 0.0
	assert.NoError(t, ValidateAmount(nil))
	assert.NoError(t, ValidateAmount(&zero))
	assert.Error(t, ValidateAmount(&neg))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "ok\nfine", SanitizeString("  o\x00k\nfine\x7f "))
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	logger, err := NewLogger(LoggerConfig{Level: "nonsense", OutputPath: path, Format: "json", Service: "hr-approval"})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("visible")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"visible"`)
	assert.Contains(t, string(data), `"service":"hr-approval"`)
	assert.NotContains(t, string(data), "hidden")
}

func TestZapAdapter(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	adapter := NewZapAdapter(zap.New(core))

	adapter.Info("Instance created", "instance_id", int64(7), "dangling")
	adapter.Error("Save failed", "error", errors.New("boom"))

	entries := logs.All()
	require.Len(t, entries, 2)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(7), fields["instance_id"])
	assert.Equal(t, "dangling", fields["extra"])
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
}
