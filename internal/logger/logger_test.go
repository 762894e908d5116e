package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestAuditReceivesWarnings(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "walletd.log")
	auditFile := filepath.Join(dir, "audit.log")

	l, closer, err := New(Options{Level: "debug", File: logFile, AuditFile: auditFile, JSON: true})
	require.NoError(t, err)
	l.Info().Str("network", "dolphin").Msg("sync step")
	l.Warn().Str("network", "dolphin").Msg("post rejected")
	require.NoError(t, closer.Close())

	all, err := os.ReadFile(logFile)
	require.NoError(t, err)
	require.Contains(t, string(all), "sync step")
	require.Contains(t, string(all), "post rejected")

	audit, err := os.ReadFile(auditFile)
	require.NoError(t, err)
	require.NotContains(t, string(audit), "sync step")
	require.Contains(t, string(audit), "post rejected")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	require.Equal(t, zerolog.WarnLevel, ParseLevel("warn"))
	require.Equal(t, zerolog.InfoLevel, ParseLevel("verbose"))
}

func TestSetReplacesGlobal(t *testing.T) {
	prev := Logger()
	defer Set(prev)
	Disable()
	require.Equal(t, zerolog.Disabled, Logger().GetLevel())
}
