package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "meshcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaultsForOmittedKeys(t *testing.T) {
	path := writeConfig(t, "message_ttl: 4\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.MessageTTL)
	require.Equal(t, Default().DTNBudgetBytes, cfg.DTNBudgetBytes)
	require.Equal(t, Default().TrustMode, cfg.TrustMode)
}

func TestLoadRejectsUnknownTransport(t *testing.T) {
	path := writeConfig(t, "enabled_transports: [\"carrier-pigeon\"]\n")

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRequiresLoRaBlockWhenLoRaEnabled(t *testing.T) {
	path := writeConfig(t, "enabled_transports: [\"lora\"]\n")

	_, err := Load(path)
	require.Error(t, err)

	path = writeConfig(t, "enabled_transports: [\"lora\"]\nlora:\n  channel: 3\n  region: \"us915\"\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 3, cfg.LoRa.Channel)
}

func TestLoadRejectsBadTrustMode(t *testing.T) {
	path := writeConfig(t, "trust_mode: \"yolo\"\n")

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsNonPowerOfTwoWorkFactor(t *testing.T) {
	path := writeConfig(t, "key_derivation_work_factor: 100\n")

	_, err := Load(path)
	require.Error(t, err)
}

func TestDurationHelpersConvertMillisecondFields(t *testing.T) {
	cfg := Default()
	require.Equal(t, 200, cfg.SyncDebounceMs)
	require.Equal(t, cfg.SyncDebounce().Milliseconds(), int64(200))
}
