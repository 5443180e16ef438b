package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupUserConfig_NoConfigReturnsEmptyPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	backupPath, err := BackupUserConfig()
	require.NoError(t, err)
	assert.Empty(t, backupPath)
}

func TestBackupUserConfig_BackupPreservesContent(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	configDir := filepath.Join(tmpDir, "langindex")
	configPath := filepath.Join(configDir, "config.yaml")
	require.NoError(t, os.MkdirAll(configDir, 0o755))

	testContent := "version: 1\nindex:\n  workers: 4\n"
	require.NoError(t, os.WriteFile(configPath, []byte(testContent), 0o644))

	backupPath, err := BackupUserConfig()
	require.NoError(t, err)
	require.NotEmpty(t, backupPath)
	assert.True(t, filepath.IsAbs(backupPath))

	backupContent, err := os.ReadFile(backupPath)
	require.NoError(t, err)
	assert.Equal(t, testContent, string(backupContent))
}

func TestListUserConfigBackups_NoneExist(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	configDir := filepath.Join(tmpDir, "langindex")
	require.NoError(t, os.MkdirAll(configDir, 0o755))

	backups, err := ListUserConfigBackups()
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestListUserConfigBackups_SortedNewestFirst(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	configDir := filepath.Join(tmpDir, "langindex")
	require.NoError(t, os.MkdirAll(configDir, 0o755))

	for _, ts := range []string{"20260101-100000", "20260101-110000", "20260101-120000"} {
		backupName := filepath.Join(configDir, "config.yaml.bak."+ts)
		require.NoError(t, os.WriteFile(backupName, []byte("test"), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	backups, err := ListUserConfigBackups()
	require.NoError(t, err)
	require.Len(t, backups, 3)

	for i := 1; i < len(backups); i++ {
		infoPrev, err := os.Stat(backups[i-1])
		require.NoError(t, err)
		infoNext, err := os.Stat(backups[i])
		require.NoError(t, err)
		assert.False(t, infoPrev.ModTime().Before(infoNext.ModTime()))
	}
}

func TestBackupUserConfig_CleansUpBeyondMaxBackups(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	configDir := filepath.Join(tmpDir, "langindex")
	configPath := filepath.Join(configDir, "config.yaml")
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	require.NoError(t, os.WriteFile(configPath, []byte("version: 1"), 0o644))

	for i := 0; i < MaxBackups+2; i++ {
		_, err := BackupUserConfig()
		require.NoError(t, err)
		time.Sleep(10 * time.Millisecond)
	}

	backups, err := ListUserConfigBackups()
	require.NoError(t, err)
	assert.LessOrEqual(t, len(backups), MaxBackups)
}

func TestRestoreUserConfig_WritesBackupContentToConfigPath(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	backupFile := filepath.Join(t.TempDir(), "restore-source.yaml")
	restoreContent := "version: 1\nindex:\n  workers: 9\n"
	require.NoError(t, os.WriteFile(backupFile, []byte(restoreContent), 0o644))

	require.NoError(t, RestoreUserConfig(backupFile))

	data, err := os.ReadFile(GetUserConfigPath())
	require.NoError(t, err)
	assert.Equal(t, restoreContent, string(data))
}

func TestWriteYAML_ContainsConfiguredFields(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	cfg := NewConfig()
	cfg.Index.Workers = 12

	require.NoError(t, cfg.WriteYAML(configPath))

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "workers: 12")
}
