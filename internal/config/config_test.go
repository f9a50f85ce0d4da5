package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"AZURE_STORAGE_ACCOUNT", "AZURE_STORAGE_CONTAINER", "AZURE_BLOB_ENDPOINT",
		"AZURE_STORAGE_SAS", "AZURE_CLIENT_ID", "AZURE_CLIENT_SECRET", "AZURE_TENANT_ID",
	} {
		t.Setenv(key, "")
	}
}

const yamlConfig = `
bucket: backups
path: nightly
account: prodstore
logging:
  filepath: /var/log/blobpack.log
  format: console
  loglevel: debug
backup:
  backup_target: /srv/www
  includes:
    - "*.html"
    - "assets/*"
  retain: 5
`

func TestLoad_YAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "conf.yaml", yamlConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "backups", cfg.Bucket)
	assert.Equal(t, "nightly", cfg.Path)
	assert.Equal(t, "prodstore", cfg.Azure.Account)
	require.NotNil(t, cfg.Logging)
	assert.Equal(t, "/var/log/blobpack.log", cfg.Logging.Filepath)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "debug", cfg.Logging.Loglevel)
	assert.Equal(t, "/srv/www", cfg.Backup.BackupTarget)
	assert.Equal(t, []string{"*.html", "assets/*"}, cfg.Backup.Includes)
	assert.Equal(t, 5, cfg.Backup.Retain)
}

func TestLoad_JSON(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "conf.json", `{
		"bucket": "backups",
		"account": "prodstore",
		"backup": {"backup_target": "/srv/www", "retain": 3}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "backups", cfg.Bucket)
	assert.Equal(t, 3, cfg.Backup.Retain)
	assert.Nil(t, cfg.Logging)
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "conf.toml", `bucket = "backups"`)

	_, err := Load(path)
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "conf.yaml", "bucket: [unterminated")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_BucketRequired(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "conf.yaml", "account: prodstore\n")
	_, err := Load(path)
	require.ErrorContains(t, err, "bucket is required")
}

func TestLoad_AccountRequired(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "conf.yaml", "bucket: backups\n")
	_, err := Load(path)
	require.ErrorContains(t, err, "storage account")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("AZURE_STORAGE_ACCOUNT", "envstore")
	t.Setenv("AZURE_STORAGE_CONTAINER", "envbucket")
	t.Setenv("AZURE_STORAGE_SAS", "?sig=abc")

	path := writeConfig(t, "conf.yaml", yamlConfig)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "envstore", cfg.Azure.Account)
	assert.Equal(t, "envbucket", cfg.Bucket)
	assert.Equal(t, "?sig=abc", cfg.Azure.SASToken)
}

func TestLoad_ProfileValidation(t *testing.T) {
	clearEnv(t)
	for _, profile := range []string{"", "sp", "default"} {
		path := writeConfig(t, "conf.yaml",
			"bucket: backups\naccount: prodstore\nprofile: "+profile+"\n")
		_, err := Load(path)
		assert.NoError(t, err, "profile %q", profile)
	}

	path := writeConfig(t, "conf.yaml", "bucket: backups\naccount: prodstore\nprofile: iam\n")
	_, err := Load(path)
	require.ErrorContains(t, err, "unsupported profile")
}

func TestLoad_NegativeRetainRejected(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "conf.yaml",
		"bucket: backups\naccount: prodstore\nbackup:\n  retain: -1\n")
	_, err := Load(path)
	require.ErrorContains(t, err, "retain")
}
