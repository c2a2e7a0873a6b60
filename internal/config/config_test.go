package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testYAML = `
rpc: "https://rpc.example.com"
chainId: 4157
router: "0x0000000000000000000000000000000000beef"
tokens:
  - symbol: XFI
    address: "0x0000000000000000000000000000000000dead"
    decimals: 18
    native: true
  - symbol: WXFI
    address: "0x0000000000000000000000000000000000beef"
    decimals: 18
    wrappedNative: true
scheduler:
  tickIntervalSec: 30
mysqlDsn: "user:pass@tcp(127.0.0.1:3306)/dca"
logLevel: "info"
`

func writeTestConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(testYAML), 0o600))
	return path
}

func TestLoadConfig_ParsesTokensAndOverlaysSecrets(t *testing.T) {
	t.Setenv("VAULT_MASTER_PASSPHRASE", "correct horse battery staple")
	t.Setenv("PRICE_ORACLE_API_KEY", "key-123")

	path := writeTestConfig(t)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://rpc.example.com", cfg.RPC)
	assert.Equal(t, int64(4157), cfg.ChainID)
	require.Len(t, cfg.Tokens, 2)
	assert.Equal(t, "XFI", cfg.Tokens[0].Symbol)
	assert.Equal(t, "correct horse battery staple", cfg.VaultMasterPassphrase)
	assert.Equal(t, "key-123", cfg.PriceOracleAPIKey)
	assert.Equal(t, 30*time.Second, cfg.TickInterval())
	assert.Equal(t, 5*time.Minute, cfg.HealthInterval())
}

func TestLoadConfig_MissingMasterPassphraseFails(t *testing.T) {
	t.Setenv("VAULT_MASTER_PASSPHRASE", "")
	path := writeTestConfig(t)

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfig_MySQLDSNEnvOverride(t *testing.T) {
	t.Setenv("VAULT_MASTER_PASSPHRASE", "pw")
	t.Setenv("MYSQL_DSN", "override:dsn@tcp(db:3306)/dca")
	path := writeTestConfig(t)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "override:dsn@tcp(db:3306)/dca", cfg.MySQLDSN)
}
