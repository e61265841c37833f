package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	viper.Reset()
	once = sync.Once{}
	t.Setenv("CONFIG_PATH", t.TempDir())
	t.Setenv("YHJ_COGNITO_REGION", "us-east-2")
	t.Setenv("YHJ_COGNITO_USER_POOL_ID", "us-east-2_Pool")

	cfg, err := NewConfig()
	assert.NoError(t, err)
	assert.NotNil(t, cfg)

	// Test singleton behavior
	cfg2, err := NewConfig()
	assert.NoError(t, err)
	assert.Equal(t, cfg, cfg2, "Expected NewConfig to return the same instance")
}

func TestLoadConfigFromFile(t *testing.T) {
	viper.Reset()

	dir := t.TempDir()
	configContent := `cognito:
  region: "eu-west-1"
  user_pool_id: "eu-west-1_Abc"
  client_id: "client"
  client_secret: "secret"
  redirect_url: "http://localhost:4200/callback"
  oauth_url: "https://journal.auth.eu-west-1.amazoncognito.com/oauth2/token"
keyset:
  ttl: "30m"
  min_refresh_interval: "10s"
cache:
  type: "dynamodb"
  dynamodb_table: "jwks"
database:
  url: "postgres://localhost/journal"
server:
  port: 9090
  allowed_origins:
    - "http://localhost:4200"
    - "https://journal.example.com"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(configContent), 0o600))
	t.Setenv("CONFIG_PATH", dir)

	cfg := &Config{}
	require.NoError(t, cfg.LoadConfig())

	assert.Equal(t, "eu-west-1", cfg.Cognito.Region)
	assert.Equal(t, "eu-west-1_Abc", cfg.Cognito.UserPoolID)
	assert.Equal(t, "client", cfg.Cognito.ClientID)
	assert.Equal(t, 30*time.Minute, cfg.KeySet.TTL)
	assert.Equal(t, 10*time.Second, cfg.KeySet.MinRefreshInterval)
	assert.Equal(t, 5*time.Second, cfg.KeySet.FetchTimeout)
	assert.Equal(t, "dynamodb", cfg.Cache.Type)
	assert.Equal(t, "jwks", cfg.Cache.DynamoDBTable)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, "postgres://localhost/journal", cfg.Database.URL)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/auth/token", cfg.Server.TokenPath)
	assert.Equal(t, []string{"http://localhost:4200", "https://journal.example.com"}, cfg.Server.AllowedOrigins)
}

func TestLoadConfigDefaults(t *testing.T) {
	viper.Reset()
	t.Setenv("CONFIG_PATH", t.TempDir())
	t.Setenv("YHJ_COGNITO_REGION", "us-east-2")
	t.Setenv("YHJ_COGNITO_USER_POOL_ID", "us-east-2_Pool")

	cfg := &Config{}
	require.NoError(t, cfg.LoadConfig())

	assert.Equal(t, time.Hour, cfg.KeySet.TTL)
	assert.Equal(t, 5*time.Second, cfg.KeySet.FetchTimeout)
	assert.Equal(t, 30*time.Second, cfg.KeySet.MinRefreshInterval)
	assert.Equal(t, "memory", cfg.Cache.Type)
	assert.Equal(t, 10, cfg.Cache.MaxLocalSize)
	assert.Equal(t, int32(10), cfg.Database.MaxConns)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "/auth/token", cfg.Server.TokenPath)
	assert.Equal(t, 10, cfg.Logging.BatchSize)
	assert.False(t, cfg.Logging.ToS3)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	viper.Reset()
	t.Setenv("CONFIG_PATH", t.TempDir())
	t.Setenv("YHJ_COGNITO_REGION", "us-west-2")
	t.Setenv("YHJ_COGNITO_USER_POOL_ID", "us-west-2_Env")
	t.Setenv("YHJ_KEYSET_TTL", "2h")
	t.Setenv("YHJ_CACHE_TYPE", "s3")
	t.Setenv("YHJ_CACHE_S3_BUCKET", "jwks-bucket")

	cfg := &Config{}
	require.NoError(t, cfg.LoadConfig())

	assert.Equal(t, "us-west-2", cfg.Cognito.Region)
	assert.Equal(t, 2*time.Hour, cfg.KeySet.TTL)
	assert.Equal(t, "s3", cfg.Cache.Type)
	assert.Equal(t, "jwks-bucket", cfg.Cache.S3Bucket)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		expectErr bool
	}{
		{
			name:      "valid config",
			config:    Config{Cognito: &Cognito{Region: "us-east-2", UserPoolID: "us-east-2_X"}},
			expectErr: false,
		},
		{
			name:      "missing cognito section",
			config:    Config{},
			expectErr: true,
		},
		{
			name:      "missing region",
			config:    Config{Cognito: &Cognito{UserPoolID: "us-east-2_X"}},
			expectErr: true,
		},
		{
			name:      "missing user pool id",
			config:    Config{Cognito: &Cognito{Region: "us-east-2"}},
			expectErr: true,
		},
		{
			name: "negative refresh interval",
			config: Config{
				Cognito: &Cognito{Region: "us-east-2", UserPoolID: "us-east-2_X"},
				KeySet:  &KeySet{MinRefreshInterval: -time.Second},
			},
			expectErr: true,
		},
		{
			name: "s3 logging without bucket",
			config: Config{
				Cognito: &Cognito{Region: "us-east-2", UserPoolID: "us-east-2_X"},
				Logging: &Logging{ToS3: true},
			},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateFillsSections(t *testing.T) {
	cfg := Config{
		Cognito: &Cognito{Region: "us-east-2", UserPoolID: "us-east-2_X"},
		Server:  &Server{TokenPath: "auth/token"},
	}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, time.Hour, cfg.KeySet.TTL)
	assert.Equal(t, 5*time.Second, cfg.KeySet.FetchTimeout)
	assert.Equal(t, "memory", cfg.Cache.Type)
	assert.NotNil(t, cfg.Database)
	assert.Equal(t, "/auth/token", cfg.Server.TokenPath)
	assert.Equal(t, 10, cfg.Logging.BatchSize)
	assert.False(t, cfg.Logging.ToS3)
}

func TestCognitoURLs(t *testing.T) {
	cfg := &Config{Cognito: &Cognito{Region: "us-east-2", UserPoolID: "us-east-2_Pool"}}

	assert.Equal(t, "https://cognito-idp.us-east-2.amazonaws.com/us-east-2_Pool", cfg.Issuer())
	assert.Equal(t, "https://cognito-idp.us-east-2.amazonaws.com/us-east-2_Pool/.well-known/jwks.json", cfg.JWKSURL())
}
