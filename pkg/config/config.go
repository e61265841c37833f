package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/boogy/health-journal/pkg/utils"
	"github.com/spf13/viper"
)

var (
	once                 sync.Once
	instance             *Config
	keySetTTL            = "1h"          // Cognito rotates rarely; refresh hourly
	keySetFetchTimeout   = "5s"          // Upper bound on a single JWKS request
	keySetMinRefresh     = "30s"         // Minimum spacing between forced/failed refreshes
	cacheType            = "memory"      // Default fallback store
	cacheTTL             = "24h"         // How long a stale key set may serve as fallback
	cacheMaxLocalSize    = 10            // Default max local size for memory cache
	databaseMaxConns     = 10            // Default pool size
	serverPort           = 8080          // Default listen port for the local server
	serverTokenPath      = "/auth/token" // Public token-exchange endpoint
	serverAllowedOrigins = []string{"http://localhost:4200"}
	logBatchSize         = 10 // Log lines buffered before an S3 write
)

// Cognito identifies the user pool that issues tokens and the app client used for code exchange.
type Cognito struct {
	Region       string `mapstructure:"region"`        // AWS region of the user pool (e.g., "us-east-2")
	UserPoolID   string `mapstructure:"user_pool_id"`  // User pool id (e.g., "us-east-2_AbCdEf")
	ClientID     string `mapstructure:"client_id"`     // App client id used by /auth/token
	ClientSecret string `mapstructure:"client_secret"` // App client secret used by /auth/token
	RedirectURL  string `mapstructure:"redirect_url"`  // Redirect URI registered for the app client
	OAuthURL     string `mapstructure:"oauth_url"`     // Hosted UI token endpoint (https://<domain>/oauth2/token)
}

type KeySet struct {
	TTL                time.Duration `mapstructure:"ttl"`                  // Age after which the cached JWKS is refreshed
	FetchTimeout       time.Duration `mapstructure:"fetch_timeout"`        // HTTP timeout for the JWKS request
	MinRefreshInterval time.Duration `mapstructure:"min_refresh_interval"` // Minimum time between network fetches when a set is cached
}

type Cache struct {
	Type          string        `mapstructure:"type"`           // Fallback store type ("memory", "dynamodb", "s3")
	TTL           time.Duration `mapstructure:"ttl"`            // Retention of the last good key set
	MaxLocalSize  int           `mapstructure:"max_local_size"` // Maximum size of local cache
	DynamoDBTable string        `mapstructure:"dynamodb_table"` // DynamoDB table name (if using DynamoDB cache)
	S3Bucket      string        `mapstructure:"s3_bucket"`      // S3 bucket name (if using S3 cache)
	S3Prefix      string        `mapstructure:"s3_prefix"`      // S3 prefix (if using S3 cache)
}

type Database struct {
	URL      string `mapstructure:"url"`       // PostgreSQL connection URL
	MaxConns int32  `mapstructure:"max_conns"` // Maximum pool connections
}

type Server struct {
	Port           int      `mapstructure:"port"`            // Listen port for cmd/local
	TokenPath      string   `mapstructure:"token_path"`      // Path served without authentication
	AllowedOrigins []string `mapstructure:"allowed_origins"` // CORS allow-list
}

type Logging struct {
	ToS3      bool   `mapstructure:"to_s3"`      // Ship JSON logs to S3 (Lambda)
	Bucket    string `mapstructure:"bucket"`     // S3 bucket for logs
	Prefix    string `mapstructure:"prefix"`     // Key prefix for log objects
	BatchSize int    `mapstructure:"batch_size"` // Lines buffered before an object is written
}

type Config struct {
	Cognito  *Cognito  `mapstructure:"cognito"`
	KeySet   *KeySet   `mapstructure:"keyset"`
	Cache    *Cache    `mapstructure:"cache"`
	Database *Database `mapstructure:"database"`
	Server   *Server   `mapstructure:"server"`
	Logging  *Logging  `mapstructure:"logging"`
}

// NewConfig initializes and returns the configuration. It ensures that the config is loaded only once.
func NewConfig() (*Config, error) {
	var err error
	once.Do(func() {
		instance = &Config{}
		err = instance.LoadConfig()
	})
	return instance, err
}

// LoadConfig reads the configuration file (if any), applies environment overrides and defaults.
func (c *Config) LoadConfig() error {
	configName := utils.GetEnv("CONFIG_NAME", "config") // Configuration file name without extension
	configPath := utils.GetEnv("CONFIG_PATH", ".")      // Configuration file path, default to current directory

	viper.SetEnvPrefix("yhj") // ex: "YHJ_COGNITO_REGION"
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	viper.AddConfigPath("/etc/health-journal/")
	viper.AddConfigPath(configPath)
	viper.SetConfigName(configName)

	viper.SetDefault("keyset.ttl", keySetTTL)
	viper.SetDefault("keyset.fetch_timeout", keySetFetchTimeout)
	viper.SetDefault("keyset.min_refresh_interval", keySetMinRefresh)
	viper.SetDefault("cache.type", cacheType)
	viper.SetDefault("cache.ttl", cacheTTL)
	viper.SetDefault("cache.max_local_size", cacheMaxLocalSize)
	viper.SetDefault("database.max_conns", databaseMaxConns)
	viper.SetDefault("server.port", serverPort)
	viper.SetDefault("server.token_path", serverTokenPath)
	viper.SetDefault("server.allowed_origins", serverAllowedOrigins)
	viper.SetDefault("logging.batch_size", logBatchSize)

	// Cognito settings
	_ = viper.BindEnv("cognito.region")        // YHJ_COGNITO_REGION
	_ = viper.BindEnv("cognito.user_pool_id")  // YHJ_COGNITO_USER_POOL_ID
	_ = viper.BindEnv("cognito.client_id")     // YHJ_COGNITO_CLIENT_ID
	_ = viper.BindEnv("cognito.client_secret") // YHJ_COGNITO_CLIENT_SECRET
	_ = viper.BindEnv("cognito.redirect_url")  // YHJ_COGNITO_REDIRECT_URL
	_ = viper.BindEnv("cognito.oauth_url")     // YHJ_COGNITO_OAUTH_URL

	// Key set settings
	_ = viper.BindEnv("keyset.ttl")                  // YHJ_KEYSET_TTL
	_ = viper.BindEnv("keyset.fetch_timeout")        // YHJ_KEYSET_FETCH_TIMEOUT
	_ = viper.BindEnv("keyset.min_refresh_interval") // YHJ_KEYSET_MIN_REFRESH_INTERVAL

	// Cache settings
	_ = viper.BindEnv("cache.type")           // YHJ_CACHE_TYPE
	_ = viper.BindEnv("cache.ttl")            // YHJ_CACHE_TTL
	_ = viper.BindEnv("cache.max_local_size") // YHJ_CACHE_MAX_LOCAL_SIZE
	_ = viper.BindEnv("cache.dynamodb_table") // YHJ_CACHE_DYNAMODB_TABLE
	_ = viper.BindEnv("cache.s3_bucket")      // YHJ_CACHE_S3_BUCKET
	_ = viper.BindEnv("cache.s3_prefix")      // YHJ_CACHE_S3_PREFIX

	// Database and server settings
	_ = viper.BindEnv("database.url")           // YHJ_DATABASE_URL
	_ = viper.BindEnv("database.max_conns")     // YHJ_DATABASE_MAX_CONNS
	_ = viper.BindEnv("server.port")            // YHJ_SERVER_PORT
	_ = viper.BindEnv("server.token_path")      // YHJ_SERVER_TOKEN_PATH
	_ = viper.BindEnv("server.allowed_origins") // YHJ_SERVER_ALLOWED_ORIGINS

	// Log shipping settings
	_ = viper.BindEnv("logging.to_s3")      // YHJ_LOGGING_TO_S3
	_ = viper.BindEnv("logging.bucket")     // YHJ_LOGGING_BUCKET
	_ = viper.BindEnv("logging.prefix")     // YHJ_LOGGING_PREFIX
	_ = viper.BindEnv("logging.batch_size") // YHJ_LOGGING_BATCH_SIZE

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("problem reading config file: %w", err)
		}
	}

	if err := viper.Unmarshal(c); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return c.Validate()
}

// Validate checks if the configuration is valid and fills in missing sections.
func (c *Config) Validate() error {
	if c.Cognito == nil || c.Cognito.Region == "" {
		return errors.New("cognito region is required")
	}
	if c.Cognito.UserPoolID == "" {
		return errors.New("cognito user pool id is required")
	}

	if c.KeySet == nil {
		c.KeySet = &KeySet{}
	}
	if c.KeySet.TTL <= 0 {
		c.KeySet.TTL = time.Hour
	}
	if c.KeySet.FetchTimeout <= 0 {
		c.KeySet.FetchTimeout = 5 * time.Second
	}
	if c.KeySet.MinRefreshInterval < 0 {
		return errors.New("keyset min refresh interval must not be negative")
	}

	if c.Cache == nil {
		c.Cache = &Cache{Type: cacheType}
	}
	if c.Database == nil {
		c.Database = &Database{MaxConns: int32(databaseMaxConns)}
	}
	if c.Server == nil {
		c.Server = &Server{}
	}
	if c.Server.TokenPath == "" {
		c.Server.TokenPath = serverTokenPath
	}
	if !strings.HasPrefix(c.Server.TokenPath, "/") {
		c.Server.TokenPath = "/" + c.Server.TokenPath
	}

	if c.Logging == nil {
		c.Logging = &Logging{}
	}
	if c.Logging.ToS3 && c.Logging.Bucket == "" {
		return errors.New("logging bucket is required when logging to S3")
	}
	if c.Logging.BatchSize <= 0 {
		c.Logging.BatchSize = logBatchSize
	}

	return nil
}

// Issuer returns the expected "iss" claim for tokens issued by the configured user pool.
func (c *Config) Issuer() string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", c.Cognito.Region, c.Cognito.UserPoolID)
}

// JWKSURL returns the well-known key set location of the configured user pool.
func (c *Config) JWKSURL() string {
	return c.Issuer() + "/.well-known/jwks.json"
}
