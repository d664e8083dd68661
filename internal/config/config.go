package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	State    StateConfig    `mapstructure:"state"`
	Token    TokenConfig    `mapstructure:"token"`
	Issuance IssuanceConfig `mapstructure:"issuance"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Host                    string        `mapstructure:"host"`
	Port                    int           `mapstructure:"port"`
	Mode                    string        `mapstructure:"mode"`
	BaseURL                 string        `mapstructure:"base_url"`
	ReadTimeout             time.Duration `mapstructure:"read_timeout"`
	WriteTimeout            time.Duration `mapstructure:"write_timeout"`
	GracefulShutdownTimeout time.Duration `mapstructure:"graceful_shutdown_timeout"`
}

type StateConfig struct {
	Backend    string        `mapstructure:"backend"` // "memory" | "redis"
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
	Redis      RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// TokenConfig describes how the service authenticates against the token
// authority guarding the issuance API.
type TokenConfig struct {
	Authority           string        `mapstructure:"authority"` // may contain "{0}" for the tenant id
	TenantID            string        `mapstructure:"tenant_id"`
	ClientID            string        `mapstructure:"client_id"`
	ClientSecret        string        `mapstructure:"client_secret"`
	Scope               string        `mapstructure:"scope"`
	TokenURL            string        `mapstructure:"token_url"`
	CertificatePath     string        `mapstructure:"certificate_path"`
	CertificateKeyPath  string        `mapstructure:"certificate_key_path"`
	CertificatePassword string        `mapstructure:"certificate_password"`
	CacheTTL            time.Duration `mapstructure:"cache_ttl"`
	ExpiryMargin        time.Duration `mapstructure:"expiry_margin"`
}

type IssuanceConfig struct {
	APIEndpoint        string            `mapstructure:"api_endpoint"`
	APIKey             string            `mapstructure:"api_key"`
	IssuerAuthority    string            `mapstructure:"issuer_authority"`
	CredentialManifest string            `mapstructure:"credential_manifest"`
	CredentialType     string            `mapstructure:"credential_type"`
	ClientName         string            `mapstructure:"client_name"`
	Purpose            string            `mapstructure:"purpose"`
	PinLength          int               `mapstructure:"pin_length"`
	IncludeQRCode      bool              `mapstructure:"include_qr_code"`
	Claims             map[string]string `mapstructure:"claims"`
	TemplateFile       string            `mapstructure:"template_file"`
	RequestTimeout     time.Duration     `mapstructure:"request_timeout"`
}

type CORSConfig struct {
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
	AllowedMethods   []string      `mapstructure:"allowed_methods"`
	AllowedHeaders   []string      `mapstructure:"allowed_headers"`
	AllowCredentials bool          `mapstructure:"allow_credentials"`
	MaxAge           time.Duration `mapstructure:"max_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config.yaml, overlays environment variables, and returns Config.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)

	// Environment variable override: ISSUANCE_API_KEY -> issuance.api_key
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.graceful_shutdown_timeout", 10*time.Second)

	v.SetDefault("state.backend", "memory")
	v.SetDefault("state.ttl", 15*time.Minute)
	v.SetDefault("state.max_entries", 100)
	v.SetDefault("state.redis.port", 6379)

	// Keys without a real default are registered empty so AutomaticEnv can
	// supply them when the file leaves them out.
	for _, key := range []string{
		"server.base_url",
		"state.redis.host", "state.redis.password",
		"token.tenant_id", "token.client_id", "token.client_secret", "token.token_url",
		"token.certificate_path", "token.certificate_key_path", "token.certificate_password",
		"issuance.api_key", "issuance.issuer_authority", "issuance.credential_manifest",
		"issuance.credential_type", "issuance.client_name", "issuance.purpose", "issuance.template_file",
	} {
		v.SetDefault(key, "")
	}

	v.SetDefault("token.authority", "https://login.microsoftonline.com/{0}/v2.0")
	v.SetDefault("token.scope", "3db474b9-6a0c-4840-96ac-1fceb342124f/.default")
	v.SetDefault("token.cache_ttl", 15*time.Minute)
	v.SetDefault("token.expiry_margin", 5*time.Minute)

	v.SetDefault("issuance.api_endpoint", "https://verifiedid.did.msidentity.com/v1.0/")
	v.SetDefault("issuance.pin_length", 4)
	v.SetDefault("issuance.include_qr_code", true)
	v.SetDefault("issuance.request_timeout", 30*time.Second)

	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Origin", "Content-Type", "api-key"})
	v.SetDefault("cors.max_age", 12*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Validate reports the first missing setting the issuance flow cannot run without.
func (c *Config) Validate() error {
	switch {
	case c.Issuance.APIKey == "":
		return errors.New("config: issuance.api_key is required")
	case c.Issuance.APIEndpoint == "":
		return errors.New("config: issuance.api_endpoint is required")
	case c.Token.ClientID == "":
		return errors.New("config: token.client_id is required")
	case c.Token.TenantID == "" && c.Token.TokenURL == "":
		return errors.New("config: token.tenant_id or token.token_url is required")
	case c.Token.ClientSecret == "" && c.Token.CertificatePath == "":
		return errors.New("config: token.client_secret or token.certificate_path is required")
	case c.Issuance.PinLength < 0 || c.Issuance.PinLength > 21:
		return errors.New("config: issuance.pin_length must be between 0 and 21")
	case c.State.TTL <= 0:
		return errors.New("config: state.ttl must be positive")
	case c.Server.Mode == "release" && c.Server.BaseURL == "":
		return errors.New("config: server.base_url is required in release mode")
	}
	return nil
}

// AuthorityURL returns the authority with the tenant placeholder substituted.
func (t TokenConfig) AuthorityURL() string {
	return strings.ReplaceAll(t.Authority, "{0}", t.TenantID)
}
