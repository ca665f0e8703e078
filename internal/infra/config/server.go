package config

// ServerConfig configures the gRPC gateway.
type ServerConfig struct {
	Enabled     bool              `mapstructure:"enabled"`
	Port        int               `mapstructure:"port" validate:"required_if=Enabled true,omitempty,gte=1024,lte=65535"`
	TLS         TLS               `mapstructure:"tls"`
	Mode        string            `mapstructure:"mode" validate:"required,oneof=development production"`
	RateLimiter RateLimiterConfig `mapstructure:"rate_limiter"`
}

// RateLimiterConfig holds the configuration for the gRPC rate limiter.
type RateLimiterConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	Rate    float64 `mapstructure:"rate"  validate:"gte=0"`
	Burst   int     `mapstructure:"burst" validate:"gte=0"`
}

// TLS represents the TLS configuration.
type TLS struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file" validate:"required_if=Enabled true"`
	KeyFile  string `mapstructure:"key_file"  validate:"required_if=Enabled true"`
	// ClientCAFile enables verification of client certificates against this CA bundle.
	ClientCAFile string `mapstructure:"client_ca_file"`
	ClientAuth   string `mapstructure:"client_auth" validate:"omitempty,oneof=NoClientCert RequestClientCert RequireAnyClientCert VerifyClientCertIfGiven RequireAndVerifyClientCert"`
}
