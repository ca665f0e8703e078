package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"
)

const (
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// CircuitBreakerConfig holds settings for the storage circuit breaker.
type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxFailures  int           `mapstructure:"max_failures"  validate:"required_if=Enabled true,omitempty,gte=1"`
	ResetTimeout time.Duration `mapstructure:"reset_timeout"`
}

// BackendConfig selects and addresses the document database.
type BackendConfig struct {
	Type           string               `mapstructure:"type"            validate:"required,oneof=mongo postgres memory"`
	DBName         string               `mapstructure:"db_name"         validate:"required_unless=Type memory"`
	Host           string               `mapstructure:"host"`
	Port           int                  `mapstructure:"port"            validate:"omitempty,gte=1,lte=65535"`
	Username       string               `mapstructure:"username"`
	Password       string               `mapstructure:"password"`
	URI            string               `mapstructure:"uri"`
	PoolSize       int                  `mapstructure:"pool_size"       validate:"gte=0"`
	ConnectTimeout time.Duration        `mapstructure:"connect_timeout"`
	SSLMode        string               `mapstructure:"sslmode"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// HostPort joins host and port for driver connection strings.
func (b BackendConfig) HostPort() string {
	return net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
}

// MongoURI returns URI when set, otherwise a mongodb:// URI built from the parts.
func (b BackendConfig) MongoURI() string {
	if b.URI != "" {
		return b.URI
	}
	u := url.URL{Scheme: "mongodb", Host: b.HostPort(), Path: "/"}
	if b.Username != "" {
		u.User = url.UserPassword(b.Username, b.Password)
	}
	return u.String()
}

// PostgresURL returns URI when set, otherwise a postgres:// URL built from the parts.
func (b BackendConfig) PostgresURL() string {
	if b.URI != "" {
		return b.URI
	}
	u := url.URL{Scheme: "postgres", Host: b.HostPort(), Path: "/" + b.DBName}
	if b.Username != "" {
		u.User = url.UserPassword(b.Username, b.Password)
	}
	q := url.Values{}
	if b.SSLMode != "" {
		q.Set("sslmode", b.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (b BackendConfig) String() string {
	return fmt.Sprintf("%s://%s/%s", b.Type, b.HostPort(), b.DBName)
}
