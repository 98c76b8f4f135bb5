package infrastructure

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidNodeConfig is returned for malformed node configuration.
var ErrInvalidNodeConfig = errors.New("invalid node config")

// Node defaults.
const (
	DefaultNodePort       = 2333
	DefaultRetryAmount    = 5
	DefaultRetryDelay     = 10 * time.Second
	DefaultRequestTimeout = 10 * time.Second
)

// NodeConfig describes how to reach one Lavalink node.
type NodeConfig struct {
	ID            string   `toml:"id"`
	Host          string   `toml:"host"`
	Port          int      `toml:"port"`
	Authorization string   `toml:"authorization"`
	Secure        bool     `toml:"secure"`
	SessionID     string   `toml:"session_id"`
	Regions       []string `toml:"regions"`

	RetryAmount    int           `toml:"retry_amount"`
	RetryDelay     time.Duration `toml:"retry_delay"`
	RequestTimeout time.Duration `toml:"request_timeout"`
	// ResumeTimeout enables session resuming when positive.
	ResumeTimeout time.Duration `toml:"resume_timeout"`
	// RequestsPerSecond limits REST calls. Zero means unlimited.
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// WithDefaults fills unset fields with their defaults.
func (c NodeConfig) WithDefaults() NodeConfig {
	if c.Port == 0 {
		c.Port = DefaultNodePort
	}
	if c.RetryAmount == 0 {
		c.RetryAmount = DefaultRetryAmount
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.ID == "" {
		c.ID = c.Address()
	}
	return c
}

// Validate reports configuration errors.
func (c NodeConfig) Validate() error {
	switch {
	case c.Host == "":
		return fmt.Errorf("%w: host is required", ErrInvalidNodeConfig)
	case c.Authorization == "":
		return fmt.Errorf("%w: authorization is required for node %q", ErrInvalidNodeConfig, c.Host)
	case c.Port < 0 || c.Port > 65535:
		return fmt.Errorf("%w: port %d out of range", ErrInvalidNodeConfig, c.Port)
	case c.RetryAmount <= 0:
		return fmt.Errorf("%w: retry amount must be positive", ErrInvalidNodeConfig)
	case c.RetryDelay <= 0:
		return fmt.Errorf("%w: retry delay must be positive", ErrInvalidNodeConfig)
	case c.RequestTimeout <= 0:
		return fmt.Errorf("%w: request timeout must be positive", ErrInvalidNodeConfig)
	case c.ResumeTimeout < 0:
		return fmt.Errorf("%w: resume timeout must not be negative", ErrInvalidNodeConfig)
	case c.RequestsPerSecond < 0:
		return fmt.Errorf("%w: requests per second must not be negative", ErrInvalidNodeConfig)
	}
	return nil
}

// Address returns host:port.
func (c NodeConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// RestURL returns the base URL of the REST API.
func (c NodeConfig) RestURL() string {
	scheme := "http"
	if c.Secure {
		scheme = "https"
	}
	return scheme + "://" + c.Address()
}

// WebSocketURL returns the URL of the event socket.
func (c NodeConfig) WebSocketURL() string {
	scheme := "ws"
	if c.Secure {
		scheme = "wss"
	}
	return scheme + "://" + c.Address() + "/v4/websocket"
}

// ParseConnectionURL parses "lavalink://<id>:<authorization>@<host>:<port>".
// A "lavalinks" scheme or a "secure=true" query parameter enables TLS.
func ParseConnectionURL(raw string) (NodeConfig, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return NodeConfig{}, fmt.Errorf("%w: %w", ErrInvalidNodeConfig, err)
	}

	var secure bool
	switch u.Scheme {
	case "lavalink":
	case "lavalinks":
		secure = true
	default:
		return NodeConfig{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidNodeConfig, u.Scheme)
	}
	if s := u.Query().Get("secure"); s != "" {
		secure, err = strconv.ParseBool(s)
		if err != nil {
			return NodeConfig{}, fmt.Errorf("%w: secure: %w", ErrInvalidNodeConfig, err)
		}
	}

	cfg := NodeConfig{
		Host:   u.Hostname(),
		Secure: secure,
	}
	if u.User != nil {
		cfg.ID = u.User.Username()
		cfg.Authorization, _ = u.User.Password()
	}
	if p := u.Port(); p != "" {
		cfg.Port, err = strconv.Atoi(p)
		if err != nil {
			return NodeConfig{}, fmt.Errorf("%w: port: %w", ErrInvalidNodeConfig, err)
		}
	}
	if r := u.Query().Get("regions"); r != "" {
		cfg.Regions = strings.Split(r, ",")
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return NodeConfig{}, err
	}
	return cfg, nil
}

// NodeURL is a NodeConfig given as a connection URL. It decodes through
// encoding.TextUnmarshaler so it can be used in env and flag parsing.
type NodeURL struct {
	NodeConfig
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *NodeURL) UnmarshalText(text []byte) error {
	cfg, err := ParseConnectionURL(string(text))
	if err != nil {
		return err
	}
	u.NodeConfig = cfg
	return nil
}
