package params

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	validator "gopkg.in/go-playground/validator.v9"

	solwire "github.com/status-im/solwire-go"
)

// ----------
// CircuitBreakerConfig
// ----------

// CircuitBreakerConfig tunes the per-endpoint circuit used for
// failover. All durations are milliseconds, matching the underlying
// hystrix settings.
type CircuitBreakerConfig struct {
	// Timeout is how long a guarded call may run before it counts as failed.
	Timeout int `validate:"gte=0"`

	// MaxConcurrentRequests caps in-flight calls per endpoint.
	MaxConcurrentRequests int `validate:"gte=0"`

	// RequestVolumeThreshold is the minimum number of calls in the rolling
	// window before the circuit can trip.
	RequestVolumeThreshold int `validate:"gte=0"`

	// SleepWindow is how long an open circuit waits before probing the
	// endpoint again.
	SleepWindow int `validate:"gte=0"`

	// ErrorPercentThreshold trips the circuit once the rolling error rate
	// exceeds this percentage.
	ErrorPercentThreshold int `validate:"gte=0,lte=100"`
}

// String dumps config object as nicely indented JSON
func (c *CircuitBreakerConfig) String() string {
	data, _ := json.MarshalIndent(c, "", "    ") // nolint: gas
	return string(data)
}

// Validate validates the CircuitBreakerConfig struct and returns an error
// if inconsistent values are found
func (c *CircuitBreakerConfig) Validate(validate *validator.Validate) error {
	return validate.Struct(c)
}

// ----------
// Config
// ----------

// Overflow policies accepted by SubscriptionOverflowPolicy.
const (
	OverflowDropOldest = "dropOldest"
	OverflowBlock      = "block"
)

// Config is the complete configuration of a solwire client: RPC
// endpoints and failover, the websocket endpoint, default commitment,
// retry and rate limits, subscription queue sizing and logging.
type Config struct {
	// Endpoints lists JSON-RPC HTTP endpoints in failover preference
	// order. The first entry is the primary; later entries are tried
	// when the primary's circuit rejects a read call.
	Endpoints []string `validate:"required,min=1"`

	// WSEndpoint is the pubsub websocket endpoint. When empty it is
	// derived from the primary endpoint, see WebsocketEndpoint.
	WSEndpoint string

	// Commitment applies to every call that does not carry its own.
	Commitment solwire.Commitment `validate:"omitempty,eq=processed|eq=confirmed|eq=finalized"`

	// RequestTimeoutSeconds bounds a single call when the caller's
	// context has no deadline. Zero selects the transport default.
	RequestTimeoutSeconds int `validate:"gte=0"`

	// MaxRetries is how many times an idempotent read is re-issued
	// after a transport failure. Zero disables retrying. Methods with
	// side effects are never retried regardless of this value.
	MaxRetries int `validate:"gte=0"`

	// RPS is the client-side request rate limit in requests per
	// second. Zero disables limiting.
	RPS float64 `validate:"gte=0"`

	// Burst is the rate limiter burst size. Ignored when RPS is zero.
	Burst int `validate:"gte=0"`

	// SubscriptionQueueSize bounds each subscription's notification
	// queue.
	SubscriptionQueueSize int `validate:"gt=0"`

	// SubscriptionOverflowPolicy selects the behavior of a full
	// notification queue: dropOldest discards the oldest queued item,
	// block stalls the connection's read loop until there is room.
	SubscriptionOverflowPolicy string `validate:"eq=dropOldest|eq=block"`

	// BlockhashTTLSeconds is the lifetime of cached recent blockhashes.
	// Zero disables the cache.
	BlockhashTTLSeconds int `validate:"gte=0"`

	// CircuitBreaker guards each endpoint during failover.
	CircuitBreaker CircuitBreakerConfig `validate:"structonly"`

	// LogEnabled toggles logging.
	LogEnabled bool

	// LogLevel defines the minimum level a message must have to be logged.
	LogLevel string `validate:"eq=ERROR|eq=WARN|eq=INFO|eq=DEBUG|eq=TRACE"`

	// LogFile is the file to write logs to. Empty logs to stderr.
	LogFile string

	// LogMaxSizeMB is the maximum size of a log file before rotation, in megabytes.
	LogMaxSizeMB int `validate:"gte=0"`

	// LogMaxBackups is the number of rotated log files to retain.
	LogMaxBackups int `validate:"gte=0"`

	// LogCompressRotated compresses rotated log files.
	LogCompressRotated bool
}

// Option is an additional setting when creating a Config using
// NewConfigWithDefaults.
type Option func(*Config) error

// WithEndpoints replaces the endpoint list.
func WithEndpoints(endpoints ...string) Option {
	return func(c *Config) error {
		c.Endpoints = endpoints
		return nil
	}
}

// WithWSEndpoint sets an explicit websocket endpoint instead of the
// derived one.
func WithWSEndpoint(endpoint string) Option {
	return func(c *Config) error {
		c.WSEndpoint = endpoint
		return nil
	}
}

// WithCluster loads the endpoints of one of the well-known clusters.
func WithCluster(name string) Option {
	return func(c *Config) error {
		if name == ClusterUndefined {
			return nil
		}
		cluster, err := ClusterForName(name)
		if err != nil {
			return err
		}
		c.Endpoints = append([]string{}, cluster.RPCEndpoints...)
		c.WSEndpoint = cluster.WSEndpoint
		return nil
	}
}

// WithCommitment sets the default commitment.
func WithCommitment(commitment solwire.Commitment) Option {
	return func(c *Config) error {
		if err := commitment.Validate(); err != nil {
			return err
		}
		c.Commitment = commitment
		return nil
	}
}

// WithRequestTimeout sets the per-call timeout in seconds.
func WithRequestTimeout(seconds int) Option {
	return func(c *Config) error {
		c.RequestTimeoutSeconds = seconds
		return nil
	}
}

// WithRetries enables bounded retrying of idempotent reads.
func WithRetries(n int) Option {
	return func(c *Config) error {
		c.MaxRetries = n
		return nil
	}
}

// WithRateLimit enables the client-side rate limiter.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Config) error {
		c.RPS = rps
		c.Burst = burst
		return nil
	}
}

// WithSubscriptionQueue sizes the per-subscription notification queue
// and picks its overflow policy, one of dropOldest or block.
func WithSubscriptionQueue(size int, policy string) Option {
	return func(c *Config) error {
		c.SubscriptionQueueSize = size
		c.SubscriptionOverflowPolicy = policy
		return nil
	}
}

// WithBlockhashCache enables the recent-blockhash cache.
func WithBlockhashCache(ttlSeconds int) Option {
	return func(c *Config) error {
		c.BlockhashTTLSeconds = ttlSeconds
		return nil
	}
}

// WithLogging enables logging at the given level, to a file when path
// is not empty.
func WithLogging(level, path string) Option {
	return func(c *Config) error {
		c.LogEnabled = true
		c.LogLevel = level
		c.LogFile = path
		return nil
	}
}

// NewConfig creates a new configuration object with bare-minimum
// defaults. Important: the returned config is not validated.
func NewConfig(endpoints ...string) (*Config, error) {
	config := &Config{
		Endpoints:                  append([]string{}, endpoints...),
		Commitment:                 solwire.CommitmentFinalized,
		RequestTimeoutSeconds:      60,
		SubscriptionQueueSize:      128,
		SubscriptionOverflowPolicy: OverflowDropOldest,
		CircuitBreaker: CircuitBreakerConfig{
			Timeout:                60000,
			MaxConcurrentRequests:  100,
			RequestVolumeThreshold: 20,
			SleepWindow:            5000,
			ErrorPercentThreshold:  50,
		},
		LogLevel:           "ERROR",
		LogMaxSizeMB:       100,
		LogMaxBackups:      3,
		LogCompressRotated: false,
	}

	return config, nil
}

// NewConfigWithDefaults creates a new configuration object with
// defaults suitable for adhoc use and applies the given options.
func NewConfigWithDefaults(endpoint string, opts ...Option) (*Config, error) {
	c, err := NewConfig(endpoint)
	if err != nil {
		return nil, err
	}

	c.LogEnabled = true
	c.LogLevel = "INFO"

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// NewConfigFromJSON parses incoming JSON and returned it as Config
func NewConfigFromJSON(configJSON string) (*Config, error) {
	config, err := NewConfig()
	if err != nil {
		return nil, err
	}

	if err := loadConfigFromJSON(configJSON, config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadConfigFromJSON(configJSON string, config *Config) error {
	decoder := json.NewDecoder(strings.NewReader(configJSON))
	// override default configuration with values by JSON input
	return decoder.Decode(&config)
}

// NewValidator returns a validator with the default settings.
func NewValidator() *validator.Validate {
	return validator.New()
}

// Validate checks if Config fields have valid values.
//
// It returns nil if there are no errors, otherwise the first error
// found. Struct-tag failures come back in the validator's
// Key/Field/tag format.
func (c *Config) Validate() error {
	validate := NewValidator()

	if err := validate.Struct(c); err != nil {
		return err
	}

	for i, endpoint := range c.Endpoints {
		u, err := url.Parse(endpoint)
		if err != nil {
			return fmt.Errorf("Endpoints[%d] is invalid (%s): %v", i, endpoint, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("Endpoints[%d] must use http or https, got %q", i, endpoint)
		}
	}

	if c.WSEndpoint != "" {
		u, err := url.Parse(c.WSEndpoint)
		if err != nil {
			return fmt.Errorf("WSEndpoint is invalid (%s): %v", c.WSEndpoint, err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("WSEndpoint must use ws or wss, got %q", c.WSEndpoint)
		}
	}

	if err := c.CircuitBreaker.Validate(validate); err != nil {
		return err
	}

	return nil
}

// WebsocketEndpoint returns the explicit WSEndpoint, or one derived
// from the primary endpoint: http becomes ws, https becomes wss, and
// an explicit port is incremented by one, matching the node's default
// layout of RPC on 8899 and pubsub on 8900.
func (c *Config) WebsocketEndpoint() (string, error) {
	if c.WSEndpoint != "" {
		return c.WSEndpoint, nil
	}
	if len(c.Endpoints) == 0 {
		return "", fmt.Errorf("no endpoints configured")
	}

	u, err := url.Parse(c.Endpoints[0])
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
		// already a pubsub endpoint
	default:
		return "", fmt.Errorf("cannot derive a websocket endpoint from %q", c.Endpoints[0])
	}
	if port := u.Port(); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return "", err
		}
		u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(n+1))
	}
	return u.String(), nil
}

// RequestTimeout returns the per-call timeout as a duration, zero when
// the transport default should apply.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// BlockhashTTL returns the blockhash cache lifetime, zero when the
// cache is disabled.
func (c *Config) BlockhashTTL() time.Duration {
	return time.Duration(c.BlockhashTTLSeconds) * time.Second
}

// String dumps config object as nicely indented JSON
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "    ") // nolint: gas
	return string(data)
}
