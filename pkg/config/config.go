package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	AppEnv    string `envconfig:"APP_ENV" default:"dev"`
	SentryDSN string `envconfig:"SENTRY_DSN"`

	// Backend
	NodeId        string `envconfig:"NODE_ID" default:"0"`
	MongoURI      string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDB       string `envconfig:"MONGO_DB" default:"feedsync"`
	RedisURI      string `envconfig:"REDIS_URI" default:"redis://localhost:6379/0"`
	HTTPPort      string `envconfig:"HTTP_PORT" default:"3000"`
	EventsAddress string `envconfig:"EVENTS_ADDRESS" default:":3001"`
	TokenSecret   string `envconfig:"TOKEN_SECRET"`
	RealIPHeader  string `envconfig:"REAL_IP_HEADER"`

	BlockedNetworks []string `envconfig:"BLOCKED_NETWORKS"`

	// Client
	APIURL    string `envconfig:"API_URL" default:"http://localhost:3000"`
	EventsURL string `envconfig:"EVENTS_URL" default:"ws://localhost:3001/"`
	Token     string `envconfig:"TOKEN"`
	UserId    string `envconfig:"USER_ID"`

	Feed struct {
		PageSize     int           `envconfig:"FEED_PAGE_SIZE" default:"10"`
		Location     string        `envconfig:"FEED_LOCATION" default:"UTC"`
		Transport    string        `envconfig:"REALTIME_TRANSPORT" default:"redis"`
		WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"15s"`
	} `envconfig:""`

	Backoff struct {
		Initial time.Duration `envconfig:"BACKOFF_INITIAL" default:"500ms"`
		Max     time.Duration `envconfig:"BACKOFF_MAX" default:"30s"`
	} `envconfig:""`

	MetricsAddress string `envconfig:"METRICS_ADDRESS"`
}

// Load reads .env (when present) and the environment.
func Load() (Config, error) {
	godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FeedLocation resolves FEED_LOCATION.
func (c Config) FeedLocation() (*time.Location, error) {
	return time.LoadLocation(c.Feed.Location)
}
