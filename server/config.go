package server

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/tkrehbiel/blogfed/server/actors"
	"github.com/tkrehbiel/blogfed/server/storage"
)

type serverConfig struct {
	HostName        string `json:"host" yaml:"host" toml:"host"`
	Certificate     string `json:"certificate" yaml:"certificate" toml:"certificate"`
	PrivateKey      string `json:"privatekey" yaml:"privatekey" toml:"privatekey"`
	Port            int    `json:"port" yaml:"port" toml:"port"`
	AcceptAll       bool   `json:"accept_all" yaml:"accept_all" toml:"accept_all"` // for debugging
	SendUnsigned    bool   `json:"send_unsigned" yaml:"send_unsigned" toml:"send_unsigned"`
	ReceiveUnsigned bool   `json:"receive_unsigned" yaml:"receive_unsigned" toml:"receive_unsigned"`
	MaxFollowers    int    `json:"max_followers" yaml:"max_followers" toml:"max_followers"`
	Trace           bool   `json:"trace" yaml:"trace" toml:"trace"`
	TraceEndpoint   string `json:"trace_endpoint" yaml:"trace_endpoint" toml:"trace_endpoint"`
	Workers         int    `json:"workers" yaml:"workers" toml:"workers"`
}

func (s serverConfig) useTLS() bool {
	return s.Certificate != "" && s.PrivateKey != ""
}

type userConfig struct {
	ID          int64  `json:"id" yaml:"id" toml:"id"`
	Name        string `json:"name" yaml:"name" toml:"name"`
	Type        string `json:"type,omitempty" yaml:"type" toml:"type"`
	DisplayName string `json:"displayName" yaml:"displayName" toml:"displayName"`
	Summary     string `json:"summary,omitempty" yaml:"summary" toml:"summary"`
	Icon        string `json:"icon,omitempty" yaml:"icon" toml:"icon"`
	SourceURL   string `json:"outboxSource" yaml:"outboxSource" toml:"outboxSource"`
	PrivKeyFile string `json:"privKey,omitempty" yaml:"privKey" toml:"privKey"`
}

// actorConfig describes the blog and application actors.
type actorConfig struct {
	Name        string `json:"name" yaml:"name" toml:"name"`
	Type        string `json:"type,omitempty" yaml:"type" toml:"type"`
	DisplayName string `json:"displayName" yaml:"displayName" toml:"displayName"`
	Summary     string `json:"summary,omitempty" yaml:"summary" toml:"summary"`
	Icon        string `json:"icon,omitempty" yaml:"icon" toml:"icon"`
	SourceURL   string `json:"outboxSource,omitempty" yaml:"outboxSource" toml:"outboxSource"`
	PrivKeyFile string `json:"privKey,omitempty" yaml:"privKey" toml:"privKey"`
}

func (a actorConfig) actor() actors.ActorConfig {
	return actors.ActorConfig{
		Name:           a.Name,
		DisplayName:    a.DisplayName,
		Summary:        a.Summary,
		Type:           a.Type,
		Icon:           a.Icon,
		PrivateKeyFile: a.PrivKeyFile,
	}
}

type federationConfig struct {
	AliasHosts       []string `json:"alias_hosts" yaml:"alias_hosts" toml:"alias_hosts"`
	AuthorBase       string   `json:"author_base" yaml:"author_base" toml:"author_base"`
	ActorBase        string   `json:"actor_base" yaml:"actor_base" toml:"actor_base"`
	SharedInbox      bool     `json:"shared_inbox" yaml:"shared_inbox" toml:"shared_inbox"`
	CreatePosts      bool     `json:"create_posts" yaml:"create_posts" toml:"create_posts"`
	CommentMarker    string   `json:"comment_marker" yaml:"comment_marker" toml:"comment_marker"`
	Blocklist        string   `json:"blocklist" yaml:"blocklist" toml:"blocklist"`
	DeliveryInterval string   `json:"delivery_interval" yaml:"delivery_interval" toml:"delivery_interval"`
	DeliveryBatch    int      `json:"delivery_batch" yaml:"delivery_batch" toml:"delivery_batch"`
	FeedInterval     string   `json:"feed_interval" yaml:"feed_interval" toml:"feed_interval"`
	RemoteActorTTL   string   `json:"remote_actor_ttl" yaml:"remote_actor_ttl" toml:"remote_actor_ttl"`
	KeyBits          int      `json:"key_bits" yaml:"key_bits" toml:"key_bits"` // size of generated actor keys
}

type databaseConfig struct {
	Driver     string `json:"driver" yaml:"driver" toml:"driver"`
	Connection string `json:"connection" yaml:"connection" toml:"connection"`
}

// cacheConfig picks the transport cache backend: memory, redis or memcached.
type cacheConfig struct {
	Backend string `json:"backend" yaml:"backend" toml:"backend"`
	Address string `json:"address" yaml:"address" toml:"address"`
	Prefix  string `json:"prefix" yaml:"prefix" toml:"prefix"`
	Size    int64  `json:"size" yaml:"size" toml:"size"`
}

type Config struct {
	URL         string           `json:"url" yaml:"url" toml:"url"` // public-facing URL
	Server      serverConfig     `json:"server" yaml:"server" toml:"server"`
	Users       []userConfig     `json:"users" yaml:"users" toml:"users"`
	Blog        actorConfig      `json:"blog" yaml:"blog" toml:"blog"`
	Application actorConfig      `json:"application" yaml:"application" toml:"application"`
	Federation  federationConfig `json:"federation" yaml:"federation" toml:"federation"`
	Database    databaseConfig   `json:"database" yaml:"database" toml:"database"`
	Cache       cacheConfig      `json:"cache" yaml:"cache" toml:"cache"`
}

func (c Config) PublicHost() string {
	u, err := url.Parse(c.URL)
	if err != nil {
		return ""
	}
	return u.Host
}

const (
	defaultDeliveryInterval = time.Minute
	defaultFeedInterval     = 5 * time.Minute
	defaultRemoteActorTTL   = 24 * time.Hour
)

func (c Config) withDefaults() Config {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Workers <= 0 {
		c.Server.Workers = 4
	}
	if c.Blog.Name == "" {
		c.Blog.Name = "blog"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = storage.DriverSQLite
	}
	if c.Database.Connection == "" {
		c.Database.Connection = "blogfed.db"
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}
	if c.Cache.Prefix == "" {
		c.Cache.Prefix = "blogfed:"
	}
	if c.Federation.CommentMarker == "" {
		c.Federation.CommentMarker = "c"
	}
	for i := range c.Users {
		if c.Users[i].ID == 0 {
			c.Users[i].ID = int64(i + 1)
		}
	}
	return c
}

// duration parses s, falling back to def when s is empty or invalid.
func duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func (c Config) deliveryInterval() time.Duration {
	return duration(c.Federation.DeliveryInterval, defaultDeliveryInterval)
}

func (c Config) feedInterval() time.Duration {
	return duration(c.Federation.FeedInterval, defaultFeedInterval)
}

func (c Config) remoteActorTTL() time.Duration {
	return duration(c.Federation.RemoteActorTTL, defaultRemoteActorTTL)
}

// ReadConfig parses a json config. Comments and trailing commas are allowed.
func ReadConfig(b []byte) (config Config, err error) {
	if uErr := json.Unmarshal(jsonc.ToJSON(b), &config); uErr != nil {
		return config, uErr
	}
	return config.withDefaults(), nil
}

// LoadConfig reads a json, yaml or toml config file, chosen by extension.
func LoadConfig(filename string) (Config, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("opening config [%s]: %w", filename, err)
	}
	var config Config
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &config)
	case ".toml":
		err = toml.Unmarshal(b, &config)
	default:
		return ReadConfig(b)
	}
	if err != nil {
		return config, fmt.Errorf("parsing config [%s]: %w", filename, err)
	}
	return config.withDefaults(), nil
}
