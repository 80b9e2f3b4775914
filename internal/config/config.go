package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Tiers lists the seeding tiers, strongest first.
var Tiers = []int{1, 2, 3, 4}

// Config represents the application configuration.
type Config struct {
	Discord        DiscordConfig        `yaml:"discord"`
	Database       DatabaseConfig       `yaml:"database"`
	Server         ServerConfig         `yaml:"server"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	LeaderElection LeaderElectionConfig `yaml:"leader_election"`
	Auction        AuctionConfig        `yaml:"auction"`
	Captains       []CaptainConfig      `yaml:"captains"`
	Players        PlayersConfig        `yaml:"players"`
	Profile        ProfileConfig        `yaml:"profile"`
	Report         ReportConfig         `yaml:"report"`
}

// DiscordConfig holds Discord bot settings.
type DiscordConfig struct {
	Token   string `yaml:"token"`
	GuildID string `yaml:"guild_id"`
}

// DatabaseConfig holds persistence settings for snapshots, results and events.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "file", "postgres" or "sqlite"
	// Path is the data directory for the file driver and the database file for sqlite.
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	// OTLPEndpoint disables OTLP export when empty; logs then go to stderr as JSON.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
	LogLevel     string `yaml:"log_level"`
}

// LeaderElectionConfig holds Kubernetes leader election settings.
type LeaderElectionConfig struct {
	Enabled        bool          `yaml:"enabled"`
	LeaseName      string        `yaml:"lease_name"`
	LeaseNamespace string        `yaml:"lease_namespace"`
	LeaseDuration  time.Duration `yaml:"lease_duration"`
	RenewDeadline  time.Duration `yaml:"renew_deadline"`
	RetryPeriod    time.Duration `yaml:"retry_period"`
}

// AuctionConfig holds the bidding rules and pacing of an auction run.
// Durations without a unit suffix are whole seconds.
type AuctionConfig struct {
	AuctionDuration int    `yaml:"auction_duration"`
	ResetDuration   int    `yaml:"reset_duration"`
	MinBid          int    `yaml:"min_bid"`
	MaxBid          int    `yaml:"max_bid"`
	MinBidIncrement int    `yaml:"min_bid_increment"`
	MaxBidIncrement int    `yaml:"max_bid_increment"`
	MaxTeamSize     int    `yaml:"max_team_size"`
	StartingBalance int    `yaml:"starting_balance"`
	TierOrder       []int  `yaml:"tier_order"`
	ShufflePlayers  bool   `yaml:"shuffle_players"`
	ThreadPrefix    string `yaml:"thread_prefix"`
	AIReport        bool   `yaml:"ai_report"`

	StartDelay   time.Duration `yaml:"start_delay"`
	TierDelay    time.Duration `yaml:"tier_delay"`
	LotOpenDelay time.Duration `yaml:"lot_open_delay"`
	SettleDelay  time.Duration `yaml:"settle_delay"`
	ArchiveDelay time.Duration `yaml:"archive_delay"`
}

// CaptainConfig is one roster entry. ChatID is the captain's Discord user id.
type CaptainConfig struct {
	ChatID      string `yaml:"discord_id"`
	ProfileID   int64  `yaml:"osu_id"`
	TeamName    string `yaml:"team_name"`
	ProxyChatID string `yaml:"proxy_discord_id"`
}

// PlayersConfig maps a tier to the profile ids seeded into it.
type PlayersConfig map[int][]int64

// Tier returns a copy of the player ids seeded in tier t.
func (p PlayersConfig) Tier(t int) []int64 {
	return slices.Clone(p[t])
}

// ProfileConfig holds osu! API settings.
type ProfileConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// ReportConfig holds settings for the generated auction summary.
type ReportConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// Load reads a YAML configuration file from the given path. Environment
// variables referenced as ${NAME} are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:  "file",
			Path:    "data",
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "auctionbot",
			ServiceVersion: "0.1.0",
			LogLevel:       "info",
		},
		LeaderElection: LeaderElectionConfig{
			Enabled:        false,
			LeaseName:      "auctionbot-leader",
			LeaseNamespace: "default",
			LeaseDuration:  15 * time.Second,
			RenewDeadline:  10 * time.Second,
			RetryPeriod:    2 * time.Second,
		},
		Auction: AuctionConfig{
			TierOrder:    []int{1, 2, 3, 4},
			ThreadPrefix: "Auction",
			StartDelay:   10 * time.Second,
			TierDelay:    5 * time.Second,
			LotOpenDelay: 10 * time.Second,
			SettleDelay:  time.Second,
			ArchiveDelay: 10 * time.Second,
		},
		Profile: ProfileConfig{
			BaseURL: "https://osu.ppy.sh/api",
			Timeout: 10 * time.Second,
		},
		Report: ReportConfig{
			Model:   "gpt-4o-mini",
			Timeout: 2 * time.Minute,
		},
	}

	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "file", "postgres", "sqlite":
		// valid
	default:
		return fmt.Errorf("%w: unsupported database driver %q: must be \"file\", \"postgres\" or \"sqlite\"", ErrInvalid, c.Database.Driver)
	}
	if err := c.Auction.validate(); err != nil {
		return err
	}
	if err := c.Players.validate(); err != nil {
		return err
	}
	if err := validateCaptains(c.Captains); err != nil {
		return err
	}
	if c.Auction.AIReport && c.Report.APIKey == "" {
		return fmt.Errorf("%w: report.api_key is required when auction.ai_report is enabled", ErrInvalid)
	}
	return nil
}

func (a AuctionConfig) validate() error {
	checks := []struct {
		name     string
		val      int
		min, max int
	}{
		{"auction_duration", a.AuctionDuration, 1, 1440},
		{"reset_duration", a.ResetDuration, 1, 1440},
		{"min_bid", a.MinBid, 1, 1000000},
		{"max_bid", a.MaxBid, 1, 1000000},
		{"min_bid_increment", a.MinBidIncrement, 1, 1000000},
		{"max_bid_increment", a.MaxBidIncrement, 1, 1000000},
		{"starting_balance", a.StartingBalance, 1, 1000000},
		{"max_team_size", a.MaxTeamSize, 1, 100},
	}
	for _, c := range checks {
		if c.val < c.min || c.val > c.max {
			return fmt.Errorf("%w: auction.%s must be between %d and %d, got %d", ErrInvalid, c.name, c.min, c.max, c.val)
		}
	}

	if a.ResetDuration > a.AuctionDuration {
		return fmt.Errorf("%w: auction.reset_duration must not exceed auction_duration", ErrInvalid)
	}
	if a.MinBid > a.MaxBid {
		return fmt.Errorf("%w: auction.min_bid must not exceed max_bid", ErrInvalid)
	}
	if a.MinBidIncrement > a.MaxBidIncrement {
		return fmt.Errorf("%w: auction.min_bid_increment must not exceed max_bid_increment", ErrInvalid)
	}

	order := slices.Clone(a.TierOrder)
	slices.Sort(order)
	if !slices.Equal(order, Tiers) {
		return fmt.Errorf("%w: auction.tier_order must be a permutation of tiers 1 to 4, got %v", ErrInvalid, a.TierOrder)
	}
	return nil
}

func (p PlayersConfig) validate() error {
	if len(p) != len(Tiers) {
		return fmt.Errorf("%w: players must list exactly tiers 1 to 4", ErrInvalid)
	}
	for _, t := range Tiers {
		if _, ok := p[t]; !ok {
			return fmt.Errorf("%w: players is missing tier %d", ErrInvalid, t)
		}
	}
	return nil
}

func validateCaptains(captains []CaptainConfig) error {
	if len(captains) == 0 {
		return fmt.Errorf("%w: at least one captain is required", ErrInvalid)
	}

	chatIDs := make(map[string]struct{}, len(captains))
	for _, c := range captains {
		if c.ChatID == "" {
			return fmt.Errorf("%w: captain discord_id is required", ErrInvalid)
		}
		if c.TeamName == "" {
			return fmt.Errorf("%w: captain %s has no team_name", ErrInvalid, c.ChatID)
		}
		if c.ProfileID <= 0 {
			return fmt.Errorf("%w: captain %s has no valid osu_id", ErrInvalid, c.ChatID)
		}
		if _, dup := chatIDs[c.ChatID]; dup {
			return fmt.Errorf("%w: captain %s is listed twice", ErrInvalid, c.ChatID)
		}
		chatIDs[c.ChatID] = struct{}{}
	}

	proxies := make(map[string]string, len(captains))
	for _, c := range captains {
		if c.ProxyChatID == "" {
			continue
		}
		if c.ProxyChatID == c.ChatID {
			return fmt.Errorf("%w: captain %s cannot be their own proxy", ErrInvalid, c.ChatID)
		}
		if _, isCaptain := chatIDs[c.ProxyChatID]; isCaptain {
			return fmt.Errorf("%w: proxy %s of captain %s is itself a captain", ErrInvalid, c.ProxyChatID, c.ChatID)
		}
		if other, dup := proxies[c.ProxyChatID]; dup {
			return fmt.Errorf("%w: proxy %s is assigned to captains %s and %s", ErrInvalid, c.ProxyChatID, other, c.ChatID)
		}
		proxies[c.ProxyChatID] = c.ChatID
	}
	return nil
}
