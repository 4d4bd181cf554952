package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName              string
	AppEnv               string
	AppPort              string
	DatabaseURL          string
	RedisURL             string
	NATSURL              string
	EventSubjectPrefix   string
	JWTSecret            string
	JWTTTL               time.Duration
	RequestTimeout       time.Duration
	ReviewCountCacheTTL  time.Duration
	TicketReviewRequired bool
	AllowResubmission    bool
	ImportMaxSizeMB      int
	CORSAllowOrigins     string
	StudentOAuth         StudentOAuthConfig
}

// StudentOAuthConfig describes the school identity provider students sign in
// with. IDField names the user info attribute holding the student number.
type StudentOAuthConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	UserInfoURL  string
	IDField      string
	Scopes       []string
}

// Enabled reports whether student sign-in is configured.
func (c StudentOAuthConfig) Enabled() bool {
	return c.ClientID != "" && c.TokenURL != "" && c.UserInfoURL != ""
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// ImportMaxBytes is the upload limit for CSV ticket imports.
func (c Config) ImportMaxBytes() int64 {
	return int64(c.ImportMaxSizeMB) * 1024 * 1024
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("TICKETS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return load(v)
}

func load(v *viper.Viper) (Config, error) {
	v.SetDefault("app.name", "Activity Ticket API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("events.subject_prefix", "tickets")
	v.SetDefault("jwt.ttl", "12h")
	v.SetDefault("http.request_timeout", "10s")
	v.SetDefault("review.count_cache_ttl", "30s")
	v.SetDefault("workflow.ticket_review_required", false)
	v.SetDefault("workflow.allow_resubmission", true)
	v.SetDefault("import.max_size_mb", 2)
	v.SetDefault("cors.allow_origins", "*")
	v.SetDefault("oauth.id_field", "id")

	jwtTTL, err := parseDuration(v, "jwt.ttl")
	if err != nil {
		return Config{}, err
	}
	requestTimeout, err := parseDuration(v, "http.request_timeout")
	if err != nil {
		return Config{}, err
	}
	countTTL, err := parseDuration(v, "review.count_cache_ttl")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:              v.GetString("app.name"),
		AppEnv:               v.GetString("app.env"),
		AppPort:              v.GetString("app.port"),
		DatabaseURL:          v.GetString("database.url"),
		RedisURL:             v.GetString("redis.url"),
		NATSURL:              v.GetString("nats.url"),
		EventSubjectPrefix:   strings.Trim(v.GetString("events.subject_prefix"), "."),
		JWTSecret:            v.GetString("jwt.secret"),
		JWTTTL:               jwtTTL,
		RequestTimeout:       requestTimeout,
		ReviewCountCacheTTL:  countTTL,
		TicketReviewRequired: v.GetBool("workflow.ticket_review_required"),
		AllowResubmission:    v.GetBool("workflow.allow_resubmission"),
		ImportMaxSizeMB:      v.GetInt("import.max_size_mb"),
		CORSAllowOrigins:     v.GetString("cors.allow_origins"),
		StudentOAuth: StudentOAuthConfig{
			ClientID:     v.GetString("oauth.client_id"),
			ClientSecret: v.GetString("oauth.client_secret"),
			AuthURL:      v.GetString("oauth.auth_url"),
			TokenURL:     v.GetString("oauth.token_url"),
			RedirectURL:  v.GetString("oauth.redirect_url"),
			UserInfoURL:  v.GetString("oauth.userinfo_url"),
			IDField:      strings.TrimSpace(v.GetString("oauth.id_field")),
			Scopes:       splitList(v.GetString("oauth.scopes")),
		},
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("database url must be provided")
	}
	if cfg.JWTTTL <= 0 {
		return Config{}, fmt.Errorf("jwt ttl must be positive")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.ImportMaxSizeMB <= 0 {
		cfg.ImportMaxSizeMB = 2
	}
	if cfg.EventSubjectPrefix == "" {
		cfg.EventSubjectPrefix = "tickets"
	}
	if cfg.StudentOAuth.IDField == "" {
		cfg.StudentOAuth.IDField = "id"
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := v.GetString(key)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
