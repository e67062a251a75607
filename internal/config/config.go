// Package config provides centralized configuration for aurora-verify.
// It loads configuration from CLI flags, environment variables, and an
// optional YAML actors file, validates it, and provides sensible defaults.
//
// CLI flags select what to run (-scenario, -scenarios-file, -list) and
// override the target (-target) and browser mode (-headed).
// Environment variables provide the target, credentials, and integrations.
package config

import (
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/kuitang/aurora-verify/internal/ratelimit"
)

const (
	defaultTargetURL   = "http://127.0.0.1:8080"
	defaultArtifactDir = "jules-scratch/verification"
	defaultAWSRegion   = "auto"
)

// Actor is one participant identity driven through its own browser session.
type Actor struct {
	Key      string `yaml:"key"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// Viewport is an optional fixed page size. The zero value leaves the
// browser default in place.
type Viewport struct {
	Width  int
	Height int
}

// IsSet reports whether a viewport size was configured.
func (v Viewport) IsSet() bool {
	return v.Width > 0 && v.Height > 0
}

func (v Viewport) String() string {
	if !v.IsSet() {
		return "default"
	}
	return fmt.Sprintf("%dx%d", v.Width, v.Height)
}

// Config holds all runner configuration.
type Config struct {
	// Target application
	TargetURL string
	GroupName string

	// Browser
	Headless          bool
	Viewport          Viewport
	SlowMo            time.Duration
	DefaultTimeout    time.Duration
	NavigationTimeout time.Duration

	// Actors keyed by Actor.Key
	Actors     map[string]Actor
	ActorsFile string

	// Selection
	Scenarios     []string // empty = all built-ins
	ScenariosFile string
	ListOnly      bool

	// Execution
	Parallelism int
	Pacing      ratelimit.Config

	// Artifacts and reports
	ArtifactDir string
	ReportDir   string

	// S3 artifact upload (optional, enabled when BUCKET_NAME is set)
	AWSEndpointS3      string // AWS_ENDPOINT_URL_S3
	AWSRegion          string // AWS_REGION
	AWSAccessKeyID     string // AWS_ACCESS_KEY_ID
	AWSSecretAccessKey string // AWS_SECRET_ACCESS_KEY
	AWSBucketName      string // BUCKET_NAME
	AWSPublicURL       string // S3_PUBLIC_URL
	ArtifactPrefix     string // ARTIFACT_PREFIX

	// Failure notification (optional, enabled when REPORT_EMAIL_TO is set)
	ResendAPIKey    string
	ReportEmailFrom string
	ReportEmailTo   string
}

// Flags holds the parsed command-line flags.
type Flags struct {
	Scenarios     string
	ScenariosFile string
	Target        string
	Headed        bool
	List          bool
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// ParseFlags parses CLI flags from args (usually os.Args[1:]).
func ParseFlags(args []string) (Flags, error) {
	var f Flags
	fs := flag.NewFlagSet("aurora-verify", flag.ContinueOnError)
	fs.StringVar(&f.Scenarios, "scenario", "", "Comma-separated scenario names to run (default: all built-ins)")
	fs.StringVar(&f.ScenariosFile, "scenarios-file", "", "YAML file with additional scenarios")
	fs.StringVar(&f.Target, "target", "", "Target application URL (overrides AURORA_TARGET_URL)")
	fs.BoolVar(&f.Headed, "headed", false, "Run the browser with a visible window")
	fs.BoolVar(&f.List, "list", false, "List available scenarios and exit")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	return f, nil
}

// LoadConfig loads configuration from environment variables and CLI flag values.
func LoadConfig(f Flags) (*Config, error) {
	cfg := &Config{}

	// Target
	cfg.TargetURL = strings.TrimRight(getEnvOrDefault("AURORA_TARGET_URL", defaultTargetURL), "/")
	if f.Target != "" {
		cfg.TargetURL = strings.TrimRight(strings.TrimSpace(f.Target), "/")
	}
	cfg.GroupName = getEnvOrDefault("GROUP_NAME", "Test Group")

	// Browser
	cfg.Headless = parseBoolOrDefault("HEADLESS", true)
	if f.Headed {
		cfg.Headless = false
	}
	viewport, err := ParseViewport(os.Getenv("VIEWPORT"))
	if err != nil {
		return nil, &ValidationError{Errors: []string{err.Error()}}
	}
	cfg.Viewport = viewport
	cfg.SlowMo = parseDurationOrDefault("SLOW_MO", 0)
	cfg.DefaultTimeout = parseDurationOrDefault("DEFAULT_TIMEOUT", 30*time.Second)
	cfg.NavigationTimeout = parseDurationOrDefault("NAVIGATION_TIMEOUT", 60*time.Second)

	// Actors: env first, then the YAML file overrides by key
	cfg.Actors = map[string]Actor{
		"user1": actorFromEnv("user1", "USER1", "user1@example.com", "User One"),
		"user2": actorFromEnv("user2", "USER2", "user2@example.com", "User Two"),
	}
	cfg.ActorsFile = strings.TrimSpace(os.Getenv("ACTORS_FILE"))
	if cfg.ActorsFile != "" {
		fileActors, err := LoadActorsFile(cfg.ActorsFile)
		if err != nil {
			return nil, err
		}
		for _, a := range fileActors {
			cfg.Actors[a.Key] = a
		}
	}

	// Selection
	cfg.Scenarios = splitList(f.Scenarios)
	cfg.ScenariosFile = strings.TrimSpace(f.ScenariosFile)
	cfg.ListOnly = f.List

	// Execution
	cfg.Parallelism = parseIntOrDefault("PARALLELISM", 1)
	cfg.Pacing = ratelimit.Config{
		ActionsPerSecond: parseFloat64OrDefault("ACTION_RPS", ratelimit.DefaultConfig.ActionsPerSecond),
		Burst:            parseIntOrDefault("ACTION_BURST", ratelimit.DefaultConfig.Burst),
		CleanupInterval:  ratelimit.DefaultConfig.CleanupInterval,
	}

	// Artifacts and reports
	cfg.ArtifactDir = getEnvOrDefault("ARTIFACT_DIR", defaultArtifactDir)
	cfg.ReportDir = getEnvOrDefault("REPORT_DIR", cfg.ArtifactDir)

	// S3
	cfg.AWSEndpointS3 = strings.TrimSpace(os.Getenv("AWS_ENDPOINT_URL_S3"))
	cfg.AWSRegion = getEnvOrDefault("AWS_REGION", defaultAWSRegion)
	cfg.AWSAccessKeyID = strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID"))
	cfg.AWSSecretAccessKey = strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY"))
	cfg.AWSBucketName = strings.TrimSpace(os.Getenv("BUCKET_NAME"))
	cfg.AWSPublicURL = strings.TrimSpace(os.Getenv("S3_PUBLIC_URL"))
	if cfg.AWSPublicURL == "" && cfg.AWSEndpointS3 != "" && cfg.AWSBucketName != "" {
		cfg.AWSPublicURL = strings.TrimRight(cfg.AWSEndpointS3, "/") + "/" + cfg.AWSBucketName
	}
	cfg.ArtifactPrefix = getEnvOrDefault("ARTIFACT_PREFIX", "aurora-verify")

	// Notification
	cfg.ResendAPIKey = strings.TrimSpace(os.Getenv("RESEND_API_KEY"))
	cfg.ReportEmailFrom = getEnvOrDefault("REPORT_EMAIL_FROM", "verify@aurora.local")
	cfg.ReportEmailTo = strings.TrimSpace(os.Getenv("REPORT_EMAIL_TO"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present and valid.
func (c *Config) Validate() error {
	var errs []string

	u, err := url.Parse(c.TargetURL)
	if c.TargetURL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Sprintf("AURORA_TARGET_URL must be an absolute http(s) URL, got %q", c.TargetURL))
	}

	if c.DefaultTimeout <= 0 {
		errs = append(errs, "DEFAULT_TIMEOUT must be positive")
	}
	if c.NavigationTimeout <= 0 {
		errs = append(errs, "NAVIGATION_TIMEOUT must be positive")
	}
	if c.SlowMo < 0 {
		errs = append(errs, "SLOW_MO must not be negative")
	}
	if c.Parallelism < 1 {
		errs = append(errs, "PARALLELISM must be at least 1")
	}
	if c.Pacing.ActionsPerSecond < 0 {
		errs = append(errs, "ACTION_RPS must not be negative")
	}
	if c.Pacing.Enabled() && c.Pacing.Burst <= 0 {
		errs = append(errs, "ACTION_BURST must be positive when ACTION_RPS is set")
	}
	if strings.TrimSpace(c.ArtifactDir) == "" {
		errs = append(errs, "ARTIFACT_DIR must not be empty")
	}

	keys := c.ActorKeys()
	if len(keys) == 0 {
		errs = append(errs, "at least one actor is required")
	}
	for _, key := range keys {
		a := c.Actors[key]
		if a.Email == "" {
			errs = append(errs, fmt.Sprintf("actor %s: email is required", key))
		}
		if a.Password == "" {
			errs = append(errs, fmt.Sprintf("actor %s: password is required", key))
		}
	}

	// S3: credentials must come in pairs
	if c.UploadEnabled() {
		if (c.AWSAccessKeyID == "") != (c.AWSSecretAccessKey == "") {
			errs = append(errs, "AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together")
		}
	}

	// Email: require Resend key when a recipient is configured
	if c.NotifyEnabled() {
		if c.ResendAPIKey == "" {
			errs = append(errs, "RESEND_API_KEY is required when REPORT_EMAIL_TO is set")
		}
		if c.ReportEmailFrom == "" {
			errs = append(errs, "REPORT_EMAIL_FROM is required when REPORT_EMAIL_TO is set")
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// UploadEnabled reports whether artifacts are uploaded to S3 after the run.
func (c *Config) UploadEnabled() bool {
	return c.AWSBucketName != ""
}

// NotifyEnabled reports whether a failure email is sent after the run.
func (c *Config) NotifyEnabled() bool {
	return c.ReportEmailTo != ""
}

// ReportRecipients returns the comma-separated REPORT_EMAIL_TO addresses.
func (c *Config) ReportRecipients() []string {
	return splitList(c.ReportEmailTo)
}

// Actor returns the actor with the given key.
func (c *Config) Actor(key string) (Actor, bool) {
	a, ok := c.Actors[key]
	return a, ok
}

// ActorKeys returns actor keys in sorted order.
func (c *Config) ActorKeys() []string {
	keys := make([]string, 0, len(c.Actors))
	for k := range c.Actors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PrintStartupSummary prints a human-readable summary of the configuration.
func (c *Config) PrintStartupSummary(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "aurora-verify starting...")
	fmt.Fprintf(w, "  Target:    %s\n", c.TargetURL)
	if c.Headless {
		fmt.Fprintln(w, "  Browser:   Chromium (headless)")
	} else {
		fmt.Fprintln(w, "  Browser:   Chromium (headed)")
	}
	fmt.Fprintf(w, "  Viewport:  %s\n", c.Viewport)
	fmt.Fprintf(w, "  Timeouts:  step %s, navigation %s\n", c.DefaultTimeout, c.NavigationTimeout)
	fmt.Fprintf(w, "  Actors:    %s\n", strings.Join(c.ActorKeys(), ", "))
	fmt.Fprintf(w, "  Artifacts: %s\n", c.ArtifactDir)
	if c.UploadEnabled() {
		fmt.Fprintf(w, "  Upload:    s3://%s/%s\n", c.AWSBucketName, c.ArtifactPrefix)
	} else {
		fmt.Fprintln(w, "  Upload:    disabled (BUCKET_NAME unset)")
	}
	if c.NotifyEnabled() {
		fmt.Fprintf(w, "  Notify:    %s\n", c.ReportEmailTo)
	}
	fmt.Fprintln(w, "")
}

// ParseViewport parses "WIDTHxHEIGHT". An empty string yields the zero viewport.
func ParseViewport(raw string) (Viewport, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return Viewport{}, nil
	}
	w, h, ok := strings.Cut(raw, "x")
	if !ok {
		return Viewport{}, fmt.Errorf("VIEWPORT must look like 1920x1080, got %q", raw)
	}
	width, errW := strconv.Atoi(strings.TrimSpace(w))
	height, errH := strconv.Atoi(strings.TrimSpace(h))
	if errW != nil || errH != nil || width <= 0 || height <= 0 {
		return Viewport{}, fmt.Errorf("VIEWPORT must look like 1920x1080, got %q", raw)
	}
	return Viewport{Width: width, Height: height}, nil
}

type actorsFile struct {
	Actors []Actor `yaml:"actors"`
}

// LoadActorsFile reads actor credentials from a YAML file of the form
//
//	actors:
//	  - key: user1
//	    email: user1@example.com
//	    password: password
func LoadActorsFile(path string) ([]Actor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read actors file: %w", err)
	}
	var f actorsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse actors file %s: %w", path, err)
	}
	for i, a := range f.Actors {
		if strings.TrimSpace(a.Key) == "" {
			return nil, &ValidationError{Errors: []string{fmt.Sprintf("actors file %s: entry %d has no key", path, i)}}
		}
	}
	return f.Actors, nil
}

// UniqueEmail returns a fresh address for flows that register a new account.
func UniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%s@example.com", prefix, uuid.NewString()[:8])
}

// Helper functions for parsing environment variables

func actorFromEnv(key, envPrefix, defaultEmail, defaultName string) Actor {
	return Actor{
		Key:      key,
		Email:    getEnvOrDefault(envPrefix+"_EMAIL", defaultEmail),
		Password: getEnvOrDefault(envPrefix+"_PASSWORD", "password"),
		Name:     getEnvOrDefault(envPrefix+"_NAME", defaultName),
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
