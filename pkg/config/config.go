package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/panbanda/smelltrend/pkg/models"
)

// EnvPrefix prefixes environment overrides, e.g. SMELLTREND_SONAR_TOKEN.
const EnvPrefix = "SMELLTREND_"

// Ruleset policies.
const (
	PolicyAll           = "all"
	PolicyCurated       = "curated"
	PolicyCrossLanguage = "cross-language"
	PolicySeverity      = "severity"
)

// Config holds all configuration options for smelltrend.
type Config struct {
	Data      DataConfig       `koanf:"data" toml:"data"`
	Projects  []models.Project `koanf:"projects" toml:"projects"`
	Revisions RevisionConfig   `koanf:"revisions" toml:"revisions"`
	Sonar     SonarConfig      `koanf:"sonar" toml:"sonar"`
	GitHub    GitHubConfig     `koanf:"github" toml:"github"`
	Ruleset   RulesetConfig    `koanf:"ruleset" toml:"ruleset"`
	Analysis  AnalysisConfig   `koanf:"analysis" toml:"analysis"`
	Workers   int              `koanf:"workers" toml:"workers"`
	Log       LogConfig        `koanf:"log" toml:"log"`
	Metrics   MetricsConfig    `koanf:"metrics" toml:"metrics"`
	Output    OutputConfig     `koanf:"output" toml:"output"`
}

// DataConfig locates persisted state and repository clones.
type DataConfig struct {
	Root     string `koanf:"root" toml:"root"`
	ReposDir string `koanf:"repos_dir" toml:"repos_dir"`
}

// RevisionConfig controls which revisions are considered in scope.
type RevisionConfig struct {
	Mode   string `koanf:"mode" toml:"mode"`     // commits or releases
	Window int    `koanf:"window" toml:"window"` // trailing revisions analyzed
}

// SonarConfig configures the scanner binary and the analysis server.
type SonarConfig struct {
	URL          string `koanf:"url" toml:"url"`
	Token        string `koanf:"token" toml:"token"`
	Username     string `koanf:"username" toml:"username"`
	Password     string `koanf:"password" toml:"password"`
	Scanner      string `koanf:"scanner" toml:"scanner"`
	PageSize     int    `koanf:"page_size" toml:"page_size"`
	MaxIssues    int    `koanf:"max_issues" toml:"max_issues"`
	PollInterval string `koanf:"poll_interval" toml:"poll_interval"`
	MaxWait      string `koanf:"max_wait" toml:"max_wait"` // 0 waits forever
}

// GitHubConfig configures the code-hosting metadata client.
type GitHubConfig struct {
	APIURL     string `koanf:"api_url" toml:"api_url"`
	Token      string `koanf:"token" toml:"token"`
	MaxRetries int    `koanf:"max_retries" toml:"max_retries"`
	CacheTTL   int    `koanf:"cache_ttl" toml:"cache_ttl"` // hours, 0 never expires
}

// RulesetConfig selects which normalized issues count as smells.
type RulesetConfig struct {
	Policy      string   `koanf:"policy" toml:"policy"`
	Rules       []string `koanf:"rules" toml:"rules"`
	MinSeverity string   `koanf:"min_severity" toml:"min_severity"`
}

// AnalysisConfig tunes the aggregate computations.
type AnalysisConfig struct {
	Epsilon    float64 `koanf:"epsilon" toml:"epsilon"`
	SmellyOnly bool    `koanf:"smelly_only" toml:"smelly_only"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `koanf:"level" toml:"level"`
	Format string `koanf:"format" toml:"format"` // text or json
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Addr string `koanf:"addr" toml:"addr"`
}

// OutputConfig controls output formatting.
type OutputConfig struct {
	Format string `koanf:"format" toml:"format"` // text, json, markdown, toon, yaml
	Color  bool   `koanf:"color" toml:"color"`
}

var defaultJSProjects = []string{
	"expressjs/express",
	"bower/bower",
	"request/request",
	"jquery/jquery",
	"ramda/ramda",
	"hexojs/hexo",
	"chartjs/Chart.js",
	"webtorrent/webtorrent",
	"riot/riot",
	"d3/d3",
	"axios/axios",
	"yarnpkg/yarn",
	"serverless/serverless",
	"tailwindlabs/tailwindcss",
	"typicode/json-server",
}

var defaultTSProjects = []string{
	"formium/formik",
	"socketio/socket.io",
	"apollographql/apollo-client",
	"statelyai/xstate",
	"palantir/blueprint",
	"pmndrs/react-three-fiber",
	"ionic-team/ionic-framework",
	"vercel/hyper",
	"nativefier/nativefier",
	"facebook/docusaurus",
	"tannerlinsley/react-query",
	"akveo/ngx-admin",
	"graphql/graphql-js",
	"railsware/upterm",
	"balena-io/etcher",
}

// DefaultProjects returns the studied repositories.
func DefaultProjects() []models.Project {
	var projects []models.Project
	for _, slug := range defaultJSProjects {
		p, _ := models.ParseProject(slug, models.LangJavaScript)
		projects = append(projects, p)
	}
	for _, slug := range defaultTSProjects {
		p, _ := models.ParseProject(slug, models.LangTypeScript)
		projects = append(projects, p)
	}
	return projects
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Data: DataConfig{
			Root:     "data",
			ReposDir: "repos",
		},
		Projects: DefaultProjects(),
		Revisions: RevisionConfig{
			Mode:   string(models.RevisionReleases),
			Window: 25,
		},
		Sonar: SonarConfig{
			URL:          "http://localhost:9000",
			Scanner:      "sonar-scanner",
			PageSize:     500,
			MaxIssues:    10000,
			PollInterval: "5s",
			MaxWait:      "0s",
		},
		GitHub: GitHubConfig{
			APIURL:     "https://api.github.com/",
			MaxRetries: 3,
		},
		Ruleset: RulesetConfig{
			Policy: PolicyCrossLanguage,
		},
		Analysis: AnalysisConfig{
			Epsilon: 1e-9,
		},
		Workers: 4,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Output: OutputConfig{
			Format: "text",
			Color:  true,
		},
	}
}

// Load loads configuration from a file, then overlays SMELLTREND_* environment variables.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	// Determine parser based on extension
	var parser koanf.Parser
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".toml":
		parser = toml.Parser()
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		parser = toml.Parser()
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	if err := loadEnv(k); err != nil {
		return nil, err
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefault tries to load config from standard locations or returns defaults.
// Environment overrides apply in both cases.
func LoadOrDefault() (*Config, error) {
	configNames := []string{
		"smelltrend.toml",
		"smelltrend.yaml",
		"smelltrend.yml",
		"smelltrend.json",
	}

	for _, name := range configNames {
		if _, err := os.Stat(name); err == nil {
			return Load(name)
		}
	}

	k := koanf.New(".")
	cfg := DefaultConfig()
	if err := loadEnv(k); err != nil {
		return nil, err
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnv maps SMELLTREND_SONAR_TOKEN to sonar.token. Only the first
// underscore separates the section from the key.
func loadEnv(k *koanf.Koanf) error {
	return k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		section, rest, ok := strings.Cut(key, "_")
		if !ok {
			return key
		}
		return section + "." + rest
	}), nil)
}

// Validate checks the configuration for values no component can work with.
func (c *Config) Validate() error {
	var errs []error

	if c.Data.Root == "" {
		errs = append(errs, errors.New("data.root must be set"))
	}
	if len(c.Projects) == 0 {
		errs = append(errs, errors.New("at least one project must be configured"))
	}
	seen := make(map[string]bool)
	for i, p := range c.Projects {
		if p.Owner == "" || p.Name == "" {
			errs = append(errs, fmt.Errorf("projects[%d]: owner and name are required", i))
		}
		if _, err := models.ParseLanguage(string(p.Language)); err != nil {
			errs = append(errs, fmt.Errorf("projects[%d]: %w", i, err))
		}
		if seen[p.Key()] {
			errs = append(errs, fmt.Errorf("projects[%d]: duplicate project key %q", i, p.Key()))
		}
		seen[p.Key()] = true
	}

	switch models.RevisionMode(c.Revisions.Mode) {
	case models.RevisionCommits, models.RevisionReleases:
	default:
		errs = append(errs, fmt.Errorf("revisions.mode %q must be commits or releases", c.Revisions.Mode))
	}
	if c.Revisions.Window < 2 {
		errs = append(errs, fmt.Errorf("revisions.window must be at least 2, got %d", c.Revisions.Window))
	}

	switch c.Ruleset.Policy {
	case PolicyAll, PolicyCurated, PolicyCrossLanguage:
	case PolicySeverity:
		if c.Ruleset.MinSeverity == "" {
			errs = append(errs, errors.New("ruleset.min_severity is required with the severity policy"))
		}
	default:
		errs = append(errs, fmt.Errorf("ruleset.policy %q is not one of all, curated, cross-language, severity", c.Ruleset.Policy))
	}
	if c.Ruleset.MinSeverity != "" && models.ParseSeverity(c.Ruleset.MinSeverity) == "" {
		errs = append(errs, fmt.Errorf("ruleset.min_severity %q is not a known severity", c.Ruleset.MinSeverity))
	}

	if c.Sonar.PageSize <= 0 {
		errs = append(errs, errors.New("sonar.page_size must be positive"))
	}
	if c.Sonar.MaxIssues <= 0 {
		errs = append(errs, errors.New("sonar.max_issues must be positive"))
	}
	if _, err := c.PollInterval(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.MaxWait(); err != nil {
		errs = append(errs, err)
	}
	if c.Workers <= 0 {
		errs = append(errs, errors.New("workers must be positive"))
	}

	return errors.Join(errs...)
}

// PollInterval parses sonar.poll_interval.
func (c *Config) PollInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Sonar.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("sonar.poll_interval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("sonar.poll_interval must be positive, got %s", d)
	}
	return d, nil
}

// MaxWait parses sonar.max_wait. Zero means no bound.
func (c *Config) MaxWait() (time.Duration, error) {
	if c.Sonar.MaxWait == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Sonar.MaxWait)
	if err != nil {
		return 0, fmt.Errorf("sonar.max_wait: %w", err)
	}
	return d, nil
}

// ReposDir resolves the clone directory against the data root when relative.
func (c *Config) ReposDir() string {
	if filepath.IsAbs(c.Data.ReposDir) {
		return c.Data.ReposDir
	}
	return filepath.Join(c.Data.Root, c.Data.ReposDir)
}

// FindProject returns the configured project with the given name or owner/name slug.
func (c *Config) FindProject(ref string) (models.Project, bool) {
	for _, p := range c.Projects {
		if p.Name == ref || p.Slug() == ref {
			return p, true
		}
	}
	return models.Project{}, false
}

// SelectProjects resolves project references, returning all projects when refs is empty.
func (c *Config) SelectProjects(refs []string) ([]models.Project, error) {
	if len(refs) == 0 {
		return c.Projects, nil
	}
	var out []models.Project
	for _, ref := range refs {
		p, ok := c.FindProject(ref)
		if !ok {
			return nil, fmt.Errorf("unknown project %q", ref)
		}
		out = append(out, p)
	}
	return out, nil
}
