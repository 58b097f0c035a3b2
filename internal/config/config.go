package config

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/vidwatch/internal/watermark"
)

const (
	DefaultDir           = ".vidwatch"
	DefaultConfigFile    = "config.yaml"
	DefaultStoragePath   = ".vidwatch/vidwatch.db"
	DefaultRetainDays    = 90
	DefaultWorkers       = 1
	DefaultDouyinScript  = "x_bogus.js"
	DefaultScriptTimeout = 10 * time.Second
	DefaultUserAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36 Edg/122.0.0.0"

	// DefaultAssetName stands in for a missing asset name in IDs and headers.
	DefaultAssetName = "NoN"
)

// Error is a fatal configuration problem. Nothing is polled when Load fails.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Duration wraps time.Duration for YAML unmarshaling from strings like "10s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

type Config struct {
	Assets  []Asset       `yaml:"assets"`
	Cookies Cookies       `yaml:"cookies"`
	Signing SigningConfig `yaml:"signing"`
	HTTP    HTTPConfig    `yaml:"http"`
	Poll    PollConfig    `yaml:"poll"`
	Storage StorageConfig `yaml:"storage"`
	Privacy PrivacyConfig `yaml:"privacy"`
}

// Asset is one tracked account and its watermark history.
type Asset struct {
	Name    string            `yaml:"name,omitempty"`
	Link    string            `yaml:"link"`
	Offsets watermark.History `yaml:"offsets,omitempty"`
}

// DisplayName returns the name, or DefaultAssetName when unset.
func (a Asset) DisplayName() string {
	if a.Name == "" {
		return DefaultAssetName
	}
	return a.Name
}

// ID identifies the asset by content so its history follows it when the
// asset list is reordered.
func (a Asset) ID() string {
	return base64.StdEncoding.EncodeToString([]byte(a.DisplayName() + a.Link))
}

// Cookies holds the per-platform cookie strings sent with every request.
// A *_env field names an environment variable that overrides the literal.
type Cookies struct {
	Bilibili    string `yaml:"bilibili,omitempty"`
	Kuaishou    string `yaml:"kuaishou,omitempty"`
	Ixigua      string `yaml:"ixigua,omitempty"`
	Douyin      string `yaml:"douyin,omitempty"`
	BilibiliEnv string `yaml:"bilibili_env,omitempty"`
	KuaishouEnv string `yaml:"kuaishou_env,omitempty"`
	IxiguaEnv   string `yaml:"ixigua_env,omitempty"`
	DouyinEnv   string `yaml:"douyin_env,omitempty"`

	// Resolved from env vars at load time; never saved.
	resolved map[string]string
}

// For returns the cookie for a platform name ("bilibili", "kuaishou",
// "ixigua", "douyin"), or "" when none is configured.
func (c Cookies) For(platform string) string {
	if v, ok := c.resolved[platform]; ok {
		return v
	}
	switch platform {
	case "bilibili":
		return c.Bilibili
	case "kuaishou":
		return c.Kuaishou
	case "ixigua":
		return c.Ixigua
	case "douyin":
		return c.Douyin
	}
	return ""
}

// Values returns every configured cookie, for log redaction.
func (c Cookies) Values() []string {
	var out []string
	for _, p := range []string{"bilibili", "kuaishou", "ixigua", "douyin"} {
		if v := c.For(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

type SigningConfig struct {
	// DouyinScript is the X-Bogus signing script; relative paths are resolved
	// against the config directory.
	DouyinScript  string   `yaml:"douyin_script"`
	ScriptTimeout Duration `yaml:"script_timeout"`
}

type HTTPConfig struct {
	UserAgent string `yaml:"user_agent"`
	// Timeout of zero leaves requests unbounded.
	Timeout Duration `yaml:"timeout"`
}

type PollConfig struct {
	Workers int `yaml:"workers"`
}

type StorageConfig struct {
	Path string `yaml:"path"`
	// RetainDays of 0 keeps history forever; unset means DefaultRetainDays.
	RetainDays *int `yaml:"retain_days"`
	Disabled   bool `yaml:"disabled"`
}

// Retention returns the number of days history is kept, 0 meaning forever.
func (s StorageConfig) Retention() int {
	if s.RetainDays == nil {
		return DefaultRetainDays
	}
	return *s.RetainDays
}

type PrivacyConfig struct {
	// Redact lists extra regex patterns masked in debug logs, on top of
	// cookie values.
	Redact []string `yaml:"redact"`
}

// Defaults returns the values applied to unset fields.
func Defaults() Config {
	return Config{
		Signing: SigningConfig{
			DouyinScript:  DefaultDouyinScript,
			ScriptTimeout: Duration{DefaultScriptTimeout},
		},
		HTTP:    HTTPConfig{UserAgent: DefaultUserAgent},
		Poll:    PollConfig{Workers: DefaultWorkers},
		Storage: StorageConfig{Path: DefaultStoragePath, RetainDays: ptr(DefaultRetainDays)},
	}
}

// Load reads config.yaml from dir, applies defaults, resolves env vars, and validates.
func Load(dir string) (*Config, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, &Error{Path: dir, Err: errors.New("config dir is required")}
	}

	path := filepath.Join(dir, DefaultConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Err: fmt.Errorf("read config: %w", err)}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &Error{Path: path, Err: fmt.Errorf("parse config: %w", err)}
	}

	if err := applyDefaults(&cfg); err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	resolveEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, &Error{Path: path, Err: fmt.Errorf("validate config: %w", err)}
	}

	return &cfg, nil
}

// Save rewrites config.yaml in dir from cfg. The file is replaced atomically
// so a failed write leaves the previous state intact.
func Save(dir string, cfg *Config) error {
	path := filepath.Join(dir, DefaultConfigFile)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return &Error{Path: path, Err: fmt.Errorf("encode config: %w", err)}
	}
	if err := enc.Close(); err != nil {
		return &Error{Path: path, Err: fmt.Errorf("encode config: %w", err)}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &Error{Path: path, Err: fmt.Errorf("create config dir: %w", err)}
	}
	tmp, err := os.CreateTemp(dir, DefaultConfigFile+".*")
	if err != nil {
		return &Error{Path: path, Err: fmt.Errorf("create temp file: %w", err)}
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return &Error{Path: path, Err: fmt.Errorf("write config: %w", err)}
	}
	if err := tmp.Close(); err != nil {
		return &Error{Path: path, Err: fmt.Errorf("write config: %w", err)}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return &Error{Path: path, Err: fmt.Errorf("replace config: %w", err)}
	}
	return nil
}

// AssetByID returns the asset with the given ID, or nil.
func (c *Config) AssetByID(id string) *Asset {
	for i := range c.Assets {
		if c.Assets[i].ID() == id {
			return &c.Assets[i]
		}
	}
	return nil
}

// ScriptPath resolves the douyin signing script against dir.
func (c *Config) ScriptPath(dir string) string {
	p := c.Signing.DouyinScript
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

func ptr[T any](v T) *T {
	return &v
}

// applyDefaults fills unset fields. Pointer fields are not dereferenced, so
// an explicit zero behind a pointer survives.
func applyDefaults(cfg *Config) error {
	if err := mergo.Merge(cfg, Defaults(), mergo.WithoutDereference); err != nil {
		return fmt.Errorf("apply defaults: %w", err)
	}
	return nil
}

func resolveEnv(cfg *Config) {
	c := &cfg.Cookies
	envs := map[string]string{
		"bilibili": c.BilibiliEnv,
		"kuaishou": c.KuaishouEnv,
		"ixigua":   c.IxiguaEnv,
		"douyin":   c.DouyinEnv,
	}
	for platform, name := range envs {
		if name == "" {
			continue
		}
		if v := os.Getenv(name); v != "" {
			if c.resolved == nil {
				c.resolved = make(map[string]string)
			}
			c.resolved[platform] = v
		}
	}
}

func validate(cfg *Config) error {
	seen := make(map[string]int, len(cfg.Assets))
	for i, a := range cfg.Assets {
		if strings.TrimSpace(a.Link) == "" {
			return fmt.Errorf("assets[%d]: link is required", i)
		}
		u, err := url.Parse(a.Link)
		if err != nil {
			return fmt.Errorf("assets[%d]: link: %w", i, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("assets[%d]: link %q is not an absolute URL", i, a.Link)
		}
		if len(a.Offsets) > watermark.MaxHistory {
			return fmt.Errorf("assets[%d]: offsets: at most %d entries, got %d", i, watermark.MaxHistory, len(a.Offsets))
		}
		id := a.ID()
		if j, dup := seen[id]; dup {
			return fmt.Errorf("assets[%d]: duplicate of assets[%d] (same name and link)", i, j)
		}
		seen[id] = i
	}

	if cfg.Poll.Workers < 1 {
		return fmt.Errorf("poll.workers: must be at least 1, got %d", cfg.Poll.Workers)
	}
	if days := cfg.Storage.Retention(); days < 0 {
		return fmt.Errorf("storage.retain_days: must not be negative, got %d", days)
	}
	if cfg.HTTP.Timeout.Duration < 0 {
		return errors.New("http.timeout: must not be negative")
	}
	return nil
}
