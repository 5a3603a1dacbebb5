package secrets

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
	"go.uber.org/zap"
)

// Config configures the scrubber.
type Config struct {
	Enabled bool `koanf:"enabled"`
	// AllowlistPath is an optional TOML allowlist.
	AllowlistPath string `koanf:"allowlist_path"`
	// Watch reloads the allowlist when the file changes.
	Watch bool `koanf:"watch"`
}

// DefaultConfig enables scrubbing with no allowlist.
func DefaultConfig() Config {
	return Config{Enabled: true}
}

// Finding is one detected secret.
type Finding struct {
	RuleID string `json:"rule_id"`
	Line   int    `json:"line"`
	secret string
}

// Result is scrubbed text plus what was removed.
type Result struct {
	Text     string    `json:"text"`
	Findings []Finding `json:"findings"`
}

// Redacted reports whether anything was replaced.
func (r Result) Redacted() bool { return len(r.Findings) > 0 }

// Scrubber replaces secrets in text.
type Scrubber interface {
	Scrub(text string) Result
}

// Nop returns text unchanged.
type Nop struct{}

// Scrub implements Scrubber.
func (Nop) Scrub(text string) Result { return Result{Text: text, Findings: []Finding{}} }

// Detector scrubs with the gitleaks default rule set.
type Detector struct {
	mu       sync.Mutex
	detector *detect.Detector
	logger   *zap.Logger
}

// New builds a Scrubber from cfg. A disabled config returns Nop; a watched
// allowlist returns an unstarted *Reloader.
func New(cfg Config, logger *zap.Logger) (Scrubber, error) {
	if !cfg.Enabled {
		return Nop{}, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Watch && cfg.AllowlistPath != "" {
		return NewReloader(cfg.AllowlistPath, logger)
	}
	allowlist, err := LoadAllowlist(cfg.AllowlistPath)
	if err != nil {
		return nil, err
	}
	return NewDetector(allowlist, logger)
}

// NewDetector builds a gitleaks-backed Scrubber. allowlist may be nil.
func NewDetector(allowlist *Allowlist, logger *zap.Logger) (*Detector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("gitleaks detector: %w", err)
	}
	if allowlist != nil {
		if err := applyAllowlist(&d.Config, allowlist); err != nil {
			return nil, err
		}
	}
	return &Detector{detector: d, logger: logger}, nil
}

func applyAllowlist(cfg *gitleaksConfig.Config, allowlist *Allowlist) error {
	if len(allowlist.Regexes) == 0 && len(allowlist.StopWords) == 0 {
		return nil
	}
	global := &gitleaksConfig.Allowlist{Description: "inferd allowlist"}
	for _, pattern := range allowlist.Regexes {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidRegex, pattern, err)
		}
		global.Regexes = append(global.Regexes, (*gitleaksRegexp.Regexp)(re))
	}
	global.StopWords = append(global.StopWords, allowlist.StopWords...)
	cfg.Allowlists = append(cfg.Allowlists, global)
	return nil
}

// Scrub replaces every detected secret with [REDACTED:<rule>].
func (d *Detector) Scrub(text string) Result {
	res := Result{Text: text, Findings: []Finding{}}
	if strings.TrimSpace(text) == "" {
		return res
	}

	d.mu.Lock()
	found := d.detector.DetectString(text)
	d.mu.Unlock()

	for _, f := range found {
		if f.Secret == "" {
			continue
		}
		res.Findings = append(res.Findings, Finding{RuleID: f.RuleID, Line: f.StartLine, secret: f.Secret})
	}
	if len(res.Findings) == 0 {
		return res
	}

	// Longest first so a secret containing another is replaced whole.
	ordered := make([]Finding, len(res.Findings))
	copy(ordered, res.Findings)
	sort.SliceStable(ordered, func(i, j int) bool {
		return len(ordered[i].secret) > len(ordered[j].secret)
	})
	for _, f := range ordered {
		res.Text = strings.ReplaceAll(res.Text, f.secret, "[REDACTED:"+f.RuleID+"]")
	}

	rules := make([]string, 0, len(res.Findings))
	for _, f := range res.Findings {
		rules = append(rules, f.RuleID)
	}
	d.logger.Info("secrets redacted from free text", zap.Strings("rules", rules))
	return res
}
