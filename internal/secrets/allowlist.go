package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"

	"github.com/BurntSushi/toml"
)

// Allowlist holds content patterns that are never redacted.
type Allowlist struct {
	Regexes   []string
	StopWords []string
}

// LoadAllowlist reads a gitleaks-style allowlist file:
//
//	[allowlist]
//	regexes = ['''DEMO_KEY_[0-9]+''']
//	stopwords = ["example"]
//
// A missing file yields an empty allowlist.
func LoadAllowlist(path string) (*Allowlist, error) {
	empty := &Allowlist{Regexes: []string{}, StopWords: []string{}}
	if path == "" {
		return empty, nil
	}

	var file struct {
		Allowlist struct {
			Regexes   []string `toml:"regexes"`
			StopWords []string `toml:"stopwords"`
		} `toml:"allowlist"`
	}
	if _, err := toml.DecodeFile(path, &file); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return empty, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTOML, path, err)
	}

	for _, pattern := range file.Allowlist.Regexes {
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("%w: %q in %s: %v", ErrInvalidRegex, pattern, path, err)
		}
	}

	al := &Allowlist{Regexes: file.Allowlist.Regexes, StopWords: file.Allowlist.StopWords}
	if al.Regexes == nil {
		al.Regexes = []string{}
	}
	if al.StopWords == nil {
		al.StopWords = []string{}
	}
	return al, nil
}
