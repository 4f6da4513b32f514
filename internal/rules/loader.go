package rules

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hookwarden/hookwarden/internal/logger"
	"github.com/hookwarden/hookwarden/internal/pattern"
)

var log = logger.New("rules")

// Rule source labels, recorded on each loaded rule for audit output.
const (
	SourceUser   = "user"
	SourceInline = "inline"
)

// Loader reads rule files from a rules.d directory. Files are consumed in
// lexical name order so numeric prefixes (10-git.yaml, 20-secrets.yaml)
// give a stable evaluation order.
type Loader struct {
	dir   string
	cache *pattern.Cache
}

// NewLoader creates a loader for the given rules directory. A nil cache
// compiles patterns without caching.
func NewLoader(dir string, cache *pattern.Cache) *Loader {
	return &Loader{dir: dir, cache: cache}
}

// Dir returns the rules directory.
func (l *Loader) Dir() string {
	return l.dir
}

// Load reads and compiles every rule file in the directory. Loading is
// lenient: an unreadable or invalid file is skipped with a warning, and an
// invalid rule inside a valid file is skipped with a warning, so one bad
// rule never disables the rest of the policy. A missing directory yields
// zero rules.
func (l *Loader) Load() ([]CompiledRule, error) {
	files, err := l.ruleFiles()
	if err != nil {
		return nil, err
	}

	var all []CompiledRule
	seen := map[string]string{}
	order := 0
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warn("Skipping unreadable rule file %s: %v", path, err)
			continue
		}

		set, err := parseRuleSet(data)
		if err != nil {
			log.Warn("Skipping invalid rule file %s: %v", path, err)
			continue
		}

		for i := range set.Rules {
			r := set.Rules[i]
			r.Source = SourceUser
			r.FilePath = path
			r.FileOrder = order
			order++

			// Names are unique across the whole directory, not just one
			// file. The earlier definition wins.
			if prev, ok := seen[r.Name]; ok {
				log.Warn("Skipping rule %q in %s: already defined in %s", r.Name, path, prev)
				continue
			}

			cr, err := CompileRule(r, l.cache)
			if err != nil {
				log.Warn("Skipping rule in %s: %v", path, err)
				continue
			}
			seen[r.Name] = path
			all = append(all, cr)
		}
	}

	log.Debug("Loaded %d rules from %s", len(all), l.dir)
	return all, nil
}

// LoadStrict reads and compiles every rule file, collecting every problem
// instead of skipping. Used by the validate subcommand.
func (l *Loader) LoadStrict() ([]CompiledRule, []error) {
	files, err := l.ruleFiles()
	if err != nil {
		return nil, []error{err}
	}

	var all []CompiledRule
	var errs []error
	seen := map[string]string{}
	order := 0
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}

		set, err := parseRuleSet(data)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}

		for i := range set.Rules {
			r := set.Rules[i]
			r.Source = SourceUser
			r.FilePath = path
			r.FileOrder = order
			order++

			if prev, ok := seen[r.Name]; ok && r.Name != "" {
				errs = append(errs, fmt.Errorf("%s: duplicate rule name %q (already defined in %s)", path, r.Name, prev))
				continue
			}

			cr, err := CompileRule(r, l.cache)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", path, err))
				continue
			}
			seen[r.Name] = path
			all = append(all, cr)
		}
	}

	return all, errs
}

// ValidateBytes checks rule YAML content without touching the filesystem.
func ValidateBytes(data []byte) []error {
	set, err := parseRuleSet(data)
	if err != nil {
		return []error{err}
	}
	var errs []error
	for i := range set.Rules {
		r := set.Rules[i]
		r.Source = SourceInline
		if _, err := CompileRule(r, nil); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (l *Loader) ruleFiles() ([]string, error) {
	if l.dir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read rules directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		files = append(files, filepath.Join(l.dir, name))
	}
	sort.Strings(files)
	return files, nil
}

// parseRuleSet decodes a rule file. Unknown fields are a warning, not an
// error, so older binaries tolerate newer rule files.
func parseRuleSet(data []byte) (*RuleSet, error) {
	var set RuleSet
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&set); err != nil {
		if strings.Contains(err.Error(), "not found in type") {
			log.Warn("Rule file has unknown fields (ignored): %v", err)
			set = RuleSet{}
			if err := yaml.Unmarshal(data, &set); err != nil {
				return nil, fmt.Errorf("invalid YAML: %w", err)
			}
		} else if errors.Is(err, io.EOF) {
			// Empty file.
			return &RuleSet{}, nil
		} else {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
	}

	names := make(map[string]bool, len(set.Rules))
	for i := range set.Rules {
		name := set.Rules[i].Name
		if name == "" {
			continue
		}
		if names[name] {
			return nil, fmt.Errorf("duplicate rule name %q", name)
		}
		names[name] = true
	}
	return &set, nil
}
