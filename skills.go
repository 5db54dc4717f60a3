package vigil

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Skill is a reusable instruction document the agent can pull into context
// on demand. Skills live as <dir>/<name>/SKILL.md files with a YAML
// frontmatter block carrying at least name and description.
type Skill struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Dir is the directory under the skills root holding SKILL.md. It may
	// differ from the frontmatter name; reads go through Dir, lookups by
	// Name. Set by Discover.
	Dir string `yaml:"-"`

	// Content is the markdown body after the frontmatter. Only populated
	// by Load, not by Discover.
	Content string `yaml:"-"`
}

var frontmatterRe = regexp.MustCompile(`(?s)\A---\s*\n(.*?)\n---\s*\n?`)

// SkillLoader discovers and loads skills from a directory tree. Loaded
// skill bodies are cached; the metadata listing is re-read on every
// Discover call so new skills appear without a restart.
type SkillLoader struct {
	dir string

	mu    sync.Mutex
	cache map[string]string
}

// NewSkillLoader creates a loader rooted at dir. A missing directory is
// not an error; Discover simply returns nothing.
func NewSkillLoader(dir string) *SkillLoader {
	return &SkillLoader{dir: dir, cache: make(map[string]string)}
}

// Discover lists available skills with their metadata, sorted by name.
// Skills with unreadable or malformed frontmatter are skipped.
func (l *SkillLoader) Discover() []Skill {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil
	}
	var skills []Skill
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(l.dir, e.Name(), "SKILL.md"))
		if err != nil {
			continue
		}
		meta, _, err := splitFrontmatter(string(raw))
		if err != nil || meta.Name == "" {
			continue
		}
		meta.Dir = e.Name()
		skills = append(skills, meta)
	}
	sort.Slice(skills, func(i, j int) bool { return skills[i].Name < skills[j].Name })
	return skills
}

// Load returns the full skill body for a name. Bodies are cached after
// the first read.
func (l *SkillLoader) Load(name string) (string, error) {
	l.mu.Lock()
	if body, ok := l.cache[name]; ok {
		l.mu.Unlock()
		return body, nil
	}
	l.mu.Unlock()

	for _, s := range l.Discover() {
		if s.Name != name {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(l.dir, s.Dir, "SKILL.md"))
		if err != nil {
			return "", fmt.Errorf("skill %s: %w", name, err)
		}
		_, body, err := splitFrontmatter(string(raw))
		if err != nil {
			return "", fmt.Errorf("skill %s: %w", name, err)
		}
		l.mu.Lock()
		l.cache[name] = body
		l.mu.Unlock()
		return body, nil
	}
	return "", fmt.Errorf("skill %s not found", name)
}

func splitFrontmatter(content string) (Skill, string, error) {
	m := frontmatterRe.FindStringSubmatch(content)
	if m == nil {
		return Skill{}, "", fmt.Errorf("missing frontmatter")
	}
	var meta Skill
	if err := yaml.Unmarshal([]byte(m[1]), &meta); err != nil {
		return Skill{}, "", fmt.Errorf("parse frontmatter: %w", err)
	}
	body := strings.TrimPrefix(content, m[0])
	return meta, strings.TrimSpace(body), nil
}
