package skillsrc

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/benchforge/workbench/internal/models"
)

// Config controls how the Importer resolves and validates skill source
// URLs.
type Config struct {
	// GitHubToken authenticates Contents-API and raw-content requests;
	// empty means public repos only, at GitHub's unauthenticated rate
	// limit.
	GitHubToken string
	// AllowedDomains restricts ValidateSkillURL; empty allows any host.
	AllowedDomains []string
	// CacheTTL controls how long a fetched document is reused before
	// being re-downloaded; defaults to 5 minutes.
	CacheTTL time.Duration
}

// Importer resolves a skill definition from a local file or a GitHub
// URL, parsing its YAML frontmatter into a *models.Skill.
type Importer struct {
	github *GitHubClient
	cache  *Cache
	cfg    Config
}

// NewImporter builds an Importer from cfg.
func NewImporter(cfg Config) *Importer {
	ttl := 5 * time.Minute
	if cfg.CacheTTL > 0 {
		ttl = cfg.CacheTTL
	}
	return &Importer{
		github: NewGitHubClient(cfg.GitHubToken),
		cache:  NewCache(ttl),
		cfg:    cfg,
	}
}

// OverrideHTTPClientForTest replaces the internal GitHub client's HTTP
// client. For testing only.
func (im *Importer) OverrideHTTPClientForTest(httpClient *http.Client) {
	im.github.httpClient = httpClient
}

// ImportFromFile reads and parses a skill document from the local
// filesystem. SourceFile/Source on the returned skill are set to path.
func (im *Importer) ImportFromFile(path string) (*models.Skill, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("skillsrc: read %s: %w", path, err)
	}
	sk, err := ParseDocument(string(content))
	if err != nil {
		return nil, err
	}
	sk.SourceFile = path
	sk.Source = "file"
	return sk, nil
}

// ImportFromURL fetches (with caching) and parses a skill document from
// a GitHub blob URL or a raw URL. SourceFile on the returned skill is
// set to the normalized raw URL, Source to "url".
func (im *Importer) ImportFromURL(ctx context.Context, rawURL string) (*models.Skill, error) {
	if err := ValidateSkillURL(rawURL, im.cfg.AllowedDomains); err != nil {
		return nil, err
	}

	normalized := ConvertToRawURL(rawURL)
	content, ok := im.cache.Get(normalized)
	if !ok {
		var err error
		content, err = im.github.DownloadContent(ctx, rawURL)
		if err != nil {
			return nil, fmt.Errorf("skillsrc: fetch skill %s: %w", rawURL, err)
		}
		im.cache.Set(normalized, content)
	}

	sk, err := ParseDocument(content)
	if err != nil {
		return nil, fmt.Errorf("skillsrc: %s: %w", rawURL, err)
	}
	sk.SourceFile = normalized
	sk.Source = "url"
	return sk, nil
}

// ListAvailable returns the markdown file URLs found under a GitHub
// repository path, cached under the repo URL as key. Returns an empty
// slice, not an error, if repoURL is empty.
func (im *Importer) ListAvailable(ctx context.Context, repoURL string) ([]string, error) {
	if repoURL == "" {
		return []string{}, nil
	}
	if cached, ok := im.cache.Get("list:" + repoURL); ok {
		return splitCachedList(cached), nil
	}

	files, err := im.github.ListMarkdownFiles(ctx, repoURL)
	if err != nil {
		return nil, fmt.Errorf("skillsrc: list skills from %s: %w", repoURL, err)
	}
	if files == nil {
		files = []string{}
	}
	im.cache.Set("list:"+repoURL, joinForCache(files))
	return files, nil
}

func joinForCache(items []string) string {
	if len(items) == 0 {
		return ""
	}
	out := items[0]
	for _, item := range items[1:] {
		out += "\x00" + item
	}
	return out
}

func splitCachedList(cached string) []string {
	if cached == "" {
		return []string{}
	}
	var result []string
	start := 0
	for i := 0; i < len(cached); i++ {
		if cached[i] == '\x00' {
			result = append(result, cached[start:i])
			start = i + 1
		}
	}
	result = append(result, cached[start:])
	return result
}
