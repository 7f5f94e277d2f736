// Package deck loads card candidates from markdown decks, either a
// local directory or a git repository kept cloned under a repos
// directory.
package deck

import (
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/conorfennell/decksmith/internal/domain"
	"github.com/conorfennell/decksmith/internal/gitsource"
	"github.com/conorfennell/decksmith/internal/parser"
)

// IsGitSource reports whether source names a git repository rather than
// a local directory.
func IsGitSource(source string) bool {
	return strings.HasSuffix(source, ".git") ||
		strings.HasPrefix(source, "git@") ||
		strings.HasPrefix(source, "https://") ||
		strings.HasPrefix(source, "http://")
}

// Load returns all card candidates found in the markdown files of a
// deck source. Git sources are cloned or pulled under reposDir first.
func Load(source, reposDir string) ([]domain.Candidate, error) {
	dir := source
	if IsGitSource(source) {
		localPath, err := localRepoPath(reposDir, source)
		if err != nil {
			return nil, fmt.Errorf("deck source %s: %w", source, err)
		}
		if err := gitsource.Sync(source, localPath); err != nil {
			return nil, fmt.Errorf("deck source %s: %w", source, err)
		}
		dir = localPath
	}

	var candidates []domain.Candidate
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}
		cards, err := parser.ParseFile(path)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		candidates = append(candidates, cards...)
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walk deck %s: %w", dir, walkErr)
	}

	slog.Info("deck loaded", "source", source, "candidates", len(candidates))
	return candidates, nil
}

// localRepoPath maps a git URL onto a stable path under baseDir, so
// repeated imports reuse the same clone.
func localRepoPath(baseDir, repoURL string) (string, error) {
	parsed, err := url.Parse(repoURL)
	if err == nil && (parsed.Scheme == "https" || parsed.Scheme == "http") {
		sanitized := strings.TrimSuffix(parsed.Path, ".git")
		return filepath.Join(baseDir, parsed.Host, sanitized), nil
	}

	// scp-style git@host:owner/repo.git
	if strings.Contains(repoURL, "@") {
		parts := strings.SplitN(repoURL, ":", 2)
		if len(parts) == 2 {
			hostAndUser := strings.SplitN(parts[0], "@", 2)
			if len(hostAndUser) == 2 {
				repoPath := strings.TrimSuffix(parts[1], ".git")
				return filepath.Join(baseDir, hostAndUser[1], repoPath), nil
			}
		}
	}
	return "", fmt.Errorf("could not parse git URL: %s", repoURL)
}
