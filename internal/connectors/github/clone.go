package github

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/custodia-labs/repolens/internal/core/domain"
	"github.com/custodia-labs/repolens/internal/logger"
)

const (
	// CloneTimeout bounds a single git clone.
	CloneTimeout = 300 * time.Second

	// CloneDepth is the history depth fetched.
	CloneDepth = 1
)

// CloneTreeSource snapshots a repository with a shallow git clone into a
// temporary directory.
type CloneTreeSource struct {
	token   string
	gitPath string
	timeout time.Duration

	// urls lists clone URLs to try in order.
	urls func(repo domain.RepositoryID, token string) []string
}

// NewCloneTreeSource creates a clone-backed tree source. The token, when
// set, is tried first so private repositories can be cloned.
func NewCloneTreeSource(token string) *CloneTreeSource {
	return &CloneTreeSource{
		token:   token,
		gitPath: "git",
		timeout: CloneTimeout,
		urls:    githubCloneURLs,
	}
}

func githubCloneURLs(repo domain.RepositoryID, token string) []string {
	public := fmt.Sprintf("https://github.com/%s/%s.git", repo.Owner, repo.Name)
	if token == "" {
		return []string{public}
	}
	authed := fmt.Sprintf("https://x-access-token:%s@github.com/%s/%s.git", token, repo.Owner, repo.Name)
	return []string{authed, public}
}

// Open clones ref (or the default branch when ref is empty) and walks it.
func (s *CloneTreeSource) Open(ctx context.Context, repo domain.RepositoryID, ref string) (Tree, error) {
	if _, err := exec.LookPath(s.gitPath); err != nil {
		return nil, fmt.Errorf("%w: git not installed: %w", ErrCloneFailed, err)
	}

	dir, err := os.MkdirTemp("", "repolens-clone-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}

	var lastErr error
	for _, u := range s.urls(repo, s.token) {
		if lastErr = s.clone(ctx, u, ref, dir); lastErr == nil {
			break
		}
		logger.Debug("clone %s: %v", sanitizeURL(u), lastErr)
		// git refuses to clone into a non-empty directory
		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("reset clone dir: %w", err)
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("reset clone dir: %w", err)
		}
	}
	if lastErr != nil {
		os.RemoveAll(dir)
		return nil, lastErr
	}

	files, err := walkClone(dir)
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("walk clone: %w", err)
	}
	logger.Debug("cloned %s: %d files", repo, len(files))
	return &cloneTree{dir: dir, files: files}, nil
}

func (s *CloneTreeSource) clone(ctx context.Context, url, ref, dir string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	args := []string{"clone", "--depth", fmt.Sprint(CloneDepth), "--single-branch", "--quiet"}
	if ref != "" {
		args = append(args, "--branch", ref)
	}
	args = append(args, url, dir)

	cmd := exec.CommandContext(ctx, s.gitPath, args...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if s.token != "" {
			msg = strings.ReplaceAll(msg, s.token, "***")
		}
		return fmt.Errorf("%w: %s: %v", ErrCloneFailed, msg, err)
	}
	return nil
}

// walkClone lists regular files below dir, skipping excluded directories.
func walkClone(dir string) ([]TreeFile, error) {
	var files []TreeFile
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != dir && IsExcludedDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if IsExcluded(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, TreeFile{Path: rel, Size: info.Size(), local: p})
		return nil
	})
	return files, err
}

// sanitizeURL hides credentials embedded in a clone URL.
func sanitizeURL(u string) string {
	scheme, rest, ok := strings.Cut(u, "://")
	if !ok {
		return u
	}
	if _, host, found := strings.Cut(rest, "@"); found {
		return scheme + "://***@" + host
	}
	return u
}

type cloneTree struct {
	dir   string
	files []TreeFile
}

func (t *cloneTree) Files() []TreeFile {
	return t.files
}

func (t *cloneTree) Read(_ context.Context, f TreeFile) ([]byte, error) {
	return os.ReadFile(f.local)
}

func (t *cloneTree) Close() error {
	return os.RemoveAll(t.dir)
}
