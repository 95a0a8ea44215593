// Package repo builds the repository context agents analyze: the diff,
// the changed files and their contents, the branch and the languages touched.
package repo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/GoCodeAlone/nexus/task"
)

const defaultMaxFileBytes = 256 << 10

// Context is the task-wide analysis context.
type Context struct {
	RepoPath     string
	GitDiff      string
	ChangedFiles []string
	FileContents map[string]string
	Branch       string
	Languages    []string
	Base         string
	Commit       string
}

// Provider derives Context from a task's repository.
type Provider struct {
	git          GitFunc
	maxFileBytes int64
	logger       *slog.Logger
}

// NewProvider creates a Provider that shells out to git. A nil logger uses
// slog.Default().
func NewProvider(logger *slog.Logger) *Provider {
	return NewProviderWithGit(RunGit, logger)
}

// NewProviderWithGit creates a Provider with a custom git runner.
func NewProviderWithGit(git GitFunc, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{git: git, maxFileBytes: defaultMaxFileBytes, logger: logger}
}

// Build resolves tc into a full Context. Fields already present on tc are
// used as given; the rest come from git. Base selects a range diff against
// HEAD, Commit selects that single commit, and otherwise the working tree's
// staged and unstaged changes are used.
func (p *Provider) Build(ctx context.Context, tc task.Context) (*Context, error) {
	if tc.RepoPath == "" {
		return nil, errors.New("repo: build context: repository path is required")
	}
	out := &Context{
		RepoPath:     tc.RepoPath,
		GitDiff:      tc.GitDiff,
		ChangedFiles: slices.Clone(tc.ChangedFiles),
		Branch:       tc.Branch,
		Languages:    slices.Clone(tc.Languages),
		Base:         tc.Base,
		Commit:       tc.Commit,
	}

	var err error
	if out.GitDiff == "" {
		switch {
		case tc.Base != "":
			out.GitDiff, err = RangeDiff(ctx, p.git, tc.RepoPath, tc.Base, "HEAD")
		case tc.Commit != "":
			out.GitDiff, err = CommitDiff(ctx, p.git, tc.RepoPath, tc.Commit)
		default:
			out.GitDiff, err = WorkingDiff(ctx, p.git, tc.RepoPath)
		}
		if err != nil {
			return nil, fmt.Errorf("repo: build context: %w", err)
		}
	}
	if out.ChangedFiles == nil {
		switch {
		case tc.Base != "":
			out.ChangedFiles, err = RangeChangedFiles(ctx, p.git, tc.RepoPath, tc.Base, "HEAD")
		case tc.Commit != "":
			out.ChangedFiles, err = CommitChangedFiles(ctx, p.git, tc.RepoPath, tc.Commit)
		default:
			out.ChangedFiles, err = WorkingChangedFiles(ctx, p.git, tc.RepoPath)
		}
		if err != nil {
			return nil, fmt.Errorf("repo: build context: %w", err)
		}
	}
	if out.Branch == "" {
		if out.Branch, err = CurrentBranch(ctx, p.git, tc.RepoPath); err != nil {
			return nil, fmt.Errorf("repo: build context: %w", err)
		}
	}
	if out.Languages == nil {
		out.Languages = DetectLanguages(out.ChangedFiles)
	}

	out.FileContents = p.readFiles(tc.RepoPath, out.ChangedFiles)
	return out, nil
}

// readFiles loads the changed files that still exist. Deleted, unreadable
// and oversized files are skipped.
func (p *Provider) readFiles(root string, files []string) map[string]string {
	contents := make(map[string]string, len(files))
	for _, f := range files {
		path := filepath.Join(root, f)
		info, err := os.Stat(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				p.logger.Debug("skip changed file", "file", f, "error", err)
			}
			continue
		}
		if info.IsDir() || info.Size() > p.maxFileBytes {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			p.logger.Debug("skip changed file", "file", f, "error", err)
			continue
		}
		contents[f] = string(data)
	}
	return contents
}

// FilterForAgent narrows c to the files an agent declared for languages can
// read. Files in an unknown language are always kept. An empty languages
// list keeps everything.
func (p *Provider) FilterForAgent(c *Context, languages []string) *Context {
	return FilterForAgent(c, languages)
}

// FilterForAgent is the stateless form of Provider.FilterForAgent.
func FilterForAgent(c *Context, languages []string) *Context {
	if c == nil || len(languages) == 0 {
		return c
	}
	out := *c
	out.ChangedFiles = nil
	out.FileContents = make(map[string]string)
	for _, f := range c.ChangedFiles {
		lang := LanguageOf(f)
		if lang != "" && !slices.Contains(languages, lang) {
			continue
		}
		out.ChangedFiles = append(out.ChangedFiles, f)
		if content, ok := c.FileContents[f]; ok {
			out.FileContents[f] = content
		}
	}
	return &out
}
