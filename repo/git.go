package repo

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// emptyTree is git's well-known empty tree object, used as the parent of a
// root commit.
const emptyTree = "4b825dc642cb6eb9a060e54bf899d15363d7aa82"

// GitFunc runs git with args in dir and returns its stdout.
type GitFunc func(ctx context.Context, dir string, args ...string) (string, error)

// RunGit executes the git binary.
func RunGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), msg)
	}
	return stdout.String(), nil
}

// ValidateRef rejects refs that git could read as an option or that carry
// whitespace or NUL bytes.
func ValidateRef(ref string) error {
	if strings.HasPrefix(ref, "-") {
		return fmt.Errorf("invalid git ref %q: refs must not start with '-'", ref)
	}
	if strings.ContainsAny(ref, " \t\n\r\v\f\x00") {
		return fmt.Errorf("invalid git ref %q: refs must not contain whitespace or null bytes", ref)
	}
	return nil
}

// WorkingDiff returns the staged diff followed by the unstaged diff.
func WorkingDiff(ctx context.Context, git GitFunc, dir string) (string, error) {
	staged, err := git(ctx, dir, "diff", "--cached")
	if err != nil {
		return "", fmt.Errorf("get git diff: %w", err)
	}
	unstaged, err := git(ctx, dir, "diff")
	if err != nil {
		return "", fmt.Errorf("get git diff: %w", err)
	}
	var parts []string
	for _, p := range []string{staged, unstaged} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// WorkingChangedFiles returns staged and unstaged file names, deduplicated.
func WorkingChangedFiles(ctx context.Context, git GitFunc, dir string) ([]string, error) {
	staged, err := git(ctx, dir, "diff", "--cached", "--name-only")
	if err != nil {
		return nil, fmt.Errorf("get changed files: %w", err)
	}
	unstaged, err := git(ctx, dir, "diff", "--name-only")
	if err != nil {
		return nil, fmt.Errorf("get changed files: %w", err)
	}
	return splitLines(staged + "\n" + unstaged), nil
}

// RangeDiff returns the diff of head against its merge base with base,
// falling back to a two-dot diff for unrelated histories.
func RangeDiff(ctx context.Context, git GitFunc, dir, base, head string) (string, error) {
	if err := validateRefs(base, head); err != nil {
		return "", err
	}
	out, err := git(ctx, dir, "diff", base+"..."+head)
	if err != nil {
		if out, err = git(ctx, dir, "diff", base+".."+head); err != nil {
			return "", fmt.Errorf("get git diff %s..%s: %w", base, head, err)
		}
	}
	return out, nil
}

// RangeChangedFiles lists the files changed between base and head.
func RangeChangedFiles(ctx context.Context, git GitFunc, dir, base, head string) ([]string, error) {
	if err := validateRefs(base, head); err != nil {
		return nil, err
	}
	out, err := git(ctx, dir, "diff", "--name-only", base+"..."+head)
	if err != nil {
		if out, err = git(ctx, dir, "diff", "--name-only", base+".."+head); err != nil {
			return nil, fmt.Errorf("get changed files %s..%s: %w", base, head, err)
		}
	}
	return splitLines(out), nil
}

// CommitDiff returns the diff introduced by commit. A root commit is
// diffed against the empty tree.
func CommitDiff(ctx context.Context, git GitFunc, dir, commit string) (string, error) {
	if err := ValidateRef(commit); err != nil {
		return "", err
	}
	out, err := git(ctx, dir, "diff", commit+"~1.."+commit)
	if err != nil {
		if out, err = git(ctx, dir, "diff", emptyTree+".."+commit); err != nil {
			return "", fmt.Errorf("get commit diff %s: %w", commit, err)
		}
	}
	return out, nil
}

// CommitChangedFiles lists the files touched by commit.
func CommitChangedFiles(ctx context.Context, git GitFunc, dir, commit string) ([]string, error) {
	if err := ValidateRef(commit); err != nil {
		return nil, err
	}
	out, err := git(ctx, dir, "diff", "--name-only", commit+"~1.."+commit)
	if err != nil {
		if out, err = git(ctx, dir, "diff", "--name-only", emptyTree+".."+commit); err != nil {
			return nil, fmt.Errorf("get commit files %s: %w", commit, err)
		}
	}
	return splitLines(out), nil
}

// CurrentBranch returns the abbreviated name of HEAD.
func CurrentBranch(ctx context.Context, git GitFunc, dir string) (string, error) {
	out, err := git(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("get current branch: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func validateRefs(refs ...string) error {
	for _, r := range refs {
		if err := ValidateRef(r); err != nil {
			return err
		}
	}
	return nil
}

// splitLines returns the non-empty trimmed lines of s in first-seen order
// without duplicates.
func splitLines(s string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		out = append(out, line)
	}
	return out
}
