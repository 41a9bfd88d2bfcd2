// Package git versions a calibration database directory with go-git.
//
// Every insertion becomes one commit that stages exactly the files it touched,
// so the history of a calibration ID can be listed with [Repo.History].
package git

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// maxHistory caps the number of commits History returns.
const maxHistory = 1000

// Author identifies who made a change.
type Author struct {
	Name  string
	Email string
}

// Commit is one entry of the history.
type Commit struct {
	Hash        string    `json:"hash"`
	Message     string    `json:"message"` // Subject line.
	Body        string    `json:"body"`
	Author      string    `json:"author"`
	AuthorEmail string    `json:"author_email"`
	AuthorDate  time.Time `json:"author_date"`
	Committer   string    `json:"committer"`
	CommitDate  time.Time `json:"commit_date"`
}

// Repo is a git repository rooted at the database directory.
type Repo struct {
	dir          string
	defaultName  string
	defaultEmail string
	repo         *gogit.Repository
	mu           sync.Mutex
}

// Open opens the repository in dir, initializing it if needed. defaultName
// and defaultEmail sign commits and stand in for a missing author.
func Open(_ context.Context, dir, defaultName, defaultEmail string) (*Repo, error) {
	if defaultName == "" {
		defaultName = "calibdb"
	}
	if defaultEmail == "" {
		defaultEmail = "calibdb@localhost"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: data directory.
		return nil, fmt.Errorf("failed to create repo directory: %w", err)
	}
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		if repo, err = gogit.PlainInit(dir, false); err != nil {
			return nil, fmt.Errorf("failed to initialize git repo: %w", err)
		}
		cfg, err := repo.Config()
		if err != nil {
			return nil, fmt.Errorf("failed to read git config: %w", err)
		}
		cfg.User.Name = defaultName
		cfg.User.Email = defaultEmail
		if err := repo.SetConfig(cfg); err != nil {
			return nil, fmt.Errorf("failed to write git config: %w", err)
		}
	}
	return &Repo{dir: dir, defaultName: defaultName, defaultEmail: defaultEmail, repo: repo}, nil
}

// Dir returns the working directory.
func (r *Repo) Dir() string {
	return r.dir
}

// CommitTx runs fn while holding the repository lock and commits the files it
// returns, relative to Dir. Files that no longer exist are recorded as
// deleted. Nothing is committed if fn fails, returns no files or nothing
// changed.
func (r *Repo) CommitTx(ctx context.Context, author Author, fn func() (msg string, files []string, err error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, files, err := fn()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	w, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	for _, f := range files {
		if _, err := w.Add(filepath.ToSlash(f)); err != nil {
			return fmt.Errorf("failed to stage %s: %w", f, err)
		}
	}
	status, err := w.Status()
	if err != nil {
		return fmt.Errorf("failed to get worktree status: %w", err)
	}
	if status.IsClean() {
		return nil
	}
	name, email := author.Name, author.Email
	if name == "" {
		name = r.defaultName
	}
	if email == "" {
		email = r.defaultEmail
	}
	now := time.Now()
	_, err = w.Commit(msg, &gogit.CommitOptions{
		Author:    &object.Signature{Name: name, Email: email, When: now},
		Committer: &object.Signature{Name: r.defaultName, Email: r.defaultEmail, When: now},
	})
	if err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// CommitCount returns the number of commits reachable from HEAD.
func (r *Repo) CommitCount(_ context.Context) (int, error) {
	iter, err := r.repo.Log(&gogit.LogOptions{})
	if err != nil {
		// No commit yet.
		return 0, nil
	}
	defer iter.Close()
	n := 0
	for {
		if _, err := iter.Next(); err != nil {
			break
		}
		n++
	}
	return n, nil
}

// History returns up to n commits touching path (relative to Dir), newest
// first. An empty path or "." lists every commit. n <= 0 means the maximum.
func (r *Repo) History(_ context.Context, path string, n int) ([]*Commit, error) {
	if n <= 0 || n > maxHistory {
		n = maxHistory
	}
	opts := &gogit.LogOptions{}
	if path = filepath.ToSlash(path); path != "" && path != "." {
		prefix := strings.TrimSuffix(path, "/")
		opts.PathFilter = func(p string) bool {
			return p == prefix || strings.HasPrefix(p, prefix+"/")
		}
	}
	iter, err := r.repo.Log(opts)
	if err != nil {
		return nil, nil
	}
	defer iter.Close()
	var commits []*Commit
	for range n {
		c, err := iter.Next()
		if err != nil {
			break
		}
		subject, body, _ := strings.Cut(c.Message, "\n")
		commits = append(commits, &Commit{
			Hash:        c.Hash.String(),
			Message:     subject,
			Body:        strings.TrimSpace(body),
			Author:      c.Author.Name,
			AuthorEmail: c.Author.Email,
			AuthorDate:  c.Author.When,
			Committer:   c.Committer.Name,
			CommitDate:  c.Committer.When,
		})
	}
	return commits, nil
}
