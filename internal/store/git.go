package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v6"
	gitconfig "github.com/go-git/go-git/v6/config"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/object"
	"github.com/go-git/go-git/v6/plumbing/transport"
	githttp "github.com/go-git/go-git/v6/plumbing/transport/http"
	"github.com/router-for-me/VertexProxyAPI/internal/config"
)

// GitStateStore commits the state file to a git remote after each save.
// The branch history is squashed to a single commit and force-pushed so
// the remote never accumulates one commit per token refresh.
type GitStateStore struct {
	mu       sync.Mutex
	remote   string
	branch   string
	username string
	password string
	repoDir  string
}

// NewGitStateStore clones the remote (or initializes an empty repo when
// the remote has no history yet) into the local path.
func NewGitStateStore(cfg config.GitStoreConfig) (*GitStateStore, error) {
	remote := strings.TrimSpace(cfg.RemoteURL)
	if remote == "" {
		return nil, fmt.Errorf("git store: remote-url is required")
	}
	repoDir := strings.TrimSpace(cfg.LocalPath)
	if repoDir == "" {
		repoDir = "gitstore"
	}
	branch := strings.TrimSpace(cfg.Branch)
	if branch == "" {
		branch = "main"
	}

	s := &GitStateStore{
		remote:   remote,
		branch:   branch,
		username: cfg.Username,
		password: cfg.Password,
		repoDir:  repoDir,
	}
	if err := s.bootstrap(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *GitStateStore) gitAuth() transport.AuthMethod {
	if s.username == "" && s.password == "" {
		return nil
	}
	return &githttp.BasicAuth{Username: s.username, Password: s.password}
}

// bootstrap clones the remote or initializes a fresh repo wired to it.
func (s *GitStateStore) bootstrap() error {
	gitDir := filepath.Join(s.repoDir, ".git")
	if _, err := os.Stat(gitDir); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("git store: stat repo: %w", err)
	}

	if err := os.MkdirAll(s.repoDir, 0o700); err != nil {
		return fmt.Errorf("git store: create repo dir: %w", err)
	}
	_, errClone := git.PlainClone(s.repoDir, &git.CloneOptions{Auth: s.gitAuth(), URL: s.remote})
	if errClone == nil {
		return nil
	}
	if !errors.Is(errClone, transport.ErrEmptyRemoteRepository) {
		return fmt.Errorf("git store: clone: %w", errClone)
	}

	_ = os.RemoveAll(gitDir)
	repo, errInit := git.PlainInit(s.repoDir, false)
	if errInit != nil {
		return fmt.Errorf("git store: init empty repo: %w", errInit)
	}
	if _, errRemote := repo.Remote("origin"); errRemote != nil {
		if _, errCreate := repo.CreateRemote(&gitconfig.RemoteConfig{
			Name: "origin",
			URLs: []string{s.remote},
		}); errCreate != nil && !errors.Is(errCreate, git.ErrRemoteExists) {
			return fmt.Errorf("git store: configure remote: %w", errCreate)
		}
	}
	return nil
}

// Load reads the state file from the local checkout.
func (s *GitStateStore) Load(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(filepath.Join(s.repoDir, stateFileName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("git store: read state file: %w", err)
	}
	return data, nil
}

// Save writes the state file, commits it as the branch's only commit,
// and force-pushes.
func (s *GitStateStore) Save(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(filepath.Join(s.repoDir, stateFileName), data, 0o600); err != nil {
		return fmt.Errorf("git store: write state file: %w", err)
	}

	repo, err := git.PlainOpen(s.repoDir)
	if err != nil {
		return fmt.Errorf("git store: open repo: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("git store: worktree: %w", err)
	}
	if _, err = worktree.Add(stateFileName); err != nil {
		return fmt.Errorf("git store: add state file: %w", err)
	}
	status, err := worktree.Status()
	if err != nil {
		return fmt.Errorf("git store: status: %w", err)
	}
	if status.IsClean() {
		return nil
	}

	signature := &object.Signature{
		Name:  "VertexProxyAPI",
		Email: "vertex-proxy@local",
		When:  time.Now(),
	}
	commitHash, err := worktree.Commit("Update bridge state", &git.CommitOptions{Author: signature})
	if err != nil {
		if errors.Is(err, git.ErrEmptyCommit) {
			return nil
		}
		return fmt.Errorf("git store: commit: %w", err)
	}
	if err = s.squashHead(repo, commitHash, signature); err != nil {
		return err
	}
	if err = repo.Push(&git.PushOptions{Auth: s.gitAuth(), Force: true}); err != nil {
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			return nil
		}
		return fmt.Errorf("git store: push: %w", err)
	}
	return nil
}

// squashHead rewrites the branch tip to a parentless commit carrying the
// current tree, keeping remote history at exactly one commit.
func (s *GitStateStore) squashHead(repo *git.Repository, commitHash plumbing.Hash, signature *object.Signature) error {
	headRef, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil
		}
		return fmt.Errorf("git store: get head: %w", err)
	}
	commitObj, err := repo.CommitObject(commitHash)
	if err != nil {
		return fmt.Errorf("git store: inspect head commit: %w", err)
	}
	if commitObj.NumParents() == 0 {
		return nil
	}
	squashed := &object.Commit{
		Author:    *signature,
		Committer: *signature,
		Message:   commitObj.Message,
		TreeHash:  commitObj.TreeHash,
	}
	obj := repo.Storer.NewEncodedObject()
	if err = squashed.Encode(obj); err != nil {
		return fmt.Errorf("git store: encode squashed commit: %w", err)
	}
	newHash, err := repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return fmt.Errorf("git store: store squashed commit: %w", err)
	}
	ref := plumbing.NewHashReference(headRef.Name(), newHash)
	if err = repo.Storer.SetReference(ref); err != nil {
		return fmt.Errorf("git store: update head: %w", err)
	}
	return nil
}

// Close is a no-op; each save opens and releases the repo on its own.
func (s *GitStateStore) Close() error { return nil }
