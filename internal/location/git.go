package location

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GitSource reads files from a local clone. The repository argument of
// ReadFile is ignored; refs are resolved against the clone, trying
// origin/<ref> when <ref> has no local branch.
type GitSource struct {
	mu   sync.Mutex
	repo *git.Repository
}

func OpenGitSource(path string) (*GitSource, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open git repository at %s: %w", path, err)
	}
	return &GitSource{repo: repo}, nil
}

func (s *GitSource) ReadFile(_ context.Context, _, ref, path string) ([]byte, error) {
	// go-git object storage is not safe for concurrent reads.
	s.mu.Lock()
	defer s.mu.Unlock()

	commit, err := s.commit(ref)
	if err != nil {
		return nil, err
	}
	f, err := commit.File(path)
	if errors.Is(err, object.ErrFileNotFound) {
		return nil, fmt.Errorf("%s@%s: %w", path, ref, ErrFileNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s@%s: %w", path, ref, err)
	}
	contents, err := f.Contents()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s@%s: %w", path, ref, err)
	}
	return []byte(contents), nil
}

func (s *GitSource) commit(ref string) (*object.Commit, error) {
	hash, err := s.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		remote, rerr := s.repo.ResolveRevision(plumbing.Revision("origin/" + ref))
		if rerr != nil {
			return nil, fmt.Errorf("failed to resolve ref %s: %w", ref, err)
		}
		hash = remote
	}
	commit, err := s.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("failed to load commit for %s: %w", ref, err)
	}
	return commit, nil
}
