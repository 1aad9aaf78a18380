// Package changes derives change sets from version control.
//
// The git provider reports every source unit modified since a named
// baseline revision: committed changes between the baseline and HEAD plus
// anything staged or dirty in the worktree. The scheduler core only sees
// the resulting set; it never touches git itself.
package changes

import (
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/blitz-test/blitz/packages/core/model"
)

// GitProvider computes change sets from a local git repository.
type GitProvider struct {
	path string
}

// NewGitProvider creates a provider rooted at the repository path.
func NewGitProvider(path string) *GitProvider {
	return &GitProvider{path: path}
}

// Changes returns the set of paths modified since the baseline revision.
// An empty baseline reports only uncommitted worktree changes.
func (p *GitProvider) Changes(baseline string) (model.ChangeSet, error) {
	repo, err := git.PlainOpen(p.path)
	if err != nil {
		return nil, fmt.Errorf("opening repository %s: %w", p.path, err)
	}

	cs := make(model.ChangeSet)

	if baseline != "" {
		baseTree, err := treeAt(repo, baseline)
		if err != nil {
			return nil, err
		}
		headTree, err := treeAt(repo, "HEAD")
		if err != nil {
			return nil, err
		}
		diff, err := object.DiffTree(baseTree, headTree)
		if err != nil {
			return nil, fmt.Errorf("diffing %s..HEAD: %w", baseline, err)
		}
		for _, change := range diff {
			if change.From.Name != "" {
				cs[change.From.Name] = struct{}{}
			}
			if change.To.Name != "" {
				cs[change.To.Name] = struct{}{}
			}
		}
	}

	// Staged and dirty worktree files count as changed too.
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("opening worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("reading worktree status: %w", err)
	}
	for file, st := range status {
		if st.Worktree != git.Unmodified || st.Staging != git.Unmodified {
			cs[file] = struct{}{}
		}
	}

	return cs, nil
}

func treeAt(repo *git.Repository, rev string) (*object.Tree, error) {
	hash, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("resolving revision %q: %w", rev, err)
	}
	commit, err := repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("loading commit %s: %w", hash, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("loading tree for %s: %w", hash, err)
	}
	return tree, nil
}

// Static is a fixed change set, useful for watch mode where the watcher
// already knows which file changed.
type Static struct {
	Set model.ChangeSet
}

// Changes returns the fixed set regardless of baseline.
func (s *Static) Changes(string) (model.ChangeSet, error) {
	return s.Set, nil
}
