package configsource

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/rockestra/rockestra/internal/rockestra/ports"
	"github.com/rockestra/rockestra/pkg/rockestraerr"
)

// GitProvider clones (or opens an existing clone of) a git-backed patch
// repository and re-pulls before every GetSnapshot call, reading patchPath
// from the checked-out worktree. This is Rockestra's GitOps-style
// hot-reloadable configuration story.
type GitProvider struct {
	repoURL   string
	localPath string
	patchPath string
	auth      transport.AuthMethod

	configVersion atomic.Uint64
}

// NewGitProvider clones repoURL into localPath if it does not already
// contain a checkout, otherwise opens the existing one.
func NewGitProvider(repoURL, localPath, patchPath string, auth transport.AuthMethod) (*GitProvider, error) {
	if _, err := os.Stat(filepath.Join(localPath, ".git")); err != nil {
		if _, err := git.PlainClone(localPath, false, &git.CloneOptions{URL: repoURL, Auth: auth}); err != nil {
			return nil, rockestraerr.Wrap(
				rockestraerr.TierConfiguration,
				rockestraerr.CodeConfigSnapshotUnavailable,
				"failed to clone patch repository",
				err,
			)
		}
	}
	return &GitProvider{repoURL: repoURL, localPath: localPath, patchPath: patchPath, auth: auth}, nil
}

func (p *GitProvider) GetSnapshot(ctx context.Context) (ports.Snapshot, error) {
	repo, err := git.PlainOpen(p.localPath)
	if err != nil {
		return ports.Snapshot{}, rockestraerr.Wrap(
			rockestraerr.TierConfiguration,
			rockestraerr.CodeConfigSnapshotUnavailable,
			"failed to open patch repository checkout",
			err,
		)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return ports.Snapshot{}, rockestraerr.Wrap(
			rockestraerr.TierConfiguration,
			rockestraerr.CodeConfigSnapshotUnavailable,
			"failed to resolve patch repository worktree",
			err,
		)
	}

	if err := worktree.Pull(&git.PullOptions{Auth: p.auth}); err != nil && err != git.NoErrAlreadyUpToDate {
		return ports.Snapshot{}, rockestraerr.Wrap(
			rockestraerr.TierConfiguration,
			rockestraerr.CodeConfigSnapshotUnavailable,
			"failed to pull latest patch commit",
			err,
		)
	}

	data, err := os.ReadFile(filepath.Join(p.localPath, p.patchPath))
	if err != nil {
		return ports.Snapshot{}, rockestraerr.Wrap(
			rockestraerr.TierConfiguration,
			rockestraerr.CodeConfigSnapshotUnavailable,
			"failed to read patch.json from checkout",
			err,
		)
	}

	head, err := repo.Head()
	source := "git"
	if err == nil {
		source = "git:" + head.Hash().String()[:12]
	}

	return ports.Snapshot{
		ConfigVersion: p.configVersion.Add(1),
		PatchJSON:     string(data),
		Source:        source,
		TimestampUTC:  time.Now().UTC(),
	}, nil
}

var _ ports.ConfigSnapshotProvider = (*GitProvider)(nil)
