// Package provision materializes an isolated, ready-to-run workspace for a
// tenant: fresh directory, fetched artifact, rendered environment file, and
// installed dependencies. Any failure removes the partial workspace so no
// half-built state survives on disk.
package provision

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/musichost/hoster/intake"
)

const envFileName = ".env"

// Fetcher acquires the deployable artifact into a workspace directory.
type Fetcher interface {
	Fetch(ctx context.Context, dest string) error
}

// Installer installs the artifact's declared dependencies inside a workspace.
type Installer interface {
	Install(ctx context.Context, workDir string) error
}

// Provisioner builds per-tenant workspaces under a common root.
type Provisioner struct {
	root      string
	fetcher   Fetcher
	installer Installer
	log       *slog.Logger
}

func NewProvisioner(root string, fetcher Fetcher, installer Installer) *Provisioner {
	return &Provisioner{
		root:      root,
		fetcher:   fetcher,
		installer: installer,
		log:       slog.Default().With("component", "provision"),
	}
}

// WorkDir returns the deterministic workspace path for a user.
func (p *Provisioner) WorkDir(userID int64) string {
	return filepath.Join(p.root, strconv.FormatInt(userID, 10))
}

// Provision runs the full pipeline for one tenant. report, when non-nil, is
// called before each step with its name and a user-facing progress message. On any
// failure the workspace is removed entirely and a descriptive error returned.
func (p *Provisioner) Provision(ctx context.Context, userID int64, cfg intake.Config, report func(step, message string)) (string, error) {
	dir := p.WorkDir(userID)

	runStep := func(step, message string, fn func() error) error {
		if report != nil {
			report(step, message)
		}
		p.log.Info("provision step started", "user", userID, "step", step)
		if err := fn(); err != nil {
			p.log.Error("provision step failed", "user", userID, "step", step, "err", err)
			if rmErr := os.RemoveAll(dir); rmErr != nil {
				p.log.Error("workspace cleanup failed", "user", userID, "err", rmErr)
			}
			return fmt.Errorf("%s: %w", step, err)
		}
		p.log.Info("provision step completed", "user", userID, "step", step)
		return nil
	}

	if err := runStep("prepare workspace", "Starting setup process...", func() error {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("remove stale workspace: %w", err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create workspace: %w", err)
		}
		return nil
	}); err != nil {
		return "", err
	}

	if err := runStep("fetch artifact", "Cloning repository from GitHub...", func() error {
		return p.fetcher.Fetch(ctx, dir)
	}); err != nil {
		return "", err
	}

	if err := runStep("write environment", "Creating environment configuration...", func() error {
		return writeEnvFile(dir, cfg)
	}); err != nil {
		return "", err
	}

	if err := runStep("install dependencies", "Installing requirements... This might take a few minutes.", func() error {
		return p.installer.Install(ctx, dir)
	}); err != nil {
		return "", err
	}

	return dir, nil
}

// Cleanup removes a tenant's workspace directory recursively. Removing an
// absent workspace is not an error.
func (p *Provisioner) Cleanup(userID int64) error {
	if err := os.RemoveAll(p.WorkDir(userID)); err != nil {
		return fmt.Errorf("remove workspace: %w", err)
	}
	return nil
}

// writeEnvFile renders the tenant configuration as KEY=VALUE lines. The
// start image key is omitted entirely when the value is empty.
func writeEnvFile(dir string, cfg intake.Config) error {
	lines := []string{
		"API_ID=" + cfg.APIID,
		"API_HASH=" + cfg.APIHash,
		"BOT_TOKEN=" + cfg.BotToken,
		"MONGO_DB_URI=" + cfg.MongoURI,
		"LOG_GROUP_ID=" + cfg.LogGroupID,
		"STRING_SESSION=" + cfg.StringSession,
		"OWNER_ID=" + cfg.OwnerID,
	}
	if cfg.StartImgURL != "" {
		lines = append(lines, "START_IMG_URL="+cfg.StartImgURL)
	}

	path := filepath.Join(dir, envFileName)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o600); err != nil {
		return fmt.Errorf("write env file: %w", err)
	}
	return nil
}
