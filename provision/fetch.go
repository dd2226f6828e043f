package provision

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// GitFetcher clones the artifact repository into the workspace. A token, when
// set, authenticates the clone URL and is redacted from error output.
type GitFetcher struct {
	RepoURL string
	Token   string
}

func (f *GitFetcher) Fetch(ctx context.Context, dest string) error {
	cloneURL, err := f.cloneURL()
	if err != nil {
		return err
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", cloneURL, dest)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return fmt.Errorf("git clone: %s", f.redact(msg))
	}
	return nil
}

func (f *GitFetcher) cloneURL() (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(f.RepoURL))
	if err != nil {
		return "", fmt.Errorf("parse repo url: %w", err)
	}
	if token := strings.TrimSpace(f.Token); token != "" {
		parsed.User = url.User(token)
	}
	return parsed.String(), nil
}

func (f *GitFetcher) redact(msg string) string {
	if token := strings.TrimSpace(f.Token); token != "" {
		msg = strings.ReplaceAll(msg, token, "***")
	}
	return msg
}

// ArchiveFetcher extracts a packaged tar.gz artifact. The archive must
// contain exactly one top-level directory whose contents are flattened into
// the workspace.
type ArchiveFetcher struct {
	Path string
}

func (f *ArchiveFetcher) Fetch(ctx context.Context, dest string) error {
	file, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("read archive: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	topDir := ""

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read archive entry: %w", err)
		}

		name := filepath.Clean(header.Name)
		if name == "." || name == "" {
			continue
		}
		if strings.HasPrefix(name, "..") || filepath.IsAbs(name) {
			return fmt.Errorf("archive entry escapes workspace: %q", header.Name)
		}

		first, rest, _ := strings.Cut(name, string(filepath.Separator))
		if topDir == "" {
			topDir = first
		} else if first != topDir {
			return fmt.Errorf("archive must contain exactly one top-level directory, found %q and %q", topDir, first)
		}
		if rest == "" {
			if header.Typeflag != tar.TypeDir {
				return fmt.Errorf("archive must contain exactly one top-level directory, found file %q", header.Name)
			}
			continue
		}

		target := filepath.Join(dest, rest)
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create directory %q: %w", rest, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create directory for %q: %w", rest, err)
			}
			if err := writeArchiveFile(target, tr, header.FileInfo().Mode()); err != nil {
				return fmt.Errorf("extract %q: %w", rest, err)
			}
		default:
			// Symlinks and specials are not part of deployable bot source.
		}
	}

	if topDir == "" {
		return fmt.Errorf("archive must contain exactly one top-level directory, found none")
	}
	return nil
}

func writeArchiveFile(target string, r io.Reader, mode os.FileMode) error {
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
