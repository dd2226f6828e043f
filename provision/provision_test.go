package provision

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/musichost/hoster/intake"
)

type fakeFetcher struct {
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, dest string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(filepath.Join(dest, "start"), []byte("#!/bin/sh\n"), 0o755)
}

type fakeInstaller struct {
	err   error
	calls int
}

func (f *fakeInstaller) Install(context.Context, string) error {
	f.calls++
	return f.err
}

func sampleConfig() intake.Config {
	return intake.Config{
		APIID:         "12345",
		APIHash:       "hash",
		BotToken:      "1:abc",
		MongoURI:      "mongodb://x",
		LogGroupID:    "-100",
		StringSession: "sess",
		OwnerID:       "42",
	}
}

func TestProvisionSuccess(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	p := NewProvisioner(root, &fakeFetcher{}, &fakeInstaller{})

	var messages []string
	dir, err := p.Provision(context.Background(), 42, sampleConfig(), func(_, m string) {
		messages = append(messages, m)
	})
	if err != nil {
		t.Fatalf("Provision() error = %v", err)
	}
	if dir != filepath.Join(root, "42") {
		t.Fatalf("workdir = %q, want %q", dir, filepath.Join(root, "42"))
	}
	if len(messages) != 4 {
		t.Fatalf("got %d progress messages, want 4", len(messages))
	}

	env, err := os.ReadFile(filepath.Join(dir, ".env"))
	if err != nil {
		t.Fatalf("read env file: %v", err)
	}
	want := "API_ID=12345\nAPI_HASH=hash\nBOT_TOKEN=1:abc\nMONGO_DB_URI=mongodb://x\nLOG_GROUP_ID=-100\nSTRING_SESSION=sess\nOWNER_ID=42"
	if string(env) != want {
		t.Fatalf("env file = %q, want %q", env, want)
	}
}

func TestEnvFileIncludesStartImageWhenSet(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	cfg := sampleConfig()
	cfg.StartImgURL = "https://img.example/start.png"
	if err := writeEnvFile(dir, cfg); err != nil {
		t.Fatalf("writeEnvFile error = %v", err)
	}

	env, err := os.ReadFile(filepath.Join(dir, ".env"))
	if err != nil {
		t.Fatalf("read env file: %v", err)
	}
	if !strings.HasSuffix(string(env), "START_IMG_URL=https://img.example/start.png") {
		t.Fatalf("env file missing start image line: %q", env)
	}
}

func TestProvisionFailureRemovesWorkspace(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		fetcher   *fakeFetcher
		installer *fakeInstaller
		wantStep  string
	}{
		{name: "fetch fails", fetcher: &fakeFetcher{err: errors.New("clone refused")}, installer: &fakeInstaller{}, wantStep: "fetch artifact"},
		{name: "install fails", fetcher: &fakeFetcher{}, installer: &fakeInstaller{err: errors.New("pip exploded")}, wantStep: "install dependencies"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			root := t.TempDir()
			p := NewProvisioner(root, tt.fetcher, tt.installer)

			_, err := p.Provision(context.Background(), 7, sampleConfig(), nil)
			if err == nil {
				t.Fatal("Provision() error = nil, want failure")
			}
			if !strings.Contains(err.Error(), tt.wantStep) {
				t.Fatalf("error = %v, want step %q named", err, tt.wantStep)
			}

			if _, statErr := os.Stat(p.WorkDir(7)); !os.IsNotExist(statErr) {
				t.Fatalf("workspace still present after failure: %v", statErr)
			}
		})
	}
}

func TestProvisionReplacesStaleWorkspace(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	p := NewProvisioner(root, &fakeFetcher{}, &fakeInstaller{})

	stale := filepath.Join(p.WorkDir(5), "leftover.txt")
	if err := os.MkdirAll(p.WorkDir(5), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(stale, []byte("old"), 0o644); err != nil {
		t.Fatalf("write stale file: %v", err)
	}

	if _, err := p.Provision(context.Background(), 5, sampleConfig(), nil); err != nil {
		t.Fatalf("Provision() error = %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatal("stale file survived re-provisioning")
	}
}

func TestCleanupIdempotent(t *testing.T) {
	t.Parallel()
	p := NewProvisioner(t.TempDir(), &fakeFetcher{}, &fakeInstaller{})

	if err := p.Cleanup(99); err != nil {
		t.Fatalf("Cleanup of absent workspace error = %v", err)
	}
}

func TestPipInstallerFailureCarriesStderr(t *testing.T) {
	t.Parallel()
	i := &PipInstaller{Command: []string{"sh", "-c", "echo dependency conflict >&2; exit 1"}}

	err := i.Install(context.Background(), t.TempDir())
	if err == nil {
		t.Fatal("Install() error = nil, want failure")
	}
	if !strings.Contains(err.Error(), "dependency conflict") {
		t.Fatalf("error = %v, want stderr included", err)
	}
}

func TestPipInstallerSuccess(t *testing.T) {
	t.Parallel()
	i := &PipInstaller{Command: []string{"true"}}

	if err := i.Install(context.Background(), t.TempDir()); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
}
