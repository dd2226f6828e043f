package provision

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// PipInstaller installs the artifact's Python dependencies scoped to the
// workspace. A non-zero exit is a hard failure carrying the installer's
// error output.
type PipInstaller struct {
	// Command overrides the default "pip install -r requirements.txt".
	Command []string
}

func (i *PipInstaller) Install(ctx context.Context, workDir string) error {
	command := i.Command
	if len(command) == 0 {
		command = []string{"pip", "install", "-r", "requirements.txt"}
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Dir = workDir
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return fmt.Errorf("install requirements: %s", msg)
	}
	return nil
}
