package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// OutputPlaceholder is replaced in camera command arguments by the path the
// capture must be written to.
const OutputPlaceholder = "{output}"

// CommandCamera captures a photo by running an external program, for
// instance `fswebcam -r 1280x720 --no-banner {output}`.
type CommandCamera struct {
	Command []string
	// Dir receives captures. Defaults to the system temp dir.
	Dir string
	Ext string
}

func (c *CommandCamera) Pick(ctx context.Context) (string, error) {
	if len(c.Command) == 0 {
		return "", fmt.Errorf("no camera command configured")
	}
	dir := c.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	ext := c.Ext
	if ext == "" {
		ext = "jpg"
	}
	out := filepath.Join(dir, fmt.Sprintf("capture-%d.%s", time.Now().UnixNano(), ext))

	args := make([]string, len(c.Command))
	for i, a := range c.Command {
		args[i] = strings.ReplaceAll(a, OutputPlaceholder, out)
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	if b, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("camera command: %w: %s", err, strings.TrimSpace(string(b)))
	}

	// A capture program that exits without writing anything was dismissed.
	info, err := os.Stat(out)
	if err != nil || info.Size() == 0 {
		os.Remove(out)
		return "", ErrCanceled
	}
	return out, nil
}
