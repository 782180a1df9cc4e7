package auth

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// DefaultRefreshInterval is how long a command token is reused.
const DefaultRefreshInterval = 5 * time.Minute

// Command runs a token refresh command through sh -c and reuses its output
// until the refresh interval elapses. The last non-empty output line is the
// credential; a leading "Authorization:" is stripped.
type Command struct {
	command  string
	interval time.Duration
	dir      string

	mu        sync.Mutex
	token     string
	fetchedAt time.Time
	now       func() time.Time
}

func NewCommand(command string, interval time.Duration, dir string) *Command {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Command{
		command:  command,
		interval: interval,
		dir:      dir,
		now:      time.Now,
	}
}

func (c *Command) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Sub(c.fetchedAt) < c.interval {
		return c.token, nil
	}

	execCmd := exec.CommandContext(ctx, "sh", "-c", c.command)
	execCmd.Dir = c.dir
	execCmd.Env = os.Environ()

	output, err := execCmd.Output()
	if err != nil {
		return "", fmt.Errorf("token refresh command failed: %s: %w", c.command, err)
	}

	token := lastLine(output)
	if token == "" {
		return "", fmt.Errorf("token refresh command printed no token: %s", c.command)
	}

	c.token = token
	c.fetchedAt = c.now()
	return token, nil
}

func lastLine(output []byte) string {
	var last string
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			last = line
		}
	}
	if name, value, ok := strings.Cut(last, ":"); ok && strings.EqualFold(strings.TrimSpace(name), "Authorization") {
		return strings.TrimSpace(value)
	}
	return last
}
