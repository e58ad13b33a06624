// Package hg shells out to Mercurial for the narrow set of operations the
// benchmark needs: listing revisions, updating the working tree, reverting,
// and purging untracked files. Every call is blocking and a non-zero exit is
// returned as an error carrying the captured output.
package hg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"buckperf/internal/logging"
	"buckperf/internal/models"
)

// execCombined runs a command and returns its combined output. Package-level
// so tests can substitute a fake.
var execCombined = func(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// Client invokes the hg binary. Methods take the repository root explicitly
// because the benchmark renames the root mid-run.
type Client struct {
	binary string
}

// NewClient creates a Client using the given hg binary, or "hg" from PATH
// when empty.
func NewClient(binary string) *Client {
	if binary == "" {
		binary = "hg"
	}
	return &Client{binary: binary}
}

// Log returns up to limit revisions that touched path, newest first.
// Callers that want oldest-first iteration order reverse the slice.
func (c *Client) Log(ctx context.Context, root string, limit int, path string) ([]models.Revision, error) {
	out, err := c.run(ctx, root, "log", "--limit", strconv.Itoa(limit), "-T", "{node}\\n", path)
	if err != nil {
		return nil, err
	}
	return parseRevisions(out), nil
}

// Update moves the working tree to revision, discarding local changes.
func (c *Client) Update(ctx context.Context, root string, revision models.Revision) error {
	logger := logging.Component("hg")
	logger.Info().Str("revision", string(revision)).Msg("checking out revision")
	_, err := c.run(ctx, root, "update", "--clean", string(revision))
	return err
}

// Revert resets tracked files to their state at revision.
func (c *Client) Revert(ctx context.Context, root string, revision models.Revision) error {
	_, err := c.run(ctx, root, "revert", "-a", "-r", string(revision))
	return err
}

// Purge deletes all untracked files from the working tree.
func (c *Client) Purge(ctx context.Context, root string) error {
	logger := logging.Component("hg")
	logger.Info().Msg("purging untracked files")
	_, err := c.run(ctx, root, "purge", "--all")
	return err
}

func (c *Client) run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	out, err := execCombined(ctx, dir, c.binary, args...)
	if err != nil {
		return out, fmt.Errorf("%s %s failed: %w\noutput:\n%s",
			c.binary, strings.Join(args, " "), err, bytes.TrimSpace(out))
	}
	return out, nil
}

func parseRevisions(out []byte) []models.Revision {
	var revisions []models.Revision
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			revisions = append(revisions, models.Revision(line))
		}
	}
	return revisions
}
