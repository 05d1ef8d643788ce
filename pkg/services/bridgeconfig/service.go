// Package bridgeconfig manages the bridging service's JSON config file on
// behalf of operators: read, validated replace with automatic backup, and
// restore of the most recent backup.
package bridgeconfig

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bridgefleet/bridgefleet/pkg/util"
	"github.com/grafana/dskit/services"
	"github.com/natefinch/atomic"
)

// deviceIDField is the one field the fleet requires of a bridge config.
// Anything else in the document is the bridge's own business.
const deviceIDField = "deviceId"

// Nanosecond precision keeps the lexical order of backup names equal to
// their creation order even for back-to-back writes.
const backupTimeFormat = "20060102T150405.000000000"

type ConfigService struct {
	logger    *slog.Logger
	path      string
	backupDir string

	services.Service
}

func NewConfigService(logger *slog.Logger, path, backupDir string) *ConfigService {
	c := &ConfigService{
		logger:    logger,
		path:      path,
		backupDir: backupDir,
	}
	c.Service = services.NewBasicService(c.starting, c.running, nil)
	return c
}

func (c *ConfigService) starting(_ context.Context) error {
	return os.MkdirAll(c.backupDir, 0o755)
}

func (c *ConfigService) running(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// Read returns the current config document.
func (c *ConfigService) Read() ([]byte, error) {
	return os.ReadFile(c.path)
}

// Validate checks that the document is well-formed JSON carrying a
// non-empty device identifier. Deeper schema validation belongs to the
// bridge service itself.
func Validate(body []byte) error {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("config is not valid JSON: %w", err)
	}
	id, ok := doc[deviceIDField].(string)
	if !ok || id == "" {
		return fmt.Errorf("config is missing a non-empty %q field", deviceIDField)
	}
	return nil
}

// Replace validates body, backs up the current file, and writes the new
// document atomically. Replacing with identical content is a no-op.
func (c *ConfigService) Replace(body []byte) error {
	if err := Validate(body); err != nil {
		return err
	}

	current, err := os.ReadFile(c.path)
	switch {
	case err == nil:
		if util.HashConfig(current) == util.HashConfig(body) {
			c.logger.Info("config unchanged, skipping write")
			return nil
		}
		if err := c.backup(current); err != nil {
			return fmt.Errorf("backup before replace: %w", err)
		}
	case os.IsNotExist(err):
		// First write, nothing to back up.
	default:
		return err
	}

	c.logger.With("file", c.path).Info("writing config file")
	return atomic.WriteFile(c.path, bytes.NewReader(body))
}

// Restore writes the most recent backup back over the config file. The
// displaced document is itself backed up first, so restore is reversible.
func (c *ConfigService) Restore() error {
	backups, err := c.Backups()
	if err != nil {
		return err
	}
	if len(backups) == 0 {
		return fmt.Errorf("no backups to restore")
	}
	latest := backups[len(backups)-1]

	body, err := os.ReadFile(filepath.Join(c.backupDir, latest))
	if err != nil {
		return err
	}
	if current, err := os.ReadFile(c.path); err == nil {
		if err := c.backup(current); err != nil {
			return fmt.Errorf("backup before restore: %w", err)
		}
	}
	c.logger.With("backup", latest).Info("restoring config backup")
	return atomic.WriteFile(c.path, bytes.NewReader(body))
}

// Backups lists backup filenames, oldest first.
func (c *ConfigService) Backups() ([]string, error) {
	entries, err := os.ReadDir(c.backupDir)
	if err != nil {
		return nil, err
	}
	names := []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (c *ConfigService) backup(current []byte) error {
	name := fmt.Sprintf("%s-%s.json",
		time.Now().UTC().Format(backupTimeFormat),
		util.HashConfig(current)[:8],
	)
	return atomic.WriteFile(filepath.Join(c.backupDir, name), bytes.NewReader(current))
}
