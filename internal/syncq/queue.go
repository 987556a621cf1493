// Package syncq is the CLI's offline command queue. Taps and purchases made
// while the API is unreachable are appended here and replayed by roxy sync,
// carrying their original idempotency keys so a replay never double-applies.
package syncq

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Kind names a replayable game action.
type Kind string

const (
	KindTap Kind = "tap"
	KindBuy Kind = "buy"
)

type Command struct {
	Kind           Kind      `json:"kind"`
	Taps           int64     `json:"taps,omitempty"`
	UpgradeID      string    `json:"upgrade_id,omitempty"`
	IdempotencyKey string    `json:"idempotency_key"`
	QueuedAt       time.Time `json:"queued_at"`
}

// Describe renders a command for queue listings and warnings.
func (c Command) Describe() string {
	switch c.Kind {
	case KindTap:
		return fmt.Sprintf("tap x%d", c.Taps)
	case KindBuy:
		return "buy " + c.UpgradeID
	default:
		return string(c.Kind)
	}
}

func queuePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".roxy")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "queue.json"), nil
}

func Load() ([]Command, error) {
	path, err := queuePath()
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Command{}, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return []Command{}, nil
	}
	var out []Command
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func Save(commands []Command) error {
	path, err := queuePath()
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(commands, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

func Push(cmd Command) error {
	commands, err := Load()
	if err != nil {
		return err
	}
	commands = append(commands, cmd)
	return Save(commands)
}

func Clear() error {
	return Save([]Command{})
}
