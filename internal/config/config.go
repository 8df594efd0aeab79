// Package config loads the bridge configuration: broker coordinates, the
// CAN session parameters, and the rule set mapping CAN identifiers to MQTT
// topics in both directions.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Bridge directions.
const (
	DirectionBoth    = 0 // forward in both directions
	DirectionCanToMQ = 1 // CAN frames out to MQTT only
	DirectionMQToCan = 2 // MQTT messages out to CAN only
)

// Rule maps one CAN identifier to one MQTT topic. CanID is a hex string
// such as "0x123" or "18FFAAA0".
type Rule struct {
	Topic string `json:"topic"`
	CanID string `json:"canid"`
}

// ID parses the rule's CAN identifier.
func (r Rule) ID() (uint32, error) {
	s := strings.TrimPrefix(strings.TrimSpace(r.CanID), "0x")
	id, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid canid %q: %w", r.CanID, err)
	}
	return uint32(id), nil
}

// Config is the whole bridge configuration file.
type Config struct {
	Broker    string `json:"broker"`
	ClientID  string `json:"clientId"`
	Bus       string `json:"bus"`     // backend token, e.g. "busmust" or "pcan"
	Channel   int    `json:"channel"` // device channel index
	Bitrate   int    `json:"bitrate"` // bits per second
	Direction int    `json:"direction"`

	Can2mqtt []Rule `json:"can2mqtt"` // rules publishing received frames
	Mqtt2can []Rule `json:"mqtt2can"` // rules forwarding subscribed topics
}

// Load reads and validates the JSON configuration at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the fields the bridge cannot run without and fills
// defaults for the ones it can.
func (c *Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("broker is required")
	}
	if c.ClientID == "" {
		c.ClientID = "can2mqtt"
	}
	if c.Bus == "" {
		return fmt.Errorf("bus is required")
	}
	if c.Bitrate <= 0 {
		return fmt.Errorf("bitrate must be positive, got %d", c.Bitrate)
	}
	if c.Direction < DirectionBoth || c.Direction > DirectionMQToCan {
		return fmt.Errorf("direction must be 0, 1 or 2, got %d", c.Direction)
	}
	for i, r := range c.Can2mqtt {
		if r.Topic == "" {
			return fmt.Errorf("can2mqtt[%d]: topic is required", i)
		}
		if _, err := r.ID(); err != nil {
			return fmt.Errorf("can2mqtt[%d]: %w", i, err)
		}
	}
	for i, r := range c.Mqtt2can {
		if r.Topic == "" {
			return fmt.Errorf("mqtt2can[%d]: topic is required", i)
		}
		if _, err := r.ID(); err != nil {
			return fmt.Errorf("mqtt2can[%d]: %w", i, err)
		}
	}
	return nil
}
