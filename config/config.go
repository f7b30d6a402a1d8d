package config

import (
	"encoding/json"
	"log"
	"os"
)

// Config is the process-wide runtime configuration: land capacity limits,
// join handshake timing, and the wire encoding new connections default to.
type Config struct {
	MaxLands          int    `json:"maxLands"`
	MaxPlayersPerLand int    `json:"maxPlayersPerLand"`
	JoinTimeoutMS     int    `json:"joinTimeoutMS"`
	DefaultEncoding   string `json:"defaultEncoding"`
	EnableLegacyJoin  bool   `json:"enableLegacyJoin"`
	ListenAddr        string `json:"listenAddr"`
}

// DefaultConfig returns the runtime's out-of-the-box settings.
func DefaultConfig() Config {
	return Config{
		MaxLands:          1000,
		MaxPlayersPerLand: 50,
		JoinTimeoutMS:     5000,
		DefaultEncoding:   "json",
		EnableLegacyJoin:  false,
		ListenAddr:        ":3000",
	}
}

// Load reads a JSON config file at path. If the file is missing or invalid,
// it logs a warning and returns DefaultConfig(). Partial JSON is merged with defaults.
func Load(path string) Config {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("warning: could not read config file %q: %v — using defaults", path, err)
		return cfg
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		log.Printf("warning: invalid JSON in config file %q: %v — using defaults", path, err)
		return DefaultConfig()
	}

	return cfg
}
