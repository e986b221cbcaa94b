package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"strconv"

	"github.com/daniacca/plife/internal/plife"
)

// ServerConfig holds the server configuration
type ServerConfig struct {
	Addr                string
	DefaultSimID        string
	WorldFile           string
	SnapshotDir         string
	SnapshotEveryFrames int
	LogLevel            string
}

// configResolver defines how to resolve a single configuration value
type configResolver struct {
	flagName    string
	envVarName  string
	defaultVal  string
	description string
	setter      func(*ServerConfig, string)
}

// loadServerConfig loads server configuration from CLI flags and environment variables.
// Uses a resolver pattern to make it easy to add new configuration options.
func loadServerConfig() ServerConfig {
	cfg := ServerConfig{}

	// Define all configuration resolvers
	// To add a new option, just add a new resolver here
	resolvers := []configResolver{
		{
			flagName:    "addr",
			envVarName:  "PLIFE_ADDR",
			defaultVal:  ":8080",
			description: "HTTP listen address (e.g. :8080, 0.0.0.0:8080)",
			setter:      func(c *ServerConfig, v string) { c.Addr = v },
		},
		{
			flagName:    "sim-id",
			envVarName:  "PLIFE_SIM_ID",
			defaultVal:  "default",
			description: "default simulation ID for the initial world config",
			setter:      func(c *ServerConfig, v string) { c.DefaultSimID = v },
		},
		{
			flagName:    "world-file",
			envVarName:  "PLIFE_WORLD_FILE",
			defaultVal:  "",
			description: "optional path to a JSON world config file to load at startup",
			setter:      func(c *ServerConfig, v string) { c.WorldFile = v },
		},
		{
			flagName:    "snapshot-dir",
			envVarName:  "PLIFE_SNAPSHOT_DIR",
			defaultVal:  "./data",
			description: "Directory where simulation snapshots are stored",
			setter:      func(c *ServerConfig, v string) { c.SnapshotDir = v },
		},
		{
			flagName:    "snapshot-every-frames",
			envVarName:  "PLIFE_SNAPSHOT_EVERY_FRAMES",
			defaultVal:  "1000",
			description: "How often to write snapshots (in number of frames); 0 disables periodic snapshots",
			setter: func(c *ServerConfig, v string) {
				if val, err := strconv.Atoi(v); err == nil {
					c.SnapshotEveryFrames = val
				} else {
					log.Printf("Invalid value for snapshot-every-frames: %s, using default 1000", v)
					c.SnapshotEveryFrames = 1000
				}
			},
		},
		{
			flagName:    "log-level",
			envVarName:  "PLIFE_LOG_LEVEL",
			defaultVal:  "info",
			description: "Log level: debug, info, warn, error",
			setter:      func(c *ServerConfig, v string) { c.LogLevel = v },
		},
	}

	// Register string flags first
	flagVars := make(map[string]*string)
	for _, resolver := range resolvers {
		flagVars[resolver.flagName] = flag.String(resolver.flagName, "", resolver.description)
	}

	// Parse flags once
	flag.Parse()

	// Resolve values for each resolver
	for _, resolver := range resolvers {
		var value string
		if *flagVars[resolver.flagName] != "" {
			value = *flagVars[resolver.flagName]
		} else if envValue := os.Getenv(resolver.envVarName); envValue != "" {
			value = envValue
		} else {
			value = resolver.defaultVal
		}
		resolver.setter(&cfg, value)
	}

	return cfg
}

// loadWorldConfigFromFile loads and validates a world configuration from
// a JSON file.
func loadWorldConfigFromFile(path string) (plife.WorldConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return plife.WorldConfig{}, err
	}

	var cfg plife.WorldConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return plife.WorldConfig{}, err
	}

	if err := plife.ValidateWorldConfig(cfg); err != nil {
		return plife.WorldConfig{}, err
	}

	return cfg, nil
}

// applyInitialWorld loads a world config from a file and registers it
// with the simulation manager under the given ID, replacing any
// existing simulation.
func applyInitialWorld(srv *Server, worldFile string, simID plife.SimulationID) error {
	cfg, err := loadWorldConfigFromFile(worldFile)
	if err != nil {
		return err
	}

	sim, err := srv.manager.ReplaceSimulation(simID, cfg)
	if err != nil {
		return err
	}
	srv.attachSimulation(sim)
	return nil
}
