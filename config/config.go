// Package config loads the on-disk configuration for the cmd/opchand
// composition root. The core library itself is constructed purely from
// in-process arguments (client.Config); this package exists only so the
// example binary has something to parse at startup, the way the teacher's
// cmd/api and cmd/gateway binaries each load their own yaml config on top
// of the shared x/util.Config.
package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v2"
)

// Config is the opchand binary's on-disk configuration.
type Config struct {
	Node       Node       `yaml:"node"`
	Storage    Storage    `yaml:"storage"`
	Transport  Transport  `yaml:"transport"`
	Delegation Delegation `yaml:"delegation"`
}

// Node carries the identifiers the binary logs at startup, mirroring the
// teacher's Concurrent.FQDN/CCAddr pair.
type Node struct {
	Name          string `yaml:"name"`
	TraceEndpoint string `yaml:"traceEndpoint"`
}

// Storage points at the on-disk bbolt file backing both the replica's
// durable store and the delegation store.
type Storage struct {
	Path string `yaml:"path"`
}

// Transport selects and configures the reference transport. Mode "memory"
// needs no further fields; mode "redis" uses Addr and Channel, with an
// empty Channel defaulting to "opchan".
type Transport struct {
	Mode    string `yaml:"mode"`
	Addr    string `yaml:"redisAddr"`
	Channel string `yaml:"redisChannel"`
}

// Delegation holds a default session length in days. It is parsed from the
// file, but cmd/opchand does not read it or pass it to any delegation call.
type Delegation struct {
	DefaultDurationDays int `yaml:"defaultDurationDays"`
}

// Load reads and parses a yaml config file, matching the teacher's
// util.Config.Load / cmd/api's Config.Load shape.
func (c *Config) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		log.Print("failed to open configuration file: ", err)
		return err
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(c); err != nil {
		log.Print("failed to parse configuration file: ", err)
		return err
	}

	return nil
}
