// File: cmd/wsgate/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/momentics/wsgate/server"
)

// FileConfig is the on-disk configuration.
//
//	server:
//	  pingInterval: 30s
//	  maxConnections: 1000
//	binds:
//	  - addr: "localhost#8080"
//	    path: /echo
//	    handler: echo
//	  - addr: "8443"
//	    key: server.pem
//	    handler: files
//	    root: ./public
type FileConfig struct {
	Server *server.Config `yaml:"server"`
	Binds  []BindConfig   `yaml:"binds"`
}

// BindConfig is one rule. Handler names one of the built-in applications.
type BindConfig struct {
	Addr    string `yaml:"addr"`
	Origin  string `yaml:"origin"`
	Host    string `yaml:"host"`
	Path    string `yaml:"path"`
	Cert    string `yaml:"cert"`
	Key     string `yaml:"key"`
	Handler string `yaml:"handler"`
	Root    string `yaml:"root"` // files handler
	Reply   string `yaml:"reply"`
}

// LoadConfig reads path; settings it leaves out keep their defaults.
func LoadConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	return parseConfig(data)
}

func parseConfig(data []byte) (*FileConfig, error) {
	cfg := &FileConfig{Server: server.DefaultConfig()}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	if cfg.Server == nil {
		cfg.Server = server.DefaultConfig()
	}
	if len(cfg.Binds) == 0 {
		return nil, errors.New("no binds configured")
	}
	return cfg, nil
}

func (b BindConfig) options(h server.Handler) server.BindOptions {
	return server.BindOptions{
		Addr:     b.Addr,
		Origin:   b.Origin,
		Host:     b.Host,
		Path:     b.Path,
		CertFile: b.Cert,
		KeyFile:  b.Key,
		Handler:  h,
	}
}
