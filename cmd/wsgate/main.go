// File: cmd/wsgate/main.go
// Package main
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// wsgate binds the handlers named in a YAML file (or a single echo handler)
// and runs until interrupted.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	docopt "github.com/docopt/docopt-go"
	mozlog "github.com/mozilla-services/go-mozlogrus"
	log "github.com/sirupsen/logrus"

	"github.com/momentics/wsgate/server"
)

const version = "wsgate 1.0.0"

const usage = `wsgate

Serves WebSocket sessions and one-shot HTTP requests on the same ports.

Usage:
  wsgate [options]
  wsgate -h | --help
  wsgate --version

Options:
  -c --config=<file>  YAML file with server settings and binds.
  -l --listen=<addr>  Echo binding used without a config file, host#port or port [default: 8080].
  --json              Log JSON lines.
  --mozlog            Log in mozlog format.
  --syslog=<addr>     Also send logs to syslog over UDP.
  --debug             Log frame-level traffic.
  -h --help           Show this screen.
  --version           Show version.`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], version)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := log.New()
	if debug, _ := opts.Bool("--debug"); debug {
		logger.SetLevel(log.DebugLevel)
	}
	if jsonLog, _ := opts.Bool("--json"); jsonLog {
		logger.Formatter = &log.JSONFormatter{}
	}
	if moz, _ := opts.Bool("--mozlog"); moz {
		logger.Formatter = &mozlog.MozLogFormatter{LoggerName: "wsgate"}
	}
	if addr, _ := opts.String("--syslog"); addr != "" {
		if err := addSyslog(logger, addr); err != nil {
			logger.WithError(err).Fatal("syslog hook")
		}
	}

	cfg := &FileConfig{Server: server.DefaultConfig()}
	if path, _ := opts.String("--config"); path != "" {
		if cfg, err = LoadConfig(path); err != nil {
			logger.WithError(err).Fatal("load config")
		}
	} else {
		listen, _ := opts.String("--listen")
		cfg.Binds = []BindConfig{{Addr: listen, Handler: "echo"}}
	}
	cfg.Server.Logger = logger

	reg := server.NewRegistry(cfg.Server)
	apps := newApps(reg)
	for _, b := range cfg.Binds {
		h, err := apps.handler(b)
		if err != nil {
			logger.WithError(err).Fatal("bad bind")
		}
		if err := reg.Bind(b.options(h)); err != nil {
			logger.WithError(err).WithField("addr", b.Addr).Fatal("bind failed")
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	s := <-sig
	logger.WithField("signal", s.String()).Info("shutting down")
	if err := reg.Close(); err != nil {
		logger.WithError(err).Warn("close")
	}
}
