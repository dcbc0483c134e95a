//go:build !windows && !plan9

package main

import (
	"log/syslog"

	log "github.com/sirupsen/logrus"
	lSyslog "github.com/sirupsen/logrus/hooks/syslog"
)

func addSyslog(logger *log.Logger, addr string) error {
	hook, err := lSyslog.NewSyslogHook("udp", addr, syslog.LOG_DEBUG, "wsgate")
	if err != nil {
		return err
	}
	logger.Hooks.Add(hook)
	return nil
}
