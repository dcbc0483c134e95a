//go:build windows || plan9

package main

import (
	"errors"

	log "github.com/sirupsen/logrus"
)

func addSyslog(*log.Logger, string) error {
	return errors.New("syslog is not supported on this platform")
}
