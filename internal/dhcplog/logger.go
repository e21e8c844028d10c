// Package dhcplog defines the injected logging interface used by the
// client and server instead of a process-wide logger, following the
// pattern of dhcpd/nclient4.Logger.
package dhcplog

import "github.com/AdguardTeam/golibs/log"

// Logger is implemented by anything the client or server can log through.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
}

// golibsLogger backs Logger with github.com/AdguardTeam/golibs/log, the
// package-level logger the teacher uses throughout dhcpd and internal/dhcpd.
type golibsLogger struct{}

// Default is the golibs/log-backed Logger used unless a caller injects
// their own.
var Default Logger = golibsLogger{}

func (golibsLogger) Debugf(format string, args ...any) { log.Debug(format, args...) }
func (golibsLogger) Infof(format string, args ...any)  { log.Info(format, args...) }
func (golibsLogger) Warnf(format string, args ...any)  { log.Error(format, args...) }

// Empty discards everything, mirroring nclient4.EmptyLogger. Useful as a
// zero-value-safe default in tests that don't care about log output.
type Empty struct{}

func (Empty) Debugf(string, ...any) {}
func (Empty) Infof(string, ...any)  {}
func (Empty) Warnf(string, ...any)  {}
