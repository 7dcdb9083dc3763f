// Package log provides package-level loggers backed by a file in the
// config directory. Warning and error output is additionally forwarded to
// sentry (as breadcrumbs and events respectively) when telemetry is enabled.
package log

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/kastheco/haven/internal/sentry"
)

var (
	InfoLog    *log.Logger
	WarningLog *log.Logger
	ErrorLog   *log.Logger
)

var logFile *os.File

const logFileName = "haven.log"

// Initialize sets up the loggers. Logs go to a file in the config dir so
// they never corrupt the TUI's stdout. If the file can't be opened, logging
// falls back to io.Discard rather than failing startup.
func Initialize(telemetryEnabled bool) {
	var w io.Writer = io.Discard

	if dir, err := defaultLogDir(); err == nil {
		if mkErr := os.MkdirAll(dir, 0755); mkErr == nil {
			f, err := os.OpenFile(filepath.Join(dir, logFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err == nil {
				logFile = f
				w = f
			}
		}
	}

	infoW, warnW, errW := w, w, w
	if telemetryEnabled {
		warnW = sentry.NewWriter(w, sentry.LevelWarning)
		errW = sentry.NewWriter(w, sentry.LevelError)
	}

	flags := log.Ldate | log.Ltime | log.Lshortfile
	InfoLog = log.New(infoW, "INFO: ", flags)
	WarningLog = log.New(warnW, "WARNING: ", flags)
	ErrorLog = log.New(errW, "ERROR: ", flags)
}

// Close flushes and closes the log file. Prints the log location to stderr
// if anything was written, so users can find it after exit.
func Close() {
	if logFile == nil {
		return
	}
	name := logFile.Name()
	if st, err := logFile.Stat(); err == nil && st.Size() > 0 {
		fmt.Fprintf(os.Stderr, "haven log: %s\n", name)
	}
	_ = logFile.Close()
	logFile = nil
}

func defaultLogDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "haven"), nil
}
