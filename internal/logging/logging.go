// Package logging sets up the process logger: console or file text output
// plus optional OpenTelemetry and Graylog sinks.
package logging

import (
	"fmt"
	"path/filepath"
	"time"
)

// LogFilePath builds <logsDir>/<name>.<yyyymmdd_hhmmss>.log.
func LogFilePath(logsDir, name string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", name, sessionStart.Format("20060102_150405")),
	)
}
