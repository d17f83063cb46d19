package logging

import (
	"fmt"
	"path/filepath"
	"time"
)

// Component names used under the "component" attribute.
const (
	ComponentTexture  = "texture"
	ComponentDetector = "detector"
	ComponentOverlay  = "overlay"
	ComponentScene    = "scene"
	ComponentScanner  = "scanner"
	ComponentCamera   = "camera"
	ComponentCampaign = "campaign"
	ComponentStorage  = "storage"
	ComponentServer   = "server"
	ComponentVideo    = "video"
	ComponentEvents   = "events"
)

// LogFilePath builds a log file path using OS-appropriate path separators.
func LogFilePath(logsDir, appName string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", appName, sessionStart.Format("20060102_150405")),
	)
}
