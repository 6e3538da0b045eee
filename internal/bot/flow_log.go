package bot

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// flowLogDir is empty until InitFlowLog is called, which keeps flow logs off.
var flowLogDir string

// InitFlowLog enables the per-user flow logs in dir, or the working
// directory when dir is empty.
func InitFlowLog(dir string) error {
	if dir == "" {
		dir = "."
	}
	flowLogDir = dir
	return os.MkdirAll(flowLogDir, 0755)
}

// getLogPath returns the log file path for a user.
func getLogPath(userID int64) string {
	return filepath.Join(flowLogDir, fmt.Sprintf("flow_%d.log", userID))
}

// StartFlowLog truncates the log file for a user when a new item is scanned.
func StartFlowLog(userID int64, runID string) {
	if flowLogDir == "" {
		return
	}
	f, err := os.OpenFile(getLogPath(userID), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		log.Error().Err(err).Int64("userID", userID).Msg("failed to start flow log")
		return
	}
	defer f.Close()

	header := fmt.Sprintf("=== Scan Flow Log ===\nUser: %d\nRun: %s\nStarted: %s\n\n",
		userID, runID, time.Now().Format("2006-01-02 15:04:05"))
	f.WriteString(header)
}

// appendLog writes a log entry to the user's flow log file.
func appendLog(userID int64, prefix, msg string) {
	if flowLogDir == "" {
		return
	}
	f, err := os.OpenFile(getLogPath(userID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Error().Err(err).Int64("userID", userID).Msg("failed to write flow log")
		return
	}
	defer f.Close()

	timestamp := time.Now().Format("15:04:05")
	f.WriteString(fmt.Sprintf("[%s] %s %s\n", timestamp, prefix, msg))
}

// LogUser logs a user message/action.
func LogUser(userID int64, format string, args ...any) {
	appendLog(userID, "USER    ", fmt.Sprintf(format, args...))
}

// LogBot logs a bot response.
func LogBot(userID int64, format string, args ...any) {
	appendLog(userID, "BOT     ", fmt.Sprintf(format, args...))
}

// LogAPI logs backend calls.
func LogAPI(userID int64, format string, args ...any) {
	appendLog(userID, "API     ", fmt.Sprintf(format, args...))
}

// LogState logs wizard step changes.
func LogState(userID int64, format string, args ...any) {
	appendLog(userID, "STATE   ", fmt.Sprintf(format, args...))
}

// LogError logs errors.
func LogError(userID int64, format string, args ...any) {
	appendLog(userID, "ERROR   ", fmt.Sprintf(format, args...))
}

// LogCallback logs callback events.
func LogCallback(userID int64, format string, args ...any) {
	appendLog(userID, "CALLBACK", fmt.Sprintf(format, args...))
}
