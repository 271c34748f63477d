package logx

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
)

var logger = newLogger()

// newLogger writes to a rotated file under LOG_DIR when set, otherwise to
// stderr. Rotation limits are tunable via LOGFILE_MAX_SIZE_MB and
// LOGFILE_MAX_AGE_DAYS.
func newLogger() *log.Logger {
	flags := log.Ldate | log.Ltime | log.Lmicroseconds

	dir := os.Getenv("LOG_DIR")
	if dir == "" {
		return log.New(os.Stderr, "", flags)
	}

	filename := os.Getenv("LOGFILE")
	if filename == "" {
		filename = "ledger.log"
	}

	return log.New(&lumberjack.Logger{
		Filename: filepath.Join(dir, filename),
		MaxSize:  envInt("LOGFILE_MAX_SIZE_MB", 100), // megabytes
		MaxAge:   envInt("LOGFILE_MAX_AGE_DAYS", 28), // days
	}, "", flags)
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func Info(category string, content ...interface{}) {
	message := fmt.Sprint(content...)
	coloredCategory := fmt.Sprintf("%s[INFO][%s]%s", ColorGreen, category, ColorReset)
	logger.Printf("%s: %s", coloredCategory, message)
}

func Warn(category string, content ...interface{}) {
	message := fmt.Sprint(content...)
	coloredCategory := fmt.Sprintf("%s[WARN][%s]%s", ColorYellow, category, ColorReset)
	logger.Printf("%s: %s", coloredCategory, message)
}

func Error(category string, content ...interface{}) {
	message := fmt.Sprint(content...)
	coloredCategory := fmt.Sprintf("%s[ERROR][%s]%s", ColorRed, category, ColorReset)
	logger.Printf("%s: %s", coloredCategory, message)
}

func Debug(category string, content ...interface{}) {
	message := fmt.Sprint(content...)
	coloredCategory := fmt.Sprintf("%s[DEBUG][%s]%s", ColorBlue, category, ColorReset)
	logger.Printf("%s: %s", coloredCategory, message)
}
