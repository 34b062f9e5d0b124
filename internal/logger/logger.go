package logger

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	logMu      sync.Mutex
	console    zerolog.Logger
	fileLogger zerolog.Logger
	logFile    *os.File
	fileDir    string
	currentDay string
)

func init() {
	console = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006/01/02 15:04:05"}).
		With().Timestamp().Logger()
}

// Init enables file logging under dir. If caller passes /var/log/rundird,
// logs are written to /var/log/rundird/logs; if the path already ends in
// "logs" it is kept as-is. Empty dir leaves console-only logging.
func Init(dir string) error {
	if dir == "" {
		return nil
	}
	resolved := dir
	if path.Base(filepath.ToSlash(dir)) != "logs" {
		resolved = filepath.Join(dir, "logs")
	}
	if err := os.MkdirAll(resolved, 0755); err != nil {
		return err
	}

	logMu.Lock()
	defer logMu.Unlock()
	fileDir = resolved
	if err := rotateLocked(time.Now()); err != nil {
		fileDir = ""
		return err
	}
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	fileDir = ""
}

func Info(format string, args ...interface{}) {
	log(zerolog.InfoLevel, format, args...)
}

func Warn(format string, args ...interface{}) {
	log(zerolog.WarnLevel, format, args...)
}

func Error(format string, args ...interface{}) {
	log(zerolog.ErrorLevel, format, args...)
}

func log(lvl zerolog.Level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	console.WithLevel(lvl).Msg(msg)

	logMu.Lock()
	defer logMu.Unlock()
	if fileDir == "" {
		return
	}
	// JSON file output, with daily rollover.
	if err := rotateLocked(time.Now()); err == nil && logFile != nil {
		fileLogger.WithLevel(lvl).Msg(msg)
	}
}

func rotateLocked(t time.Time) error {
	day := t.Format("2006-01-02")
	if logFile != nil && currentDay == day {
		return nil
	}
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	filePath := filepath.Join(fileDir, day+".log")
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	logFile = f
	currentDay = day
	fileLogger = zerolog.New(f).With().Timestamp().Logger()
	return nil
}
