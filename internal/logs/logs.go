package logs

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New składa logger: plik (append) + opcjonalnie konsola.
// Pusta ścieżka = tylko konsola.
func New(logFilePath string, withConsole bool, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	var writers []io.Writer
	if logFilePath != "" {
		_ = os.MkdirAll(filepath.Dir(logFilePath), 0o755)
		logFile, err := os.OpenFile(logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
		if err != nil {
			// bez pliku jedziemy dalej na konsoli
			log.Error().Err(err).Str("path", logFilePath).Msg("Nie można otworzyć pliku log")
			withConsole = true
		} else {
			writers = append(writers, logFile)
		}
	}
	if withConsole || len(writers) == 0 {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	var writer io.Writer = writers[0]
	if len(writers) > 1 {
		writer = zerolog.MultiLevelWriter(writers...)
	}

	logger := zerolog.New(writer).Level(ParseLevel(level)).With().
		Timestamp().
		Caller().
		Logger()

	// globalny logger (gin, biblioteki)
	log.Logger = logger

	return logger
}

// ParseLevel zamienia "debug"/"info"/... na poziom zerologa, domyślnie info.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
