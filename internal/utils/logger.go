package utils

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/benmeehan/varal-bridge/internal/constants"
)

// NewLogger builds the process logger: JSON to stdout and, when filePath is
// set, to a size-rotated file as well. The returned closer releases the file.
func NewLogger(level, filePath string) (zerolog.Logger, io.Closer, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var out io.Writer = os.Stdout
	var closer io.Closer = io.NopCloser(nil)
	if filePath != "" {
		rotating := &lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    constants.DefaultLogMaxSizeMB,
			MaxBackups: constants.DefaultLogMaxBackups,
			MaxAge:     constants.DefaultLogMaxAgeDays,
		}
		out = zerolog.MultiLevelWriter(os.Stdout, rotating)
		closer = rotating
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), closer, nil
}
