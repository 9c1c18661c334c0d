// Package logging configures the process-wide apex/log logger and provides
// the request logging middleware.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apex/log"
	jsonhandler "github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
)

// Options selects the log level, output format and optional log file.
type Options struct {
	Level  string // debug, info, warn, error, fatal
	Format string // text or json
	File   string // when set, logs go to a daily rotated file
	Debug  bool   // forces debug level
}

// Setup installs the apex/log handler described by opts. The returned
// closer releases the log file, if any.
func Setup(opts Options) (io.Closer, error) {
	level, err := log.ParseLevel(strings.ToLower(opts.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}
	if opts.Debug {
		level = log.DebugLevel
	}

	var (
		w      io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	if opts.File != "" {
		rl, err := newRotateLogs(opts.File)
		if err != nil {
			return nil, err
		}
		w, closer = rl, rl
	}

	handler, err := newHandler(opts.Format, w)
	if err != nil {
		closer.Close()
		return nil, err
	}

	log.SetHandler(handler)
	log.SetLevel(level)
	return closer, nil
}

func newHandler(format string, w io.Writer) (log.Handler, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return text.New(w), nil
	case "json":
		return jsonhandler.New(w), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// newRotateLogs rotates daily, keeps a week of files and maintains a
// symlink at the configured path pointing to the current file.
func newRotateLogs(path string) (*rotatelogs.RotateLogs, error) {
	path = filepath.Clean(path)
	rl, err := rotatelogs.New(
		path+"-%Y%m%d",
		rotatelogs.WithLinkName(path),
		rotatelogs.WithRotationTime(24*time.Hour),
		rotatelogs.WithMaxAge(7*24*time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return rl, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
