package transport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const defaultOutputDir = "./mail_output"

// File writes each message as an .eml file in a directory.
// Intended for development; nothing leaves the host.
type File struct {
	cfg       Config
	outputDir string
}

// NewFile creates a File sink writing into dir, or ./mail_output when dir
// is empty.
func NewFile(cfg Config, dir string) *File {
	if dir == "" {
		dir = defaultOutputDir
	}
	return &File{cfg: cfg, outputDir: dir}
}

func (f *File) Name() string { return "file" }

// Send writes the message to <timestamp>_<code>.eml.
func (f *File) Send(_ context.Context, msg *Message) error {
	if err := os.MkdirAll(f.outputDir, 0o750); err != nil {
		return &Error{Transport: f.Name(), Kind: KindUnknown, Err: fmt.Errorf("create output dir: %w", err)}
	}

	ts := time.Now().Format("20060102_150405")
	path := filepath.Join(f.outputDir, fmt.Sprintf("%s_%s.eml", ts, filepath.Base(msg.Code)))

	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return &Error{Transport: f.Name(), Kind: KindUnknown, Err: fmt.Errorf("open %s: %w", path, err)}
	}
	defer out.Close()

	if _, err := compose(f.cfg, msg).WriteTo(out); err != nil {
		return &Error{Transport: f.Name(), Kind: KindUnknown, Err: fmt.Errorf("write %s: %w", path, err)}
	}
	return nil
}
