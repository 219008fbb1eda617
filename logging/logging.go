package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

const (
	maxLogSize     = 2 * 1024 * 1024 // 2MB
	defaultBackups = 3
)

// RotatingWriter appends to a file and moves it aside once it grows past
// maxSize, keeping path.1 (newest) through path.N.
type RotatingWriter struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	size    int64
	maxSize int64
	backups int
}

// Setup tees the std logger to stdout and a rotating file at logPath.
func Setup(logPath string) (*RotatingWriter, error) {
	rw, err := NewRotatingWriter(logPath, maxLogSize, defaultBackups)
	if err != nil {
		return nil, err
	}

	log.SetOutput(io.MultiWriter(os.Stdout, rw))
	return rw, nil
}

func NewRotatingWriter(logPath string, maxSize int64, backups int) (*RotatingWriter, error) {
	if backups < 1 {
		backups = 1
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	w := &RotatingWriter{
		file:    f,
		path:    logPath,
		maxSize: maxSize,
		backups: backups,
	}
	if info, err := f.Stat(); err == nil {
		w.size = info.Size()
	}

	// An oversized file left by a previous run is rotated rather than dropped.
	if w.size > maxSize {
		if err := w.rotate(); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func (w *RotatingWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err = w.file.Write(p)
	w.size += int64(n)

	if w.size > w.maxSize {
		if rerr := w.rotate(); rerr != nil {
			fmt.Fprintf(os.Stderr, "logging: rotate %s: %v\n", w.path, rerr)
		}
	}

	return n, err
}

func (w *RotatingWriter) rotate() error {
	w.file.Close()

	for i := w.backups - 1; i >= 1; i-- {
		os.Rename(fmt.Sprintf("%s.%d", w.path, i), fmt.Sprintf("%s.%d", w.path, i+1))
	}
	if err := os.Rename(w.path, w.path+".1"); err != nil && !os.IsNotExist(err) {
		return err
	}

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	w.file = f
	w.size = 0
	return nil
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
