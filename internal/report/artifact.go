// Package report owns the shared output artifacts of a batch and the
// aggregation of per-host results.
package report

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Artifact file names inside the output directory.
const (
	SuccessFileName = "success.tsv"
	FailureFileName = "failed.txt"
)

type recordKind int

const (
	recordSuccess recordKind = iota
	recordFailure
)

type record struct {
	kind    recordKind
	host    string
	account string
	secret  string
}

// Writer owns the two batch artifacts. Both files are truncated when
// the writer opens and are append-only until Close. All appends flow
// through a single goroutine that owns the file handles, so lines
// from concurrent tasks never interleave at the byte level.
type Writer struct {
	successPath string
	failurePath string

	records chan record
	wg      sync.WaitGroup
	logger  *slog.Logger

	mu  sync.Mutex
	err error
}

// OpenWriter truncates both artifacts in dir and starts the owner
// goroutine. The directory must already exist and be writable; that
// is checked here, before any task runs.
func OpenWriter(dir string, logger *slog.Logger) (*Writer, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("output directory unusable: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("output path %s is not a directory", dir)
	}

	w := &Writer{
		successPath: filepath.Join(dir, SuccessFileName),
		failurePath: filepath.Join(dir, FailureFileName),
		records:     make(chan record, 64),
		logger:      logger.With("component", "artifact_writer"),
	}

	successFile, err := os.Create(w.successPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create success artifact: %w", err)
	}
	failureFile, err := os.Create(w.failurePath)
	if err != nil {
		successFile.Close()
		return nil, fmt.Errorf("failed to create failure artifact: %w", err)
	}

	w.wg.Add(1)
	go w.run(successFile, failureFile)

	return w, nil
}

// run is the single owner of both file handles. It drains the record
// channel until Close.
func (w *Writer) run(successFile, failureFile *os.File) {
	defer w.wg.Done()

	successBuf := bufio.NewWriter(successFile)
	failureBuf := bufio.NewWriter(failureFile)

	for rec := range w.records {
		var err error
		switch rec.kind {
		case recordSuccess:
			_, err = fmt.Fprintf(successBuf, "%s\t%s\t%s\n", rec.host, rec.account, rec.secret)
			if err == nil {
				err = successBuf.Flush()
			}
		case recordFailure:
			_, err = fmt.Fprintf(failureBuf, "%s\n", rec.host)
			if err == nil {
				err = failureBuf.Flush()
			}
		}
		if err != nil {
			w.setErr(fmt.Errorf("artifact append failed: %w", err))
		}
	}

	if err := successBuf.Flush(); err != nil {
		w.setErr(err)
	}
	if err := failureBuf.Flush(); err != nil {
		w.setErr(err)
	}
	if err := successFile.Close(); err != nil {
		w.setErr(err)
	}
	if err := failureFile.Close(); err != nil {
		w.setErr(err)
	}
}

func (w *Writer) setErr(err error) {
	w.mu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.mu.Unlock()
	w.logger.Error("artifact write error", "error", err)
}

// Success appends one host<TAB>account<TAB>secret record to the
// success artifact.
func (w *Writer) Success(host, account, secret string) {
	w.records <- record{kind: recordSuccess, host: host, account: account, secret: secret}
}

// Failure appends one hostname to the failure artifact.
func (w *Writer) Failure(host string) {
	w.records <- record{kind: recordFailure, host: host}
}

// Close stops accepting records, drains the queue, and closes both
// files. The artifacts are immutable after Close returns.
func (w *Writer) Close() error {
	close(w.records)
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// SuccessPath returns the success artifact path.
func (w *Writer) SuccessPath() string { return w.successPath }

// FailurePath returns the failure artifact path.
func (w *Writer) FailurePath() string { return w.failurePath }

// CountLines returns the number of non-empty lines physically present
// in the file.
func CountLines(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) != "" {
			count++
		}
	}
	return count, nil
}
