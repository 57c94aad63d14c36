// Package queue keeps the list of profiles waiting to be crawled.
//
// The file holds one profile URL per line. Blank lines and lines starting
// with '#' are comments; finished entries are kept as "# done: <url>" so a
// profile is never queued twice.
package queue

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

const doneMarker = "# done: "

// Queue is a file-backed profile list. It is safe for concurrent use within
// one process.
type Queue struct {
	path string
	mu   sync.Mutex
}

// Open returns a queue backed by path. The file is created on first write.
func Open(path string) *Queue {
	return &Queue{path: path}
}

// Path returns the backing file.
func (q *Queue) Path() string {
	return q.path
}

// Pending returns the entries still to be processed, in file order.
func (q *Queue) Pending() ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	lines, err := q.readLines()
	if err != nil {
		return nil, err
	}
	var pending []string
	for _, line := range lines {
		if entry, ok := pendingEntry(line); ok {
			pending = append(pending, entry)
		}
	}
	return pending, nil
}

// Append adds url unless it is already queued or done. It reports whether
// the file changed.
func (q *Queue) Append(url string) (bool, error) {
	url = strings.TrimSpace(url)
	if url == "" || strings.HasPrefix(url, "#") {
		return false, errors.Errorf("invalid queue entry %q", url)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	lines, err := q.readLines()
	if err != nil {
		return false, err
	}
	for _, line := range lines {
		if entry, ok := pendingEntry(line); ok && entry == url {
			return false, nil
		}
		if doneEntry(line) == url {
			return false, nil
		}
	}

	f, err := os.OpenFile(q.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return false, errors.Wrap(err, "failed to open queue file")
	}
	defer f.Close()

	if _, err := f.WriteString(url + "\n"); err != nil {
		return false, errors.Wrap(err, "failed to append to queue file")
	}
	return true, nil
}

// MarkDone comments out every pending line equal to url. The file is
// rewritten atomically so a crash never leaves a truncated queue.
func (q *Queue) MarkDone(url string) error {
	url = strings.TrimSpace(url)

	q.mu.Lock()
	defer q.mu.Unlock()

	lines, err := q.readLines()
	if err != nil {
		return err
	}

	changed := false
	for i, line := range lines {
		if entry, ok := pendingEntry(line); ok && entry == url {
			lines[i] = doneMarker + url
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return q.rewrite(lines)
}

func (q *Queue) readLines() ([]string, error) {
	f, err := os.Open(q.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to open queue file")
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read queue file")
	}
	return lines, nil
}

func (q *Queue) rewrite(lines []string) error {
	tmp, err := os.CreateTemp(filepath.Dir(q.path), filepath.Base(q.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temp queue file")
	}
	// no-op once the rename succeeded
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, line := range lines {
		if _, err := w.WriteString(line + "\n"); err != nil {
			tmp.Close()
			return errors.Wrap(err, "failed to write temp queue file")
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to flush temp queue file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to sync temp queue file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close temp queue file")
	}
	if err := os.Rename(tmp.Name(), q.path); err != nil {
		return errors.Wrap(err, "failed to replace queue file")
	}
	return nil
}

func pendingEntry(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", false
	}
	return line, true
}

func doneEntry(line string) string {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, doneMarker) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(line, doneMarker))
}
