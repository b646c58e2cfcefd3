// Package userlist reads the watched-user id file and watches it for edits.
package userlist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Loader reads watched-user ids from a plain text file: one id per line,
// '#' starts a comment, blank lines are ignored.
type Loader struct {
	logger *logrus.Logger
}

// NewLoader creates a Loader.
func NewLoader(logger *logrus.Logger) *Loader {
	return &Loader{logger: logger}
}

// Load returns the unique positive ids in path in file order. A missing or
// unreadable file yields an empty list.
func (l *Loader) Load(path string) []int64 {
	l.logger.Infof("Loading user IDs from %s", path)

	f, err := os.Open(path)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			l.logger.Warnf("User IDs file not found at %s; create it with one user ID per line to start monitoring", path)
		case errors.Is(err, fs.ErrPermission):
			l.logger.Errorf("Permission denied reading user IDs file at %s", path)
		default:
			l.logger.Errorf("Failed to open user IDs file at %s: %v", path, err)
		}
		return []int64{}
	}
	defer f.Close()

	ids, err := l.Parse(f)
	if err != nil {
		l.logger.Errorf("Failed to read user IDs file at %s: %v", path, err)
		return []int64{}
	}

	l.logger.Infof("Loaded %d unique user IDs from %s", len(ids), path)
	if len(ids) == 0 {
		l.logger.Warnf("No valid user IDs found in %s; monitoring will continue but no notifications will be sent", path)
	}
	return ids
}

// Parse reads ids from r, skipping comments, blank lines, duplicates and
// malformed entries with a warning for each.
func (l *Loader) Parse(r io.Reader) ([]int64, error) {
	ids := make([]int64, 0)
	seen := make(map[int64]struct{})
	invalid := 0

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		id, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			l.logger.Warnf("Invalid user ID %q on line %d, skipping", line, lineNo)
			invalid++
			continue
		}
		if id <= 0 {
			l.logger.Warnf("User ID must be positive on line %d: %d, skipping", lineNo, id)
			invalid++
			continue
		}
		if _, dup := seen[id]; dup {
			l.logger.Warnf("Duplicate user ID %d on line %d, skipping", id, lineNo)
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan user IDs: %w", err)
	}

	if invalid > 0 {
		l.logger.Warnf("Found %d errors while parsing user IDs", invalid)
	}
	return ids, nil
}
