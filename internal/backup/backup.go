// Package backup bundles the calendar data files into one text file and
// restores them from it.
//
// A backup is a sequence of sections:
//
//	=== BEGIN FILE: data/events.csv ===
//	...file lines...
//	=== END FILE: data/events.csv ===
//	<blank line>
package backup

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"pcal/internal/fsutil"
	appLog "pcal/internal/log"
)

const (
	beginMarker = "=== BEGIN FILE:"
	endMarker   = "=== END FILE:"
)

// ErrNoBackup is returned by Restore when the backup file does not exist.
var ErrNoBackup = errors.New("backup file not found")

// Create writes every file in files into backupPath, replacing any previous
// backup. A missing source file becomes an empty section.
func Create(backupPath string, files ...string) error {
	var buf bytes.Buffer
	for _, p := range files {
		if err := writeSection(&buf, p); err != nil {
			return err
		}
	}
	if err := fsutil.WriteFileAtomic(backupPath, buf.Bytes(), ".pcal-backup-*.tmp"); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	appLog.Info("backup created", "path", backupPath, "files", len(files))
	return nil
}

func writeSection(buf *bytes.Buffer, path string) error {
	fmt.Fprintf(buf, "%s %s ===\n", beginMarker, path)

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		appLog.Warn("backup source missing, writing empty section", "path", path)
	case err != nil:
		return fmt.Errorf("read %s: %w", path, err)
	default:
		sc := bufio.NewScanner(bytes.NewReader(data))
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			buf.WriteString(sc.Text())
			buf.WriteByte('\n')
		}
		if err := sc.Err(); err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
	}

	fmt.Fprintf(buf, "%s %s ===\n\n", endMarker, path)
	return nil
}

// Options controls Restore.
type Options struct {
	// Overwrite replaces the target files. When false, restored lines are
	// appended and a repeated CSV header is skipped.
	Overwrite bool
}

// Mode describes how a single file was restored.
type Mode string

const (
	ModeOverwrite Mode = "overwrite"
	ModeAppend    Mode = "append"
	ModeNew       Mode = "new"
)

// RestoredFile is one section written back to disk.
type RestoredFile struct {
	Path  string
	Mode  Mode
	Lines int
}

// Result lists the files Restore wrote, in backup order.
type Result struct {
	Files []RestoredFile
}

type section struct {
	path  string
	lines []string
}

// Restore recreates every file recorded in backupPath.
func Restore(backupPath string, opts Options) (Result, error) {
	var result Result

	data, err := os.ReadFile(backupPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return result, fmt.Errorf("%s: %w", backupPath, ErrNoBackup)
		}
		return result, err
	}

	sections, err := parse(data)
	if err != nil {
		return result, err
	}

	for _, sec := range sections {
		rf, err := restoreSection(sec, opts)
		if err != nil {
			return result, err
		}
		appLog.Info("restored file", "path", rf.Path, "mode", string(rf.Mode), "lines", rf.Lines)
		result.Files = append(result.Files, rf)
	}
	return result, nil
}

func parse(data []byte) ([]section, error) {
	var (
		out []section
		cur *section
	)

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())

		switch {
		case strings.HasPrefix(line, beginMarker):
			if cur != nil {
				out = append(out, *cur)
			}
			cur = &section{path: markerPath(line)}
			continue
		case strings.HasPrefix(line, endMarker):
			if cur != nil {
				out = append(out, *cur)
				cur = nil
			}
			continue
		}

		if cur != nil && line != "" {
			cur.lines = append(cur.lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read backup: %w", err)
	}
	if cur != nil {
		out = append(out, *cur)
	}
	return out, nil
}

// markerPath extracts the path from a BEGIN/END marker line.
func markerPath(line string) string {
	i := strings.IndexByte(line, ':')
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line[i+1:]), "==="))
}

func isCSVHeader(line string) bool {
	return strings.HasPrefix(line, "eventId,") || strings.HasPrefix(line, "fieldName,")
}

func restoreSection(sec section, opts Options) (RestoredFile, error) {
	rf := RestoredFile{Path: sec.path}
	if sec.path == "" {
		return rf, errors.New("backup section without a file path")
	}

	existing, err := os.ReadFile(sec.path)
	exists := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return rf, err
	}

	var buf bytes.Buffer
	lines := sec.lines
	switch {
	case opts.Overwrite:
		rf.Mode = ModeOverwrite
	case exists:
		rf.Mode = ModeAppend
		buf.Write(existing)
		if len(existing) > 0 && existing[len(existing)-1] != '\n' {
			buf.WriteByte('\n')
		}
		if len(existing) > 0 && len(lines) > 0 && isCSVHeader(lines[0]) {
			lines = lines[1:]
		}
	default:
		rf.Mode = ModeNew
	}

	for _, l := range lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	rf.Lines = len(lines)

	if err := fsutil.WriteFileAtomic(sec.path, buf.Bytes(), ".pcal-restore-*.tmp"); err != nil {
		return rf, fmt.Errorf("restore %s: %w", sec.path, err)
	}
	return rf, nil
}
