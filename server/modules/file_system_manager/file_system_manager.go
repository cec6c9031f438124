package file_system_manager

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// MaxNameLength is the longest client supplied file name accepted.
const MaxNameLength = 255

const partialSuffix = ".part"

var (
	ErrInvalidName = errors.New("invalid file name")
	ErrNameTooLong = errors.New("file name too long")
	ErrNotRegular  = errors.New("not a regular file")
	ErrOutsideBase = errors.New("path escapes base directory")
)

// DirExists reports whether path exists and is a directory.
func DirExists(path string) bool {
	info, err := os.Stat(filepath.Clean(path))
	if err != nil {
		return false
	}
	return info.IsDir()
}

// IsInsideBase reports whether path lies inside base once both are made absolute.
func IsInsideBase(path, base string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	absBase, err := filepath.Abs(base)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absBase, absPath)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ValidateName checks a client supplied name. Storage is flat, so any
// separator is refused along with "." and "..".
func ValidateName(name string) error {
	if len(name) > MaxNameLength {
		return ErrNameTooLong
	}
	if name == "" || name == "." || name == ".." {
		return ErrInvalidName
	}
	if strings.ContainsAny(name, "/\\\x00") || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return ErrInvalidName
	}
	return nil
}

// ResolveTarget maps a client supplied name onto a path inside base.
// Names of staging files are refused so in-flight uploads stay private.
func ResolveTarget(base, name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", fmt.Errorf("%q: %w", name, err)
	}
	if IsPartial(name) {
		return "", fmt.Errorf("%q: %w", name, ErrInvalidName)
	}

	target := filepath.Join(base, name)
	if !IsInsideBase(target, base) || filepath.Dir(target) != filepath.Clean(base) {
		return "", fmt.Errorf("%q: %w", name, ErrOutsideBase)
	}
	return target, nil
}

// CreatePartial creates the staging file an upload is written to before it
// is committed over its target.
func CreatePartial(base, id string) (*os.File, error) {
	path := filepath.Join(base, "."+id+partialSuffix)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create partial file: %w", err)
	}
	return f, nil
}

// IsPartial reports whether path names a staging file.
func IsPartial(path string) bool {
	name := filepath.Base(path)
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, partialSuffix)
}

// CommitPartial flushes and closes f and moves it over target.
func CommitPartial(f *os.File, target string) error {
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync %s: %w", f.Name(), err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", f.Name(), err)
	}
	if err := os.Rename(f.Name(), target); err != nil {
		return fmt.Errorf("rename to %s: %w", target, err)
	}
	return nil
}

// DiscardPartial closes and removes a staging file. Errors are ignored since
// the file is already known to be garbage.
func DiscardPartial(f *os.File) {
	f.Close()
	os.Remove(f.Name())
}

// OpenForRead opens a regular file and returns it with its size.
func OpenForRead(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, 0, fmt.Errorf("%s: %w", path, ErrNotRegular)
	}
	return f, info.Size(), nil
}

// isStagingFile reports whether name has the exact shape CreatePartial gives
// to staging files named by a connection id: ".<uuid>.part".
func isStagingFile(name string) bool {
	id, ok := strings.CutPrefix(name, ".")
	if !ok {
		return false
	}
	id, ok = strings.CutSuffix(id, partialSuffix)
	if !ok {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// RemoveStalePartials deletes staging files left in base by a previous run
// and returns how many were removed. Other dot files ending in .part are
// left alone.
func RemoveStalePartials(base string) (int, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() || !isStagingFile(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(base, e.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
