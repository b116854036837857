package filesystem

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// ConflictPolicy decides what Move does when the destination exists.
type ConflictPolicy string

// Conflict policies.
const (
	ConflictFail      ConflictPolicy = "fail"
	ConflictOverwrite ConflictPolicy = "overwrite"
	ConflictRename    ConflictPolicy = "rename"
	ConflictSkip      ConflictPolicy = "skip"
)

// ErrDestinationExists is returned by Move under ConflictFail.
var ErrDestinationExists = errors.New("destination already exists")

// ParseConflictPolicy parses a policy name. The empty string is ConflictFail.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch p := ConflictPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return ConflictFail, nil
	case ConflictFail, ConflictOverwrite, ConflictRename, ConflictSkip:
		return p, nil
	default:
		return "", fmt.Errorf("unknown conflict policy %q", s)
	}
}

// Move moves src to dst, creating dst's directory. It returns the final
// destination, which differs from dst under ConflictRename, or "" when the
// file was skipped. Moves across filesystems fall back to copy and remove.
func Move(src, dst string, policy ConflictPolicy) (string, error) {
	if _, err := os.Lstat(src); err != nil {
		return "", err
	}

	if _, err := os.Lstat(dst); err == nil {
		switch policy {
		case ConflictOverwrite:
		case ConflictRename:
			dst = UniquePath(dst)
		case ConflictSkip:
			log.Debug("Skipping move of %s: %s exists", src, dst)
			return "", nil
		default:
			return "", fmt.Errorf("move %s: %w: %s", src, ErrDestinationExists, dst)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create destination directory: %w", err)
	}

	err := os.Rename(src, dst)
	if errors.Is(err, syscall.EXDEV) {
		err = copyAndRemove(src, dst)
	}
	if err != nil {
		return "", fmt.Errorf("move %s to %s: %w", src, dst, err)
	}
	return dst, nil
}

// UniquePath returns path, or the first of base_1.ext, base_2.ext, ...
// that does not exist.
func UniquePath(path string) string {
	if _, err := os.Lstat(path); errors.Is(err, os.ErrNotExist) {
		return path
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		if _, err := os.Lstat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate
		}
	}
}

func copyAndRemove(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(dst)
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return err
	}
	if err = os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return err
	}
	return os.Remove(src)
}
