package document

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// MaxBackups bounds the backup slots <dest>.0.bak ... <dest>.999.bak.
const MaxBackups = 1000

// BackupName returns the first unused backup slot of dest.
func BackupName(dest string) (string, error) {
	for n := 0; n < MaxBackups; n++ {
		name := fmt.Sprintf("%s.%d.bak", dest, n)
		_, err := os.Lstat(name)
		if errors.Is(err, fs.ErrNotExist) {
			return name, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", &TooManyBackupsError{File: dest, Limit: MaxBackups}
}

// writeAtomic replaces dest with data through a temporary file in the same
// directory. When backup is set, the current dest is moved there first.
func writeAtomic(dest string, data []byte, perm fs.FileMode, backup string) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if backup != "" {
		if err := os.Rename(dest, backup); err != nil {
			return fmt.Errorf("cannot back up %s: %w", dest, err)
		}
	}
	return os.Rename(tmp.Name(), dest)
}
