// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DefaultDirPerm is used for parent directories created by AtomicWriteFile.
const DefaultDirPerm os.FileMode = 0700

// AtomicWriteFile writes data to path through a synced temp file in the
// same directory and a rename. Readers see the old file or the new one,
// never a partial write. Missing parent directories are created with
// DefaultDirPerm.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	_, err := AtomicCopy(path, bytes.NewReader(data), perm, DefaultDirPerm)
	return err
}

// AtomicCopy streams r into path with the same guarantees as
// AtomicWriteFile and returns the number of bytes written. dirPerm applies
// only to directories it has to create.
func AtomicCopy(path string, r io.Reader, perm, dirPerm os.FileMode) (n int64, err error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	// The temp file must live in the target directory for the rename to be atomic.
	f, err := os.CreateTemp(dir, "."+filepath.Base(abs)+".tmp-")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if n, err = io.Copy(f, r); err != nil {
		return n, fmt.Errorf("failed to write %s: %w", abs, err)
	}
	if err = f.Sync(); err != nil {
		return n, fmt.Errorf("failed to sync %s: %w", abs, err)
	}
	// Windows refuses to rename an open file.
	if err = f.Close(); err != nil {
		return n, fmt.Errorf("failed to close temp file: %w", err)
	}
	if err = os.Chmod(tmp, perm); err != nil {
		return n, fmt.Errorf("failed to set permissions on %s: %w", abs, err)
	}
	if err = os.Rename(tmp, abs); err != nil {
		return n, fmt.Errorf("failed to replace %s: %w", abs, err)
	}
	return n, nil
}
