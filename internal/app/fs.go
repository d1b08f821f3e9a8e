package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/litescript/ls-torrent-deck/internal/engine"
)

// FS is the filesystem access the add flow needs: validating the chosen
// directory and creating the job subfolder right before the engine add.
type FS interface {
	IsDir(path string) bool
	Exists(path string) bool
	// Mkdir creates a single directory. An existing path yields
	// engine.ErrFolderExists.
	Mkdir(path string) error
	// Remove deletes an empty directory.
	Remove(path string) error
}

// OSFS is FS backed by the real filesystem.
type OSFS struct{}

func (OSFS) IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (OSFS) Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func (OSFS) Mkdir(path string) error {
	err := os.Mkdir(path, 0755)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%s: %w", path, engine.ErrFolderExists)
	}
	return err
}

func (OSFS) Remove(path string) error {
	return os.Remove(path)
}
