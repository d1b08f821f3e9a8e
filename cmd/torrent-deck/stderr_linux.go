package main

import (
	"os"

	"golang.org/x/sys/unix"
)

// redirectStderr points fd 2 at f until restore is called.
func redirectStderr(f *os.File) (restore func(), err error) {
	stderr := int(os.Stderr.Fd())
	saved, err := unix.Dup(stderr)
	if err != nil {
		return func() {}, err
	}
	if err := unix.Dup3(int(f.Fd()), stderr, 0); err != nil {
		unix.Close(saved)
		return func() {}, err
	}
	return func() {
		unix.Dup3(saved, stderr, 0)
		unix.Close(saved)
	}, nil
}
