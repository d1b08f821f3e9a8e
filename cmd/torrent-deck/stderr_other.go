//go:build !linux

package main

import "os"

func redirectStderr(*os.File) (func(), error) {
	return func() {}, nil
}
