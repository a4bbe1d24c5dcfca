//go:build !linux

package main

import "os"

var stderrIsTTY = func() bool {
	st, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return st.Mode()&os.ModeCharDevice != 0
}
