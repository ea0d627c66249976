// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

//go:build !unix

package ulog

import (
	"io"
	"os"
)

func openSource(path string) (io.ReadCloser, error) {
	return os.Open(path)
}
