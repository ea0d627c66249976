// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

//go:build unix

package ulog

import (
	"bytes"
	"io"
	"math"
	"os"

	"golang.org/x/sys/unix"
)

// mappedFile reads a file through a read-only shared mapping
type mappedFile struct {
	*bytes.Reader
	data []byte
}

func (m *mappedFile) Close() error {
	if m.data == nil {
		return nil
	}
	data := m.data
	m.data = nil
	m.Reader = bytes.NewReader(nil)
	return unix.Munmap(data)
}

func openSource(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	size := st.Size()
	if size <= 0 || size > math.MaxInt {
		return f, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		// Pipes, special files and some filesystems can't be mapped
		return f, nil
	}

	// The mapping outlives the descriptor
	_ = f.Close()
	return &mappedFile{Reader: bytes.NewReader(data), data: data}, nil
}
