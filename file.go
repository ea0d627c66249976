// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package ulog

import (
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/multierr"
)

// OpenFile opens the named ULog file. Where the platform allows it, the file
// is mapped into memory rather than read. The returned parser must be closed.
func OpenFile(path string, opts ...Option) (*Parser, error) {
	src, err := openSource(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "ulog: open %s", path)
	}

	p, err := Open(src, opts...)
	if err != nil {
		return nil, multierr.Append(pkgerrors.Wrapf(err, "ulog: open %s", path), src.Close())
	}
	p.closer = src
	return p, nil
}
