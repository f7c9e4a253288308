package fileio

import (
	"os"

	"go.uber.org/multierr"
)

// openFlags matches the original file layer's "RDWR | CREATE, no truncate"
// contract: reopening an existing table must not discard its contents.
const openFlags = os.O_RDWR | os.O_CREATE

func appendErr(errs error, err error) error {
	return multierr.Append(errs, err)
}
