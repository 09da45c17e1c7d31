package ewf

import (
	"errors"

	"github.com/dnpa/goewf/errs"
)

// CLIExitCode maps an error returned by this package to spec §6's thin-CLI
// exit code convention: 0 success, 1 usage error, 2 I/O error, 3 format
// error, 4 integrity-check failure. The four cmd/ tools all share this so
// their exit-code behavior stays consistent without duplicating the
// mapping in each main package.
func CLIExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *errs.Error
	if !errors.As(err, &e) {
		return 2
	}
	switch e.Kind {
	case errs.KindInvalidArgument:
		return 1
	case errs.KindInvalidFormat, errs.KindCorrupt, errs.KindLimitExceeded:
		return 3
	case errs.KindChecksumMismatch:
		return 4
	default:
		return 2
	}
}
