package dispatch

import (
	"errors"
	"syscall"

	"github.com/rhuss/wandel/pkg/storage"
)

func isNoSpace(err error) bool {
	return errors.Is(err, syscall.ENOSPC) || errors.Is(err, storage.ErrInsufficientStorage)
}
