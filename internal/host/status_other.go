//go:build !linux

package host

import (
	"fmt"
	"runtime"
)

func collect(string) (Status, error) {
	return Status{}, fmt.Errorf("host status is not supported on %s", runtime.GOOS)
}
