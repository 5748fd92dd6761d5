//go:build !unix

package transport

import "syscall"

func enableBroadcast(_, _ string, _ syscall.RawConn) error {
	return nil
}
