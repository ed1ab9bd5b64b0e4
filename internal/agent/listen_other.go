// ABOUTME: Listener socket options fallback for platforms without unix sockopts
// ABOUTME: Leaves the socket as the runtime created it

//go:build !unix

package agent

import "syscall"

func reuseAddrControl(_, _ string, _ syscall.RawConn) error {
	return nil
}
