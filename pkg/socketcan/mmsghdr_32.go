//go:build 386 || arm || mips || mipsle || ppc

package socketcan

import "golang.org/x/sys/unix"

// mmsghdr mirrors the C struct mmsghdr on 32-bit platforms: Hdr 28 bytes,
// Len 4 bytes, no extra padding required.
type mmsghdr struct {
	Hdr unix.Msghdr
	Len uint32
}
