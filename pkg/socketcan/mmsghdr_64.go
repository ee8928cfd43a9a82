//go:build amd64 || arm64 || mips64 || mips64le || ppc64 || ppc64le || riscv64 || s390x

package socketcan

import (
	"golang.org/x/sys/unix"
)

// mmsghdr mirrors the C struct mmsghdr, which golang.org/x/sys/unix does not
// expose: Hdr is 56 bytes, Len 4 bytes, plus 4 bytes padding to a 64-bit
// aligned 64-byte total.
type mmsghdr struct {
	Hdr unix.Msghdr
	Len uint32
	pad [4]byte
}
