// Package platform defines the privileged capabilities the interpreter
// drives (network, block devices, mounts, tunables, environment) and
// provides a Linux implementation plus a recording fake.
package platform

import (
	"context"
	"io/fs"
)

// Filesystem types understood by Mount. Block-backed sources are probed
// in the order FSNative, FSSecondary, FSOptical.
const (
	FSNative    = "ffs"
	FSSecondary = "ext2fs"
	FSOptical   = "cd9660"
	FSKernfs    = "kernfs"
	FSTmpfs     = "tmpfs"
)

// MountRequest describes one mount call.
type MountRequest struct {
	FSType   string
	Source   string // device path; empty for pseudo filesystems
	Target   string
	ReadOnly bool

	// tmpfs only
	SizeMax  int64
	RootMode fs.FileMode
}

// Network holds the interface and route capabilities.
type Network interface {
	CreateInterface(ctx context.Context, name string) error
	DHCPv4(ctx context.Context, ifname string) error
	StaticIPv4(ctx context.Context, ifname, addr string, prefixLen int) error
	AutoIPv6(ctx context.Context, ifname string) error
	StaticIPv6(ctx context.Context, ifname, addr string, prefixLen int) error
	GatewayIPv4(ctx context.Context, addr string) error
	GatewayIPv6(ctx context.Context, addr string) error
}

// Files holds the filesystem capabilities used for directories, the
// resolver file and reading a configuration from the root filesystem.
type Files interface {
	Mkdir(path string, perm fs.FileMode) error
	WriteFile(path string, data []byte, perm fs.FileMode) error
	// ReadFile returns at most limit bytes of path.
	ReadFile(path string, limit int64) ([]byte, error)
}

// Storage holds the block device and mount capabilities.
type Storage interface {
	// RegisterEtfs exposes hostPath as the block device key (/dev/<name>).
	RegisterEtfs(key, hostPath string) error
	// DeviceMajor returns the major number of an existing device node.
	DeviceMajor(path string) (uint32, error)
	// Mknod creates a block device node.
	Mknod(path string, major, minor uint32) error
	// AttachVnd binds hostPath to the raw vnd node. A missing node is
	// reported with an error matching fs.ErrNotExist.
	AttachVnd(rawNode, hostPath string, readOnly bool) error
	Mount(req MountRequest) error
}

// System is the full capability surface the interpreter runs against.
type System interface {
	Network
	Files
	Storage
	SetSysctl(key, value string) error
	Setenv(key, value string) error
}

// UnixMode converts m to the numeric permission bits used by mount
// options and mknod, including setuid, setgid and sticky.
func UnixMode(m fs.FileMode) uint32 {
	mode := uint32(m.Perm())
	if m&fs.ModeSetuid != 0 {
		mode |= 0o4000
	}
	if m&fs.ModeSetgid != 0 {
		mode |= 0o2000
	}
	if m&fs.ModeSticky != 0 {
		mode |= 0o1000
	}
	return mode
}
