//go:build linux

package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/psaab/bootcfg/pkg/dhcp"
	"github.com/psaab/bootcfg/pkg/routing"
)

// linuxFSTypes maps the interpreter's filesystem names to Linux ones.
var linuxFSTypes = map[string]string{
	FSNative:    "ufs",
	FSSecondary: "ext2",
	FSOptical:   "iso9660",
	FSKernfs:    "sysfs",
	FSTmpfs:     "tmpfs",
}

// procSys is where kernel tunables live. Tests point it elsewhere.
var procSys = "/proc/sys"

// Linux performs capability calls against the running Linux host.
type Linux struct {
	routes *routing.Manager
	dhcp   *dhcp.Client
}

// NewLinux opens the netlink handles the network capabilities need.
func NewLinux() (*Linux, error) {
	rm, err := routing.New()
	if err != nil {
		return nil, err
	}
	dc, err := dhcp.New(0)
	if err != nil {
		rm.Close()
		return nil, err
	}
	return &Linux{routes: rm, dhcp: dc}, nil
}

// Close releases the netlink handles.
func (l *Linux) Close() error {
	l.dhcp.Close()
	return l.routes.Close()
}

func (l *Linux) CreateInterface(_ context.Context, name string) error {
	return l.routes.CreateInterface(name)
}

func (l *Linux) DHCPv4(ctx context.Context, ifname string) error {
	lease, err := l.dhcp.Oneshot(ctx, ifname)
	if err != nil {
		return err
	}
	slog.Info("dhcp lease applied", "interface", ifname,
		"address", lease.Address, "gateway", lease.Gateway, "lease", lease.LeaseTime)
	return nil
}

func (l *Linux) StaticIPv4(_ context.Context, ifname, addr string, prefixLen int) error {
	p, err := parsePrefix(addr, prefixLen, false)
	if err != nil {
		return err
	}
	return l.routes.AddAddress(ifname, p)
}

func (l *Linux) AutoIPv6(_ context.Context, ifname string) error {
	for _, knob := range []string{"accept_ra", "autoconf"} {
		if err := writeSysctl(filepath.Join("net/ipv6/conf", ifname, knob), "1"); err != nil {
			return err
		}
	}
	return l.routes.SetUp(ifname)
}

func (l *Linux) StaticIPv6(_ context.Context, ifname, addr string, prefixLen int) error {
	p, err := parsePrefix(addr, prefixLen, true)
	if err != nil {
		return err
	}
	return l.routes.AddAddress(ifname, p)
}

func (l *Linux) GatewayIPv4(_ context.Context, addr string) error {
	gw, err := parseAddr(addr, false)
	if err != nil {
		return err
	}
	return l.routes.AddDefaultRoute(gw)
}

func (l *Linux) GatewayIPv6(_ context.Context, addr string) error {
	gw, err := parseAddr(addr, true)
	if err != nil {
		return err
	}
	return l.routes.AddDefaultRoute(gw)
}

func (l *Linux) Mkdir(path string, perm fs.FileMode) error {
	return os.Mkdir(path, perm)
}

func (l *Linux) WriteFile(path string, data []byte, perm fs.FileMode) error {
	return os.WriteFile(path, data, perm)
}

func (l *Linux) ReadFile(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, limit))
}

// RegisterEtfs links key to the host path. A "blkfront:" host path
// names a block device under /dev.
func (l *Linux) RegisterEtfs(key, hostPath string) error {
	if dev, ok := strings.CutPrefix(hostPath, "blkfront:"); ok {
		hostPath = "/dev/" + dev
	}
	if err := os.Symlink(hostPath, key); err != nil {
		return fmt.Errorf("register %s: %w", key, err)
	}
	return nil
}

func (l *Linux) DeviceMajor(path string) (uint32, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, &fs.PathError{Op: "stat", Path: path, Err: err}
	}
	return unix.Major(uint64(st.Rdev)), nil
}

func (l *Linux) Mknod(path string, major, minor uint32) error {
	dev := unix.Mkdev(major, minor)
	if err := unix.Mknod(path, unix.S_IFBLK|0o666, int(dev)); err != nil {
		return &fs.PathError{Op: "mknod", Path: path, Err: err}
	}
	return nil
}

// AttachVnd binds hostPath to the loop device at rawNode.
func (l *Linux) AttachVnd(rawNode, hostPath string, readOnly bool) error {
	dev, err := os.OpenFile(rawNode, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer dev.Close()

	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}
	backing, err := os.OpenFile(hostPath, flag, 0)
	if err != nil {
		return err
	}
	defer backing.Close()

	if err := unix.IoctlSetInt(int(dev.Fd()), unix.LOOP_SET_FD, int(backing.Fd())); err != nil {
		return fmt.Errorf("LOOP_SET_FD on %s: %w", rawNode, err)
	}
	info := unix.LoopInfo64{}
	if readOnly {
		info.Flags = unix.LO_FLAGS_READ_ONLY
	}
	copy(info.File_name[:], hostPath)
	if err := unix.IoctlLoopSetStatus64(int(dev.Fd()), &info); err != nil {
		return fmt.Errorf("LOOP_SET_STATUS64 on %s: %w", rawNode, err)
	}
	return nil
}

func (l *Linux) Mount(req MountRequest) error {
	fstype, ok := linuxFSTypes[req.FSType]
	if !ok {
		return fmt.Errorf("unsupported filesystem type %q", req.FSType)
	}
	var flags uintptr
	if req.ReadOnly {
		flags |= unix.MS_RDONLY
	}
	source, data := req.Source, ""
	if req.FSType == FSTmpfs {
		data = fmt.Sprintf("size=%d,mode=%#o", req.SizeMax, UnixMode(req.RootMode))
	}
	if source == "" {
		source = fstype
	}
	if err := unix.Mount(source, req.Target, fstype, flags, data); err != nil {
		return fmt.Errorf("mount %s on %s type %s: %w", source, req.Target, fstype, err)
	}
	return nil
}

func (l *Linux) SetSysctl(key, value string) error {
	return writeSysctl(strings.ReplaceAll(key, ".", "/"), value)
}

func (l *Linux) Setenv(key, value string) error {
	return os.Setenv(key, value)
}

func writeSysctl(rel, value string) error {
	path := filepath.Join(procSys, rel)
	if err := os.WriteFile(path, []byte(value), 0o644); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("unknown tunable %s: %w", rel, err)
		}
		return err
	}
	return nil
}

var _ System = (*Linux)(nil)
