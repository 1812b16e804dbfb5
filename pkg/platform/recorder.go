package platform

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strconv"
	"strings"
)

// Call is one recorded capability invocation.
type Call struct {
	Op   string
	Args []string
}

func (c Call) String() string {
	if len(c.Args) == 0 {
		return c.Op
	}
	return c.Op + " " + strings.Join(c.Args, " ")
}

// Device is a recorded block device node.
type Device struct {
	Major uint32
	Minor uint32
}

type failure struct {
	op  string
	arg string
	err error
}

// Recorder is a System that records every call instead of touching the
// host. Directories, files, device nodes and the environment are kept in
// memory so later calls observe earlier ones.
type Recorder struct {
	Calls []Call

	Dirs    map[string]bool
	Files   map[string][]byte
	Devices map[string]Device
	Env     map[string]string

	failures []failure
}

// NewRecorder returns an empty Recorder with "/" and "/dev" present.
func NewRecorder() *Recorder {
	return &Recorder{
		Dirs:    map[string]bool{"/": true, "/dev": true},
		Files:   make(map[string][]byte),
		Devices: make(map[string]Device),
		Env:     make(map[string]string),
	}
}

// FailOn makes calls to op fail with err. When arg is non-empty only
// calls carrying arg among their arguments fail.
func (r *Recorder) FailOn(op, arg string, err error) {
	r.failures = append(r.failures, failure{op: op, arg: arg, err: err})
}

// Ops returns the recorded calls rendered as strings.
func (r *Recorder) Ops() []string {
	ops := make([]string, len(r.Calls))
	for i, c := range r.Calls {
		ops[i] = c.String()
	}
	return ops
}

// OpsOf returns the recorded calls of the given operations, in order.
func (r *Recorder) OpsOf(ops ...string) []string {
	var out []string
	for _, c := range r.Calls {
		for _, op := range ops {
			if c.Op == op {
				out = append(out, c.String())
				break
			}
		}
	}
	return out
}

func (r *Recorder) record(op string, args ...string) error {
	r.Calls = append(r.Calls, Call{Op: op, Args: args})
	for _, f := range r.failures {
		if f.op != op {
			continue
		}
		if f.arg == "" {
			return f.err
		}
		for _, a := range args {
			if a == f.arg {
				return f.err
			}
		}
	}
	return nil
}

func (r *Recorder) CreateInterface(_ context.Context, name string) error {
	return r.record("ifcreate", name)
}

func (r *Recorder) DHCPv4(_ context.Context, ifname string) error {
	return r.record("dhcp4", ifname)
}

func (r *Recorder) StaticIPv4(_ context.Context, ifname, addr string, prefixLen int) error {
	return r.record("inet", ifname, addr, strconv.Itoa(prefixLen))
}

func (r *Recorder) AutoIPv6(_ context.Context, ifname string) error {
	return r.record("auto6", ifname)
}

func (r *Recorder) StaticIPv6(_ context.Context, ifname, addr string, prefixLen int) error {
	return r.record("inet6", ifname, addr, strconv.Itoa(prefixLen))
}

func (r *Recorder) GatewayIPv4(_ context.Context, addr string) error {
	return r.record("gw", addr)
}

func (r *Recorder) GatewayIPv6(_ context.Context, addr string) error {
	return r.record("gw6", addr)
}

func (r *Recorder) Mkdir(p string, perm fs.FileMode) error {
	if err := r.record("mkdir", p); err != nil {
		return err
	}
	p = path.Clean(p)
	if r.Dirs[p] {
		return &fs.PathError{Op: "mkdir", Path: p, Err: fs.ErrExist}
	}
	if parent := path.Dir(p); !r.Dirs[parent] {
		return &fs.PathError{Op: "mkdir", Path: p, Err: fs.ErrNotExist}
	}
	r.Dirs[p] = true
	return nil
}

func (r *Recorder) WriteFile(p string, data []byte, perm fs.FileMode) error {
	if err := r.record("write", p); err != nil {
		return err
	}
	r.Files[path.Clean(p)] = append([]byte(nil), data...)
	return nil
}

func (r *Recorder) ReadFile(p string, limit int64) ([]byte, error) {
	if err := r.record("read", p); err != nil {
		return nil, err
	}
	data, ok := r.Files[path.Clean(p)]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: p, Err: fs.ErrNotExist}
	}
	if int64(len(data)) > limit {
		data = data[:limit]
	}
	return append([]byte(nil), data...), nil
}

func (r *Recorder) RegisterEtfs(key, hostPath string) error {
	return r.record("etfs", key, hostPath)
}

func (r *Recorder) DeviceMajor(p string) (uint32, error) {
	if err := r.record("stat", p); err != nil {
		return 0, err
	}
	d, ok := r.Devices[p]
	if !ok {
		return 0, &fs.PathError{Op: "stat", Path: p, Err: fs.ErrNotExist}
	}
	return d.Major, nil
}

func (r *Recorder) Mknod(p string, major, minor uint32) error {
	if err := r.record("mknod", p, fmt.Sprintf("%d,%d", major, minor)); err != nil {
		return err
	}
	if _, ok := r.Devices[p]; ok {
		return &fs.PathError{Op: "mknod", Path: p, Err: fs.ErrExist}
	}
	r.Devices[p] = Device{Major: major, Minor: minor}
	return nil
}

func (r *Recorder) AttachVnd(rawNode, hostPath string, readOnly bool) error {
	mode := "rw"
	if readOnly {
		mode = "ro"
	}
	if err := r.record("vndattach", rawNode, hostPath, mode); err != nil {
		return err
	}
	if _, ok := r.Devices[rawNode]; !ok {
		return &fs.PathError{Op: "open", Path: rawNode, Err: fs.ErrNotExist}
	}
	return nil
}

func (r *Recorder) Mount(req MountRequest) error {
	args := []string{req.FSType, req.Source, req.Target}
	if req.Source == "" {
		args[1] = "-"
	}
	if req.ReadOnly {
		args = append(args, "ro")
	}
	if req.FSType == FSTmpfs {
		args = append(args, "size="+strconv.FormatInt(req.SizeMax, 10),
			fmt.Sprintf("mode=%#o", UnixMode(req.RootMode)))
	}
	return r.record("mount", args...)
}

func (r *Recorder) SetSysctl(key, value string) error {
	return r.record("sysctl", key, value)
}

func (r *Recorder) Setenv(key, value string) error {
	if err := r.record("setenv", key, value); err != nil {
		return err
	}
	r.Env[key] = value
	return nil
}

var _ System = (*Recorder)(nil)
