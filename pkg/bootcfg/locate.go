package bootcfg

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/psaab/bootcfg/pkg/config"
	"github.com/psaab/bootcfg/pkg/schema"
	"github.com/psaab/bootcfg/pkg/storage"
)

const (
	// RootfsParam names a document stored on the root filesystem. The
	// value runs to the next blank.
	RootfsParam = "_RUMPRUN_ROOTFSCFG="

	// MaxConfigSize caps a document read from the root filesystem.
	MaxConfigSize = 64 * 1024
)

// rootfsCandidates are the disks tried, in order, for the root
// filesystem before falling back to the etfs device.
var rootfsCandidates = []string{"/dev/ld0a", "/dev/sd0a"}

const (
	rootfsEtfsDev  = "rootfs"
	rootfsEtfsHost = "blkfront:sda1"
)

// ErrTooLarge rejects a root filesystem document over MaxConfigSize.
var ErrTooLarge = errors.New("configuration file too large")

// Interpret locates the document in cmdline and applies it. A command
// line without a document is not an error: nothing is applied and the
// default plan is returned.
func (in *Interpreter) Interpret(ctx context.Context, cmdline string) (*Result, error) {
	doc, src, err := in.Locate(ctx, cmdline)
	if err != nil {
		return &Result{Source: src}, err
	}
	res, err := in.Apply(ctx, doc)
	if res != nil {
		res.Source = src
		if src == SourceNone {
			res.Warnings = append([]schema.Warning{noConfigWarning}, res.Warnings...)
		}
	}
	return res, err
}

var noConfigWarning = schema.Warning{Loc: "cmdline", Msg: "could not find start of json, no config"}

// Locate returns the document carried by cmdline, fetching it from the
// root filesystem when RootfsParam is present. The document starts at
// the first '{'; text after it is ignored. A nil node with SourceNone
// means there is no document.
func (in *Interpreter) Locate(ctx context.Context, cmdline string) (*config.Node, Source, error) {
	src := SourceInline
	if _, name, ok := strings.Cut(cmdline, RootfsParam); ok {
		if i := strings.IndexAny(name, " \t\n"); i >= 0 {
			name = name[:i]
		}
		data, err := in.fetchRootfs(name)
		if err != nil {
			return nil, SourceRootfs, fmt.Errorf("could not get cfg from rootfs: %w", err)
		}
		cmdline, src = string(data), SourceRootfs
	}

	start := strings.IndexByte(cmdline, '{')
	if start < 0 {
		in.log.Warn(noConfigWarning.Msg)
		return nil, SourceNone, nil
	}
	doc, _, err := config.ParsePrefix([]byte(cmdline[start:]))
	if err != nil {
		return nil, src, fmt.Errorf("parse %s config: %w", src, err)
	}
	return doc, src, nil
}

// fetchRootfs mounts the root filesystem on RootfsDir and reads name
// from it.
func (in *Interpreter) fetchRootfs(name string) ([]byte, error) {
	sys := in.opts.System
	if sys == nil {
		return nil, fmt.Errorf("no system configured")
	}
	dir := in.opts.RootfsDir
	if err := sys.Mkdir(dir, 0o777); err != nil && !errors.Is(err, fs.ErrExist) {
		return nil, fmt.Errorf("mkdir %s failed: %w", dir, err)
	}

	mounted := false
	for _, dev := range rootfsCandidates {
		if _, err := storage.MountBlock(sys, dev, dir); err == nil {
			mounted = true
			break
		}
		in.log.Debug("rootfs candidate not mountable", "device", dev)
	}
	if !mounted {
		// Last resort for hosts that only expose the disk through etfs.
		if err := storage.RegisterEtfs(sys, rootfsEtfsDev, rootfsEtfsHost, false); err != nil {
			return nil, err
		}
		if _, err := storage.MountBlock(sys, "/dev/"+rootfsEtfsDev, dir); err != nil {
			return nil, fmt.Errorf("failed to mount %s: %w", dir, err)
		}
	}

	file := path.Join(dir, strings.TrimLeft(name, "/"))
	data, err := sys.ReadFile(file, MaxConfigSize+1)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}
	if len(data) > MaxConfigSize {
		return nil, fmt.Errorf("%s: %w (max %d bytes)", file, ErrTooLarge, MaxConfigSize)
	}
	in.log.Info("configuration read from rootfs", "file", file, "bytes", len(data))
	return data, nil
}
