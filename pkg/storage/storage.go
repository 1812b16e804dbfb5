// Package storage applies the "blk" and "mount" objects: block devices
// backed by host files, and the filesystems mounted on top of them.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/psaab/bootcfg/pkg/config"
	"github.com/psaab/bootcfg/pkg/platform"
	"github.com/psaab/bootcfg/pkg/schema"
)

// ErrProbeExhausted means no filesystem type in the probe order mounted.
var ErrProbeExhausted = errors.New("no filesystem type matched")

// blockProbe is tried in order for block-backed mounts.
var blockProbe = []struct {
	fstype   string
	readOnly bool
}{
	{platform.FSNative, false},
	{platform.FSSecondary, false},
	{platform.FSOptical, true},
}

// System is the subset of platform capabilities storage uses.
type System interface {
	platform.Storage
	Mkdir(path string, perm fs.FileMode) error
}

// Translator applies block device and mount objects.
type Translator struct {
	sys System
}

// New returns a Translator.
func New(sys System) *Translator {
	return &Translator{sys: sys}
}

// HandleBlk is the "blk" handler: an object keyed by device name.
func (t *Translator) HandleBlk(_ context.Context, m config.Member, loc string) error {
	loc = schema.Join(loc, m.Name)
	if err := schema.Expect(m.Value, config.KindObject, loc); err != nil {
		return err
	}
	for _, dev := range m.Value.Members {
		if err := t.configureBlk(dev, loc); err != nil {
			return err
		}
	}
	return nil
}

// strictStrings collects string members of obj; any other key is fatal.
func strictStrings(obj *config.Node, loc string, names ...string) (map[string]string, error) {
	if err := schema.Expect(obj, config.KindObject, loc); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(names))
	for _, m := range obj.Members {
		known := false
		for _, n := range names {
			known = known || m.Name == n
		}
		if !known {
			return nil, schema.UnknownKey(loc, m.Name)
		}
		s, err := schema.ExpectString(m.Value, schema.Join(loc, m.Name))
		if err != nil {
			return nil, err
		}
		out[m.Name] = s
	}
	return out, nil
}

func (t *Translator) configureBlk(m config.Member, loc string) error {
	dev := m.Name
	loc = schema.Join(loc, dev)
	fields, err := strictStrings(m.Value, loc, "type", "path")
	if err != nil {
		return err
	}
	typ, hasType := fields["type"]
	path, hasPath := fields["path"]
	if !hasType || !hasPath {
		return fmt.Errorf("%s: missing \"path\"/\"type\"", loc)
	}

	switch typ {
	case "etfs":
		return RegisterEtfs(t.sys, dev, path, true)
	case "vnd":
		if err := ConfigureVnd(t.sys, dev, path); err != nil {
			return fmt.Errorf("%s: %w", loc, err)
		}
		return nil
	default:
		return fmt.Errorf("%s: unsupported type %q", loc, typ)
	}
}

// RegisterEtfs exposes hostPath as /dev/<dev>. When hard is false a
// failure is logged and ignored.
func RegisterEtfs(sys platform.Storage, dev, hostPath string, hard bool) error {
	key := "/dev/" + dev
	if err := sys.RegisterEtfs(key, hostPath); err != nil {
		if hard {
			return fmt.Errorf("etfs register for %q failed: %w", hostPath, err)
		}
		slog.Debug("etfs register failed", "key", key, "path", hostPath, "err", err)
		return nil
	}
	slog.Info("etfs registered", "key", key, "path", hostPath)
	return nil
}

// MountBlock mounts dev on target, trying each filesystem type of the
// probe order until one succeeds.
func MountBlock(sys platform.Storage, dev, target string) (string, error) {
	var tried []string
	for _, p := range blockProbe {
		err := sys.Mount(platform.MountRequest{
			FSType:   p.fstype,
			Source:   dev,
			Target:   target,
			ReadOnly: p.readOnly,
		})
		if err == nil {
			slog.Info("mounted", "source", dev, "target", target, "fstype", p.fstype)
			return p.fstype, nil
		}
		tried = append(tried, fmt.Sprintf("%s: %v", p.fstype, err))
	}
	return "", fmt.Errorf("%w (%s)", ErrProbeExhausted, strings.Join(tried, "; "))
}
