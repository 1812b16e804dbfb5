package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/psaab/bootcfg/pkg/config"
	"github.com/psaab/bootcfg/pkg/platform"
	"github.com/psaab/bootcfg/pkg/schema"
)

const (
	defaultTmpfsSize = "1M"
	tmpfsRootMode    = fs.ModeSticky | 0o777
)

// HandleMount is the "mount" handler: an object keyed by mount point.
func (t *Translator) HandleMount(_ context.Context, m config.Member, loc string) error {
	loc = schema.Join(loc, m.Name)
	if err := schema.Expect(m.Value, config.KindObject, loc); err != nil {
		return err
	}
	for _, mp := range m.Value.Members {
		if err := t.mount(mp, loc); err != nil {
			return err
		}
	}
	return nil
}

func (t *Translator) mount(m config.Member, loc string) error {
	mp := m.Name
	loc = schema.Join(loc, mp)
	if err := schema.Expect(m.Value, config.KindObject, loc); err != nil {
		return err
	}

	var source, path string
	var hasSource, hasPath bool
	var options *config.Node
	for _, f := range m.Value.Members {
		floc := schema.Join(loc, f.Name)
		var err error
		switch f.Name {
		case "source":
			source, err = schema.ExpectString(f.Value, floc)
			hasSource = true
		case "path":
			path, err = schema.ExpectString(f.Value, floc)
			hasPath = true
		case "options":
			err = schema.Expect(f.Value, config.KindObject, floc)
			options = f.Value
		default:
			err = schema.UnknownKey(loc, f.Name)
		}
		if err != nil {
			return err
		}
	}
	if !hasSource {
		return fmt.Errorf("%s: missing \"source\"", loc)
	}

	if err := MkdirAll(t.sys, mp); err != nil {
		return fmt.Errorf("%s: %w", loc, err)
	}

	var err error
	switch source {
	case "blk":
		if !hasPath {
			return fmt.Errorf("%s: missing \"path\" for source \"blk\"", loc)
		}
		_, err = MountBlock(t.sys, path, mp)
	case "kernfs":
		err = t.sys.Mount(platform.MountRequest{FSType: platform.FSKernfs, Target: mp})
	case "tmpfs":
		var size int64
		if size, err = tmpfsSize(options, schema.Join(loc, "options")); err != nil {
			return err
		}
		err = t.sys.Mount(platform.MountRequest{
			FSType:   platform.FSTmpfs,
			Target:   mp,
			SizeMax:  size,
			RootMode: tmpfsRootMode,
		})
	default:
		return fmt.Errorf("%s: unknown source %q", loc, source)
	}
	if err != nil {
		src := path
		if src == "" {
			src = "(none)"
		}
		return fmt.Errorf("%s: mount %q on %q type %q failed: %w", loc, src, mp, source, err)
	}
	return nil
}

func tmpfsSize(options *config.Node, loc string) (int64, error) {
	size := defaultTmpfsSize
	if options != nil {
		fields, err := strictStrings(options, loc, "size")
		if err != nil {
			return 0, err
		}
		if s, ok := fields["size"]; ok {
			size = s
		}
	}
	n, err := ParseSize(size)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", loc, err)
	}
	return n, nil
}

// ParseSize parses a human-readable byte quantity. A bare one-letter
// unit (k, m, g, t, p, e) is binary, so "1M" is 1048576 bytes, the
// same as "1MiB". Explicit SI units such as "1MB" keep their decimal
// meaning.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n := len(s); n >= 2 && strings.ContainsRune("kmgtpeKMGTPE", rune(s[n-1])) && isNumeric(s[n-2]) {
		s += "iB"
	}
	v, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("invalid size %q: out of range", s)
	}
	return int64(v), nil
}

func isNumeric(c byte) bool {
	return (c >= '0' && c <= '9') || c == '.' || c == ' '
}

// DirMaker creates a single directory.
type DirMaker interface {
	Mkdir(path string, perm fs.FileMode) error
}

// MkdirAll creates every component of path in turn. Components that
// already exist are not an error.
func MkdirAll(sys DirMaker, path string) error {
	end := 0
	for {
		for end < len(path) && path[end] == '/' {
			end++
		}
		for end < len(path) && path[end] != '/' {
			end++
		}
		prefix := path[:end]
		if err := sys.Mkdir(prefix, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("mkdir %q failed: %w", prefix, err)
		}
		if end >= len(path) {
			return nil
		}
	}
}
