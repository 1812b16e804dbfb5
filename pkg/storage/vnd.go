package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"regexp"
	"strconv"
)

const (
	// rawPart is the partition letter index naming the whole disk ('d').
	rawPart       = 3
	maxPartitions = 8

	// maxMinor is the largest minor number a device node can carry.
	maxMinor = 1<<20 - 1
	// maxVndUnit is the highest unit whose raw minor fits in maxMinor.
	maxVndUnit = (maxMinor - rawPart) / maxPartitions
)

var vndName = regexp.MustCompile(`^vnd([0-9]+)$`)

// vndNode returns the buffered or raw whole-disk node of a vnd unit.
func vndNode(raw bool, unit int) string {
	r := ""
	if raw {
		r = "r"
	}
	return fmt.Sprintf("/dev/%svnd%d%c", r, unit, 'a'+rawPart)
}

func vndMinor(unit int) uint32 {
	return uint32(unit*maxPartitions + rawPart)
}

// VndSystem holds the device node capabilities ConfigureVnd needs.
type VndSystem interface {
	DeviceMajor(path string) (uint32, error)
	Mknod(path string, major, minor uint32) error
	AttachVnd(rawNode, hostPath string, readOnly bool) error
}

// ConfigureVnd binds hostPath read-only to vnd device dev, creating the
// node pair first when it does not exist. Majors come from unit 0.
func ConfigureVnd(sys VndSystem, dev, hostPath string) error {
	sm := vndName.FindStringSubmatch(dev)
	if sm == nil {
		return fmt.Errorf("invalid vnd name %q", dev)
	}
	unit, err := strconv.Atoi(sm[1])
	if err != nil || unit > maxVndUnit {
		return fmt.Errorf("invalid vnd name %q: unit out of range 0-%d", dev, maxVndUnit)
	}
	blk, raw := vndNode(false, unit), vndNode(true, unit)

	err = sys.AttachVnd(raw, hostPath, true)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("attach %s to %s: %w", hostPath, raw, err)
	}

	bmaj, err := sys.DeviceMajor(vndNode(false, 0))
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", vndNode(false, 0), err)
	}
	rmaj, err := sys.DeviceMajor(vndNode(true, 0))
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", vndNode(true, 0), err)
	}
	if err := sys.Mknod(blk, bmaj, vndMinor(unit)); err != nil {
		return fmt.Errorf("mknod %s: %w", blk, err)
	}
	if err := sys.Mknod(raw, rmaj, vndMinor(unit)); err != nil {
		return fmt.Errorf("mknod %s: %w", raw, err)
	}
	slog.Debug("vnd nodes created", "block", blk, "raw", raw)

	if err := sys.AttachVnd(raw, hostPath, true); err != nil {
		return fmt.Errorf("attach %s to %s: %w", hostPath, raw, err)
	}
	return nil
}
