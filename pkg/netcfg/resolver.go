package netcfg

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/psaab/bootcfg/pkg/config"
	"github.com/psaab/bootcfg/pkg/schema"
)

// Limits from resolv.conf(5).
const (
	MaxNameservers = 3
	MaxSearch      = 6

	// maxLine is the longest line written, including its newline:
	// "search " plus 1024 characters plus the terminator.
	maxLine = len("search ") + 1024 + 1
)

// DNSConfig is a validated "dns" object.
type DNSConfig struct {
	Nameservers []string
	Search      []string
}

func (t *Translator) handleDNS(_ context.Context, m config.Member, loc string) error {
	loc = schema.Join(loc, m.Name)
	if err := schema.Expect(m.Value, config.KindObject, loc); err != nil {
		return err
	}

	var cfg DNSConfig
	var present bool
	for _, f := range m.Value.Members {
		var err error
		switch f.Name {
		case "nameservers":
			cfg.Nameservers, err = schema.ExpectStrings(f.Value, schema.Join(loc, f.Name))
			present = true
		case "search":
			cfg.Search, err = schema.ExpectStrings(f.Value, schema.Join(loc, f.Name))
			present = true
		default:
			t.diag.Warn(loc, f.Name, "unexpected key, ignored")
		}
		if err != nil {
			return err
		}
	}
	if !present {
		return nil
	}

	data, err := RenderResolvConf(cfg)
	if err != nil {
		return fmt.Errorf("%s: %w", loc, err)
	}

	if err := t.sys.Mkdir(t.opts.EtcDir, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%s: mkdir %q: %w", loc, t.opts.EtcDir, err)
	}
	file := path.Join(t.opts.EtcDir, "resolv.conf")
	if err := t.sys.WriteFile(file, data, 0o644); err != nil {
		return fmt.Errorf("%s: write %q: %w", loc, file, err)
	}
	return nil
}

// RenderResolvConf returns the resolver file for cfg: one nameserver
// line per server followed by a single search line.
func RenderResolvConf(cfg DNSConfig) ([]byte, error) {
	if len(cfg.Nameservers) > MaxNameservers {
		return nil, fmt.Errorf("%w (max %d)", ErrTooManyNameservers, MaxNameservers)
	}
	if len(cfg.Search) > MaxSearch {
		return nil, fmt.Errorf("%w (max %d)", ErrTooManySearch, MaxSearch)
	}

	var b strings.Builder
	for _, ns := range cfg.Nameservers {
		line := "nameserver " + ns + "\n"
		if len(line) > maxLine {
			return nil, fmt.Errorf("nameserver %q: %w", ns, ErrLineTooLong)
		}
		b.WriteString(line)
	}
	if len(cfg.Search) > 0 {
		line := "search " + strings.Join(cfg.Search, " ") + "\n"
		if len(line) > maxLine {
			return nil, fmt.Errorf("search list: %w", ErrLineTooLong)
		}
		b.WriteString(line)
	}
	return []byte(b.String()), nil
}
