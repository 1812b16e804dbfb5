// Package metrics exposes boot configuration statistics in the
// Prometheus text format. Capability calls are counted by wrapping the
// platform.System the interpreter runs against.
package metrics

import (
	"context"
	"io/fs"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/psaab/bootcfg/pkg/platform"
)

type opStats struct {
	calls    uint64
	failures uint64
	seconds  float64
}

// Collector implements prometheus.Collector over the counts gathered by
// an Instrumented system and the outcome reported with Observe.
type Collector struct {
	mu  sync.Mutex
	ops map[string]*opStats

	planEntries float64
	warnings    float64
	sysctls     float64
	success     float64
	duration    float64

	callsTotal      *prometheus.Desc
	failuresTotal   *prometheus.Desc
	callSeconds     *prometheus.Desc
	planEntriesDesc *prometheus.Desc
	warningsDesc    *prometheus.Desc
	sysctlsDesc     *prometheus.Desc
	successDesc     *prometheus.Desc
	durationDesc    *prometheus.Desc
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{
		ops: make(map[string]*opStats),

		callsTotal: prometheus.NewDesc(
			"bootcfg_capability_calls_total",
			"Capability calls made while applying the configuration.",
			[]string{"op"}, nil,
		),
		failuresTotal: prometheus.NewDesc(
			"bootcfg_capability_failures_total",
			"Capability calls that returned an error.",
			[]string{"op"}, nil,
		),
		callSeconds: prometheus.NewDesc(
			"bootcfg_capability_seconds_total",
			"Time spent in capability calls.",
			[]string{"op"}, nil,
		),
		planEntriesDesc: prometheus.NewDesc(
			"bootcfg_plan_entries",
			"Entries in the boot plan.",
			nil, nil,
		),
		warningsDesc: prometheus.NewDesc(
			"bootcfg_warnings",
			"Warnings raised while interpreting the configuration.",
			nil, nil,
		),
		sysctlsDesc: prometheus.NewDesc(
			"bootcfg_sysctls_applied",
			"Global sysctl assignments written.",
			nil, nil,
		),
		successDesc: prometheus.NewDesc(
			"bootcfg_last_run_success",
			"Whether the configuration applied without a fatal error.",
			nil, nil,
		),
		durationDesc: prometheus.NewDesc(
			"bootcfg_run_duration_seconds",
			"Wall time of the interpretation pass.",
			nil, nil,
		),
	}
}

// Outcome summarizes one interpretation pass.
type Outcome struct {
	PlanEntries int
	Warnings    int
	Sysctls     int
	Err         error
	Duration    time.Duration
}

// Observe records the outcome of an interpretation pass.
func (c *Collector) Observe(o Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.planEntries = float64(o.PlanEntries)
	c.warnings = float64(o.Warnings)
	c.sysctls = float64(o.Sysctls)
	c.duration = o.Duration.Seconds()
	c.success = 1
	if o.Err != nil {
		c.success = 0
	}
}

func (c *Collector) record(op string, start time.Time, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.ops[op]
	if !ok {
		s = &opStats{}
		c.ops[op] = s
	}
	s.calls++
	if err != nil {
		s.failures++
	}
	s.seconds += time.Since(start).Seconds()
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.callsTotal
	ch <- c.failuresTotal
	ch <- c.callSeconds
	ch <- c.planEntriesDesc
	ch <- c.warningsDesc
	ch <- c.sysctlsDesc
	ch <- c.successDesc
	ch <- c.durationDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.ops))
	for op := range c.ops {
		names = append(names, op)
	}
	sort.Strings(names)
	for _, op := range names {
		s := c.ops[op]
		ch <- prometheus.MustNewConstMetric(c.callsTotal, prometheus.CounterValue, float64(s.calls), op)
		ch <- prometheus.MustNewConstMetric(c.failuresTotal, prometheus.CounterValue, float64(s.failures), op)
		ch <- prometheus.MustNewConstMetric(c.callSeconds, prometheus.CounterValue, s.seconds, op)
	}

	ch <- prometheus.MustNewConstMetric(c.planEntriesDesc, prometheus.GaugeValue, c.planEntries)
	ch <- prometheus.MustNewConstMetric(c.warningsDesc, prometheus.GaugeValue, c.warnings)
	ch <- prometheus.MustNewConstMetric(c.sysctlsDesc, prometheus.GaugeValue, c.sysctls)
	ch <- prometheus.MustNewConstMetric(c.successDesc, prometheus.GaugeValue, c.success)
	ch <- prometheus.MustNewConstMetric(c.durationDesc, prometheus.GaugeValue, c.duration)
}

// WriteTextfile writes every metric of c to path in the text exposition
// format, for node_exporter's textfile collector. The file is replaced
// atomically.
func (c *Collector) WriteTextfile(path string) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, reg)
}

// Instrumented wraps a platform.System and counts every call per
// operation in a Collector.
type Instrumented struct {
	sys platform.System
	c   *Collector
}

// Instrument returns sys wrapped so its calls are counted in c.
func Instrument(sys platform.System, c *Collector) *Instrumented {
	return &Instrumented{sys: sys, c: c}
}

func (i *Instrumented) done(op string, start time.Time, err error) error {
	i.c.record(op, start, err)
	return err
}

func (i *Instrumented) CreateInterface(ctx context.Context, name string) error {
	start := time.Now()
	return i.done("ifcreate", start, i.sys.CreateInterface(ctx, name))
}

func (i *Instrumented) DHCPv4(ctx context.Context, ifname string) error {
	start := time.Now()
	return i.done("dhcp4", start, i.sys.DHCPv4(ctx, ifname))
}

func (i *Instrumented) StaticIPv4(ctx context.Context, ifname, addr string, prefixLen int) error {
	start := time.Now()
	return i.done("inet", start, i.sys.StaticIPv4(ctx, ifname, addr, prefixLen))
}

func (i *Instrumented) AutoIPv6(ctx context.Context, ifname string) error {
	start := time.Now()
	return i.done("auto6", start, i.sys.AutoIPv6(ctx, ifname))
}

func (i *Instrumented) StaticIPv6(ctx context.Context, ifname, addr string, prefixLen int) error {
	start := time.Now()
	return i.done("inet6", start, i.sys.StaticIPv6(ctx, ifname, addr, prefixLen))
}

func (i *Instrumented) GatewayIPv4(ctx context.Context, addr string) error {
	start := time.Now()
	return i.done("gw", start, i.sys.GatewayIPv4(ctx, addr))
}

func (i *Instrumented) GatewayIPv6(ctx context.Context, addr string) error {
	start := time.Now()
	return i.done("gw6", start, i.sys.GatewayIPv6(ctx, addr))
}

func (i *Instrumented) Mkdir(path string, perm fs.FileMode) error {
	start := time.Now()
	return i.done("mkdir", start, i.sys.Mkdir(path, perm))
}

func (i *Instrumented) WriteFile(path string, data []byte, perm fs.FileMode) error {
	start := time.Now()
	return i.done("write", start, i.sys.WriteFile(path, data, perm))
}

func (i *Instrumented) ReadFile(path string, limit int64) ([]byte, error) {
	start := time.Now()
	data, err := i.sys.ReadFile(path, limit)
	return data, i.done("read", start, err)
}

func (i *Instrumented) RegisterEtfs(key, hostPath string) error {
	start := time.Now()
	return i.done("etfs", start, i.sys.RegisterEtfs(key, hostPath))
}

func (i *Instrumented) DeviceMajor(path string) (uint32, error) {
	start := time.Now()
	major, err := i.sys.DeviceMajor(path)
	return major, i.done("stat", start, err)
}

func (i *Instrumented) Mknod(path string, major, minor uint32) error {
	start := time.Now()
	return i.done("mknod", start, i.sys.Mknod(path, major, minor))
}

func (i *Instrumented) AttachVnd(rawNode, hostPath string, readOnly bool) error {
	start := time.Now()
	return i.done("vndattach", start, i.sys.AttachVnd(rawNode, hostPath, readOnly))
}

func (i *Instrumented) Mount(req platform.MountRequest) error {
	start := time.Now()
	return i.done("mount", start, i.sys.Mount(req))
}

func (i *Instrumented) SetSysctl(key, value string) error {
	start := time.Now()
	return i.done("sysctl", start, i.sys.SetSysctl(key, value))
}

func (i *Instrumented) Setenv(key, value string) error {
	start := time.Now()
	return i.done("setenv", start, i.sys.Setenv(key, value))
}

var _ platform.System = (*Instrumented)(nil)
