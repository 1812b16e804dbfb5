package logging

import (
	"fmt"
	"net"
	"os"
	"time"
)

// Syslog severity levels (RFC 3164).
const (
	SyslogError   = 3
	SyslogWarning = 4
	SyslogInfo    = 6
	SyslogDebug   = 7
)

// Syslog facility: local0 (16).
const syslogFacility = 16

// DefaultTag is the program name written into each syslog line.
const DefaultTag = "bootcfg"

// SyslogClient sends UDP syslog messages (RFC 3164).
type SyslogClient struct {
	conn        net.Conn
	hostname    string
	tag         string
	now         func() time.Time
	MinSeverity int // 0 = no filter, else one of the Syslog* levels
}

// NewSyslogClient creates a UDP syslog client for addr ("host:port").
// The port defaults to 514.
func NewSyslogClient(addr string) (*SyslogClient, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "514")
	}
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial syslog %s: %w", addr, err)
	}
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unikernel"
	}
	return &SyslogClient{conn: conn, hostname: hostname, tag: DefaultTag, now: time.Now}, nil
}

// SetTag replaces the program name written into each line.
func (s *SyslogClient) SetTag(tag string) {
	if tag != "" {
		s.tag = tag
	}
}

// Send sends a syslog message with the given severity.
func (s *SyslogClient) Send(severity int, msg string) error {
	_, err := s.conn.Write([]byte(s.format(severity, msg)))
	return err
}

func (s *SyslogClient) format(severity int, msg string) string {
	priority := syslogFacility*8 + severity
	ts := s.now().Format(time.Stamp) // "Jan _2 15:04:05"
	return fmt.Sprintf("<%d>%s %s %s: %s", priority, ts, s.hostname, s.tag, msg)
}

// ShouldSend returns true if the event severity passes this client's filter.
// Lower severity number = higher priority (error=3 < warning=4 < info=6).
func (s *SyslogClient) ShouldSend(severity int) bool {
	return s.MinSeverity == 0 || severity <= s.MinSeverity
}

// ParseSeverity converts a severity name to its numeric value.
// Returns 0 (no filter) for unrecognized names.
func ParseSeverity(name string) int {
	switch name {
	case "error":
		return SyslogError
	case "warning":
		return SyslogWarning
	case "info":
		return SyslogInfo
	case "debug":
		return SyslogDebug
	default:
		return 0
	}
}

// Close closes the underlying connection.
func (s *SyslogClient) Close() error {
	return s.conn.Close()
}
