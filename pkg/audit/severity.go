package audit

import "fmt"

// Severity grades an audit entry on the RFC 5424 syslog ladder. The numeric
// values match RFC 5424's codes exactly (lower code = higher severity), so
// a Severity can be compared directly against the wire protocol's notion of
// priority. Ord (Less) follows the numeric order: in Loom, "more severe
// sorts first" is the useful comparison (e.g. surfacing Critical entries
// ahead of Debug ones in a default-sorted query), and since a lower code is
// more severe, Less reports true when the receiver is MORE severe than other.
type Severity int

const (
	SeverityDebug     Severity = 7
	SeverityInfo      Severity = 6
	SeverityNotice    Severity = 5
	SeverityWarning   Severity = 4
	SeverityError     Severity = 3
	SeverityCritical  Severity = 2
)

var severityNames = map[Severity]string{
	SeverityDebug:    "debug",
	SeverityInfo:     "info",
	SeverityNotice:   "notice",
	SeverityWarning:  "warning",
	SeverityError:    "error",
	SeverityCritical: "critical",
}

var severityByName = func() map[string]Severity {
	m := make(map[string]Severity, len(severityNames))
	for s, n := range severityNames {
		m[n] = s
	}
	return m
}()

// String renders the snake_case wire form.
func (s Severity) String() string {
	if n, ok := severityNames[s]; ok {
		return n
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// ParseSeverity parses the snake_case wire form back into a Severity.
func ParseSeverity(s string) (Severity, error) {
	if v, ok := severityByName[s]; ok {
		return v, nil
	}
	return 0, fmt.Errorf("unknown audit severity %q", s)
}

// MarshalText implements encoding.TextMarshaler so Severity round-trips
// through JSON/YAML as its snake_case name rather than its int code.
func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Less reports whether s is strictly more severe than other — i.e. the
// total order used to sort "worst first". Because the underlying RFC 5424
// codes run from 2 (critical) to 7 (debug), "more severe" is the smaller
// code, so Less is the plain numeric less-than.
func (s Severity) Less(other Severity) bool {
	return s < other
}
