package audit

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityOrdering(t *testing.T) {
	// Critical is the most severe, Debug the least; Less reports "more severe".
	assert.True(t, SeverityCritical.Less(SeverityError))
	assert.True(t, SeverityError.Less(SeverityWarning))
	assert.True(t, SeverityWarning.Less(SeverityNotice))
	assert.True(t, SeverityNotice.Less(SeverityInfo))
	assert.True(t, SeverityInfo.Less(SeverityDebug))
	assert.False(t, SeverityDebug.Less(SeverityCritical))
}

func TestSeverityOrderTotalTransitiveAntisymmetric(t *testing.T) {
	all := []Severity{SeverityDebug, SeverityInfo, SeverityNotice, SeverityWarning, SeverityError, SeverityCritical}
	for _, a := range all {
		for _, b := range all {
			for _, c := range all {
				if a.Less(b) && b.Less(c) {
					assert.True(t, a.Less(c), "transitivity: %v < %v < %v", a, b, c)
				}
			}
			if a != b {
				assert.False(t, a.Less(b) && b.Less(a), "antisymmetry violated for %v, %v", a, b)
			}
		}
	}
}

func TestSeverityJSONRoundTrip(t *testing.T) {
	for _, s := range []Severity{SeverityDebug, SeverityInfo, SeverityNotice, SeverityWarning, SeverityError, SeverityCritical} {
		type wrapper struct {
			S Severity `json:"s"`
		}
		b, err := json.Marshal(wrapper{S: s})
		require.NoError(t, err)

		var out wrapper
		require.NoError(t, json.Unmarshal(b, &out))
		assert.Equal(t, s, out.S)
	}
}

func TestEventTypeStringBijective(t *testing.T) {
	for et, name := range eventTypeNames {
		parsed, ok := ParseEventType(name)
		require.True(t, ok, "round trip for %q", name)
		assert.Equal(t, et, parsed)
		assert.Equal(t, name, et.String())
	}
}

func TestBuilderDefaults(t *testing.T) {
	entry := NewEntry(EventOrgDeleted).Build()
	assert.NotEmpty(t, entry.ID.String())
	assert.False(t, entry.Timestamp.IsZero())
	assert.Equal(t, EventOrgDeleted.String(), entry.Action)
	assert.Equal(t, SeverityNotice, entry.Severity)
}

func TestBuilderExplicitOverrides(t *testing.T) {
	entry := NewEntry(EventOrgDeleted).
		Action("custom action").
		Severity(SeverityCritical).
		Build()
	assert.Equal(t, "custom action", entry.Action)
	assert.Equal(t, SeverityCritical, entry.Severity)
}

func TestFilterConfigAllows(t *testing.T) {
	f := FilterConfig{MinSeverity: SeverityWarning}
	warn := NewEntry(EventAuthLoginFailed).Build() // default Warning
	info := NewEntry(EventOrgCreated).Build()       // default Info

	assert.True(t, f.Allows(warn))
	assert.False(t, f.Allows(info))
}

func TestFilterConfigEventTypeAllowList(t *testing.T) {
	f := FilterConfig{EventTypes: map[EventType]bool{EventOrgCreated: true}}
	assert.True(t, f.Allows(NewEntry(EventOrgCreated).Build()))
	assert.False(t, f.Allows(NewEntry(EventTeamCreated).Build()))
}
