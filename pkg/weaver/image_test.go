package weaver

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseImagePartsSingleSegment(t *testing.T) {
	p := ParseImageParts("python")
	assert.Equal(t, ImageParts{Registry: "docker.io", Name: "python"}, p)
}

func TestParseImagePartsTwoSegmentsKnownRegistry(t *testing.T) {
	p := ParseImageParts("ghcr.io/tool:latest")
	assert.Equal(t, "ghcr.io", p.Registry)
	assert.Equal(t, "tool", p.Name)
}

func TestParseImagePartsTwoSegmentsNoRegistry(t *testing.T) {
	p := ParseImageParts("library/python")
	assert.Equal(t, "docker.io", p.Registry)
	assert.Equal(t, "library/python", p.Name)
}

func TestParseImagePartsThreeSegments(t *testing.T) {
	p := ParseImageParts("docker.io/library/python:3.12")
	assert.Equal(t, "docker.io", p.Registry)
	assert.Equal(t, "library/python", p.Name)
}

func TestParseImagePartsRegistryPortCollapseWhenUntagged(t *testing.T) {
	// Documented limitation: with no explicit tag, the registry's own
	// port-separating ':' is mistaken for a tag separator, and the port
	// plus entire remaining path is stripped away along with it.
	p := ParseImageParts("myregistry:5000/team/tool")
	assert.Equal(t, "docker.io", p.Registry, "registry:port with no tag is known to collapse to the default registry")
	assert.Equal(t, "myregistry", p.Name)
}

func TestParseImagePartsRegistryPortSurvivesWhenTagged(t *testing.T) {
	// With an explicit tag present, the true tag is the last colon in the
	// string, so the port survives intact.
	p := ParseImageParts("myregistry:5000/team/tool:1.0")
	assert.Equal(t, "myregistry:5000", p.Registry)
	assert.Equal(t, "team/tool", p.Name)
}

func TestSanitizeLabelValue(t *testing.T) {
	out := sanitizeLabelValue("library/python")
	assert.Equal(t, "library_python", out)
	assert.True(t, isAlnum(rune(out[0])))
	assert.True(t, isAlnum(rune(out[len(out)-1])))
}

func TestSanitizeLabelValueTruncatesAndRetrims(t *testing.T) {
	long := strings.Repeat("a/", 40) // sanitizes to a long run of "a_a_a_..." ending in '_' once truncated
	out := sanitizeLabelValue(long)
	assert.LessOrEqual(t, len(out), 63)
	if len(out) > 0 {
		assert.True(t, isAlnum(rune(out[len(out)-1])))
	}
}

// Scenario 7: weaver label sanitization.
func TestScenarioWeaverLabelSanitization(t *testing.T) {
	labels := BuildImageLabels("docker.io/library/python:3.12")
	assert.Equal(t, "docker.io", labels.ImageRegistry)
	assert.Equal(t, "library_python", labels.ImageName)
	assert.Equal(t, "docker.io_library_python_3.12", labels.Image)

	for _, v := range []string{labels.Image, labels.ImageRegistry, labels.ImageName} {
		assert.LessOrEqual(t, len(v), 63)
		assert.True(t, isAlnum(rune(v[0])), "must start alphanumeric: %q", v)
		assert.True(t, isAlnum(rune(v[len(v)-1])), "must end alphanumeric: %q", v)
	}
}
