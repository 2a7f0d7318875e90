// Package weaver manages the lifecycle of single-purpose ephemeral
// container sandboxes ("weavers") on a Kubernetes cluster: creation,
// listing, attach, log streaming, and periodic reclamation.
package weaver

import "strings"

// ImageParts is the registry/name split of a container image reference.
type ImageParts struct {
	Registry string
	Name     string
}

// ParseImageParts splits an image reference into registry and name (any
// tag or digest is dropped), with
// a known limitation (kept as-is per DESIGN.md's Open Question decision):
// it splits on ':' before '/', so a "registry:port/name" reference
// collapses to the default registry instead of keeping its own.
func ParseImageParts(ref string) ImageParts {
	ref = stripDigestAndTag(ref)
	segments := strings.Split(ref, "/")

	switch len(segments) {
	case 1:
		return ImageParts{Registry: "docker.io", Name: segments[0]}
	default:
		first := segments[0]
		if strings.ContainsAny(first, ".:") || first == "localhost" {
			return ImageParts{Registry: first, Name: strings.Join(segments[1:], "/")}
		}
		return ImageParts{Registry: "docker.io", Name: strings.Join(segments, "/")}
	}
}

// stripDigestAndTag removes a trailing "@sha256:..." digest, then strips
// from the last ':' found anywhere in the remaining string onward. This
// is the literal reference heuristic (not scoped to the final path
// segment), which is exactly what produces the documented
// registry:port/name collapse: when an image has no explicit tag, the
// registry's own port-separating ':' is the last colon in the string and
// gets mistaken for a tag separator, so everything after it — the port
// and the whole remaining path — is stripped away.
func stripDigestAndTag(ref string) string {
	if at := strings.LastIndex(ref, "@"); at != -1 {
		ref = ref[:at]
	}
	if colon := strings.LastIndex(ref, ":"); colon != -1 {
		ref = ref[:colon]
	}
	return ref
}

// sanitizeLabelValue keeps [A-Za-z0-9._-], replaces everything else with
// '_', trims any non-alphanumeric prefix/suffix, truncates to 63 bytes,
// and re-trims the suffix (truncation can leave a trailing separator).
func sanitizeLabelValue(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := trimNonAlnum(b.String())
	if len(out) > 63 {
		out = out[:63]
		out = trimNonAlnumSuffix(out)
	}
	return out
}

func isAlnum(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

func trimNonAlnum(s string) string {
	return trimNonAlnumSuffix(trimNonAlnumPrefix(s))
}

func trimNonAlnumPrefix(s string) string {
	for len(s) > 0 && !isAlnum(rune(s[0])) {
		s = s[1:]
	}
	return s
}

func trimNonAlnumSuffix(s string) string {
	for len(s) > 0 && !isAlnum(rune(s[len(s)-1])) {
		s = s[:len(s)-1]
	}
	return s
}
