package weaver

import (
	"fmt"

	"github.com/codeready-toolchain/loom/internal/ids"
)

// LabelManaged is the primary selector every weaver-managed pod carries.
const LabelManaged = "loom.dev/managed"

const (
	labelWeaverID      = "loom.dev/weaver-id"
	labelOwner         = "loom.dev/owner"
	labelOrg           = "loom.dev/org"
	labelRepo          = "loom.dev/repo"
	labelImage         = "loom.dev/image"
	labelImageRegistry = "loom.dev/image-registry"
	labelImageName     = "loom.dev/image-name"
	labelAuditEnabled  = "loom.dev/audit-enabled"
)

// ImageLabels holds the three image-derived label values computed by
// BuildImageLabels: the full sanitized reference, and its sanitized
// registry/name split.
type ImageLabels struct {
	Image         string
	ImageRegistry string
	ImageName     string
}

// BuildImageLabels sanitizes ref as a whole, plus its parsed
// registry/name parts, into label-safe values. Matches scenario 7
// exactly: ref="docker.io/library/python:3.12" yields
// Image="docker.io_library_python_3.12", ImageRegistry="docker.io",
// ImageName="library_python".
func BuildImageLabels(ref string) ImageLabels {
	parts := ParseImageParts(ref)
	return ImageLabels{
		Image:         sanitizeLabelValue(ref),
		ImageRegistry: sanitizeLabelValue(parts.Registry),
		ImageName:     sanitizeLabelValue(parts.Name),
	}
}

// BuildLabels assembles the complete label set for a managed weaver pod,
//: managed-flag, weaver-id, owner, org, optional repo, image
// registry/name, and whether the audit sidecar is enabled.
func BuildLabels(weaverID ids.WeaverID, owner ids.UserID, org ids.OrgID, repo string, image string, auditEnabled bool) map[string]string {
	labels := map[string]string{
		LabelManaged:  "true",
		labelWeaverID: weaverID.String(),
		labelOwner:    sanitizeLabelValue(owner.String()),
		labelOrg:      sanitizeLabelValue(org.String()),
	}
	il := BuildImageLabels(image)
	labels[labelImage] = il.Image
	labels[labelImageRegistry] = il.ImageRegistry
	labels[labelImageName] = il.ImageName
	if repo != "" {
		labels[labelRepo] = sanitizeLabelValue(repo)
	}
	labels[labelAuditEnabled] = fmt.Sprintf("%t", auditEnabled)
	return labels
}

// ManagedSelector is the label selector used to list every weaver-managed
// pod.
const ManagedSelector = LabelManaged + "=true"
