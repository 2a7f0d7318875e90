package webhook

import "fmt"

// RenderPayload builds the wire body for evt in the given format. serverBase
// is the externally reachable base URL used to compose clone URLs for the
// GitHubCompat shape (e.g. "https://loom.example.com").
func RenderPayload(format PayloadFormat, serverBase string, evt Event) map[string]any {
	switch format {
	case PayloadGitHubCompat:
		return gitHubCompatPayload(serverBase, evt)
	default:
		return loomV1Payload(evt)
	}
}

// gitHubCompatPayload mirrors the subset of GitHub's push/repository payload
// shape that downstream CI integrations already know how to parse.
func gitHubCompatPayload(serverBase string, evt Event) map[string]any {
	cloneURL := fmt.Sprintf("%s/%s/%s.git", serverBase, evt.RepoOwner, evt.RepoName)
	fullName := fmt.Sprintf("%s/%s", evt.RepoOwner, evt.RepoName)
	return map[string]any{
		"ref": evt.Ref,
		"repository": map[string]any{
			"full_name": fullName,
			"name":      evt.RepoName,
			"clone_url": cloneURL,
			"html_url":  fmt.Sprintf("%s/%s", serverBase, fullName),
		},
		"sender": map[string]any{
			"login": evt.Actor,
		},
		"pusher": map[string]any{
			"name": evt.Actor,
		},
	}
}

// loomV1Payload is the smaller, first-party event shape.
func loomV1Payload(evt Event) map[string]any {
	body := map[string]any{
		"event":    evt.Name,
		"actor":    evt.Actor,
		"repo_id":  evt.RepoID.String(),
		"owner_id": evt.OwnerID,
	}
	for k, v := range evt.Payload {
		body[k] = v
	}
	return body
}
