package jobstore

import (
	"fmt"
	"strings"
)

// PublicURL converts a gs:// object URI into a publicly addressable HTTPS
// URL. Non-GCS URIs pass through unchanged.
func PublicURL(uri string) string {
	if rest, ok := strings.CutPrefix(uri, "gs://"); ok {
		return "https://storage.googleapis.com/" + rest
	}
	return uri
}

func jobObjectPath(jobID string) string {
	return "jobs/" + jobID + ".json"
}

func imageObjectPath(jobID string, index int) string {
	return fmt.Sprintf("images/%s/image%d.png", jobID, index)
}
