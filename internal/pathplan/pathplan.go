// Package pathplan computes the blob-store layout of a session's artifacts.
// Paths are decided before any upload happens so a session row can be created
// with valid, NOT-NULL references from the start.
package pathplan

import (
	"fmt"
	"strings"
)

// placeholderFragment marks a URI whose object has not been uploaded yet.
// Readers distinguish "pending" from "durable" with a string check instead of
// a null check.
const placeholderFragment = "#pending"

// Paths holds the four relative object paths planned for one session.
type Paths struct {
	Video     string
	Keypoints string
	Analysis  string
	Report    string
}

// Plan returns the deterministic relative paths for a session token,
// following the {Category}/{token}/{artifact} convention.
func Plan(token string) Paths {
	return Paths{
		Video:     fmt.Sprintf("Uploads-mp4/%s/video.mp4", token),
		Keypoints: fmt.Sprintf("Uploads-CSV/%s/keypoints.csv", token),
		Analysis:  fmt.Sprintf("Result-Output/%s/analysis.xlsx", token),
		Report:    fmt.Sprintf("Result-Output/%s/report.pdf", token),
	}
}

// MetadataPath is the sibling object for the optional device-metadata upload
// on the priority channel.
func MetadataPath(token string) string {
	return fmt.Sprintf("Uploads-CSV/%s/metadata.json", token)
}

// URI renders a relative path as a fully-qualified durable-store reference.
func URI(bucket, rel string) string {
	return fmt.Sprintf("gs://%s/%s", bucket, rel)
}

// PlaceholderURI renders the provisional form stored at creation time.
func PlaceholderURI(bucket, rel string) string {
	return URI(bucket, rel) + placeholderFragment
}

// IsPlaceholder reports whether ref is a provisional reference.
func IsPlaceholder(ref string) bool {
	return strings.HasSuffix(ref, placeholderFragment)
}

// Prefix returns the enumeration prefixes covering every object a session
// may own, for purge-time listing.
func Prefix(token string) []string {
	return []string{
		fmt.Sprintf("Uploads-mp4/%s/", token),
		fmt.Sprintf("Uploads-CSV/%s/", token),
		fmt.Sprintf("Result-Output/%s/", token),
	}
}
