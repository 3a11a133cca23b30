package service

import (
	"path"
	"regexp"
	"strings"
)

var (
	fileBlockRe  = regexp.MustCompile(`(?s)---FILE_PATH:\s*(.+?)\n(.*?)---END_FILE`)
	fenceOpenRe  = regexp.MustCompile("^```[a-zA-Z0-9+#._-]*\n")
	fenceCloseRe = regexp.MustCompile("(^|\n)```$")
)

// extractContent pulls the content for unitPath out of a backend response.
// Responses with FILE_PATH blocks yield the block for unitPath, or the first
// block when none matches; otherwise the whole response is used. Markdown
// code fences around the content are removed.
func extractContent(response, unitPath string) string {
	matches := fileBlockRe.FindAllStringSubmatch(response, -1)
	body := response
	if len(matches) > 0 {
		body = matches[0][2]
		want := path.Clean(unitPath)
		for _, m := range matches {
			if path.Clean(strings.TrimSpace(m[1])) == want {
				body = m[2]
				break
			}
		}
	}
	return stripFences(strings.TrimSpace(body))
}

func stripFences(s string) string {
	s = fenceOpenRe.ReplaceAllString(s, "")
	s = fenceCloseRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
