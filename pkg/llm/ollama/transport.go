package ollama

import (
	"io"
	"net/http"
	"regexp"
	"strings"
)

// JSONFixingRoundTripper intercepts responses and drops illegal JSON escapes
// (e.g., \$) some models emit inside tool arguments.
type JSONFixingRoundTripper struct {
	Proxied http.RoundTripper
}

func (j *JSONFixingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := j.Proxied.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	ct := resp.Header.Get("Content-Type")
	if strings.Contains(ct, "application/json") || strings.Contains(ct, "application/x-ndjson") {
		resp.Body = &jsonFixingReadCloser{body: resp.Body}
	}
	return resp, nil
}

type jsonFixingReadCloser struct {
	body io.ReadCloser
}

var illegalEscapeRegex = regexp.MustCompile(`\\([^\/\\bfnrtu"])`)

func (j *jsonFixingReadCloser) Read(p []byte) (n int, err error) {
	n, err = j.body.Read(p)
	if n > 0 {
		content := string(p[:n])
		fixed := illegalEscapeRegex.ReplaceAllString(content, "$1")
		if len(fixed) < len(content) {
			// Only backslashes are removed, so the fixed text always fits in p
			copy(p, []byte(fixed))
			n = len(fixed)
		}
	}
	return n, err
}

func (j *jsonFixingReadCloser) Close() error {
	return j.body.Close()
}
