package tools

import (
	"imagent/pkg/artifact"
)

// Result is the outcome of one tool invocation.
type Result struct {
	Text      string
	Artifacts []artifact.Reference
	Err       *Error
}

// Failure wraps err into a failed Result.
func Failure(err *Error) Result {
	return Result{Err: err}
}

// Failed reports whether the invocation failed.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Content renders the text of the tool message sent back to the model.
func (r Result) Content() string {
	if r.Err == nil {
		return r.Text
	}
	b, err := json.Marshal(struct {
		Error string `json:"error"`
		Kind  Kind   `json:"kind"`
	}{r.Err.Error(), r.Err.Kind})
	if err != nil {
		return r.Err.Error()
	}
	return string(b)
}

type imageSummary struct {
	URL          string `json:"url,omitempty"`
	B64JSONBytes int    `json:"b64_json_bytes,omitempty"`
}

// successText summarises the produced references for the model.
func successText(refs []artifact.Reference) string {
	images := make([]imageSummary, 0, len(refs))
	for _, r := range refs {
		if r.URL != "" {
			images = append(images, imageSummary{URL: r.URL})
		} else {
			images = append(images, imageSummary{B64JSONBytes: len(r.B64JSON)})
		}
	}
	b, _ := json.Marshal(struct {
		Status string         `json:"status"`
		Count  int            `json:"count"`
		Images []imageSummary `json:"images"`
	}{"ok", len(refs), images})
	return string(b)
}
