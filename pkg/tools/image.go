package tools

import (
	"context"
	"log/slog"
	"strings"

	"imagent/pkg/imagesvc"
)

// ImageService is the part of imagesvc.Client the image tools use.
type ImageService interface {
	Settings() imagesvc.Settings
	Generate(ctx context.Context, prompt string, opts imagesvc.Options) (*imagesvc.Response, error)
	Edit(ctx context.Context, req imagesvc.EditRequest) (*imagesvc.Response, error)
	Download(ctx context.Context, uri string) ([]byte, error)
}

var (
	aspectRatios    = []string{"1:1", "2:3", "3:2", "3:4", "4:3", "4:5", "5:4", "9:16", "16:9", "21:9"}
	imageSizes      = []string{"1K", "2K", "4K"}
	responseFormats = []string{"url", "b64_json"}
)

func optionParameters() map[string]any {
	return map[string]any{
		"aspect_ratio": map[string]any{
			"type":        "string",
			"description": "图片宽高比，可选",
			"enum":        aspectRatios,
		},
		"image_size": map[string]any{
			"type":        "string",
			"description": "图片分辨率，可选",
			"enum":        imageSizes,
		},
		"response_format": map[string]any{
			"type":        "string",
			"description": "返回格式：url 或 b64_json，可选",
			"enum":        responseFormats,
		},
	}
}

// imageArgs are the arguments shared by both image tools.
type imageArgs struct {
	Prompt         string `json:"prompt"`
	AspectRatio    string `json:"aspect_ratio"`
	ImageSize      string `json:"image_size"`
	ResponseFormat string `json:"response_format"`
}

func (a imageArgs) options() imagesvc.Options {
	return imagesvc.Options{
		AspectRatio:    a.AspectRatio,
		ImageSize:      a.ImageSize,
		ResponseFormat: a.ResponseFormat,
	}
}

func checkPrompt(prompt string) *Error {
	if strings.TrimSpace(prompt) == "" {
		return NewError(KindValidation, "prompt 不能为空", nil)
	}
	return nil
}

func checkConfigured(svc ImageService) *Error {
	if !svc.Settings().Configured() {
		return NewError(KindConfiguration, msgNotConfigured, nil)
	}
	return nil
}

// finish records the references of a successful reply in the session cache.
// A reply without references leaves the cache untouched.
func finish(ctx context.Context, env Env, tool ToolID, resp *imagesvc.Response) Result {
	if len(resp.Refs) == 0 {
		slog.WarnContext(ctx, "Image service reply has no images", "tool", tool.String(), "body", imagesvc.Excerpt(resp.Body))
		return Result{Text: imagesvc.Excerpt(resp.Body)}
	}
	if env.Artifacts != nil {
		env.Artifacts.Replace(resp.Refs)
	}
	slog.InfoContext(ctx, "Images recorded", "tool", tool.String(), "count", len(resp.Refs))
	return Result{Text: successText(resp.Refs), Artifacts: resp.Refs}
}
