package tools

import (
	"context"
	"log/slog"
	"strings"

	"imagent/pkg/imagesvc"

	"github.com/dustin/go-humanize"
)

// EditImageTool edits an existing image, by default the most recent one the
// session produced.
type EditImageTool struct {
	svc        ImageService
	stagingDir string
}

// NewEditImageTool creates the edit tool. Staging files go to stagingDir, or
// the OS temp dir when it is empty.
func NewEditImageTool(svc ImageService, stagingDir string) *EditImageTool {
	return &EditImageTool{svc: svc, stagingDir: stagingDir}
}

func (t *EditImageTool) ID() ToolID   { return EditImage }
func (t *EditImageTool) Name() string { return EditImage.String() }

func (t *EditImageTool) Description() string {
	return "编辑已有图片。用户说'修改/改成/加上/去掉/编辑'时使用。不传 image_uri 时自动使用对话中最近生成的图片。"
}

func (t *EditImageTool) Parameters() map[string]any {
	params := optionParameters()
	params["prompt"] = map[string]any{
		"type":        "string",
		"description": "修改要求",
	}
	params["image_uri"] = map[string]any{
		"type":        "string",
		"description": "要编辑的图片地址（http(s) 或 data: URI），可选",
	}
	return params
}

func (t *EditImageTool) RequiredParameters() []string {
	return []string{"prompt"}
}

type editArgs struct {
	Prompt         string `json:"prompt"`
	ImageURI       string `json:"image_uri"`
	AspectRatio    string `json:"aspect_ratio"`
	ImageSize      string `json:"image_size"`
	ResponseFormat string `json:"response_format"`
}

func (a editArgs) options() imagesvc.Options {
	return imageArgs{AspectRatio: a.AspectRatio, ImageSize: a.ImageSize, ResponseFormat: a.ResponseFormat}.options()
}

func (t *EditImageTool) Execute(ctx context.Context, env Env, args map[string]any) Result {
	var in editArgs
	if err := decodeArgs(args, &in); err != nil {
		return Failure(NewError(KindValidation, "参数错误", err))
	}
	if e := checkPrompt(in.Prompt); e != nil {
		return Failure(e)
	}
	target, e := pickTarget(env, strings.TrimSpace(in.ImageURI))
	if e != nil {
		return Failure(e)
	}
	if e := checkConfigured(t.svc); e != nil {
		return Failure(e)
	}

	data, source, e := t.fetch(ctx, target)
	if e != nil {
		return Failure(e)
	}

	staged, err := stageImage(t.stagingDir, data)
	if err != nil {
		return Failure(NewError(KindInternal, "暂存图片失败", err))
	}
	defer staged.Release()

	slog.InfoContext(ctx, "Editing image", "source", source, "size", humanize.Bytes(uint64(len(data))), "mime", staged.Mime)

	resp, err := t.svc.Edit(ctx, imagesvc.EditRequest{
		Prompt:    strings.TrimSpace(in.Prompt),
		ImagePath: staged.Path,
		MimeType:  staged.Mime,
		Options:   in.options(),
	})
	if err != nil {
		return Failure(classify(err))
	}
	return finish(ctx, env, EditImage, resp)
}

// editTarget is either a uri to fetch or an inline base64 payload.
type editTarget struct {
	uri string
	b64 string
}

// pickTarget chooses the image to edit without touching the network: an
// explicit uri wins over the cache's latest reference.
func pickTarget(env Env, uri string) (editTarget, *Error) {
	if uri != "" {
		return editTarget{uri: uri}, nil
	}
	if env.Artifacts == nil {
		return editTarget{}, errNothingToEdit()
	}
	ref, ok := env.Artifacts.Latest()
	if !ok {
		return editTarget{}, errNothingToEdit()
	}
	if ref.URL == "" {
		return editTarget{b64: ref.B64JSON}, nil
	}
	return editTarget{uri: ref.URL}, nil
}

// fetch returns the bytes of the chosen image.
func (t *EditImageTool) fetch(ctx context.Context, target editTarget) ([]byte, string, *Error) {
	if target.uri == "" {
		data, err := imagesvc.DecodeBase64(target.b64)
		if err != nil {
			return nil, "", NewError(KindValidation, "缓存的图片数据无效", err)
		}
		return data, "cache:b64_json", nil
	}

	data, err := t.svc.Download(ctx, target.uri)
	if err != nil {
		return nil, "", classify(err)
	}
	if len(data) == 0 {
		return nil, "", NewError(KindUpstream, "下载的图片为空", nil)
	}
	return data, sourceLabel(target.uri), nil
}

func errNothingToEdit() *Error {
	return NewError(KindValidation, "没有可编辑的图片，请先生成图片或提供 image_uri", nil)
}

func sourceLabel(uri string) string {
	if strings.HasPrefix(uri, "data:") {
		return "data-uri"
	}
	return uri
}
