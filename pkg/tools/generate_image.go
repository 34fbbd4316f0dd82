package tools

import (
	"context"
	"strings"
)

// GenerateImageTool creates new images from a text prompt.
type GenerateImageTool struct {
	svc ImageService
}

func NewGenerateImageTool(svc ImageService) *GenerateImageTool {
	return &GenerateImageTool{svc: svc}
}

func (t *GenerateImageTool) ID() ToolID   { return GenerateImage }
func (t *GenerateImageTool) Name() string { return GenerateImage.String() }

func (t *GenerateImageTool) Description() string {
	return "根据文字描述生成新图片。用户说'生成/画/创建'时使用。返回 JSON，包含图片地址。"
}

func (t *GenerateImageTool) Parameters() map[string]any {
	params := optionParameters()
	params["prompt"] = map[string]any{
		"type":        "string",
		"description": "图片描述",
	}
	return params
}

func (t *GenerateImageTool) RequiredParameters() []string {
	return []string{"prompt"}
}

func (t *GenerateImageTool) Execute(ctx context.Context, env Env, args map[string]any) Result {
	var in imageArgs
	if err := decodeArgs(args, &in); err != nil {
		return Failure(NewError(KindValidation, "参数错误", err))
	}
	if e := checkPrompt(in.Prompt); e != nil {
		return Failure(e)
	}
	if e := checkConfigured(t.svc); e != nil {
		return Failure(e)
	}

	resp, err := t.svc.Generate(ctx, strings.TrimSpace(in.Prompt), in.options())
	if err != nil {
		return Failure(classify(err))
	}
	return finish(ctx, env, GenerateImage, resp)
}
