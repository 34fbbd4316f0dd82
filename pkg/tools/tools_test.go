package tools

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"imagent/pkg/artifact"
	"imagent/pkg/imagesvc"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

// fakeService records calls and answers from the configured hooks.
type fakeService struct {
	settings imagesvc.Settings

	generate func(prompt string, opts imagesvc.Options) (*imagesvc.Response, error)
	edit     func(req imagesvc.EditRequest) (*imagesvc.Response, error)
	download func(uri string) ([]byte, error)

	generateCalls int
	editCalls     int
	downloads     []string
}

func newFakeService() *fakeService {
	return &fakeService{settings: imagesvc.Settings{BaseURL: "http://img", APIKey: "sk", Model: "nano-banana-2"}}
}

func (f *fakeService) Settings() imagesvc.Settings { return f.settings }

func (f *fakeService) Generate(_ context.Context, prompt string, opts imagesvc.Options) (*imagesvc.Response, error) {
	f.generateCalls++
	return f.generate(prompt, opts)
}

func (f *fakeService) Edit(_ context.Context, req imagesvc.EditRequest) (*imagesvc.Response, error) {
	f.editCalls++
	return f.edit(req)
}

func (f *fakeService) Download(_ context.Context, uri string) ([]byte, error) {
	f.downloads = append(f.downloads, uri)
	if f.download == nil {
		return pngHeader, nil
	}
	return f.download(uri)
}

func (f *fakeService) networkCalls() int {
	return f.generateCalls + f.editCalls + len(f.downloads)
}

func refsResponse(urls ...string) *imagesvc.Response {
	resp := &imagesvc.Response{Body: []byte(`{"data":[]}`)}
	for _, u := range urls {
		resp.Refs = append(resp.Refs, artifact.Reference{URL: u})
	}
	return resp
}

func newEnv() Env {
	return Env{SessionID: "s1", Artifacts: artifact.NewCache()}
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "staging files left behind")
}

func TestParseToolID(t *testing.T) {
	id, ok := ParseToolID("generate_image")
	assert.True(t, ok)
	assert.Equal(t, GenerateImage, id)

	id, ok = ParseToolID(" functions.edit_image ")
	assert.True(t, ok)
	assert.Equal(t, EditImage, id)

	_, ok = ParseToolID("delete_image")
	assert.False(t, ok)
	assert.Equal(t, "unknown", ToolID(99).String())
}

func TestRegistry(t *testing.T) {
	svc := newFakeService()
	r := NewRegistry(NewEditImageTool(svc, ""), NewGenerateImageTool(svc))

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "generate_image", all[0].Name())
	assert.Equal(t, "edit_image", all[1].Name())
	assert.Len(t, r.Schemas(), 2)

	tool, ok := r.Lookup("functions.generate_image")
	require.True(t, ok)
	assert.Equal(t, GenerateImage, tool.ID())

	_, ok = r.Lookup("nope")
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	tool := NewGenerateImageTool(newFakeService())

	assert.NoError(t, Validate(tool, map[string]any{"prompt": "cat", "aspect_ratio": "16:9", "extra": 1.0}))
	assert.NoError(t, Validate(tool, map[string]any{"prompt": "cat", "image_size": ""}))
	assert.ErrorContains(t, Validate(tool, map[string]any{}), "missing required field: prompt")
	assert.ErrorContains(t, Validate(tool, map[string]any{"prompt": 3.0}), "expected string")
	assert.ErrorContains(t, Validate(tool, map[string]any{"prompt": "cat", "image_size": "8K"}), "not one of")

	// null optional fields are treated as omitted, a null required one is not
	assert.NoError(t, Validate(tool, map[string]any{"prompt": "cat", "aspect_ratio": nil, "image_size": nil}))
	assert.ErrorContains(t, Validate(tool, map[string]any{"prompt": nil}), "expected string")
}

func TestEditNullImageURIUsesCache(t *testing.T) {
	svc := newFakeService()
	svc.edit = func(imagesvc.EditRequest) (*imagesvc.Response, error) {
		return refsResponse("https://img/edited.png"), nil
	}
	env := newEnv()
	env.Artifacts.Replace([]artifact.Reference{{URL: "http://x/cat.png"}})
	tool := NewEditImageTool(svc, t.TempDir())

	args, err := ParseArguments(`{"prompt":"blue","image_uri":null}`)
	require.NoError(t, err)
	require.NoError(t, Validate(tool, args))

	res := tool.Execute(context.Background(), env, args)
	require.False(t, res.Failed(), res.Content())
	assert.Equal(t, []string{"http://x/cat.png"}, svc.downloads)
	assert.Equal(t, []string{"https://img/edited.png"}, env.Artifacts.URLs())
}

func TestParseArguments(t *testing.T) {
	args, err := ParseArguments("")
	require.NoError(t, err)
	assert.Empty(t, args)

	args, err = ParseArguments(`{"prompt":"cat"}`)
	require.NoError(t, err)
	assert.Equal(t, "cat", args["prompt"])

	_, err = ParseArguments(`{"prompt":`)
	assert.Error(t, err)
	_, err = ParseArguments(`[1,2]`)
	assert.Error(t, err)
}

func TestResultContent(t *testing.T) {
	assert.Equal(t, "ok", Result{Text: "ok"}.Content())

	r := Failure(NewError(KindTransient, "请求图片服务失败", errors.New("dial tcp: refused")))
	assert.True(t, r.Failed())
	assert.JSONEq(t, `{"error":"请求图片服务失败: dial tcp: refused","kind":"transient"}`, r.Content())
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindConfiguration, classify(imagesvc.ErrNotConfigured).Kind)
	assert.Equal(t, KindUpstream, classify(&imagesvc.StatusError{Code: 500, Body: "boom"}).Kind)
	assert.Contains(t, classify(&imagesvc.StatusError{Code: 500, Body: "boom"}).Message, "HTTP 500")
	assert.Equal(t, KindValidation, classify(imagesvc.ErrUnsupportedURI).Kind)
	assert.Equal(t, KindUpstream, classify(fmt.Errorf("read image body: %w", imagesvc.ErrBodyTooLarge)).Kind)
	assert.Equal(t, KindTransient, classify(context.DeadlineExceeded).Kind)
	assert.Equal(t, KindTransient, classify(errors.New("reset")).Kind)
}

func TestGenerateReplacesCache(t *testing.T) {
	svc := newFakeService()
	svc.generate = func(prompt string, opts imagesvc.Options) (*imagesvc.Response, error) {
		assert.Equal(t, "a cat", prompt)
		assert.Equal(t, "1:1", opts.AspectRatio)
		return refsResponse("https://img/a.png", "https://img/b.png"), nil
	}
	env := newEnv()
	env.Artifacts.Replace([]artifact.Reference{{URL: "https://img/old.png"}})

	res := NewGenerateImageTool(svc).Execute(context.Background(), env, map[string]any{"prompt": " a cat ", "aspect_ratio": "1:1"})
	require.False(t, res.Failed(), res.Content())
	assert.Equal(t, []string{"https://img/a.png", "https://img/b.png"}, env.Artifacts.URLs())
	assert.JSONEq(t, `{"status":"ok","count":2,"images":[{"url":"https://img/a.png"},{"url":"https://img/b.png"}]}`, res.Content())
}

func TestGenerateUnexpectedBodyKeepsCache(t *testing.T) {
	svc := newFakeService()
	svc.generate = func(string, imagesvc.Options) (*imagesvc.Response, error) {
		return &imagesvc.Response{Body: []byte(`{"message":"queued"}`)}, nil
	}
	env := newEnv()
	env.Artifacts.Replace([]artifact.Reference{{URL: "https://img/old.png"}})

	res := NewGenerateImageTool(svc).Execute(context.Background(), env, map[string]any{"prompt": "cat"})
	assert.False(t, res.Failed())
	assert.Equal(t, `{"message":"queued"}`, res.Content())
	assert.Equal(t, []string{"https://img/old.png"}, env.Artifacts.URLs())
}

func TestGenerateFailures(t *testing.T) {
	svc := newFakeService()
	svc.generate = func(string, imagesvc.Options) (*imagesvc.Response, error) {
		return nil, &imagesvc.StatusError{Code: 429, Body: "slow down"}
	}
	tool := NewGenerateImageTool(svc)
	env := newEnv()

	res := tool.Execute(context.Background(), env, map[string]any{"prompt": "   "})
	require.True(t, res.Failed())
	assert.Equal(t, KindValidation, res.Err.Kind)
	assert.Equal(t, "prompt 不能为空", res.Err.Message)

	res = tool.Execute(context.Background(), env, map[string]any{"prompt": "cat"})
	require.True(t, res.Failed())
	assert.Equal(t, KindUpstream, res.Err.Kind)
	assert.Equal(t, 0, env.Artifacts.Len())

	svc.settings.APIKey = ""
	res = tool.Execute(context.Background(), env, map[string]any{"prompt": "cat"})
	require.True(t, res.Failed())
	assert.Equal(t, KindConfiguration, res.Err.Kind)
	assert.Equal(t, 1, svc.generateCalls)
}

func TestEditEmptyCacheNoNetwork(t *testing.T) {
	svc := newFakeService()
	res := NewEditImageTool(svc, t.TempDir()).Execute(context.Background(), newEnv(), map[string]any{"prompt": "blue"})

	require.True(t, res.Failed())
	assert.Equal(t, KindValidation, res.Err.Kind)
	assert.Contains(t, res.Err.Message, "没有可编辑的图片")
	assert.Equal(t, 0, svc.networkCalls())
}

func TestEditEmptyCacheUnconfiguredNothingToEdit(t *testing.T) {
	svc := newFakeService()
	svc.settings = imagesvc.Settings{}

	res := NewEditImageTool(svc, t.TempDir()).Execute(context.Background(), newEnv(), map[string]any{"prompt": "blue"})
	require.True(t, res.Failed())
	assert.Equal(t, KindValidation, res.Err.Kind)
	assert.Contains(t, res.Err.Message, "没有可编辑的图片")
	assert.Equal(t, 0, svc.networkCalls())
}

func TestEditNotConfiguredNoNetwork(t *testing.T) {
	svc := newFakeService()
	svc.settings.BaseURL = ""
	env := newEnv()
	env.Artifacts.Replace([]artifact.Reference{{URL: "https://img/a.png"}})

	res := NewEditImageTool(svc, t.TempDir()).Execute(context.Background(), env, map[string]any{"prompt": "blue"})
	require.True(t, res.Failed())
	assert.Equal(t, KindConfiguration, res.Err.Kind)
	assert.Equal(t, 0, svc.networkCalls())
}

func TestEditUsesLatestAndReleasesStaging(t *testing.T) {
	dir := t.TempDir()
	svc := newFakeService()
	svc.edit = func(req imagesvc.EditRequest) (*imagesvc.Response, error) {
		assert.Equal(t, dir, filepath.Dir(req.ImagePath))
		assert.Regexp(t, `imagent-edit-.*\.png$`, filepath.Base(req.ImagePath))
		assert.Equal(t, "image/png", req.MimeType)
		assert.Equal(t, "blue background", req.Prompt)
		data, err := os.ReadFile(req.ImagePath)
		require.NoError(t, err)
		assert.Equal(t, pngHeader, data)
		return refsResponse("https://img/edited.png"), nil
	}
	env := newEnv()
	env.Artifacts.Replace([]artifact.Reference{{URL: "https://img/a.png"}, {URL: "https://img/b.png"}})

	res := NewEditImageTool(svc, dir).Execute(context.Background(), env, map[string]any{"prompt": "blue background"})
	require.False(t, res.Failed(), res.Content())
	assert.Equal(t, []string{"https://img/a.png"}, svc.downloads)
	assert.Equal(t, []string{"https://img/edited.png"}, env.Artifacts.URLs())
	assertDirEmpty(t, dir)
}

func TestEditExplicitURIWins(t *testing.T) {
	svc := newFakeService()
	svc.edit = func(imagesvc.EditRequest) (*imagesvc.Response, error) {
		return refsResponse("https://img/edited.png"), nil
	}
	env := newEnv()
	env.Artifacts.Replace([]artifact.Reference{{URL: "https://img/cached.png"}})

	res := NewEditImageTool(svc, t.TempDir()).Execute(context.Background(), env, map[string]any{
		"prompt":    "blue",
		"image_uri": "https://elsewhere/dog.png",
	})
	require.False(t, res.Failed(), res.Content())
	assert.Equal(t, []string{"https://elsewhere/dog.png"}, svc.downloads)
}

func TestEditInlineCacheEntry(t *testing.T) {
	svc := newFakeService()
	svc.edit = func(req imagesvc.EditRequest) (*imagesvc.Response, error) {
		data, err := os.ReadFile(req.ImagePath)
		require.NoError(t, err)
		assert.Equal(t, pngHeader, data)
		return refsResponse("https://img/edited.png"), nil
	}
	env := newEnv()
	env.Artifacts.Replace([]artifact.Reference{{B64JSON: base64.StdEncoding.EncodeToString(pngHeader)}})

	res := NewEditImageTool(svc, t.TempDir()).Execute(context.Background(), env, map[string]any{"prompt": "blue"})
	require.False(t, res.Failed(), res.Content())
	assert.Empty(t, svc.downloads)
}

func TestEditUploadFailureReleasesStaging(t *testing.T) {
	dir := t.TempDir()
	svc := newFakeService()
	svc.edit = func(imagesvc.EditRequest) (*imagesvc.Response, error) {
		return nil, &imagesvc.StatusError{Code: 500, Body: "internal"}
	}
	env := newEnv()
	env.Artifacts.Replace([]artifact.Reference{{URL: "https://img/a.png"}})

	res := NewEditImageTool(svc, dir).Execute(context.Background(), env, map[string]any{"prompt": "blue"})
	require.True(t, res.Failed())
	assert.Equal(t, KindUpstream, res.Err.Kind)
	assert.Equal(t, []string{"https://img/a.png"}, env.Artifacts.URLs())
	assertDirEmpty(t, dir)
}

func TestEditPanicReleasesStaging(t *testing.T) {
	dir := t.TempDir()
	svc := newFakeService()
	var staged string
	svc.edit = func(req imagesvc.EditRequest) (*imagesvc.Response, error) {
		staged = req.ImagePath
		panic("upload exploded")
	}
	env := newEnv()
	env.Artifacts.Replace([]artifact.Reference{{URL: "https://img/a.png"}})

	assert.PanicsWithValue(t, "upload exploded", func() {
		NewEditImageTool(svc, dir).Execute(context.Background(), env, map[string]any{"prompt": "blue"})
	})
	require.NotEmpty(t, staged)
	assert.NoFileExists(t, staged)
	assertDirEmpty(t, dir)
}

func TestEditDownloadFailure(t *testing.T) {
	dir := t.TempDir()
	svc := newFakeService()
	svc.download = func(string) ([]byte, error) {
		return nil, &imagesvc.StatusError{Code: 404, Body: "gone"}
	}
	env := newEnv()
	env.Artifacts.Replace([]artifact.Reference{{URL: "https://img/a.png"}})

	res := NewEditImageTool(svc, dir).Execute(context.Background(), env, map[string]any{"prompt": "blue"})
	require.True(t, res.Failed())
	assert.Equal(t, KindUpstream, res.Err.Kind)
	assert.Equal(t, 0, svc.editCalls)
	assertDirEmpty(t, dir)
}

func TestStagedFileReleaseOnce(t *testing.T) {
	dir := t.TempDir()
	s, err := stageImage(dir, []byte("\xff\xd8\xff\xe0 jpeg"))
	require.NoError(t, err)
	assert.Equal(t, ".jpg", filepath.Ext(s.Path))
	assert.FileExists(t, s.Path)

	assert.NoError(t, s.Release())
	assert.NoError(t, s.Release())
	assert.NoFileExists(t, s.Path)
}
