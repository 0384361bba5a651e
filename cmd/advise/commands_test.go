package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"cropguide/backend/internal/agronomy"
	"cropguide/backend/internal/config"
	"cropguide/backend/internal/model"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 16)...)

func fakeFactory(answer model.ClientFunc) clientFactory {
	return func(context.Context, config.Model) (model.Client, error) {
		return answer, nil
	}
}

func execute(t *testing.T, factory clientFactory, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(factory)
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeImage(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, pngBytes, 0o644))
	return path
}

func TestAsk(t *testing.T) {
	factory := fakeFactory(func(_ context.Context, req *model.Request) (*model.Response, error) {
		if req.Flow != agronomy.FlowCropQuestion || !strings.Contains(req.Prompt, "is neem oil safe") {
			return nil, errors.New("unexpected request")
		}
		return &model.Response{Value: map[string]any{"answer": "Yes, in moderation."}}, nil
	})

	out, err := execute(t, factory, "ask", "is", "neem", "oil", "safe")
	require.NoError(t, err)
	assert.JSONEq(t, `{"answer":"Yes, in moderation."}`, out)
}

func TestGrowth_YAMLOutput(t *testing.T) {
	var seen []byte
	factory := fakeFactory(func(_ context.Context, req *model.Request) (*model.Response, error) {
		if len(req.Media) == 1 {
			seen = req.Media[0].Data
		}
		return &model.Response{Value: map[string]any{"growthStage": "flowering", "analysis": "Healthy."}}, nil
	})

	out, err := execute(t, factory, "growth", writeImage(t, "plot.png"), "-o", "yaml")
	require.NoError(t, err)
	assert.Equal(t, pngBytes, seen)

	var parsed map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &parsed))
	assert.Equal(t, "flowering", parsed["growthStage"])
}

func TestDisease_RejectsNonImageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("not a photo"), 0o644))

	called := false
	factory := fakeFactory(func(context.Context, *model.Request) (*model.Response, error) {
		called = true
		return nil, errors.New("unexpected call")
	})

	_, err := execute(t, factory, "disease", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "photoDataUri")
	assert.False(t, called)
}

func TestCrops_RequiresLandFlags(t *testing.T) {
	_, err := execute(t, fakeFactory(nil), "crops", writeImage(t, "land.png"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "land-size")
}

func TestFarm(t *testing.T) {
	factory := fakeFactory(func(_ context.Context, req *model.Request) (*model.Response, error) {
		return &model.Response{Value: map[string]any{"growthStage": "vegetative", "analysis": "Even stand."}}, nil
	})

	out, err := execute(t, factory, "farm", "--land-size", "2", "--irrigation", "drip",
		"--crop", "maize="+writeImage(t, "maize.png"))
	require.NoError(t, err)

	var report agronomy.FarmReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Crops, 1)
	assert.Equal(t, "maize", report.Crops[0].Name)
	assert.Equal(t, "vegetative", report.Crops[0].Growth.GrowthStage)

	out, err = execute(t, factory, "farm", "--land-size", "2", "--irrigation", "drip", "--crop", "maize")
	require.NoError(t, err)
	var unphotographed agronomy.FarmReport
	require.NoError(t, json.Unmarshal([]byte(out), &unphotographed))
	require.Len(t, unphotographed.Crops, 1)
	assert.Nil(t, unphotographed.Crops[0].Growth)
	assert.Equal(t, agronomy.NoCropPhoto, unphotographed.Crops[0].Error)

	_, err = execute(t, factory, "farm", "--land-size", "2", "--irrigation", "drip", "--crop", "maize=")
	assert.ErrorContains(t, err, "expected name or name=image")
}

func TestUnsupportedOutputFormat(t *testing.T) {
	_, err := execute(t, fakeFactory(nil), "ask", "hello", "-o", "xml")
	assert.ErrorContains(t, err, "unsupported output format")
}
