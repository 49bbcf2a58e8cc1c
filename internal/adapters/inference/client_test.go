package inference

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testHub  = "https://hub.test"
	testHost = "https://fish.hf.test"
	testRepo = "owner/fish"
)

const testConfig = `{
	"version": "4.44.0",
	"api_prefix": "/gradio_api",
	"dependencies": [
		{"id": 0, "api_name": "lambda"},
		{"id": 1, "api_name": "predict"}
	]
}`

const testOutput = `[{"ResNet18": {"predicted_class": 4, "confidence": 0.91}, "MobileNetV2": {"predicted_class": 4, "confidence": 0.83}}]`

func newMock(t *testing.T) (*httpmock.MockTransport, *http.Client) {
	t.Helper()
	mt := httpmock.NewMockTransport()
	mt.RegisterResponder(http.MethodGet, testHub+"/api/spaces/"+testRepo+"/host",
		httpmock.NewStringResponder(http.StatusOK, `{"subdomain":"fish","host":"`+testHost+`"}`))
	mt.RegisterResponder(http.MethodGet, testHost+"/config",
		httpmock.NewStringResponder(http.StatusOK, testConfig))
	return mt, &http.Client{Transport: mt}
}

func registerCall(mt *httpmock.MockTransport, stream string) {
	mt.RegisterResponder(http.MethodPost, testHost+"/gradio_api/upload",
		httpmock.NewStringResponder(http.StatusOK, `["/tmp/gradio/abc/bass.png"]`))
	mt.RegisterResponder(http.MethodPost, testHost+"/gradio_api/call/predict",
		httpmock.NewStringResponder(http.StatusOK, `{"event_id":"ev-1"}`))
	mt.RegisterResponder(http.MethodGet, testHost+"/gradio_api/call/predict/ev-1",
		httpmock.NewStringResponder(http.StatusOK, stream))
}

func connect(t *testing.T, hc *http.Client, opts ...Option) *Client {
	t.Helper()
	base := []Option{WithHTTPClient(hc), WithHubURL(testHub), WithSpaceRepoID(testRepo), WithAPIName("/predict")}
	c, err := Connect(context.Background(), append(base, opts...)...)
	require.NoError(t, err)
	return c
}

func TestConnectResolvesHost(t *testing.T) {
	_, hc := newMock(t)
	c := connect(t, hc)

	assert.Equal(t, testHost, c.Host())
	assert.Equal(t, "/predict", c.Endpoint())
	assert.Equal(t, testRepo, c.Space())
	assert.Equal(t, "/gradio_api", c.prefix)
}

func TestConnectWithSpaceURL(t *testing.T) {
	mt := httpmock.NewMockTransport()
	mt.RegisterResponder(http.MethodGet, "http://localhost:7860/config",
		httpmock.NewStringResponder(http.StatusOK, `{"dependencies":[{"api_name":"predict"}]}`))

	c, err := Connect(context.Background(),
		WithHTTPClient(&http.Client{Transport: mt}),
		WithSpaceURL("http://localhost:7860/"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:7860", c.Host())
	assert.Equal(t, "", c.prefix)
	assert.Equal(t, 1, mt.NumResponders())
}

func TestConnectFailures(t *testing.T) {
	t.Run("host lookup fails", func(t *testing.T) {
		mt := httpmock.NewMockTransport()
		mt.RegisterResponder(http.MethodGet, testHub+"/api/spaces/"+testRepo+"/host",
			httpmock.NewStringResponder(http.StatusNotFound, `{"error":"Repository not found"}`))

		_, err := Connect(context.Background(), WithHTTPClient(&http.Client{Transport: mt}),
			WithHubURL(testHub), WithSpaceRepoID(testRepo))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrConnect))
		assert.Contains(t, err.Error(), "404")
	})

	t.Run("endpoint missing", func(t *testing.T) {
		mt := httpmock.NewMockTransport()
		mt.RegisterResponder(http.MethodGet, testHub+"/api/spaces/"+testRepo+"/host",
			httpmock.NewStringResponder(http.StatusOK, `{"host":"`+testHost+`"}`))
		mt.RegisterResponder(http.MethodGet, testHost+"/config",
			httpmock.NewStringResponder(http.StatusOK, `{"dependencies":[{"api_name":"classify"}]}`))

		_, err := Connect(context.Background(), WithHTTPClient(&http.Client{Transport: mt}),
			WithHubURL(testHub), WithSpaceRepoID(testRepo))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrConnect))
		assert.Contains(t, err.Error(), "/predict")
	})

	t.Run("network error", func(t *testing.T) {
		mt := httpmock.NewMockTransport()
		mt.RegisterResponder(http.MethodGet, testHub+"/api/spaces/"+testRepo+"/host",
			httpmock.NewErrorResponder(errors.New("dial tcp: no route to host")))

		_, err := Connect(context.Background(), WithHTTPClient(&http.Client{Transport: mt}),
			WithHubURL(testHub), WithSpaceRepoID(testRepo))
		assert.True(t, errors.Is(err, ErrConnect))
	})

	t.Run("nothing configured", func(t *testing.T) {
		_, err := Connect(context.Background(), WithSpaceRepoID(""))
		assert.True(t, errors.Is(err, ErrConnect))
	})
}

func TestInferHappyPath(t *testing.T) {
	mt, hc := newMock(t)
	registerCall(mt, "event: generating\ndata: null\n\nevent: heartbeat\ndata: null\n\nevent: complete\ndata: "+testOutput+"\n\n")

	var sent map[string]any
	mt.RegisterResponder(http.MethodPost, testHost+"/gradio_api/call/predict",
		func(req *http.Request) (*http.Response, error) {
			body, _ := io.ReadAll(req.Body)
			if err := json.Unmarshal(body, &sent); err != nil {
				return nil, err
			}
			return httpmock.NewStringResponse(http.StatusOK, `{"event_id":"ev-1"}`), nil
		})

	c := connect(t, hc)
	out, err := c.Infer(context.Background(), Image{Filename: "bass.png", Data: []byte("png-bytes")})
	require.NoError(t, err)

	assert.Equal(t, "ResNet18", out.ResNet18.ModelName)
	assert.Equal(t, 4, out.ResNet18.ClassIndex)
	assert.InDelta(t, 0.91, out.ResNet18.Confidence, 1e-9)
	assert.Equal(t, "MobileNetV2", out.MobileNetV2.ModelName)
	assert.InDelta(t, 0.83, out.MobileNetV2.Confidence, 1e-9)

	data := sent["data"].([]any)
	require.Len(t, data, 1)
	file := data[0].(map[string]any)
	assert.Equal(t, "/tmp/gradio/abc/bass.png", file["path"])
	assert.Equal(t, "bass.png", file["orig_name"])
	assert.Equal(t, "gradio.FileData", file["meta"].(map[string]any)["_type"])
}

func TestInferUploadsMultipart(t *testing.T) {
	mt, hc := newMock(t)
	registerCall(mt, "event: complete\ndata: "+testOutput+"\n\n")

	var name string
	var payload []byte
	mt.RegisterResponder(http.MethodPost, testHost+"/gradio_api/upload",
		func(req *http.Request) (*http.Response, error) {
			f, hdr, err := req.FormFile("files")
			if err != nil {
				return nil, err
			}
			defer f.Close()
			name = hdr.Filename
			payload, _ = io.ReadAll(f)
			return httpmock.NewStringResponse(http.StatusOK, `["/tmp/x.png"]`), nil
		})

	c := connect(t, hc)
	_, err := c.Infer(context.Background(), Image{Filename: "bass.png", Data: []byte{1, 2, 3}})
	require.NoError(t, err)

	assert.Equal(t, "bass.png", name)
	assert.Equal(t, []byte{1, 2, 3}, payload)
}

func TestInferFailures(t *testing.T) {
	cases := []struct {
		name   string
		stream string
		is     error
		substr string
	}{
		{"remote error event", "event: error\ndata: \"CUDA out of memory\"\n\n", ErrTransport, "CUDA out of memory"},
		{"remote error without detail", "event: error\ndata: null\n\n", ErrTransport, "remote app reported an error"},
		{"stream ends early", "event: generating\ndata: null\n\n", ErrTransport, "without a result"},
		{"empty stream", "", ErrTransport, "without a result"},
		{"malformed output", "event: complete\ndata: [\"oops\"]\n\n", ErrParse, "result object"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mt, hc := newMock(t)
			registerCall(mt, tc.stream)
			c := connect(t, hc)

			_, err := c.Infer(context.Background(), Image{Filename: "bass.png", Data: []byte("x")})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.is), "got %v", err)
			assert.Contains(t, err.Error(), tc.substr)
		})
	}
}

func TestInferParseErrorCarriesRaw(t *testing.T) {
	mt, hc := newMock(t)
	raw := `[{"ResNet18": {"predicted_class": "four", "confidence": 0.9}, "MobileNetV2": {"predicted_class": 1, "confidence": 0.2}}]`
	registerCall(mt, "event: complete\ndata: "+raw+"\n\n")
	c := connect(t, hc)

	_, err := c.Infer(context.Background(), Image{Filename: "bass.png", Data: []byte("x")})
	require.Error(t, err)

	got, ok := RawResponse(err)
	require.True(t, ok)
	assert.Equal(t, raw, got)
}

func TestInferTransportErrors(t *testing.T) {
	t.Run("upload rejected", func(t *testing.T) {
		mt, hc := newMock(t)
		registerCall(mt, "")
		mt.RegisterResponder(http.MethodPost, testHost+"/gradio_api/upload",
			httpmock.NewStringResponder(http.StatusInternalServerError, "boom"))
		c := connect(t, hc)

		_, err := c.Infer(context.Background(), Image{Filename: "a.png", Data: []byte("x")})
		assert.True(t, errors.Is(err, ErrTransport))
		assert.Contains(t, err.Error(), "500")
		assert.Equal(t, 0, mt.GetCallCountInfo()["POST "+testHost+"/gradio_api/call/predict"])
	})

	t.Run("connection drops", func(t *testing.T) {
		mt, hc := newMock(t)
		registerCall(mt, "")
		mt.RegisterResponder(http.MethodPost, testHost+"/gradio_api/call/predict",
			httpmock.NewErrorResponder(errors.New("connection reset by peer")))
		c := connect(t, hc)

		_, err := c.Infer(context.Background(), Image{Filename: "a.png", Data: []byte("x")})
		assert.True(t, errors.Is(err, ErrTransport))
		assert.Contains(t, err.Error(), "connection reset")
	})

	t.Run("no retries", func(t *testing.T) {
		mt, hc := newMock(t)
		registerCall(mt, "event: error\ndata: null\n\n")
		c := connect(t, hc)

		_, _ = c.Infer(context.Background(), Image{Filename: "a.png", Data: []byte("x")})
		assert.Equal(t, 1, mt.GetCallCountInfo()["POST "+testHost+"/gradio_api/upload"])
		assert.Equal(t, 1, mt.GetCallCountInfo()["POST "+testHost+"/gradio_api/call/predict"])
	})
}

func TestInferTimeout(t *testing.T) {
	mt, hc := newMock(t)
	registerCall(mt, "")
	mt.RegisterResponder(http.MethodPost, testHost+"/gradio_api/upload",
		func(req *http.Request) (*http.Response, error) {
			<-req.Context().Done()
			return nil, req.Context().Err()
		})
	c := connect(t, hc, WithTimeout(20*time.Millisecond))

	_, err := c.Infer(context.Background(), Image{Filename: "a.png", Data: []byte("x")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.True(t, strings.Contains(err.Error(), "deadline"))
}
