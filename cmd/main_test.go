package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/okian/aquascan/internal/config"
	"github.com/okian/aquascan/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// gradioStub answers the Gradio calls made during one analysis.
func gradioStub() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/config", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"dependencies":[{"api_name":"predict"}]}`)
	})
	mux.HandleFunc("/upload", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `["/tmp/f.png"]`)
	})
	mux.HandleFunc("/call/predict", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"event_id":"1"}`)
	})
	mux.HandleFunc("/call/predict/1", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "event: complete\ndata: [{\"ResNet18\":{\"predicted_class\":1,\"confidence\":0.7},\"MobileNetV2\":{\"predicted_class\":3,\"confidence\":0.65}}]\n\n")
	})
	return httptest.NewServer(mux)
}

func pngUpload(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()
	var img bytes.Buffer
	if err := png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatal(err)
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("image", "trout.png")
	_, _ = fw.Write(img.Bytes())
	_ = mw.Close()
	return &body, mw.FormDataContentType()
}

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When testing configuration loading", func() {
			_ = os.Setenv("AQUASCAN_ADDR", ":9090")
			_ = os.Setenv("AQUASCAN_MAX_IMAGE_DIMENSION", "512")
			_ = os.Setenv("AQUASCAN_MAX_IMAGE_PIXELS", "1000000")
			defer func() {
				_ = os.Unsetenv("AQUASCAN_ADDR")
				_ = os.Unsetenv("AQUASCAN_MAX_IMAGE_DIMENSION")
				_ = os.Unsetenv("AQUASCAN_MAX_IMAGE_PIXELS")
			}()

			convey.Convey("Then configuration should be loadable", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.MaxImageDimension, convey.ShouldEqual, 512)
				convey.So(cfg.MaxImagePixels, convey.ShouldEqual, 1_000_000)
			})
		})

		convey.Convey("When the space is reachable", func() {
			stub := gradioStub()
			defer stub.Close()

			cfg := config.New()
			cfg.SpaceURL = stub.URL
			svc := newService(cfg, logger.Get())
			convey.So(svc.Start(context.Background()), convey.ShouldBeNil)
			handler := newHandler(context.Background(), cfg, svc)

			convey.Convey("Then the status reports the space URL", func() {
				req := httptest.NewRequest("GET", "/api/v1/status", nil)
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, req)

				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Header().Get("X-Request-ID"), convey.ShouldNotBeEmpty)
				var st map[string]any
				convey.So(json.Unmarshal(w.Body.Bytes(), &st), convey.ShouldBeNil)
				convey.So(st["connected"], convey.ShouldEqual, true)
				convey.So(st["space"], convey.ShouldEqual, stub.URL)
			})

			convey.Convey("And an upload is analyzed end-to-end", func() {
				body, ct := pngUpload(t)
				req := httptest.NewRequest("POST", "/api/v1/analyze", body)
				req.Header.Set("Content-Type", ct)
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, req)

				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				var out struct {
					Ensemble struct {
						Label     string `json:"label"`
						Rationale string `json:"rationale"`
						Winner    string `json:"winner"`
					} `json:"ensemble"`
					Level string `json:"level"`
				}
				convey.So(json.Unmarshal(w.Body.Bytes(), &out), convey.ShouldBeNil)
				convey.So(out.Ensemble.Label, convey.ShouldEqual, "fish sea_food trout")
				convey.So(out.Ensemble.Rationale, convey.ShouldEqual, "SPLIT_VOTE_A")
				convey.So(out.Ensemble.Winner, convey.ShouldEqual, "ResNet18")
				convey.So(out.Level, convey.ShouldEqual, "High")
			})

			convey.Convey("And the dashboard and docs are served", func() {
				for _, path := range []string{"/", "/api-docs", "/openapi.yaml", "/healthz", "/stats", "/api/v1/labels"} {
					req := httptest.NewRequest("GET", path, nil)
					w := httptest.NewRecorder()
					handler.ServeHTTP(w, req)
					convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				}
			})
		})

		convey.Convey("When the space is unreachable", func() {
			stub := gradioStub()
			url := stub.URL
			stub.Close()

			cfg := config.New()
			cfg.SpaceURL = url
			svc := newService(cfg, logger.Get())
			convey.So(svc.Start(context.Background()), convey.ShouldBeNil)
			handler := newHandler(context.Background(), cfg, svc)

			convey.Convey("Then analyses are rejected with 503", func() {
				body, ct := pngUpload(t)
				req := httptest.NewRequest("POST", "/api/v1/analyze", body)
				req.Header.Set("Content-Type", ct)
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, req)

				convey.So(w.Code, convey.ShouldEqual, http.StatusServiceUnavailable)
				convey.So(w.Body.String(), convey.ShouldContainSubstring, "not_connected")
			})
		})
	})
}

func TestUpdateSystemMetrics(t *testing.T) {
	convey.Convey("Given the system metrics updater", t, func() {
		convey.Convey("Then a single update should not panic", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
		})

		convey.Convey("And the updater stops with its context", func() {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				startSystemMetricsUpdater(ctx)
				close(done)
			}()
			cancel()
			<-done
		})
	})
}
