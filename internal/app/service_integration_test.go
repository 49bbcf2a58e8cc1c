package service_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/aquascan/internal/adapters/inference"
	service "github.com/okian/aquascan/internal/app"
	"github.com/okian/aquascan/internal/domain/ensemble"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeSpace serves the subset of the Gradio HTTP API the client uses.
func fakeSpace(result string, uploads *atomic.Int32) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /config", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"api_prefix":"/gradio_api","dependencies":[{"api_name":"predict"}]}`)
	})
	mux.HandleFunc("POST /gradio_api/upload", func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := r.FormFile("files"); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		uploads.Add(1)
		fmt.Fprint(w, `["/tmp/gradio/1/upload.png"]`)
	})
	mux.HandleFunc("POST /gradio_api/call/predict", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"event_id":"e1"}`)
	})
	mux.HandleFunc("GET /gradio_api/call/predict/e1", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: heartbeat\ndata: null\n\n")
		fmt.Fprint(w, result)
	})
	return httptest.NewServer(mux)
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given a service connected to a live space", t, func() {
		var uploads atomic.Int32
		srv := fakeSpace("event: complete\ndata: [{\"ResNet18\":{\"predicted_class\":10,\"confidence\":0.97},\"MobileNetV2\":{\"predicted_class\":10,\"confidence\":0.93}}]\n\n", &uploads)
		defer srv.Close()

		svc := service.New(
			service.WithSpace(srv.URL, "/predict"),
			service.WithConnector(func(ctx context.Context) (inference.Collaborator, error) {
				return inference.Connect(ctx, inference.WithSpaceURL(srv.URL), inference.WithAPIName("/predict"))
			}),
		)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)

		Convey("Then the status reports the resolved host", func() {
			st := svc.Status()
			So(st.Connected, ShouldBeTrue)
			So(st.Host, ShouldEqual, srv.URL)
		})

		Convey("When an image is analyzed end-to-end", func() {
			a, err := svc.Analyze(ctx, "seabass.png", pngBytes(16, 16))

			Convey("Then both models agree on sea bass", func() {
				So(err, ShouldBeNil)
				So(uploads.Load(), ShouldEqual, 1)
				So(a.Ensemble.Rationale, ShouldEqual, ensemble.Consensus)
				So(a.Ensemble.Label, ShouldEqual, "fish sea_food sea_bass")
				So(a.Ensemble.Confidence, ShouldAlmostEqual, 0.95, 1e-9)
				So(a.Level, ShouldEqual, ensemble.LevelVeryHigh)
			})
		})
	})

	Convey("Given a space that reports an error", t, func() {
		var uploads atomic.Int32
		srv := fakeSpace("event: error\ndata: \"model crashed\"\n\n", &uploads)
		defer srv.Close()

		svc := service.New(service.WithConnector(func(ctx context.Context) (inference.Collaborator, error) {
			return inference.Connect(ctx, inference.WithSpaceURL(srv.URL))
		}))
		So(svc.Start(context.Background()), ShouldBeNil)

		Convey("When an image is analyzed", func() {
			_, err := svc.Analyze(context.Background(), "x.png", pngBytes(4, 4))

			Convey("Then a transport error carrying the remote message is returned", func() {
				So(errors.Is(err, inference.ErrTransport), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "model crashed")
			})
		})
	})

	Convey("Given a space that cannot be reached", t, func() {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		svc := service.New(service.WithConnector(func(ctx context.Context) (inference.Collaborator, error) {
			return inference.Connect(ctx, inference.WithSpaceURL(url))
		}))
		So(svc.Start(context.Background()), ShouldBeNil)

		Convey("Then the connection error is sticky", func() {
			st := svc.Status()
			So(st.Connected, ShouldBeFalse)
			So(st.Reason, ShouldContainSubstring, "connect to inference space failed")

			_, err := svc.Analyze(context.Background(), "x.png", pngBytes(4, 4))
			So(errors.Is(err, inference.ErrNotConnected), ShouldBeTrue)
		})
	})
}
