package cli

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/opd-ai/mediax/metrics"
	"github.com/opd-ai/mediax/stream"
)

// ShutdownTimeout bounds the graceful shutdown of the status server.
const ShutdownTimeout = 10 * time.Second

// StreamLister returns the streams a tool currently knows about.
type StreamLister func() []stream.Info

// StreamView is the JSON form of a stream.Info.
type StreamView struct {
	Name      string `json:"name"`
	Address   string `json:"address"`
	Height    uint32 `json:"height"`
	Width     uint32 `json:"width"`
	Framerate uint32 `json:"framerate"`
	Encoding  string `json:"encoding"`
	Multicast bool   `json:"multicast"`
	Deleted   bool   `json:"deleted"`
}

func viewOf(info stream.Info) StreamView {
	return StreamView{
		Name:      info.SessionName,
		Address:   info.Address(),
		Height:    info.Height,
		Width:     info.Width,
		Framerate: info.Framerate,
		Encoding:  info.Encoding.String(),
		Multicast: info.IsMulticast(),
		Deleted:   info.Deleted,
	}
}

// NewRouter builds the status routes: /metrics, /streams and /streams/{name}.
func NewRouter(met *metrics.Metrics, streams StreamLister) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", met.Handler(func() {
		active := 0
		for _, s := range streams() {
			if !s.Deleted {
				active++
			}
		}
		met.SetActiveStreams(active)
	}))
	r.Get("/streams", func(w http.ResponseWriter, r *http.Request) {
		list := streams()
		views := make([]StreamView, 0, len(list))
		for _, s := range list {
			views = append(views, viewOf(s))
		}
		sort.Slice(views, func(i, j int) bool { return views[i].Name < views[j].Name })
		writeJSON(w, http.StatusOK, views)
	})
	r.Get("/streams/{name}", func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		for _, s := range streams() {
			if s.SessionName == name {
				writeJSON(w, http.StatusOK, viewOf(s))
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "stream not found"})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "writeJSON",
		}).WithError(err).Warn("Failed to encode status response")
	}
}

// Serve runs an HTTP server on addr until ctx is done, then shuts it down
// gracefully. It returns nil after a clean shutdown.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logrus.WithFields(logrus.Fields{
			"function": "Serve",
			"address":  addr,
		}).Info("Status server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
