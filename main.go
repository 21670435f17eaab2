package main

import (
	"context"
	"flag"
	"imagedesk/config"
	"imagedesk/core"
	"imagedesk/editor"
	"imagedesk/files"
	"imagedesk/handlers/api/images"
	"imagedesk/handlers/api/sessions"
	"imagedesk/handlers/websocket"
	"imagedesk/stores"
	"imagedesk/upload"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

// collaborators are the file service contracts the editor depends on.
type collaborators interface {
	ListImages(ctx context.Context, owner core.Owner) ([]core.ImageInfo, error)
	editor.PixelSource
	upload.Protocol
}

func newCollaborators(cfg *config.Config, svc *files.Service) collaborators {
	if cfg.FilesAPIURL != "" {
		logrus.WithField("url", cfg.FilesAPIURL).Info("Editor uses remote file service")
		return files.NewClient(cfg.FilesAPIURL, nil)
	}
	return files.NewLocal(svc)
}

func editorDefaults(cfg *config.Config) editor.Options {
	return editor.Options{
		ExportScale:  cfg.ExportScale,
		Format:       cfg.ExportFormat,
		JPEGQuality:  cfg.JPEGQuality,
		PreviewWidth: cfg.PreviewWidth,
	}
}

func setupRouter(svc *files.Service, mgr *editor.Manager) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length", "Origin", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		images.Routes(r, svc)
		sessions.Routes(r, mgr)
	})
	return r
}

func waitForShutdown(srv *http.Server, hub *websocket.Hub) {
	signalC := make(chan os.Signal, 1)
	signal.Notify(signalC, os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	s := <-signalC
	logrus.WithField("signal", s.String()).Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	hub.Server().Close(nil)
	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("Server shutdown failed")
	}
}

func main() {
	listenAddress := flag.String("listen", ":3002", "The address to listen on.")
	logLevel := flag.String("loglevel", "info", "The log level (debug, info, warn, error).")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	cfg := config.Load()
	store := stores.GetStore(cfg)

	svc := files.NewService(store, files.NewTokenSigner(cfg.UploadTokenSecret), files.Options{
		PublicBaseURL:  cfg.PublicBaseURL,
		SlotTTL:        cfg.UploadTokenTTL,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	hub := websocket.NewHub()
	svc.SetNotifier(hub)

	collab := newCollaborators(cfg, svc)
	mgr := editor.NewManager(editor.Collaborators{
		Images:   collab,
		Pixels:   collab,
		Uploader: upload.NewUploader(collab),
	}, editorDefaults(cfg))
	if cfg.EditorPresetsFile != "" {
		presets, err := editor.LoadPresets(cfg.EditorPresetsFile)
		if err != nil {
			logrus.WithError(err).Fatal("Invalid editor presets")
		}
		mgr.SetPresets(presets)
		logrus.WithField("editors", len(presets)).Info("Loaded editor presets")
	}

	r := setupRouter(svc, mgr)
	r.Mount("/socket.io/", hub.Server().ServeHandler(nil))

	srv := &http.Server{Addr: *listenAddress, Handler: r}
	logrus.WithField("addr", *listenAddress).Info("starting server")
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	logrus.Debug("Server is running in the background")
	waitForShutdown(srv, hub)
}
