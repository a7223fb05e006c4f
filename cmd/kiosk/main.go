package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LakePipiCAKA/self-discovery/config"
	"github.com/LakePipiCAKA/self-discovery/internal/analysis"
	"github.com/LakePipiCAKA/self-discovery/internal/api/handlers"
	"github.com/LakePipiCAKA/self-discovery/internal/api/middleware"
	"github.com/LakePipiCAKA/self-discovery/internal/camera"
	"github.com/LakePipiCAKA/self-discovery/internal/cleanup"
	"github.com/LakePipiCAKA/self-discovery/internal/database"
	"github.com/LakePipiCAKA/self-discovery/internal/detect"
	"github.com/LakePipiCAKA/self-discovery/internal/enroll"
	"github.com/LakePipiCAKA/self-discovery/internal/greeting"
	"github.com/LakePipiCAKA/self-discovery/internal/identity"
	"github.com/LakePipiCAKA/self-discovery/internal/integrations/facenet"
	"github.com/LakePipiCAKA/self-discovery/internal/integrations/weather"
	"github.com/LakePipiCAKA/self-discovery/internal/logger"
	"github.com/LakePipiCAKA/self-discovery/internal/mqtt"
	"github.com/LakePipiCAKA/self-discovery/internal/pipeline"
	"github.com/LakePipiCAKA/self-discovery/internal/profile"
	"github.com/LakePipiCAKA/self-discovery/internal/snapshot"
	"github.com/LakePipiCAKA/self-discovery/internal/sse"
	"github.com/LakePipiCAKA/self-discovery/internal/util/timezone"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// multiNotifier fans pipeline events out to every registered sink.
type multiNotifier []pipeline.Notifier

func (m multiNotifier) Notify(ev pipeline.Event) {
	for _, n := range m {
		n.Notify(ev)
	}
}

func main() {
	configPath := flag.String("config", "/config/config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(cfg.Log); err != nil {
		log.Errorf("Failed to initialize logger completely: %v", err)
	}

	timezone.Initialize(cfg.Server.Timezone)

	log.Info("Initializing database...")
	db, err := database.Open(cfg.DB)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	store := database.NewProfileStore(db)

	profiles, err := store.LoadProfiles()
	if err != nil {
		log.Fatalf("Failed to load profiles: %v", err)
	}

	writer := profile.NewWriter(store)
	defer writer.Close()

	snaps, err := snapshot.NewWriter(cfg.Server.SnapshotDir)
	if err != nil {
		log.Fatalf("Failed to initialize snapshot storage: %v", err)
	}

	hub := sse.NewHub()
	go hub.Run()

	notifiers := multiNotifier{hub}

	mqttClient, err := mqtt.NewClient(cfg.MQTT)
	if err != nil {
		log.Warnf("Failed to initialize MQTT client: %v. Continuing without MQTT.", err)
	} else if mqttClient != nil {
		go func() {
			if err := mqttClient.Start(); err != nil {
				log.Errorf("MQTT client error: %v", err)
			}
		}()
		defer mqttClient.Stop()
		notifiers = append(notifiers, mqttClient)
	}

	encoder := facenet.NewAPIClient(cfg.Encoder)
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if ok, err := encoder.Ping(pingCtx); !ok {
		log.Warnf("FaceNet service not reachable at startup: %v", err)
	}
	cancelPing()

	decoder := detect.NewDecoder(cfg.Detector.NumClasses, cfg.Detector.ConfidenceThreshold)
	tracker := identity.NewTracker(cfg.Recognition.TrackIoUThreshold, cfg.Recognition.TrackMaxMisses)
	gallery := identity.NewGallery()
	matcher := identity.NewMatcher(gallery, cfg.Recognition.Threshold, cfg.Recognition.StabilityFrames)

	var runtime detect.Runtime
	var capture *camera.Capture
	if cfg.Camera.Enabled {
		runtime, err = camera.NewDNNRuntime(cfg.Detector)
		if err != nil {
			log.Fatalf("Failed to load face detector: %v", err)
		}
		defer runtime.Close()

		capture, err = camera.OpenCapture(cfg.Camera)
		if err != nil {
			log.Fatalf("Failed to open camera: %v", err)
		}
		defer capture.Close()
	} else {
		log.Warn("Camera disabled; running API only")
	}

	pipe := pipeline.New(runtime, decoder, tracker, gallery, matcher, encoder,
		writer, snaps, notifiers, pipeline.KioskClock{}, profiles,
		pipeline.Options{
			IoUThreshold:  cfg.Detector.IoUThreshold,
			CropSize:      cfg.Encoder.CropSize,
			MaxEmbeddings: cfg.Recognition.MaxEmbeddings,
			Enrollment: enroll.Options{
				SamplesRequired:    cfg.Enrollment.SamplesRequired,
				MinCaptureInterval: time.Duration(cfg.Enrollment.MinCaptureIntervalSecs) * time.Second,
				OutlierThreshold:   cfg.Enrollment.OutlierThreshold,
			},
		})

	cleanupService := cleanup.NewService(store, cfg.Cleanup.RetentionDays, cfg.Server.SnapshotDir, 24*time.Hour)
	if cleanupService != nil {
		cleanupService.StartBackgroundCleanup()
		defer cleanupService.StopBackgroundCleanup()
	}

	composer, err := greeting.NewComposer(cfg.Server.LocalesDir, cfg.Server.DefaultLanguage)
	if err != nil {
		log.Fatalf("Failed to load locales: %v", err)
	}

	var weatherClient *weather.Client
	if cfg.Weather.Enabled {
		weatherClient = weather.NewClient(cfg.Weather)
	}

	analyzer := analysis.NewAnalyzer(snaps)

	// Tick loop
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if capture != nil {
		go runTickLoop(ctx, pipe, capture, cfg.Camera.TickIntervalMs)
	}

	// HTTP API
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	sessionStore := cookie.NewStore([]byte(cfg.Server.SessionSecret))
	router.Use(sessions.Sessions("self_discovery", sessionStore))
	router.Use(middleware.I18n(middleware.I18nConfig{
		DefaultLanguage: cfg.Server.DefaultLanguage,
		Languages:       composer.Languages(),
	}))

	apiHandler := handlers.NewAPIHandler(cfg, pipe, store, weatherClient, analyzer, composer, hub)
	apiHandler.RegisterRoutes(router.Group("/api"))

	router.StaticFS("/snapshots", http.Dir(cfg.Server.SnapshotDir))
	log.Infof("Serving snapshots from %s under /snapshots/", cfg.Server.SnapshotDir)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{Addr: serverAddr, Handler: router}

	go func() {
		log.Infof("Starting server on %s", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server shutdown failed: %v", err)
	}

	log.Info("Server stopped.")
}

// runTickLoop feeds camera frames into the pipeline at the configured
// interval until the context is cancelled.
func runTickLoop(ctx context.Context, pipe *pipeline.Pipeline, capture *camera.Capture, intervalMs int) {
	if intervalMs <= 0 {
		intervalMs = 100
	}
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	log.Infof("Pipeline tick loop started (%d ms interval)", intervalMs)
	for {
		select {
		case <-ctx.Done():
			log.Info("Pipeline tick loop stopped")
			return
		case <-ticker.C:
			frame, err := capture.ReadFrame()
			if err != nil {
				log.Warnf("Frame capture failed: %v", err)
				continue
			}
			if _, err := pipe.Tick(ctx, frame); err != nil {
				log.Errorf("Tick failed: %v", err)
			}
		}
	}
}
