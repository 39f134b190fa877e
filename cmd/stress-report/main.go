package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/stress.report/internal/acquisition"
	"github.com/banshee-data/stress.report/internal/api"
	"github.com/banshee-data/stress.report/internal/db"
	"github.com/banshee-data/stress.report/internal/fsutil"
	"github.com/banshee-data/stress.report/internal/ingest"
	"github.com/banshee-data/stress.report/internal/monitor"
	"github.com/banshee-data/stress.report/internal/remote"
	"github.com/banshee-data/stress.report/internal/serialmux"
	"github.com/banshee-data/stress.report/internal/timeutil"
	"github.com/banshee-data/stress.report/internal/version"
)

var (
	listen        = flag.String("listen", ":8080", "Listen address")
	configPath    = flag.String("config", "", "Pipeline config JSON file (defaults apply when empty)")
	dbPath        = flag.String("db-path", "stress.db", "Path to the sqlite database")
	dataDir       = flag.String("data-dir", "", "Directory for datasets and model artifacts (overrides config)")
	port          = flag.String("port", "", "Serial port of the sensor bridge (overrides config)")
	disableSerial = flag.Bool("disable-serial", false, "Run without the serial sensor bridge")
	debugNoise    = flag.Bool("debug-noise", false, "Start synthetic noise generators at startup")
	mqttBroker    = flag.String("mqtt-broker", "", "MQTT broker URL, e.g. tcp://localhost:1883 (overrides config)")
	bleHR         = flag.Bool("ble-hr", false, "Connect to a BLE heart rate strap")
	fitFile       = flag.String("fit", "", "Replay a FIT activity file into the window at startup")
	userID        = flag.String("user-id", "", "Participant id for remote mirroring (overrides config)")
	remoteDSN     = flag.String("remote-dsn", "", "Postgres DSN for the remote record store (overrides config)")
	versionFlag   = flag.Bool("version", false, "Print version and exit")
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		fs := flag.NewFlagSet("migrate", flag.ExitOnError)
		path := fs.String("db-path", "stress.db", "Path to the sqlite database")
		fs.Parse(os.Args[2:])
		if err := db.RunMigrateCommand(os.Stdout, fs.Args(), *path); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	flag.Parse()
	if *versionFlag {
		fmt.Printf("stress-report %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	applyFlags(cfg, flag.CommandLine)

	clock := timeutil.RealClock{}
	files := fsutil.OSFileSystem{}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	engine, err := acquisition.NewEngine(acquisition.Options{Window: cfg.GetWindowLength(), Clock: clock})
	if err != nil {
		log.Fatalf("failed to create acquisition engine: %v", err)
	}
	loop := acquisition.NewLoop(engine, clock)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := openServices(ctx, cfg, files, database, clock)
	if err != nil {
		log.Fatalf("failed to open models: %v", err)
	}

	stores := remote.MultiStore{database.Records()}
	if dsn := cfg.GetRemoteDSN(); dsn != "" {
		pg, err := remote.OpenGormStore(dsn)
		if err != nil {
			log.Fatalf("failed to open remote store: %v", err)
		}
		defer pg.Close()
		stores = remote.MultiStore{pg, database.Records()}
	}
	mirror := remote.NewMirror(stores, cfg.GetMirrorQueueSize())
	modelLogger := remote.NewModelLogger(cfg.GetUserID(), mirror, clock)
	if !modelLogger.Enabled() {
		log.Print("no user id configured; remote logging disabled")
	}
	autolog := remote.NewAutoLogger(modelLogger, loop.Snapshot, clock, cfg.GetAutologMinInterval(), cfg.GetAutologMaxInterval())

	var sensorSerial serialmux.SerialMuxInterface
	if *disableSerial || cfg.GetSerialPort() == "" {
		sensorSerial = serialmux.NewDisabledSerialMux()
	} else {
		sensorSerial, err = serialmux.NewRealSerialMux(cfg.GetSerialPort(), cfg.GetSerial())
		if err != nil {
			log.Fatalf("failed to open serial port %s: %v", cfg.GetSerialPort(), err)
		}
	}
	defer sensorSerial.Close()

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("%s: %v", name, err)
			}
			log.Printf("%s routine terminated", name)
		}()
	}

	run("acquisition", loop.Run)
	run("serial monitor", sensorSerial.Monitor)
	run("serial forward", func(ctx context.Context) error {
		return serialmux.Forward(ctx, sensorSerial, loop)
	})
	run("mirror", mirror.Run)
	run("autolog", autolog.Run)
	if broker := cfg.GetMQTTBroker(); broker != "" {
		src := ingest.MQTTSource{Broker: broker, Topic: cfg.GetMQTTTopic()}
		run("mqtt", func(ctx context.Context) error { return src.Run(ctx, loop) })
	}
	if cfg.GetBLEHeartRate() {
		src := ingest.BLEHeartRate{Clock: clock}
		run("ble", func(ctx context.Context) error { return src.Run(ctx, loop) })
	}
	if *fitFile != "" {
		run("fit replay", func(ctx context.Context) error {
			f, err := os.Open(*fitFile)
			if err != nil {
				return err
			}
			defer f.Close()
			_, err = ingest.ReplayFIT(ctx, f, loop, clock)
			return err
		})
	}
	if cfg.GetDebugNoise() {
		loop.StartNoise(ctx)
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := api.NewServer(loop, services, api.Options{
			BaseContext: ctx,
			Logger:      modelLogger,
			AutoLogger:  autolog,
			Mirror:      mirror,
			Live:        monitor.NewLiveFeed(loop.LastSamples, loop.NoiseActive, clock),
		})
		mux := server.ServeMux()

		// admin debugging routes, reachable only from localhost or over Tailscale
		if err := database.AttachAdminRoutes(mux); err != nil {
			log.Printf("failed to attach db admin routes: %v", err)
		}
		sensorSerial.AttachAdminRoutes(mux)
		server.AttachDebugRoutes(mux)

		srv := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}
		go func() {
			log.Printf("listening on %s", *listen)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	wg.Wait()
	log.Print("graceful shutdown complete")
}
