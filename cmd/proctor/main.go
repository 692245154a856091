// proctor: exam proctoring server
// Accepts webcam frames over WebSocket and flags head pose, gaze and phone use.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/Cavumnigrum/cheating-detector/internal/config"
	"github.com/Cavumnigrum/cheating-detector/internal/log"
	"github.com/Cavumnigrum/cheating-detector/pkg/proctor"
	"github.com/Cavumnigrum/cheating-detector/pkg/sessionlog"
	"github.com/Cavumnigrum/cheating-detector/pkg/vision"
	"github.com/Cavumnigrum/cheating-detector/pkg/web"
)

var version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	flags := pflag.NewFlagSet("proctor", pflag.ContinueOnError)
	flags.StringVarP(&cfg.Port, "port", "p", cfg.Port, "HTTP server port")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	flags.StringVar(&cfg.EvidenceDir, "evidence-dir", cfg.EvidenceDir, "directory for evidence clips")
	flags.StringVar(&cfg.SessionLogDir, "session-log-dir", cfg.SessionLogDir, "directory for sessions.jsonl")
	flags.StringVar(&cfg.PhoneModelPath, "model", cfg.PhoneModelPath, "YOLO ONNX model for phone detection")
	flags.Float64Var(&cfg.PhoneConfidence, "phone-confidence", cfg.PhoneConfidence, "minimum confidence for COCO cell phone")
	flags.StringVar(&cfg.LandmarkURL, "landmark-url", cfg.LandmarkURL, "face mesh service URL (empty disables face analysis)")
	flags.DurationVar(&cfg.LandmarkTimeout, "landmark-timeout", cfg.LandmarkTimeout, "timeout per face mesh request")
	flags.StringVar(&cfg.StaticDir, "static", cfg.StaticDir, "serve a frontend from this directory")
	flags.StringVarP(&cfg.TuningFile, "config", "c", cfg.TuningFile, "YAML tuning file")
	showVersion := flags.Bool("version", false, "print version and exit")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Println("proctor " + version)
		return nil
	}

	log.Init(cfg.LogLevel)
	logger := log.With("component", "main")

	pcfg := proctor.DefaultConfig()
	pcfg.Evidence.Dir = cfg.EvidenceDir
	if cfg.TuningFile != "" {
		tuning, err := config.LoadTuning(cfg.TuningFile)
		if err != nil {
			return err
		}
		if err := tuning.Apply(&pcfg); err != nil {
			return fmt.Errorf("invalid tuning %s: %w", cfg.TuningFile, err)
		}
		logger.Info("tuning loaded", "path", cfg.TuningFile)
	}

	sessions, err := sessionlog.New(cfg.SessionLogDir)
	if err != nil {
		return err
	}

	opts := web.Options{
		Port:      cfg.Port,
		Config:    pcfg,
		Solver:    vision.CVSolver{},
		Writer:    vision.AVIWriter{},
		Sink:      sessions,
		StaticDir: cfg.StaticDir,
	}

	var phones proctor.PhoneDetector
	pc := vision.DefaultPhoneConfig()
	pc.ModelPath = cfg.PhoneModelPath
	pc.ConfidenceThresh = float32(cfg.PhoneConfidence)
	detector, err := vision.NewPhoneDetector(pc)
	if err != nil {
		logger.Warn("phone detection disabled", "model", cfg.PhoneModelPath, "error", err)
	} else {
		defer detector.Close()
		phones = detector
		opts.Phones = detector
	}

	var landmarks proctor.Landmarker
	if cfg.LandmarkURL != "" {
		landmarks = vision.NewRemoteLandmarker(cfg.LandmarkURL, cfg.LandmarkTimeout)
	} else {
		logger.Warn("face analysis disabled, set LANDMARK_URL to enable")
	}

	opts.Analyzer = proctor.NewAnalyzer(vision.Decoder{}, phones, landmarks)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	server := web.NewServer(opts)
	server.StartAsync(ctx)

	logger.Info("proctor started",
		"version", version,
		"websocket", "ws://localhost:"+cfg.Port+"/ws/detect",
		"monitor", "ws://localhost:"+cfg.Port+"/ws/monitor",
		"evidence", pcfg.Evidence.Dir,
		"session_log", sessions.Path(),
	)

	<-ctx.Done()
	logger.Info("shutting down")
	if err := server.Shutdown(); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
