// proctor-replay: streams a recorded exam video to a proctor server
// Useful for tuning thresholds against known footage.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/Cavumnigrum/cheating-detector/internal/log"
	"github.com/Cavumnigrum/cheating-detector/pkg/vision"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		server    string
		camera    int
		fps       float64
		calibrate int
		maxFrames int
		logLevel  string
	)

	flags := pflag.NewFlagSet("proctor-replay", pflag.ContinueOnError)
	flags.StringVarP(&server, "server", "s", "ws://localhost:8000/ws/detect", "proctor detect endpoint")
	flags.IntVar(&camera, "camera", -1, "read from this camera instead of a file")
	flags.Float64Var(&fps, "fps", 0, "send rate (default: source rate, 0 when unknown sends as fast as possible)")
	flags.IntVar(&calibrate, "calibrate-after", 10, "send calibrate after this many frames (-1 disables)")
	flags.IntVarP(&maxFrames, "frames", "n", 0, "stop after this many frames (0 = whole source)")
	flags.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: proctor-replay [flags] [video]\n\n")
		flags.PrintDefaults()
	}

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	log.Init(logLevel)

	var (
		src *vision.CaptureProvider
		err error
	)
	switch {
	case camera >= 0:
		src, err = vision.OpenDevice(camera)
	case flags.NArg() == 1:
		src, err = vision.OpenFile(flags.Arg(0))
	default:
		flags.Usage()
		return errors.New("need a video file or --camera")
	}
	if err != nil {
		return err
	}
	defer src.Close()

	if fps == 0 {
		fps = src.FPS()
	}
	opts := replayOptions{CalibrateAfter: calibrate, MaxFrames: maxFrames}
	if fps > 0 {
		opts.Interval = time.Duration(float64(time.Second) / fps)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conn, err := dial(ctx, server)
	if err != nil {
		return err
	}
	defer closeConn(conn)

	log.Info("replaying", "server", server, "fps", fps)
	sum, err := replay(ctx, conn, src, opts, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	fmt.Printf("\n%d frames, %d state changes, %d escalations, %d frames with phones, final state %s\n",
		sum.Frames, sum.Transitions, sum.Alerts, sum.Phones, sum.Final)
	return nil
}
