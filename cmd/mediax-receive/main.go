package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/opd-ai/mediax/colourspace"
	"github.com/opd-ai/mediax/config"
	"github.com/opd-ai/mediax/internal/cli"
	"github.com/opd-ai/mediax/metrics"
	"github.com/opd-ai/mediax/rtp/uncompressed"
	"github.com/opd-ai/mediax/sap"
	"github.com/opd-ai/mediax/stream"
)

// CLI configuration
type CLIConfig struct {
	name        string
	host        string
	port        uint
	height      uint
	width       uint
	encoding    string
	frames      int
	waitTimeout time.Duration
	statsPeriod time.Duration
	sapAddress  string
	sapPort     uint
	httpAddr    string
	logLevel    string
	logFormat   string
	help        bool
}

// parseCLIFlags parses command-line flags and returns the configuration.
func parseCLIFlags(fs *flag.FlagSet, args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}

	// Stream
	fs.StringVar(&cfg.name, "name", config.GetEnv("MEDIAX_NAME", ""), "SAP session to wait for")
	fs.StringVar(&cfg.host, "host", config.GetEnv("MEDIAX_HOST", "239.192.1.1"), "Stream address or multicast group")
	fs.UintVar(&cfg.port, "port", uint(config.GetEnvInt("MEDIAX_PORT", 0)), "Stream port (0 takes it from SAP)")
	fs.UintVar(&cfg.height, "height", uint(config.GetEnvInt("MEDIAX_HEIGHT", 480)), "Frame height in lines")
	fs.UintVar(&cfg.width, "width", uint(config.GetEnvInt("MEDIAX_WIDTH", 640)), "Frame width in pixels")
	fs.StringVar(&cfg.encoding, "encoding", config.GetEnv("MEDIAX_ENCODING", "RGB24"), "Colourspace of the stream")
	fs.IntVar(&cfg.frames, "frames", config.GetEnvInt("MEDIAX_FRAMES", 0), "Frames to receive before exiting (0 runs until interrupted)")
	fs.DurationVar(&cfg.waitTimeout, "wait-timeout", config.GetEnvDuration("MEDIAX_WAIT_TIMEOUT", 30*time.Second), "How long to wait for the SAP announcement")
	fs.DurationVar(&cfg.statsPeriod, "stats-period", config.GetEnvDuration("MEDIAX_STATS_PERIOD", 5*time.Second), "Interval between frame rate reports")

	// SAP
	fs.StringVar(&cfg.sapAddress, "sap-address", config.GetEnv("MEDIAX_SAP_ADDRESS", sap.DefaultAddress), "SAP multicast group")
	fs.UintVar(&cfg.sapPort, "sap-port", uint(config.GetEnvInt("MEDIAX_SAP_PORT", sap.DefaultPort)), "SAP port")

	// Status and logging
	fs.StringVar(&cfg.httpAddr, "http", config.GetEnv("MEDIAX_HTTP", ":9102"), "Status server address (empty disables)")
	fs.StringVar(&cfg.logLevel, "log-level", config.GetEnv("MEDIAX_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.logFormat, "log-format", config.GetEnv("MEDIAX_LOG_FORMAT", "text"), "Log format (text, json)")

	fs.BoolVar(&cfg.help, "help", false, "Show help message")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fromSAP reports whether the stream description comes from an announcement.
func (c *CLIConfig) fromSAP() bool {
	return c.port == 0
}

// validateCLIConfig validates the CLI configuration.
func validateCLIConfig(cfg *CLIConfig) error {
	if cfg.port > 65535 {
		return fmt.Errorf("invalid port: must be between 1 and 65535")
	}
	if cfg.sapPort == 0 || cfg.sapPort > 65535 {
		return fmt.Errorf("invalid SAP port: must be between 1 and 65535")
	}
	if cfg.frames < 0 {
		return fmt.Errorf("frame count cannot be negative")
	}
	if cfg.statsPeriod <= 0 {
		return fmt.Errorf("stats period must be positive")
	}
	if cfg.fromSAP() {
		if cfg.name == "" {
			return fmt.Errorf("either -name or -port is required")
		}
		if cfg.waitTimeout <= 0 {
			return fmt.Errorf("wait timeout must be positive")
		}
		return nil
	}
	enc := colourspace.Parse(cfg.encoding)
	if enc == colourspace.Undefined || enc.IsCompressed() {
		return fmt.Errorf("unsupported encoding %q", cfg.encoding)
	}
	return streamInfo(cfg).Validate()
}

func streamInfo(cfg *CLIConfig) stream.Info {
	return stream.Info{
		SessionName: cfg.name,
		Hostname:    cfg.host,
		Port:        uint16(cfg.port),
		Height:      uint32(cfg.height),
		Width:       uint32(cfg.width),
		Encoding:    colourspace.Parse(cfg.encoding),
	}
}

// setupSignalHandling cancels the context on interrupt or termination.
func setupSignalHandling(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logrus.WithField("signal", sig.String()).Info("Received signal, shutting down")
		cancel()
	}()
}

// frameSource is the part of a depayloader the receive loop needs.
type frameSource interface {
	ReceiveContext(ctx context.Context) (stream.Frame, error)
}

// receiver pulls frames and reports their rate.
type receiver struct {
	source      frameSource
	frames      int
	statsPeriod time.Duration

	received   int
	lastReport time.Time
	sinceLast  int
}

func (r *receiver) run(ctx context.Context) error {
	r.lastReport = time.Now()
	for r.frames == 0 || r.received < r.frames {
		frame, err := r.source.ReceiveContext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		r.record(frame, time.Now())
	}

	logrus.WithFields(logrus.Fields{
		"function": "receiver.run",
		"frames":   r.received,
	}).Info("Finished receiving frames")
	return errFinished
}

func (r *receiver) record(frame stream.Frame, now time.Time) {
	r.received++
	r.sinceLast++

	logrus.WithFields(logrus.Fields{
		"function": "receiver.record",
		"sequence": frame.Sequence,
		"height":   frame.Height,
		"width":    frame.Width,
		"encoding": frame.Encoding.String(),
		"bytes":    len(frame.Data),
	}).Debug("Frame received")

	if elapsed := now.Sub(r.lastReport); elapsed >= r.statsPeriod {
		logrus.WithFields(logrus.Fields{
			"function": "receiver.record",
			"frames":   r.received,
			"fps":      fmt.Sprintf("%.1f", float64(r.sinceLast)/elapsed.Seconds()),
		}).Info("Receive statistics")
		r.lastReport = now
		r.sinceLast = 0
	}
}

var errFinished = errors.New("frame count reached")

// resolveStream waits for the session announcement when the stream is not
// configured on the command line.
func resolveStream(ctx context.Context, cfg *CLIConfig, listener *sap.Listener) (stream.Info, error) {
	if !cfg.fromSAP() {
		return streamInfo(cfg), nil
	}

	logrus.WithFields(logrus.Fields{
		"function": "resolveStream",
		"session":  cfg.name,
	}).Info("Waiting for SAP announcement")

	waitCtx, cancel := context.WithTimeout(ctx, cfg.waitTimeout)
	defer cancel()
	info, err := listener.WaitForStream(waitCtx, cfg.name)
	if err != nil {
		return stream.Info{}, fmt.Errorf("session %q not announced: %w", cfg.name, err)
	}
	return info, nil
}

func logAnnouncement(name string, a sap.Announcement) {
	logrus.WithFields(logrus.Fields{
		"function": "logAnnouncement",
		"session":  name,
		"source":   a.Source,
		"address":  a.Address,
		"port":     a.Port,
		"deleted":  a.Deleted,
	}).Debug("SAP announcement")
}

func run(ctx context.Context, cfg *CLIConfig) error {
	met := metrics.New()

	listener, err := sap.NewListener(sap.Config{
		Address: cfg.sapAddress,
		Port:    uint16(cfg.sapPort),
		Metrics: met,
	})
	if err != nil {
		return err
	}
	defer listener.Close()
	listener.RegisterCallback("", logAnnouncement)
	listener.Start()
	defer listener.Stop()

	streams := func() []stream.Info {
		all := listener.Announcements()
		out := make([]stream.Info, 0, len(all))
		for _, a := range all {
			out = append(out, a.StreamInfo())
		}
		return out
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.httpAddr != "" {
		g.Go(func() error { return cli.Serve(gctx, cfg.httpAddr, cli.NewRouter(met, streams)) })
	}

	g.Go(func() error {
		info, err := resolveStream(gctx, cfg, listener)
		if err != nil {
			if gctx.Err() != nil {
				return nil
			}
			return err
		}

		depayloader := uncompressed.NewDepayloader(uncompressed.Options{Metrics: met})
		if err := depayloader.SetStreamInfo(info); err != nil {
			return err
		}
		if err := depayloader.Open(); err != nil {
			return err
		}
		defer depayloader.Close()
		if err := depayloader.Start(); err != nil {
			return err
		}

		logrus.WithFields(logrus.Fields{
			"function": "run",
			"stream":   info.String(),
		}).Info("Receiving")

		rx := &receiver{source: depayloader, frames: cfg.frames, statsPeriod: cfg.statsPeriod}
		return rx.run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errFinished) {
		return err
	}
	return nil
}

func main() {
	_ = config.Load()

	cfg, err := parseCLIFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if cfg.help {
		fmt.Printf("Usage: %s [options]\n\nOptions:\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(0)
	}
	if err := validateCLIConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Use -help for usage information.\n")
		os.Exit(1)
	}
	if err := cli.SetupLogging(os.Stderr, cfg.logLevel, cfg.logFormat); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandling(cancel)

	if err := run(ctx, cfg); err != nil {
		if errors.Is(err, stream.ErrSocket) {
			logrus.WithError(err).Fatal("Network transport unavailable")
		}
		logrus.WithError(err).Error("Receive failed")
		os.Exit(1)
	}
}
