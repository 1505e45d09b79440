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
	"github.com/opd-ai/mediax/rtp"
	"github.com/opd-ai/mediax/rtp/uncompressed"
	"github.com/opd-ai/mediax/sap"
	"github.com/opd-ai/mediax/stream"
)

// CLI configuration
type CLIConfig struct {
	name         string
	host         string
	port         uint
	height       uint
	width        uint
	framerate    uint
	encoding     string
	card         string
	frames       int
	sapAddress   string
	sapPort      uint
	sapInterface int
	noSAP        bool
	httpAddr     string
	logLevel     string
	logFormat    string
	help         bool
}

// parseCLIFlags parses command-line flags and returns the configuration.
func parseCLIFlags(fs *flag.FlagSet, args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}

	// Stream
	fs.StringVar(&cfg.name, "name", config.GetEnv("MEDIAX_NAME", "mediax"), "SAP session name")
	fs.StringVar(&cfg.host, "host", config.GetEnv("MEDIAX_HOST", "239.192.1.1"), "Destination address")
	fs.UintVar(&cfg.port, "port", uint(config.GetEnvInt("MEDIAX_PORT", 5004)), "Destination port")
	fs.UintVar(&cfg.height, "height", uint(config.GetEnvInt("MEDIAX_HEIGHT", 480)), "Frame height in lines")
	fs.UintVar(&cfg.width, "width", uint(config.GetEnvInt("MEDIAX_WIDTH", 640)), "Frame width in pixels")
	fs.UintVar(&cfg.framerate, "framerate", uint(config.GetEnvInt("MEDIAX_FRAMERATE", 25)), "Frames per second")
	fs.StringVar(&cfg.encoding, "encoding", config.GetEnv("MEDIAX_ENCODING", "RGB24"), "Colourspace (RGB24, RGBA, YUV422, YUV420P, NV12, MONO8, MONO16)")
	fs.StringVar(&cfg.card, "card", config.GetEnv("MEDIAX_CARD", "bars"), "Test card (bars, ebu, greyscale, quad, checkered, red, noise)")
	fs.IntVar(&cfg.frames, "frames", config.GetEnvInt("MEDIAX_FRAMES", 0), "Frames to send before exiting (0 runs until interrupted)")

	// SAP
	fs.StringVar(&cfg.sapAddress, "sap-address", config.GetEnv("MEDIAX_SAP_ADDRESS", sap.DefaultAddress), "SAP multicast group")
	fs.UintVar(&cfg.sapPort, "sap-port", uint(config.GetEnvInt("MEDIAX_SAP_PORT", sap.DefaultPort)), "SAP port")
	fs.IntVar(&cfg.sapInterface, "sap-interface", config.GetEnvInt("MEDIAX_SAP_INTERFACE", 0), "Index of the interface whose address is announced")
	fs.BoolVar(&cfg.noSAP, "no-sap", config.GetEnvBool("MEDIAX_NO_SAP", false), "Do not announce the stream")

	// Status and logging
	fs.StringVar(&cfg.httpAddr, "http", config.GetEnv("MEDIAX_HTTP", ":9101"), "Status server address (empty disables)")
	fs.StringVar(&cfg.logLevel, "log-level", config.GetEnv("MEDIAX_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.logFormat, "log-format", config.GetEnv("MEDIAX_LOG_FORMAT", "text"), "Log format (text, json)")

	fs.BoolVar(&cfg.help, "help", false, "Show help message")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validateCLIConfig validates the CLI configuration.
func validateCLIConfig(cfg *CLIConfig) error {
	if cfg.name == "" {
		return fmt.Errorf("session name cannot be empty")
	}
	if cfg.host == "" {
		return fmt.Errorf("destination address cannot be empty")
	}
	if cfg.port == 0 || cfg.port > 65535 {
		return fmt.Errorf("invalid port: must be between 1 and 65535")
	}
	if cfg.sapPort == 0 || cfg.sapPort > 65535 {
		return fmt.Errorf("invalid SAP port: must be between 1 and 65535")
	}
	if cfg.framerate == 0 {
		return fmt.Errorf("framerate must be positive")
	}
	if cfg.frames < 0 {
		return fmt.Errorf("frame count cannot be negative")
	}
	enc := colourspace.Parse(cfg.encoding)
	if enc == colourspace.Undefined || enc.IsCompressed() {
		return fmt.Errorf("unsupported encoding %q", cfg.encoding)
	}
	if _, err := colourspace.ParseCard(cfg.card); err != nil {
		return err
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
		Framerate:   uint32(cfg.framerate),
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

// transmitter paints the test card and hands frames to the payloader at the
// configured rate.
type transmitter struct {
	payloader stream.Payloader
	info      stream.Info
	card      colourspace.Card
	frames    int
}

func (t *transmitter) run(ctx context.Context) error {
	size, err := t.info.FrameSize()
	if err != nil {
		return err
	}
	buf := make([]byte, size)
	if err := colourspace.Fill(t.card, buf, t.info.Width, t.info.Height, t.info.Encoding); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Second / time.Duration(t.info.Framerate))
	defer ticker.Stop()

	sent := 0
	for t.frames == 0 || sent < t.frames {
		if t.card == colourspace.CardWhiteNoise {
			if err := colourspace.Fill(t.card, buf, t.info.Width, t.info.Height, t.info.Encoding); err != nil {
				return err
			}
		}

		// The last frame of a bounded run is sent synchronously so it
		// leaves before the payloader closes.
		last := t.frames > 0 && sent == t.frames-1
		err := t.payloader.Transmit(buf, last)
		switch {
		case errors.Is(err, rtp.ErrTimestampOverflow):
			logrus.WithFields(logrus.Fields{
				"function": "transmitter.run",
				"stream":   t.info.SessionName,
			}).WithError(err).Warn("Frame not sent")
		case err != nil:
			return err
		default:
			sent++
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "transmitter.run",
		"frames":   sent,
	}).Info("Finished sending frames")
	return errFinished
}

var errFinished = errors.New("frame count reached")

func run(ctx context.Context, cfg *CLIConfig) error {
	info := streamInfo(cfg)
	card, err := colourspace.ParseCard(cfg.card)
	if err != nil {
		return err
	}
	met := metrics.New()

	payloader := uncompressed.NewPayloader(uncompressed.Options{Metrics: met})
	if err := payloader.SetStreamInfo(info); err != nil {
		return err
	}
	if err := payloader.Open(); err != nil {
		return err
	}
	defer payloader.Close()
	if err := payloader.Start(); err != nil {
		return err
	}

	streams := func() []stream.Info { return []stream.Info{payloader.Info()} }

	var announcer *sap.Announcer
	if !cfg.noSAP {
		announcer, err = sap.NewAnnouncer(sap.Config{
			Address: cfg.sapAddress,
			Port:    uint16(cfg.sapPort),
			Metrics: met,
		})
		if err != nil {
			return err
		}
		defer announcer.Close()
		if err := announcer.SetSourceInterface(cfg.sapInterface); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":  "run",
				"interface": cfg.sapInterface,
			}).WithError(err).Warn("Keeping default source interface")
		}
		announcer.AddAnnouncement(info)
		announcer.Start()
		// Stop sends the deletion announcement.
		defer announcer.Stop()
		streams = announcer.Streams
	}

	logrus.WithFields(logrus.Fields{
		"function": "run",
		"stream":   info.String(),
		"card":     cfg.card,
		"sap":      !cfg.noSAP,
	}).Info("Transmitting")

	g, gctx := errgroup.WithContext(ctx)
	tx := &transmitter{payloader: payloader, info: info, card: card, frames: cfg.frames}
	g.Go(func() error { return tx.run(gctx) })
	if cfg.httpAddr != "" {
		g.Go(func() error { return cli.Serve(gctx, cfg.httpAddr, cli.NewRouter(met, streams)) })
	}

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
		logrus.WithError(err).Error("Transmit failed")
		os.Exit(1)
	}
}
