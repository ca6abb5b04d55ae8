package main

import (
	"context"
	"encoding/hex"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"smartcrest/forward"
	"smartcrest/indicator"
	"smartcrest/metrics"
	"smartcrest/mqtt"
	"smartcrest/reader"
)

var myBuild string

var (
	cli      = kingpin.New("smartcrest", "Forwards smart card identifiers read from PC/SC readers to an HTTP endpoint.")
	cfgFile  = cli.Flag("cfg", "Config file.").Default("smartcrest.cfg").String()
	logLevel = cli.Flag("log-level", "Override the configured log level.").String()
)

// App holds the application state and dependencies.
type App struct {
	cfg       *Config
	log       logrus.FieldLogger
	reader    reader.TagReader
	forward   *forward.Client
	mqtt      *mqtt.Client
	indicator indicator.Indicator
	metrics   *metrics.Metrics
	ctx       context.Context
	cancel    context.CancelFunc
}

func main() {
	kingpin.MustParse(cli.Parse(os.Args[1:]))

	boot := newLogger(logrus.InfoLevel)
	boot.Infof("smartcrest build %s", myBuild)

	cfg, err := LoadConfig(*cfgFile)
	if err != nil {
		boot.Fatal(err)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		boot.Fatal(err)
	}
	log := newLogger(level)

	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		cfg:     cfg,
		log:     log,
		metrics: metrics.New(),
		ctx:     ctx,
		cancel:  cancel,
	}

	// Initialize indicator (LEDs, neopixels)
	app.indicator, err = indicator.New(cfg.Indicator)
	if err != nil {
		log.Fatalf("Init indicator: %v", err)
	}
	app.indicator.ConnectionLost()

	app.forward, err = forward.New(cfg.Endpoint, cfg.API)
	if err != nil {
		log.Fatalf("Init forwarder: %v", err)
	}

	app.reader, err = reader.New(cfg.Reader, log.WithField("component", "reader"), app.metrics)
	if err != nil {
		log.Fatalf("Init reader: %v", err)
	}

	app.mqtt, err = mqtt.New(cfg.MQTT, cfg.ClientID, log.WithField("component", "mqtt"), mqtt.Handlers{
		OnConnect:    app.onMQTTConnect,
		OnDisconnect: app.onMQTTDisconnect,
	})
	if err != nil {
		log.Fatalf("Init MQTT: %v", err)
	}

	// Start background goroutines
	go func() {
		if err := app.mqtt.Connect(); err != nil {
			log.WithError(err).Error("MQTT connect")
		}
	}()
	go func() {
		if err := app.metrics.Serve(ctx, cfg.Metrics); err != nil {
			log.WithError(err).Error("Metrics endpoint")
		}
	}()
	go app.pingSender()

	readErr := make(chan error, 1)
	go func() {
		readErr <- app.tokenListener()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-sigCh:
		log.Info("Shutting down...")
		cancel()
		select {
		case <-readErr:
		case <-time.After(2 * time.Second):
			log.Warn("Reader did not stop in time")
		}
	case err := <-readErr:
		log.WithError(err).Error("Card reader failed")
		exitCode = 1
		cancel()
	}

	app.mqtt.Disconnect()
	if err := app.reader.Close(); err != nil {
		log.WithError(err).Error("Close reader")
	}
	app.indicator.Shutdown()
	app.indicator.Release()

	log.Info("Shutdown complete")
	os.Exit(exitCode)
}

func (app *App) onMQTTConnect() {
	app.indicator.Connected()
	app.indicator.Idle()
}

func (app *App) onMQTTDisconnect() {
	app.indicator.ConnectionLost()
}

// tokenListener pulls identifiers from the reader until it fails or the app
// shuts down. A nil return means shutdown.
func (app *App) tokenListener() error {
	for {
		tok, err := app.reader.Read(app.ctx)
		if err != nil {
			if app.ctx.Err() != nil {
				return nil
			}
			return err
		}
		app.handleToken(tok)
	}
}

func (app *App) handleToken(tok []byte) {
	token := hex.EncodeToString(tok)
	log := app.log.WithField("token", token)
	log.Info("Card read")

	err := app.forward.Post(app.ctx, token)
	app.metrics.Delivered(err)
	if err != nil {
		log.WithError(err).Error("HTTP request failed")
		app.flash(app.indicator.Failed)
	} else {
		log.Info("Token delivered")
		app.flash(app.indicator.Read)
	}

	app.mqtt.PublishToken(token, err == nil)
}

// flash shows a state and returns the indicator to idle after the configured time.
func (app *App) flash(show func()) {
	show()
	time.AfterFunc(app.cfg.Indicator.FlashDuration(), app.indicator.Idle)
}

func (app *App) pingSender() {
	ticker := time.NewTicker(120 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
			app.mqtt.Publish(app.mqtt.Topic("ping"), `{"status":"ok"}`)
		}
	}
}
