// Command voiceclient is a headless reflector client: it joins one
// voice reflector over UDP, captures and encodes the microphone,
// decodes and mixes whatever the reflector relays back, and exits on
// SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Vladgobelen/NSQCuP/internal/config"
	"github.com/Vladgobelen/NSQCuP/internal/logging"
	"github.com/Vladgobelen/NSQCuP/internal/metrics"
	"github.com/Vladgobelen/NSQCuP/internal/session"
)

func main() {
	server := flag.String("server", "", "reflector address, host:port (defaults to the first saved server in config)")
	inputDevice := flag.Int("input-device", -1, "PortAudio input device index, -1 for system default")
	outputDevice := flag.Int("output-device", -1, "PortAudio output device index, -1 for system default")
	transmit := flag.Bool("transmit", true, "start with the microphone transmitting")
	logFile := flag.String("log-file", "", "path to a rotating log file; defaults to voiceclient/voiceclient.log under the user config dir")
	debug := flag.Bool("debug", false, "enable debug-level logging")
	metricsAddr := flag.String("metrics-addr", "127.0.0.1:9101", "loopback address to serve /metrics on, empty to disable")
	flag.Parse()

	cfg := config.Load()
	if *inputDevice == -1 {
		*inputDevice = cfg.InputDeviceID
	}
	if *outputDevice == -1 {
		*outputDevice = cfg.OutputDeviceID
	}
	if *server == "" && len(cfg.Servers) > 0 {
		*server = cfg.Servers[0].Addr
	}
	if *server == "" {
		fmt.Fprintln(os.Stderr, "voiceclient: -server is required (no saved servers in config)")
		os.Exit(2)
	}

	logPath := *logFile
	if logPath == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			logPath = filepath.Join(dir, "voiceclient", "voiceclient.log")
		}
	}
	logger := logging.New(logging.Options{Filename: logPath, Debug: *debug})
	defer logger.Sync()
	log := logger.Sugar()

	m := metrics.New()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *metricsAddr != "" {
		go func() {
			if err := m.Serve(ctx, *metricsAddr); err != nil {
				log.Warnw("metrics server exited", "error", err)
			}
		}()
	}

	callbacks := session.Callbacks{
		OnStatus: func(msg string) { log.Info(msg) },
		OnLog:    func(msg string) { log.Debug(msg) },
		OnConnectionState: func(connected bool) {
			log.Infow("connection state changed", "connected", connected)
		},
		OnTransmissionState: func(transmitting bool) {
			log.Infow("transmission state changed", "transmitting", transmitting)
		},
	}

	sess := session.New(log, callbacks, *inputDevice, *outputDevice, m)
	log.Infow("starting voice client", "client_id", sess.ID().String(), "server", *server)

	if err := sess.Connect(ctx, *server); err != nil {
		log.Errorw("connect failed", "error", err)
		os.Exit(1)
	}
	sess.SetTransmitting(*transmit)

	<-ctx.Done()
	log.Info("shutting down")

	done := make(chan struct{})
	go func() {
		sess.Disconnect()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Warn("disconnect did not complete before shutdown timeout")
	}
}
