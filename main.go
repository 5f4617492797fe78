package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.bug.st/serial/enumerator"
	"i4.energy/across/ussd/at"
	"i4.energy/across/ussd/modem"
	"i4.energy/across/ussd/publish"
	"i4.energy/across/ussd/ussd"
)

func main() {
	flag.String("serial-port", "/dev/ttyUSB1", "Serial port to connect to the modem")
	flag.Int("baud-rate", modem.DefaultBaudRate, "Baud rate for serial communication")
	flag.String("command", "", "AT command keyword, "+at.DefaultKeyword+" if not set (requires -args)")
	flag.String("args", "", "Pre-encoded command argument, sent as is")
	flag.String("ussd", "", "USSD request to send, e.g. *100#")
	flag.Bool("truncate-septets", false, "Drop the trailing carry byte when packing -ussd")
	flag.Bool("debug", false, "Enable debug logging")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Duration("timeout", modem.DefaultTimeout, "Maximum time to wait for the answer, negative waits forever (0 is rejected)")
	flag.Duration("poll-interval", modem.DefaultPollInterval, "Pause after each unrelated modem line, negative disables it (0 is rejected)")
	flag.Int("max-retries", modem.DefaultMaxRetries, "Unrelated modem lines tolerated, negative is unbounded (0 is rejected)")
	flag.Bool("list", false, "List serial ports and exit")
	flag.String("bind-address", "", "Serve USSD requests over HTTP on this address instead of running once")
	flag.String("mqtt-broker", "", "Publish results to this MQTT broker, e.g. tcp://localhost:1883")
	flag.String("mqtt-topic", publish.DefaultTopic, "MQTT topic for results")
	flag.String("mqtt-client-id", publish.DefaultClientID, "MQTT client ID")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: config.Level()}))

	if config.List {
		ports, err := enumerator.GetDetailedPortsList()
		if err != nil {
			logger.Error("Failed to enumerate serial ports", "error", err)
			os.Exit(1)
		}
		listPorts(os.Stdout, ports)
		return
	}

	modemConfig, err := config.ModemConfig(logger.With("component", "modem", "port", config.SerialPort))
	if err != nil {
		logger.Error("Failed to create modem config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcher := &Dispatcher{
		Logger: logger,
		Modem:  modemConfig,
		Mode:   config.SeptetMode(),
	}

	if config.MQTTBroker != "" {
		publisher, err := publish.Connect(ctx, config.PublishConfig(logger.With("component", "mqtt")))
		if err != nil {
			logger.Error("Failed to connect to MQTT broker", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		dispatcher.Publisher = publisher
	}

	if config.BindAddress != "" {
		if err := serve(ctx, logger, config.BindAddress, dispatcher); err != nil {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
		return
	}

	req, keyword, err := config.Request()
	if err != nil {
		if errors.Is(err, ussd.ErrMissingRequest) {
			flag.Usage()
		}
		logger.Error("Invalid arguments", "error", err)
		os.Exit(1)
	}

	report, err := dispatcher.Do(ctx, req, keyword)
	if err != nil {
		logger.Error("USSD request failed", "error", err, "request", req.String())
		os.Exit(1)
	}
	fmt.Printf("Result: %s\n", report.Result)
}

// serve runs the HTTP API until ctx is cancelled.
func serve(ctx context.Context, logger *slog.Logger, address string, dispatcher *Dispatcher) error {
	httpServer := &http.Server{
		Addr: address,
		Handler: &Server{
			Logger:     logger.With("component", "server"),
			Dispatcher: dispatcher,
		},
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("Closing HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
