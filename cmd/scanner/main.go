package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bbuddy/scan-relay-go/internal/client"
	"github.com/bbuddy/scan-relay-go/internal/config"
	"github.com/bbuddy/scan-relay-go/internal/model"
	"github.com/bbuddy/scan-relay-go/internal/prompt"
	"github.com/bbuddy/scan-relay-go/internal/scanner"
	"github.com/bbuddy/scan-relay-go/internal/serialscan"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.LoadScanner()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	relay := client.New(cfg.RelayURL)
	platform := serialscan.NewPlatform(cfg.Baud)
	decoder := serialscan.NewDecoder(cfg.Formats)

	formats, err := scanner.CheckDecoder(ctx, decoder)
	if err != nil {
		log.Fatal().Err(err).Msg("Barcode Detector is not supported by this platform")
	}
	log.Info().Strs("formats", formats).Msg("barcode decoder ready")

	logDevices(ctx, platform)
	syncMode(ctx, relay, cfg.Mode)

	var prompter scanner.Prompter
	if prompt.Interactive(os.Stdin) {
		prompter = prompt.New(os.Stdin, os.Stdout)
	} else if cfg.Detailed {
		log.Warn().Msg("stdin is not a terminal, detailed entry disabled")
	}

	session, err := scanner.NewSession(scanner.Options{
		Platform:     platform,
		Decoder:      decoder,
		Reporter:     relay,
		Prompter:     prompter,
		Detailed:     cfg.Detailed && prompter != nil,
		Cooldown:     cfg.Cooldown(),
		PollInterval: cfg.PollInterval(),
		Facing:       scanner.FacingMode(cfg.Facing),
		OnStatus: func(status string) {
			if status != "" {
				log.Info().Msg(status)
			}
		},
		OnSelect: func(d scanner.Device) {
			log.Info().Str("deviceId", d.ID).Str("label", d.Label).Msg("device selected")
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scan session")
	}

	pref := scanner.Preference{DeviceID: cfg.Device, Facing: scanner.FacingMode(cfg.Facing)}
	if err := session.Start(ctx, pref); err != nil {
		// keep running so SIGHUP can retry with the other facing
		log.Error().Err(err).Msg("failed to start scanning, send SIGHUP to retry")
	}
	defer session.Stop()

	controls := make(chan os.Signal, 1)
	signal.Notify(controls, syscall.SIGHUP, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(controls)

	log.Info().Msg("scanning; SIGHUP switches reader, SIGUSR1 toggles detailed entry, SIGUSR2 reopens the reader")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("stopping scanner")
			return

		case sig := <-controls:
			switch sig {
			case syscall.SIGHUP:
				if err := session.SwitchFacing(ctx); err != nil {
					log.Error().Err(err).Msg("failed to switch reader")
				}
			case syscall.SIGUSR1:
				session.SetDetailed(!session.Detailed())
				log.Info().Bool("detailed", session.Detailed()).Msg("detailed entry toggled")
			case syscall.SIGUSR2:
				if err := session.Restart(ctx); err != nil {
					log.Error().Err(err).Msg("failed to reopen reader")
				}
			}
		}
	}
}

func logDevices(ctx context.Context, platform scanner.Platform) {
	devices, err := platform.Devices(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to list devices")
		return
	}
	if len(devices) == 0 {
		log.Warn().Msg("no barcode readers found")
	}
	for i, d := range devices {
		log.Info().Str("deviceId", d.ID).Str("name", d.DisplayName(i)).Msg("found device")
	}
}

// syncMode applies the configured inventory mode, if any, and logs the mode
// the relay reports afterwards.
func syncMode(ctx context.Context, relay *client.Client, configured int) {
	if configured >= 0 {
		mode := model.Mode(configured)
		if err := relay.SetMode(ctx, mode); err != nil {
			var statusErr *client.StatusError
			if errors.As(err, &statusErr) {
				log.Error().Int("status", statusErr.StatusCode).Msgf("Error setting mode: %s", statusErr.Message)
			} else {
				log.Error().Err(err).Msg("Error setting mode")
			}
		} else {
			log.Info().Stringer("mode", mode).Msg("mode set")
		}
	}

	mode, err := relay.GetMode(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("could not read current mode")
		return
	}
	if !mode.Known() {
		log.Warn().Int("mode", int(mode)).Msg("relay reports an unknown mode")
		return
	}
	log.Info().Stringer("mode", mode).Msg("current mode")
}
