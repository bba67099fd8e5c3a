/************************************************************************************
 *
 * dgate, a sans-I/O Discord gateway protocol core
 *
 * SPDX-License-Identifier: BSD-3-Clause
 *
 ************************************************************************************/

// Command dgated is a minimal worked example of driving the dgate core
// against the real Discord gateway: it loads configuration from the
// environment (optionally via a .env file, the way marouanesouiri/dwaz's
// example commands do), wires up structured logging, and runs one
// connection until interrupted.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/shoreline-dev/dgate"
	"github.com/shoreline-dev/dgate/internal/driver"
)

func main() {
	_ = godotenv.Load()

	logger := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	token := os.Getenv("DGATE_TOKEN")
	if token == "" {
		logger.Fatal().Msg("DGATE_TOKEN is required")
	}
	gatewayURL := os.Getenv("DGATE_GATEWAY_URL")
	if gatewayURL == "" {
		gatewayURL = "wss://gateway.discord.gg"
	}
	intents, _ := strconv.Atoi(os.Getenv("DGATE_INTENTS"))

	cfg := driver.Config{
		GatewayURL: gatewayURL,
		Token:      token,
		Intents:    intents,
		Encoding:   dgate.EncodingJSON,
		Compress:   dgate.CompressionTransportZlibStream,
		Properties: dgate.IdentifyProperties{
			OS:      "linux",
			Browser: "dgate",
			Device:  "dgate",
		},
		Logger: logger,
	}

	d := driver.New(cfg)
	d.Handler = func(p dgate.Payload) {
		logger.Info().Str("type", p.Type).Msg("dispatch")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("driver exited")
	}
	_ = d.Shutdown()
}
