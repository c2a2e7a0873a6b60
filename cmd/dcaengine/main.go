package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/blackhole-dca/dcaengine/internal/config"
	"github.com/blackhole-dca/dcaengine/pkg/engine"
)

// coinIDBySymbol maps the Token Registry's symbols to the Price Oracle's
// coin identifiers. The engine's reference deployment only quotes one
// asset against USDC, so the table is small and hand-maintained here
// rather than pulled into config.yml.
func coinIDBySymbol(symbol string) (string, bool) {
	switch symbol {
	case "XFI":
		return "crossfi", true
	case "WXFI":
		return "crossfi", true
	default:
		return "", false
	}
}

func main() {
	log := newLogger()

	cfg, err := config.LoadConfig(configPath())
	if err != nil {
		log.Fatal().Err(err).Msg("loading config")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	eng, err := engine.New(ctx, cfg, coinIDBySymbol, log)
	if err != nil {
		log.Fatal().Err(err).Msg("wiring engine")
	}
	defer eng.Close()

	go serveStatus(eng, log)

	log.Info().Msg("dca engine starting")
	eng.Run(ctx)
	log.Info().Msg("dca engine stopped")
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if parsed, err := zerolog.ParseLevel(v); err == nil {
			level = parsed
		}
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		Level(level).
		With().Timestamp().Logger()
}

func configPath() string {
	if v := os.Getenv("DCA_CONFIG"); v != "" {
		return v
	}
	return "configs/config.yml"
}

// serveStatus exposes scheduler-status() from spec §6 over a minimal HTTP
// endpoint, the engine's only inbound surface beyond whatever process
// embeds it directly.
func serveStatus(eng *engine.Engine, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		status := eng.Scheduler.Status()
		fmt.Fprintf(w, `{"running":%t,"uptime_seconds":%.0f,"last_price":"%s","last_tick_at":"%s","suspended":%t,"total_ticks":%d,"executed_count":%d,"error_count":%d}`,
			status.Running,
			status.Uptime.Seconds(),
			status.LastPrice.String(),
			status.LastTickAt.Format("2006-01-02T15:04:05Z07:00"),
			status.Suspended,
			status.TotalTicks,
			status.ExecutedCount,
			status.ErrorCount,
		)
	})

	addr := os.Getenv("STATUS_ADDR")
	if addr == "" {
		addr = ":8090"
	}
	log.Info().Str("addr", addr).Msg("status endpoint listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("status endpoint stopped")
	}
}
