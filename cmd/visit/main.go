// Command visit runs one visit through the pipeline from the local machine
// and prints where the visitor would be sent.
//
// Usage:
//
//	visit -path /s/r/105 -ua "<user agent>" [-app-installed] [-geo granted -lat 19.07 -lon 72.87]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sajpe/visitgate/internal/app"
	"github.com/sajpe/visitgate/internal/config"
	"github.com/sajpe/visitgate/internal/identity"
	"github.com/sajpe/visitgate/internal/location"
	"github.com/sajpe/visitgate/internal/model"
	"github.com/sajpe/visitgate/internal/network"
	"github.com/sajpe/visitgate/internal/pipeline"
	"github.com/sajpe/visitgate/internal/redirect"
)

const defaultUA = "Mozilla/5.0 (Linux; Android 13; SM-G991B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36"

type options struct {
	path         string
	typ          string
	code         string
	userAgent    string
	ip           string
	geo          string
	lat          string
	lon          string
	appInstalled bool
	verbose      bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("visit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.path, "path", "/", "visit path, /{type}/{action}/{code}")
	fs.StringVar(&o.typ, "type", "", "referral type override")
	fs.StringVar(&o.code, "code", "", "referral code override")
	fs.StringVar(&o.userAgent, "ua", defaultUA, "User-Agent to classify")
	fs.StringVar(&o.ip, "ip", "", "visitor IP; empty asks the IP echo service")
	fs.StringVar(&o.geo, "geo", "", "geolocation permission: granted, prompt, denied or unsupported")
	fs.StringVar(&o.lat, "lat", "", "latitude of the position fix")
	fs.StringVar(&o.lon, "lon", "", "longitude of the position fix")
	fs.BoolVar(&o.appInstalled, "app-installed", false, "simulate an installed app handling the deep link")
	fs.BoolVar(&o.verbose, "v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if (o.lat == "") != (o.lon == "") {
		return o, fmt.Errorf("-lat and -lon must be given together")
	}
	return o, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "visit:", err)
		os.Exit(1)
	}
}

type result struct {
	Record   model.VisitRecord `json:"record"`
	Decision redirect.Decision `json:"decision"`
	Outcome  redirect.Outcome  `json:"outcome"`
	States   []redirect.State  `json:"states"`
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	// The CLI never writes to Postgres; the server's worker does.
	cfg.WorkerEnabled = false
	a, err := app.New(ctx, cfg, logger, nil, app.Options{SelfLookup: true})
	if err != nil {
		return err
	}
	defer a.Close()

	m := redirect.NewMachine(func(from, to redirect.State) {
		logger.Debug("visit state", "from", from, "to", to)
	})

	ip := o.ip
	if ip == "" {
		ip = network.UnknownIP
	}
	out := a.Pipeline.Run(ctx, pipeline.Input{
		Path:         o.path,
		TypeOverride: o.typ,
		CodeOverride: o.code,
		UserAgent:    o.userAgent,
		Signals:      identity.Signals{UserAgent: o.userAgent},
		ClientIP:     ip,
		Geolocator:   geolocator(o),
	}, m)

	nav := &terminalNavigator{w: stderr, appInstalled: o.appInstalled}
	if out.Decision.Auto && !out.Decision.DeepLink() {
		if err := sleep(ctx, cfg.DesktopRedirectDelay); err != nil {
			return err
		}
	}
	executor := redirect.NewExecutor(nav, redirect.SystemClock{}, nav, a.Race, logger)
	outcome, execErr := executor.Execute(ctx, m, out.Decision)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ReportTimeout)
	defer cancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		logger.Warn("report drain incomplete", "error", err)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result{
		Record:   out.Record,
		Decision: out.Decision,
		Outcome:  outcome,
		States:   m.History(),
	}); err != nil {
		return err
	}
	if execErr != nil {
		return execErr
	}
	return out.Err
}

func geolocator(o options) location.Geolocator {
	if o.geo == "" {
		return nil
	}
	g := location.ClientGeolocator{State: location.ParsePermission(o.geo)}
	lat, err1 := strconv.ParseFloat(o.lat, 64)
	lon, err2 := strconv.ParseFloat(o.lon, 64)
	if err1 == nil && err2 == nil {
		g.Fix = &location.Position{Latitude: lat, Longitude: lon}
	}
	return g
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// terminalNavigator prints navigations. A handled deep link backgrounds the
// "page", which the executor reads through Visible.
type terminalNavigator struct {
	w            io.Writer
	appInstalled bool
	hidden       atomic.Bool
}

func (n *terminalNavigator) Navigate(_ context.Context, url string) error {
	_, err := fmt.Fprintln(n.w, "navigate:", url)
	if n.appInstalled && !isWeb(url) {
		n.hidden.Store(true)
	}
	return err
}

func (n *terminalNavigator) Visible() bool {
	return !n.hidden.Load()
}

func isWeb(url string) bool {
	return strings.HasPrefix(url, "https://") || strings.HasPrefix(url, "http://")
}
