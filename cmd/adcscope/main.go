package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/adcscope/internal/acquisition"
	"github.com/banshee-data/adcscope/internal/api"
	"github.com/banshee-data/adcscope/internal/config"
	"github.com/banshee-data/adcscope/internal/monitoring"
	"github.com/banshee-data/adcscope/internal/render"
	"github.com/banshee-data/adcscope/internal/serialmux"
	"github.com/banshee-data/adcscope/internal/timeseries"
	"github.com/banshee-data/adcscope/internal/version"
)

var (
	configPath     = flag.String("config", "", "Path to a JSON config file; flags given explicitly override it")
	port           = flag.String("port", config.DefaultPort, "Serial port to read from (ignored in dev mode)")
	baud           = flag.Int("baud", serialmux.DefaultBaudRate, "Serial baud rate")
	readTimeout    = flag.Duration("read-timeout", serialmux.DefaultReadTimeout, "Serial read timeout; bounds how long shutdown waits on a read")
	backoff        = flag.Duration("backoff", config.DefaultBackoff, "Delay between reconnect attempts")
	window         = flag.Duration("window", config.DefaultWindow, "Length of the buffered time window")
	rate           = flag.Int("rate", config.DefaultSampleRate, "Expected sample rate in Hz, used to size the buffer")
	smoothing      = flag.Int("smoothing", config.DefaultSmoothing, "Moving-average window in samples")
	renderInterval = flag.Duration("render-interval", config.DefaultRenderInterval, "Redraw period")
	listen         = flag.String("listen", config.DefaultListen, "HTTP listen address (empty disables the HTTP server)")
	devMode        = flag.Bool("dev", false, "Run in dev mode with a synthetic signal instead of a serial port")
	devRate        = flag.Int("dev-rate", config.DefaultDevRate, "Sample rate of the dev mode signal generator")
	joinTimeout    = flag.Duration("join-timeout", config.DefaultJoinTimeout, "How long shutdown waits for the acquisition loop")
	verbose        = flag.Bool("verbose", false, "Enable debug logging")
	showVersion    = flag.Bool("version", false, "Print version and exit")
	listPorts      = flag.Bool("list-ports", false, "List available serial ports and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *listPorts {
		ports, err := serialmux.ListPorts()
		if err != nil {
			log.Fatalf("failed to list serial ports: %v", err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	cfg := &config.Config{}
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	applyFlags(cfg, flag.CommandLine)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	monitoring.SetVerbose(cfg.GetVerbose())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("%s starting", version.String())
	if err := run(ctx, cfg); err != nil {
		log.Printf("fatal: %v", err)
		os.Exit(1)
	}
	log.Printf("Graceful shutdown complete")
}

// applyFlags copies every flag set on the command line into cfg, so flags
// win over the config file while unset flags leave it alone.
func applyFlags(cfg *config.Config, fs *flag.FlagSet) {
	fs.Visit(func(f *flag.Flag) {
		getter, ok := f.Value.(flag.Getter)
		if !ok {
			return
		}
		switch v := getter.Get().(type) {
		case string:
			switch f.Name {
			case "port":
				cfg.Port = &v
			case "listen":
				cfg.Listen = &v
			}
		case int:
			switch f.Name {
			case "baud":
				cfg.BaudRate = &v
			case "rate":
				cfg.SampleRate = &v
			case "smoothing":
				cfg.Smoothing = &v
			case "dev-rate":
				cfg.DevRate = &v
			}
		case bool:
			switch f.Name {
			case "dev":
				cfg.DevMode = &v
			case "verbose":
				cfg.Verbose = &v
			}
		case time.Duration:
			s := v.String()
			switch f.Name {
			case "read-timeout":
				cfg.ReadTimeout = &s
			case "backoff":
				cfg.Backoff = &s
			case "window":
				cfg.Window = &s
			case "render-interval":
				cfg.RenderInterval = &s
			case "join-timeout":
				cfg.JoinTimeout = &s
			}
		}
	})
}

func newLoop(cfg *config.Config) (*acquisition.Loop, error) {
	buf := timeseries.New(timeseries.CapacityFor(cfg.GetWindow(), cfg.GetSampleRate()))
	acqCfg := acquisition.Config{
		Path:    cfg.GetPort(),
		Options: cfg.GetPortOptions(),
		Backoff: cfg.GetBackoff(),
	}
	if cfg.GetDevMode() {
		acqCfg.Path = "signal-generator"
		acqCfg.Open = serialmux.GeneratorOpener(cfg.GetDevRate())
	}
	return acquisition.New(acqCfg, buf)
}

func newHandler(srv *api.Server) http.Handler {
	mux := http.NewServeMux()
	// mount the admin debugging routes (accessible only locally or over Tailscale)
	srv.AttachAdminRoutes(mux)
	mux.Handle("/", srv.ServeMux())
	return api.LoggingMiddleware(mux)
}

// run acquires until ctx is cancelled and then shuts everything down.
func run(ctx context.Context, cfg *config.Config) error {
	loop, err := newLoop(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	log.Printf("acquiring from %s, buffering %s (%d samples)", cfg.GetPort(), cfg.GetWindow(), loop.Buffer().Capacity())

	go func() {
		if err := loop.Run(ctx); err != nil {
			log.Printf("acquisition loop: %v", err)
		}
		log.Print("acquisition routine terminated")
	}()

	// Nothing to show until the first connection.
	if err := loop.Ready().Wait(ctx); err != nil {
		log.Printf("stopped before the first connection")
		joinAcquisition(loop, cfg.GetJoinTimeout())
		return nil
	}

	latest := &render.Latest{}
	hub := render.NewHub(cfg.GetWSMaxPoints())
	renderLoop := &render.Loop{
		Source:    loop.Buffer(),
		Display:   render.Multi{latest, hub},
		Interval:  cfg.GetRenderInterval(),
		Window:    cfg.GetWindow(),
		Smoothing: cfg.GetSmoothing(),
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = renderLoop.Run(ctx)
		log.Print("render routine terminated")
	}()

	var (
		errMu    sync.Mutex
		serveErr error
	)
	fail := func(err error) {
		errMu.Lock()
		if serveErr == nil {
			serveErr = err
		}
		errMu.Unlock()
		cancel()
	}

	if addr := cfg.GetListen(); addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			fail(fmt.Errorf("listen on %s: %w", addr, err))
		} else {
			server := &http.Server{
				Handler:           newHandler(api.NewServer(loop, latest, hub)),
				ReadHeaderTimeout: 5 * time.Second,
			}
			log.Printf("HTTP server listening on http://%s", ln.Addr())

			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					fail(fmt.Errorf("HTTP server: %w", err))
				}
			}()

			wg.Add(1)
			go func() {
				defer wg.Done()
				<-ctx.Done()
				log.Println("shutting down HTTP server...")
				hub.Close()

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					log.Printf("HTTP server shutdown error: %v", err)
				}
				log.Printf("HTTP server routine stopped")
			}()
		}
	}

	<-ctx.Done()
	joinAcquisition(loop, cfg.GetJoinTimeout())
	wg.Wait()

	errMu.Lock()
	defer errMu.Unlock()
	return serveErr
}

func joinAcquisition(loop *acquisition.Loop, timeout time.Duration) {
	if !loop.Wait(timeout) {
		log.Printf("acquisition loop did not stop within %s; abandoning it", timeout)
	}
}
