package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/swrouter/swrouter/pkg/arp"
	"github.com/swrouter/swrouter/pkg/config"
	"github.com/swrouter/swrouter/pkg/forwarding"
	"github.com/swrouter/swrouter/pkg/iface"
	"github.com/swrouter/swrouter/pkg/ioshim"
	"github.com/swrouter/swrouter/pkg/metrics"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	interfacesFile string
	routesFile     string
	metricsAddr    string
	logLevel       string
	pcapIn         string
	pcapOut        string
)

var rootCmd = &cobra.Command{
	Use:   "swrouter",
	Short: "A software IPv4 router forwarding plane",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the forwarding pipeline against the configured interfaces",
	RunE:  runRouter,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information and exit",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("swrouter %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&interfacesFile, "interfaces", "interfaces.conf", "Path to the interface list file")
	rootCmd.PersistentFlags().StringVar(&routesFile, "routes", "routes.conf", "Path to the routing table file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "127.0.0.1:2112", "Address the Prometheus metrics endpoint binds to")

	runCmd.Flags().StringVar(&pcapIn, "pcap-in", "", "Replay frames from a pcap file instead of opening raw sockets")
	runCmd.Flags().StringVar(&pcapOut, "pcap-out", "", "Record every transmitted frame to a pcap file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: level}))
}

func runRouter(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	ifacesFh, err := os.Open(interfacesFile)
	if err != nil {
		return fmt.Errorf("opening interfaces file: %w", err)
	}
	defer ifacesFh.Close()
	interfaces, err := config.ParseInterfaces(ifacesFh)
	if err != nil {
		return fmt.Errorf("parsing interfaces: %w", err)
	}
	ifaceTable := iface.NewTable(interfaces)

	routesFh, err := os.Open(routesFile)
	if err != nil {
		return fmt.Errorf("opening routes file: %w", err)
	}
	defer routesFh.Close()
	routingTable, err := config.ParseRoutes(routesFh)
	if err != nil {
		return fmt.Errorf("parsing routes: %w", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	arpStore := arp.NewStore(clockwork.NewRealClock())

	sr, err := openIO(ifaceTable)
	if err != nil {
		return fmt.Errorf("opening host I/O: %w", err)
	}
	defer sr.Close()

	pipeline := forwarding.New(ifaceTable, routingTable, arpStore, sr, logger, m)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			<-ctx.Done()
			srv.Close()
		}()
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", "err", err)
		}
	}()

	go arpStore.RunSweeper(ctx, pipeline.AdvanceRetransmit)

	logger.Info("router starting", "interfaces", len(interfaces))
	for {
		if ctx.Err() != nil {
			logger.Info("router stopping")
			return nil
		}

		ingress, frame, err := sr.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("receive error", "err", err)
			continue
		}
		if err := pipeline.HandlePacket(ingress, frame); err != nil {
			logger.Warn("handle packet error", "err", err)
		}
	}
}

func openIO(ifaceTable *iface.Table) (ioshim.SenderReceiver, error) {
	names := make([]string, 0, len(ifaceTable.All()))
	for _, i := range ifaceTable.All() {
		names = append(names, i.Name)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no interfaces configured")
	}

	var base ioshim.SenderReceiver
	if pcapIn != "" {
		replay, err := ioshim.OpenPcapReplay(pcapIn, names[0])
		if err != nil {
			return nil, err
		}
		base = replay
	} else {
		sock, err := ioshim.OpenRawSocket(names)
		if err != nil {
			return nil, err
		}
		base = sock
	}

	if pcapOut == "" {
		return base, nil
	}

	recorder, err := ioshim.NewPcapRecorder(pcapOut)
	if err != nil {
		base.Close()
		return nil, err
	}
	return &recordingIO{SenderReceiver: base, recorder: recorder}, nil
}

// recordingIO tees every transmitted frame into a pcap file alongside the
// underlying sender/receiver, for capturing a live or replayed run.
type recordingIO struct {
	ioshim.SenderReceiver
	recorder *ioshim.PcapRecorder
}

func (r *recordingIO) Send(iface string, frame []byte) error {
	if err := r.recorder.Send(iface, frame); err != nil {
		return err
	}
	return r.SenderReceiver.Send(iface, frame)
}

func (r *recordingIO) Close() error {
	r.recorder.Close()
	return r.SenderReceiver.Close()
}
