// ABOUTME: Entry point for the URTP audio streamer
// ABOUTME: Parses CLI flags and starts the pipeline
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tidepool-labs/urtp-streamer/internal/pipeline"
	"github.com/tidepool-labs/urtp-streamer/internal/statusapi"
	"github.com/tidepool-labs/urtp-streamer/internal/ui"
	"github.com/tidepool-labs/urtp-streamer/internal/version"
	"github.com/tidepool-labs/urtp-streamer/pkg/urtp"
)

var (
	serverAddr = flag.String("server", "", "TCP/UDP destination host:port (empty = local-file-mirror-only)")
	transport  = flag.String("transport", "tcp", "Transport: tcp or udp")
	scheme     = flag.String("scheme", "pcm16", "Coding scheme: pcm16, unicam8, or unicam10")
	poolSize   = flag.Int("pool-size", 200, "Datagram pool capacity")
	localFile  = flag.String("local-file", "", "Optional path to mirror every outgoing datagram to")
	statusAddr = flag.String("status-addr", "", "Optional host:port for the local websocket status API")
	replayFile = flag.String("replay-file", "", "Replay an MP3/FLAC file instead of capturing a microphone")
	durationMs = flag.Int("duration-ms", 0, "Stop streaming after this many milliseconds (0 = run until signalled)")
	logFile    = flag.String("log-file", "urtp-streamer.log", "Log file path")
	noTUI      = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	dumpEvents = flag.Bool("dump-events", false, "Dump the diagnostic event log to stderr on exit")
)

func main() {
	flag.Parse()

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	useTUI := !*noTUI
	if useTUI {
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	cfg := pipeline.DefaultConfig()
	cfg.ServerAddr = *serverAddr
	cfg.PoolSize = *poolSize
	cfg.LocalFilePath = *localFile

	switch *transport {
	case "tcp":
		cfg.Transport = pipeline.TransportTCP
	case "udp":
		cfg.Transport = pipeline.TransportUDP
	default:
		log.Fatalf("unknown transport %q", *transport)
	}

	s, err := parseScheme(*scheme)
	if err != nil {
		log.Fatalf("%v", err)
	}
	cfg.Scheme = s

	cfg.StreamDuration = time.Duration(*durationMs) * time.Millisecond

	var mirror io.Writer
	if cfg.LocalFilePath != "" {
		mf, err := os.Create(cfg.LocalFilePath)
		if err != nil {
			log.Fatalf("failed to create local mirror file: %v", err)
		}
		defer mf.Close()
		mirror = mf
	}

	source, err := buildSource(*replayFile, cfg.BlockDurationMs)
	if err != nil {
		log.Fatalf("failed to build block source: %v", err)
	}

	p, err := pipeline.New(cfg, source, pipeline.NoopStatusIndicator{}, mirror)
	if err != nil {
		log.Fatalf("failed to build pipeline: %v", err)
	}

	log.Printf("Starting %s %s session=%s (scheme=%s transport=%s server=%s)",
		version.Product, version.Version, p.SessionID, cfg.Scheme, cfg.Transport, cfg.ServerAddr)

	ctx, cancel := context.WithCancel(context.Background())

	monitor := p.Monitor()

	if useTUI {
		prog, err := ui.Run(ctx, monitor)
		if err != nil {
			log.Fatalf("failed to start TUI: %v", err)
		}
		go func() {
			if _, err := prog.Run(); err != nil {
				log.Printf("TUI exited: %v", err)
			}
			cancel()
		}()
	} else {
		snapshots := monitor.Subscribe()
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case snap := <-snapshots:
					log.Printf("pool=%d/%d shift=%d sender=%s sent=%d failed=%d last=%s",
						snap.PoolAvailable, snap.PoolSize, snap.GainShift,
						snap.SenderState, snap.SentDatagrams, snap.SendFailures,
						snap.LastSendElapsed)
				}
			}
		}()
	}

	if *statusAddr != "" {
		api := statusapi.NewServer(*statusAddr, monitor)
		go func() {
			if err := api.Run(ctx); err != nil {
				log.Printf("status API exited: %v", err)
			}
		}()
	}

	if err := p.Start(ctx); err != nil {
		log.Fatalf("failed to start pipeline: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if cfg.StreamDuration > 0 {
		select {
		case <-sigChan:
			log.Printf("shutdown signal received")
		case <-time.After(cfg.StreamDuration):
			log.Printf("stream duration elapsed")
		}
	} else {
		<-sigChan
		log.Printf("shutdown signal received")
	}

	cancel()
	if err := p.Stop(); err != nil {
		log.Printf("error stopping pipeline: %v", err)
	}

	if *dumpEvents {
		fmt.Fprintf(os.Stderr, "events for session %s:\n", p.SessionID)
		for _, e := range p.Events().Snapshot() {
			fmt.Fprintln(os.Stderr, e.String())
		}
	}

	log.Printf("streamer stopped")
}

func parseScheme(name string) (urtp.Scheme, error) {
	switch name {
	case "pcm16":
		return urtp.SchemePCM16, nil
	case "unicam8":
		return urtp.SchemeUNICAM8, nil
	case "unicam10":
		return urtp.SchemeUNICAM10, nil
	default:
		return 0, fmt.Errorf("unknown scheme %q", name)
	}
}

func buildSource(replayFile string, blockDurationMs int) (pipeline.BlockSource, error) {
	blockDuration := time.Duration(blockDurationMs) * time.Millisecond
	if replayFile != "" {
		return pipeline.NewFileSource(replayFile, blockDuration)
	}
	return pipeline.NewMalgoSource(), nil
}
