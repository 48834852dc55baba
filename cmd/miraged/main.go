package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/irctrakz/mirage/pkg/config"
	"github.com/irctrakz/mirage/pkg/core"
	"github.com/irctrakz/mirage/pkg/logging"
	"github.com/irctrakz/mirage/pkg/proto"
	"github.com/irctrakz/mirage/pkg/socket"
	"github.com/irctrakz/mirage/pkg/tun"
)

func truthy(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func main() {
	cfg := config.DefaultConfig()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := config.LoadFromFile(path, cfg); err != nil {
			log.Fatalf("config: %v", err)
		}
	}
	config.LoadFromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := cfg.ApplyLogging(); err != nil {
		log.Fatalf("logging: %v", err)
	}
	metricsEnabled := strings.TrimSpace(os.Getenv("METRICS_LOG")) != "" || strings.TrimSpace(os.Getenv("METRICS_INTERVAL")) != ""
	if cfg.Responder.Debug {
		logging.SetLevel(logging.DebugLevel)
		core.SetDebugMode(true)
		logging.Infof("DEBUG enabled: verbose logging and packet copy mode")
	} else if metricsEnabled {
		logging.SetLevel(logging.InfoLevel)
	}

	machine, err := cfg.ResponderIdentity()
	if err != nil {
		log.Fatalf("identity: %v", err)
	}

	// Application-layer emulators. HTTP is always on; echo is opt-in because
	// it makes the responder trivially fingerprintable.
	var upper core.UpperLayer
	if truthy(os.Getenv("PROTO_ECHO")) {
		upper = proto.NewRegistry(&proto.HTTPHandler{}, &proto.EchoHandler{})
	} else {
		upper = proto.Default()
	}

	scfg := socket.Config{
		Mode:        cfg.Capture.Mode,
		TUNName:     cfg.Capture.TUNName,
		BindAddress: "0.0.0.0",
		MTU:         cfg.Capture.MTU,
		Workers:     cfg.Capture.Workers,
		QueueCap:    cfg.Capture.QueueCap,
		EnableUDP:   cfg.Capture.EnableUDP,
		EnableICMP:  cfg.Capture.EnableICMP,
	}
	si := socket.NewSocketInterface(scfg, machine, upper)

	if scfg.Mode == socket.ModeTUN {
		dev, err := tun.CreateTUN(scfg.TUNName, scfg.MTU)
		if err != nil {
			log.Fatalf("tun: %v", err)
		}
		si.SetTUNDevice(dev)
	}

	// Verify the reply pipeline end to end before binding the capture
	// surface; a broken cookie setup must not go live silently.
	if err := runSelfCheck(machine, upper); err != nil {
		log.Fatalf("selfcheck: %v", err)
	}

	if err := si.Start(); err != nil {
		log.Fatalf("socket start: %v", err)
	}
	defer si.Stop()

	if metricsEnabled {
		go runMetricsReporter(si)
	}

	// Health and status endpoints.
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
		http.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(si.DetailedMetrics())
		})
		addr := strings.TrimSpace(os.Getenv("HEALTH_ADDR"))
		if addr == "" {
			addr = ":8080"
		}
		http.ListenAndServe(addr, nil)
	}()

	logging.Infof("mirage responder up: mode=%s addresses=%d", scfg.Mode, len(machine.Addresses))

	sigc := make(chan os.Signal, 2)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
}
