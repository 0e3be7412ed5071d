package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/capview/capview/pkg/config"
	"github.com/capview/capview/pkg/metrics"
	"github.com/capview/capview/pkg/session"
)

// capview ingests one JSON payload per stdin line into a capture
// session and prints the final paged-view summary on shutdown.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if cfg.EnableExporter {
		metrics.StartMetricsServer(cfg.ExporterPort)
	}

	mgr := session.NewManager(cfg)
	sess, err := mgr.Open("")
	if err != nil {
		log.Fatalf("failed to start session: %v", err)
	}
	fmt.Printf("capturing to %s as session %s\n", cfg.DataDir, sess.Name())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

loop:
	for {
		select {
		case <-sig:
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			payload := json.RawMessage(line)
			if !json.Valid(payload) {
				quoted, _ := json.Marshal(line)
				payload = quoted
			}
			sess.Offer(payload)
		}
	}

	mgr.CloseAll()

	v, err := sess.View().CurrentView()
	if err != nil {
		log.Fatalf("failed to fetch final view: %v", err)
	}
	fmt.Printf("session %s: %d records, viewing page %d/%d [%d..%d]\n",
		sess.Name(), sess.NextIndex(), v.PageNumber, v.TotalPages, v.Start, v.End)
}
