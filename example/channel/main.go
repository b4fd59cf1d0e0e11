package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/ghalamif/hwpulse"
)

func main() {
	flow, err := hwpulse.Conf("../../hwpulse.example.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, points := hwpulse.NewChannelSink("fanout", 64)
	go processWatcher(points)

	if err := flow.Run(ctx, hwpulse.ToSink(sink)); err != nil {
		log.Fatalf("runtime error: %v", err)
	}
}

// processWatcher prints process lifecycle edges: the zero baseline of a new
// process and the last point of one that exited.
func processWatcher(points <-chan hwpulse.Point) {
	for p := range points {
		if p.Tags["type"] != "process" {
			continue
		}
		if p.Fields["cpu"] == 0 {
			fmt.Printf("%s %s cpu=0\n", p.Timestamp.Format("15:04:05.000"), p.Measurement)
		}
	}
}
