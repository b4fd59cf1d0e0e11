package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/hwpulse"
)

func main() {
	flow, err := hwpulse.Conf("../../hwpulse.example.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printPoint := func(p hwpulse.Point) error {
		fmt.Printf("%s %s tags=%v fields=%v\n",
			p.Timestamp.Format(time.RFC3339Nano),
			p.Measurement,
			p.Tags,
			p.Fields,
		)
		return nil
	}

	if err := flow.Run(ctx, hwpulse.ToCallback("stdout", printPoint)); err != nil {
		log.Fatalf("runtime error: %v", err)
	}
}
