package main

import (
	"context"
	"log"
	"os"

	"intake/internal/config"
	"intake/internal/daemonrun"
)

func main() {
	cfg, _, _, err := config.Load(os.Getenv("INTAKE_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{}); err != nil {
		log.Fatalf("intaked: %v", err)
	}
}
