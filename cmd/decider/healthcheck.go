package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/snow-ghost/dilemma/remote"
)

// healthcheck performs a health check on the local decider
func healthcheck(port string) {
	client, err := remote.NewClient(remote.ClientConfig{
		BaseURL: fmt.Sprintf("http://localhost:%s", port),
		Timeout: 5 * time.Second,
	}, nil)
	if err != nil {
		fmt.Printf("Health check failed: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Health(ctx); err != nil {
		fmt.Printf("Health check failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Health check passed")
}
