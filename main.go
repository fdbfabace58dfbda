package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"news-enricher/bootstrap"
)

func main() {
	// .env is optional; real deployments configure through the environment.
	_ = godotenv.Load()

	if err := bootstrap.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "news-enricher: %v\n", err)
		os.Exit(1)
	}
}
