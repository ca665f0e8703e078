package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spounge-ai/persistor/internal/app/client"
	persistor_grpc "github.com/spounge-ai/persistor/internal/app/grpc"
	"github.com/spounge-ai/persistor/internal/wiring"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

func main() {
	scriptPath := flag.String("script", "configs/client.yaml", "YAML file of requests to send")
	target := flag.String("target", "", "gateway host:port, overrides the script")
	timeout := flag.Duration("timeout", 30*time.Second, "deadline for the whole script")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	script, err := client.LoadScript(*scriptPath)
	if err != nil {
		logger.Error("failed to load script", "error", err)
		os.Exit(1)
	}
	if *target != "" {
		script.Target = *target
	}
	if script.Target == "" {
		script.Target = "localhost:50053"
	}

	creds := insecure.NewCredentials()
	if script.TLS.Enabled {
		tlsConfig, err := wiring.ConfigureClientTLS(script.TLS.CAFile)
		if err != nil {
			logger.Error("failed to configure client TLS", "error", err)
			os.Exit(1)
		}
		creds = credentials.NewTLS(tlsConfig)
	}

	gw, err := persistor_grpc.NewClient(script.Target, grpc.WithTransportCredentials(creds))
	if err != nil {
		logger.Error("gRPC connection failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := gw.Close(); err != nil {
			logger.Error("failed to close connection", "error", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	failed := 0
	enc := json.NewEncoder(os.Stdout)
	for _, res := range client.NewRunner(gw, logger).Run(ctx, script) {
		for _, reply := range res.Replies {
			if err := enc.Encode(map[string]any{"step": res.Step, "reply": reply}); err != nil {
				logger.Error("failed to print reply", "error", err)
			}
		}
		if !res.Passed() {
			failed++
		}
	}

	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d steps failed\n", failed, len(script.Steps))
		os.Exit(1)
	}
}
