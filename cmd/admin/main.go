package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"snapcast/internal/admin"
)

func main() {
	if len(os.Args) < 3 { // Minimum 3 args: program, command, server_address
		printUsageAndExit()
	}

	cmd := os.Args[1]
	serverAddr := os.Args[2]

	switch cmd {
	case "health":
		service := ""
		if len(os.Args) == 4 {
			service = os.Args[3]
		} else if len(os.Args) != 3 {
			fmt.Println("Usage: health <server_address> [service]")
			os.Exit(1)
		}
		checkHealth(serverAddr, service)
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsageAndExit()
	}
}

func printUsageAndExit() {
	fmt.Println("Usage:")
	fmt.Println("  health <server_address> [service]  - Report the serving status of a web process")
	fmt.Printf("                                       (service defaults to overall; %q is also registered)\n", admin.ServiceName)
	os.Exit(1)
}

func checkHealth(serverAddr, service string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status, err := admin.CheckHealth(ctx, serverAddr, service)
	if err != nil {
		slog.Error("health check failed", "addr", serverAddr, "service", service, "error", err)
		os.Exit(1)
	}

	fmt.Printf("%s: %s\n", serverAddr, status)
	if status != healthpb.HealthCheckResponse_SERVING {
		os.Exit(2)
	}
}
