package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// startServer is a variable to allow mocking in tests
var startServer = runServer

// Run is the entrypoint for testing
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		// Default to server
		return startServer(stdout, stderr)
	}

	switch args[1] {
	case "server", "serve":
		return startServer(stdout, stderr)
	case "distribute":
		return runDistributeCmd(args[2:], stdout, stderr)
	case "health":
		return runHealthCmd(stdout, stderr)
	case "token":
		return runTokenCmd(args[2:], stdout, stderr)
	case "verify-audit":
		return runVerifyAuditCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		if args[1][0] == '-' {
			return startServer(stdout, stderr)
		}
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "leadgrid - lead ingestion and distribution service")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  leadgrid [server]              Start the HTTP server (default)")
	fmt.Fprintln(w, "  leadgrid distribute [-limit N] Sweep undistributed leads once and exit")
	fmt.Fprintln(w, "  leadgrid health                Check a running server")
	fmt.Fprintln(w, "  leadgrid token <agency_id>     Mint an agency API token (requires JWT_SECRET)")
	fmt.Fprintln(w, "  leadgrid verify-audit          Verify the audit chain of the configured store")
	fmt.Fprintln(w, "  leadgrid help                  Show this help")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Configuration is read from the environment: PORT, DATABASE_URL,")
	fmt.Fprintln(w, "REDIS_URL, LOG_LEVEL, ADMIN_API_KEY, JWT_SECRET, MAPPING_PROFILE_DIR,")
	fmt.Fprintln(w, "DEDUP_WINDOW_SECONDS, DISTRIBUTION_RETRY_MAX, PIPELINE_DEADLINE_MS.")
}

func runHealthCmd(out, errOut io.Writer) int {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	resp, err := http.Get("http://localhost:" + port + "/health")
	if err != nil {
		fmt.Fprintf(errOut, "Health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(errOut, "Health check failed: status %d\n", resp.StatusCode)
		return 1
	}

	fmt.Fprintln(out, "OK")
	return 0
}
