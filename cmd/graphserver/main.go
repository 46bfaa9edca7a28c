// Command graphserver hosts one rank of a distributed graph store.
//
// A graph server keeps the shards of its rank in memory for every
// configured table and answers binary RPCs on POST /rpc:
//
//	┌─────────────────────────────────────────┐
//	│              graphserver                │
//	├─────────────────────────────────────────┤
//	│  HTTP API:                              │
//	│    /rpc      - binary request envelope  │
//	│    /health   - 200 once serving         │
//	│    /info     - rank and table counts    │
//	│    /metrics  - Prometheus               │
//	├─────────────────────────────────────────┤
//	│  Components:                            │
//	│    Service     - lifecycle and dispatch │
//	│    GraphTable  - shards per table       │
//	│    Membership  - static or coordinator  │
//	└─────────────────────────────────────────┘
//
// Startup:
//  1. Load configuration (defaults, YAML file, environment, flags)
//  2. Create the tables and the service, then start listening
//  3. Obtain a rank: from the coordinator when one is configured,
//     otherwise from the static server list
//  4. Wait until the cluster has the expected number of servers
//  5. Assign shard ranges; requests received before this point wait
//
// The process exits on SIGINT, SIGTERM or a STOP_SERVER request.
//
// Example:
//
//	GRAPH_SERVERS="127.0.0.1:8081;127.0.0.1:8082" GRAPH_RANK=0 \
//	GRAPH_LISTEN=:8081 ./graphserver
package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/dreamware/graphps/internal/config"
)

// logFatal is a variable to allow replacing log.Fatalf in tests.
var logFatal = log.Fatalf

var flags struct {
	config      string
	id          string
	listen      string
	addr        string
	coordinator string
	servers     string
	rank        int
}

var rootCmd = &cobra.Command{
	Use:          "graphserver",
	Short:        "Serve one rank of a sharded in-memory graph",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd, os.Getenv)
		if err != nil {
			return err
		}
		return run(cmd.Context(), cfg)
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&flags.config, "config", "c", "", "path to a YAML config file")
	f.StringVar(&flags.id, "id", "", "server id used when registering")
	f.StringVar(&flags.listen, "listen", "", "listen address")
	f.StringVar(&flags.addr, "addr", "", "public address announced to the cluster")
	f.StringVar(&flags.coordinator, "coordinator", "", "coordinator URL")
	f.StringVar(&flags.servers, "servers", "", `static server list "host:port;host:port"`)
	f.IntVar(&flags.rank, "rank", 0, "rank within the static server list")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logFatal("graphserver: %v", err)
	}
}

// loadConfig layers command-line flags over the file and environment.
// Only flags that were set explicitly override.
func loadConfig(cmd *cobra.Command, env config.Getenv) (config.ServerConfig, error) {
	cfg, err := config.LoadServer(flags.config, env)
	if err != nil {
		return cfg, err
	}
	f := cmd.Flags()
	if f.Changed("id") {
		cfg.ID = flags.id
	}
	if f.Changed("listen") {
		cfg.Listen = flags.listen
	}
	if f.Changed("addr") {
		cfg.Addr = flags.addr
	}
	if f.Changed("coordinator") {
		cfg.Coordinator = flags.coordinator
	}
	if f.Changed("servers") {
		cfg.Servers = flags.servers
	}
	if f.Changed("rank") {
		cfg.Rank = flags.rank
	}
	return cfg, cfg.Validate()
}
