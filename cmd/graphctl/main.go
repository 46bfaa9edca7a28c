// Command graphctl sends commands to a graph server cluster from the
// shell.
package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/dreamware/graphps/internal/client"
	"github.com/dreamware/graphps/internal/cluster"
	"github.com/dreamware/graphps/internal/config"
	"github.com/dreamware/graphps/internal/logging"
)

// app holds the settings shared by every subcommand.
type app struct {
	configPath  string
	coordinator string
	servers     string
	tableID     uint32
	clientID    uint32
	timeout     time.Duration

	env    config.Getenv
	cfg    config.ClientConfig
	client *client.Client
}

func main() {
	if err := newRootCmd(os.Getenv).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(env config.Getenv) *cobra.Command {
	a := &app{env: env}
	root := &cobra.Command{
		Use:   "graphctl",
		Short: "Control a graph server cluster",
		Long: `graphctl sends commands to graph servers. Servers are found through
a coordinator (--coordinator) or a static list (--servers).`,
		SilenceUsage:      true,
		PersistentPreRunE: a.connect,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "path to a YAML config file")
	pf.StringVar(&a.coordinator, "coordinator", "", "coordinator URL")
	pf.StringVar(&a.servers, "servers", "", `static server list "host:port;host:port"`)
	pf.Uint32VarP(&a.tableID, "table", "t", 0, "table id")
	pf.Uint32Var(&a.clientID, "client-id", 0, "client id sent with each request")
	pf.DurationVar(&a.timeout, "timeout", 0, "per-command timeout")

	root.AddCommand(
		a.loadCmd(),
		a.loadAllCmd(),
		a.sampleCmd(),
		a.listCmd(),
		a.statCmd(),
		a.barrierCmd(),
		a.stopCmd(),
		a.profileCmd(),
	)
	return root
}

// connect resolves the configuration and builds the client.
func (a *app) connect(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadClient(a.configPath, a.env)
	if err != nil {
		return err
	}
	f := cmd.Flags()
	if f.Changed("coordinator") {
		cfg.Coordinator = a.coordinator
	}
	if f.Changed("servers") {
		cfg.Servers = a.servers
	}
	if f.Changed("client-id") {
		cfg.ClientID = a.clientID
	}
	if f.Changed("timeout") {
		cfg.Timeout = a.timeout
	}

	var m cluster.Membership
	switch {
	case cfg.Coordinator != "":
		m = &cluster.CoordinatorMembership{Addr: cfg.Coordinator}
	case cfg.Servers != "":
		sm, err := cluster.ParseStaticMembership(cfg.Servers)
		if err != nil {
			return err
		}
		m = sm
	default:
		return errors.New("either --coordinator or --servers is required")
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	opts := []client.Option{
		client.WithClientID(cfg.ClientID),
		client.WithShardNum(cfg.ShardNum),
		client.WithLogger(logging.New(cmd.ErrOrStderr(), level, cfg.Log.Format)),
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, client.WithRateLimit(rate.Limit(cfg.RateLimit), 1))
	}
	a.cfg = cfg
	a.client = client.New(m, opts...)
	return nil
}

// context returns the command context bounded by the configured timeout.
func (a *app) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	if a.cfg.Timeout <= 0 {
		return context.WithCancel(cmd.Context())
	}
	return context.WithTimeout(cmd.Context(), a.cfg.Timeout)
}
