// Package cli builds the fleetd command tree: serve (the long-running
// process), job-types apply (bulk job type definitions) and status
// (fleet summary).
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nodefleet/fleet/internal/clock"
	"github.com/nodefleet/fleet/internal/config"
	"github.com/nodefleet/fleet/internal/executor"
	"github.com/nodefleet/fleet/internal/heartbeat"
	"github.com/nodefleet/fleet/internal/httpapi"
	"github.com/nodefleet/fleet/internal/metrics"
	"github.com/nodefleet/fleet/internal/scheduler"
	"github.com/nodefleet/fleet/internal/store"
	"github.com/nodefleet/fleet/internal/worker"
	"github.com/nodefleet/fleet/pkg/types"
)

func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fleetd",
		Short: "fleetd runs and administers a job-execution fleet node",
		Long: `fleetd is a distributed job-execution fleet process:
- polls a Redis-backed store for jobs targeting its node type
- runs a leader-free scheduler that promotes recurring schedule items
- exposes an HTTP control plane for node types, job types, jobs and schedules`,
	}

	rootCmd.AddCommand(buildServeCommand())
	rootCmd.AddCommand(buildJobTypesCommand())
	rootCmd.AddCommand(buildStatusCommand())

	return rootCmd
}

// connectStore opens a RedisStore against cfg's connection parameters and
// resolves (creating, if absent) the node type named by cfg.NodeType.
func connectStore(ctx context.Context, cfg *config.Config) (store.Store, *types.NodeType, error) {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr(),
		DB:   cfg.RedisDatabase,
	})

	s, err := store.Connect(ctx, client, clock.Real{})
	if err != nil {
		return nil, nil, fmt.Errorf("connect store: %w", err)
	}

	nt, err := s.ResolveNodeTypeByName(ctx, cfg.NodeType)
	if err != nil {
		if err != store.ErrNotFound {
			return nil, nil, fmt.Errorf("resolve node type %q: %w", cfg.NodeType, err)
		}
		nt = &types.NodeType{UUID: s.Node().UUID + "-type", Name: cfg.NodeType, ThreadCount: 1}
		if err := s.NewNodeType(ctx, nt); err != nil {
			return nil, nil, fmt.Errorf("create node type %q: %w", cfg.NodeType, err)
		}
	}

	if err := s.SetNodeType(ctx, nt.UUID); err != nil {
		return nil, nil, fmt.Errorf("bind node type %q: %w", cfg.NodeType, err)
	}

	return s, nt, nil
}

func buildServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the fleet node process",
		Long:  "Connect to the store, bind the configured node type, and run the heartbeat, scheduler, worker pool, metrics and HTTP control plane loops",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	log := slog.Default()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("serve: load config: %w", err)
	}

	s, nt, err := connectStore(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	defer s.Close()

	log.Info("fleetd starting", "node_type", nt.Name, "node", s.Node().UUID, "threads", nt.ThreadCount)

	hbHandle, err := s.Replicate(context.Background())
	if err != nil {
		return fmt.Errorf("serve: replicate heartbeat handle: %w", err)
	}
	hb := heartbeat.New(hbHandle, pingInterval(cfg), log)
	hb.Start()
	defer hb.Stop()

	var collector *metrics.Collector
	if cfg.MetricsEnabled {
		collector = metrics.NewCollector()
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(cfg.MetricsBindAddress, mux); err != nil {
				log.Error("metrics server stopped", "error", err)
			}
		}()
	}

	schedHandle, err := s.Replicate(context.Background())
	if err != nil {
		return fmt.Errorf("serve: replicate scheduler handle: %w", err)
	}
	sched := scheduler.New(schedHandle, clock.Real{}, schedulerInterval(cfg), log, collector)
	sched.Start()
	defer sched.Stop()

	pool := worker.NewPool()
	if err := pool.Start(context.Background(), s, nt.UUID, nt.ThreadCount, executor.DefaultRegistry(), log, collector); err != nil {
		return fmt.Errorf("serve: start worker pool: %w", err)
	}
	defer pool.Stop()

	if cfg.HTTPServerEnabled {
		httpHandle, err := s.Replicate(context.Background())
		if err != nil {
			return fmt.Errorf("serve: replicate http handle: %w", err)
		}
		api := httpapi.New(httpHandle, cfg.HTTPAPIKey, log).WithMetrics(collector)
		go func() {
			log.Info("http control plane listening", "addr", cfg.HTTPBindAddress)
			if err := http.ListenAndServe(cfg.HTTPBindAddress, api.Router()); err != nil {
				log.Error("http server stopped", "error", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("fleetd shutting down")
	return nil
}

func pingInterval(cfg *config.Config) time.Duration {
	return time.Duration(cfg.PingIntervalMs) * time.Millisecond
}

func schedulerInterval(cfg *config.Config) time.Duration {
	return time.Duration(cfg.SchedulerIntervalMs) * time.Millisecond
}

// jobTypeDoc is the on-disk shape accepted by job-types apply: a list of
// job type definitions in either JSON or YAML.
type jobTypeDoc struct {
	JobTypes []types.JobType `json:"job_types" yaml:"job_types"`
}

func buildJobTypesCommand() *cobra.Command {
	jobTypesCmd := &cobra.Command{
		Use:   "job-types",
		Short: "Manage job type definitions",
	}

	var file string
	applyCmd := &cobra.Command{
		Use:   "apply",
		Short: "Create or update job types from a JSON or YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("job-types apply: --file is required")
			}
			return runJobTypesApply(file)
		},
	}
	applyCmd.Flags().StringVarP(&file, "file", "f", "", "path to a JSON or YAML job type document")
	jobTypesCmd.AddCommand(applyCmd)

	return jobTypesCmd
}

func runJobTypesApply(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("job-types apply: read %s: %w", path, err)
	}

	var doc jobTypeDoc
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("job-types apply: parse yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("job-types apply: parse json: %w", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("job-types apply: load config: %w", err)
	}
	ctx := context.Background()
	s, _, err := connectStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("job-types apply: %w", err)
	}
	defer s.Close()

	for i := range doc.JobTypes {
		jt := &doc.JobTypes[i]
		if jt.UUID == "" {
			jt.UUID = uuid.NewString()
		}
		if err := s.NewJobType(ctx, jt); err != nil {
			return fmt.Errorf("job-types apply: %s: %w", jt.Name, err)
		}
		fmt.Printf("applied job type %s (%s)\n", jt.Name, jt.UUID)
	}
	return nil
}

func buildStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print a summary of nodes and per-type queue depths",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
}

func runStatus() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("status: load config: %w", err)
	}
	ctx := context.Background()
	s, _, err := connectStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	defer s.Close()

	nodes, err := s.GetNodes(ctx)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	fmt.Printf("nodes: %d active\n", len(nodes))

	nodeTypes, err := s.GetNodeTypes(ctx)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	for _, nt := range nodeTypes {
		if err := s.SetNodeTypeSoft(ctx, nt.UUID); err != nil {
			return fmt.Errorf("status: %w", err)
		}
		waiting, err := s.GetAllJobsWaiting(ctx)
		if err != nil {
			return fmt.Errorf("status: %w", err)
		}
		inProgress, err := s.GetAllJobsInProgress(ctx)
		if err != nil {
			return fmt.Errorf("status: %w", err)
		}
		fmt.Printf("  %-20s waiting=%-4d in_progress=%-4d\n", nt.Name, len(waiting), len(inProgress))
	}
	return nil
}
