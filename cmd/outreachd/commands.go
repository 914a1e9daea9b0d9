package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/prospectra/outreach-orchestrator/internal/avatar"
	"github.com/prospectra/outreach-orchestrator/internal/composer"
	"github.com/prospectra/outreach-orchestrator/internal/config"
	"github.com/prospectra/outreach-orchestrator/internal/llm"
	"github.com/prospectra/outreach-orchestrator/internal/notify"
	"github.com/prospectra/outreach-orchestrator/internal/quota"
	"github.com/prospectra/outreach-orchestrator/internal/ratelimit"
	"github.com/prospectra/outreach-orchestrator/internal/social"
	"github.com/prospectra/outreach-orchestrator/internal/store"
	"github.com/prospectra/outreach-orchestrator/internal/strategy"
	"github.com/prospectra/outreach-orchestrator/internal/worker"
	"github.com/prospectra/outreach-orchestrator/web/api"
)

// the store keys everything on an account; single-instance deployments
// always use account 1
const accountID = 1

var (
	approveContent string
	rejectReason   string
	rejectCategory string
)

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the workers and the web API",
		RunE:  runServe,
	}
	rootCmd.AddCommand(serveCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show pipeline status and today's quotas",
		RunE:  runStatus,
	}
	rootCmd.AddCommand(statusCmd)

	validationsCmd := &cobra.Command{
		Use:   "validations",
		Short: "List entries waiting for a decision",
		RunE:  runValidations,
	}
	rootCmd.AddCommand(validationsCmd)

	approveCmd := &cobra.Command{
		Use:   "approve ID",
		Short: "Approve a pending entry for sending",
		Args:  cobra.ExactArgs(1),
		RunE:  runApprove,
	}
	approveCmd.Flags().StringVar(&approveContent, "content", "", "replace the message content")
	rootCmd.AddCommand(approveCmd)

	rejectCmd := &cobra.Command{
		Use:   "reject ID",
		Short: "Reject a pending entry",
		Args:  cobra.ExactArgs(1),
		RunE:  runReject,
	}
	rejectCmd.Flags().StringVar(&rejectReason, "reason", "", "why the entry was rejected")
	rejectCmd.Flags().StringVar(&rejectCategory, "category", "", "rejection category (tone, timing, content, ...)")
	rootCmd.AddCommand(rejectCmd)

	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Control the polling loops of a running instance",
	}
	workerCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show loop status",
		RunE:  runWorkerStatus,
	})
	workerCmd.AddCommand(&cobra.Command{
		Use:   "start NAME",
		Short: "Start one loop",
		Args:  cobra.ExactArgs(1),
		RunE:  func(cmd *cobra.Command, args []string) error { return workerAction(args[0], "start") },
	})
	workerCmd.AddCommand(&cobra.Command{
		Use:   "stop NAME",
		Short: "Stop one loop",
		Args:  cobra.ExactArgs(1),
		RunE:  func(cmd *cobra.Command, args []string) error { return workerAction(args[0], "stop") },
	})
	rootCmd.AddCommand(workerCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

func openStore(cfg *config.Config) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.General.DatabasePath), 0o755); err != nil {
		return nil, err
	}
	return store.New(cfg.General.DatabasePath)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := os.MkdirAll(filepath.Dir(cfg.General.RateLimiterState), 0o755); err != nil {
		return err
	}
	limiter := ratelimit.New(cfg.General.RateLimiterState)

	var providers []llm.Provider
	for _, p := range cfg.LLM.Providers {
		key := os.Getenv(p.APIKeyEnv)
		if key == "" {
			log.Printf("llm provider %s skipped: %s not set", p.Name, p.APIKeyEnv)
			continue
		}
		providers = append(providers, llm.NewOpenAIProvider(p.Name, p.BaseURL, p.Model, key))
	}
	if len(providers) == 0 {
		log.Printf("no llm providers configured; ambiguous prospects will be rejected and replies skipped")
	}
	svc := llm.New(providers...)

	patterns := avatar.DefaultPatterns()
	if cfg.General.AvatarPatterns != "" {
		patterns, err = avatar.LoadPatterns(cfg.General.AvatarPatterns)
		if err != nil {
			return fmt.Errorf("loading avatar patterns: %w", err)
		}
	}
	filter, err := avatar.New(patterns, svc)
	if err != nil {
		return fmt.Errorf("compiling avatar patterns: %w", err)
	}

	socialKey := os.Getenv(cfg.Social.APIKeyEnv)
	if cfg.Social.DSN == "" || socialKey == "" || cfg.Social.AccountID == "" {
		return fmt.Errorf("social provider not configured: set [social] dsn and account_id, and export %s",
			cfg.Social.APIKeyEnv)
	}
	client := social.NewUnipileClient(cfg.Social.DSN, socialKey, cfg.Social.AccountID)

	var notifier notify.Notifier = notify.NoopNotifier{}
	if cfg.Notifications.SlackWebhook != "" {
		notifier = notify.NewSlackNotifier(cfg.Notifications.SlackWebhook)
	}

	engine := worker.NewEngine(worker.Deps{
		Config:    cfg,
		Store:     st,
		Quota:     quota.New(cfg, st, cfg.Location()),
		Limiter:   limiter,
		Filter:    filter,
		Pipeline:  strategy.New(svc),
		Composer:  composer.New(svc),
		Client:    client,
		Notifier:  notifier,
		AccountID: accountID,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.General.AvatarPatterns != "" {
		watcher, err := avatar.NewWatcher(filter, cfg.General.AvatarPatterns)
		if err != nil {
			log.Printf("avatar pattern watcher disabled: %v", err)
		} else {
			watcher.Start(ctx)
			defer watcher.Stop()
		}
	}

	sup := worker.NewSupervisor(worker.Window{
		StartHour: cfg.Workers.ActiveHourStart,
		EndHour:   cfg.Workers.ActiveHourEnd,
		Loc:       cfg.Location(),
	})
	engine.RegisterLoops(sup)
	sup.StartAll(ctx)
	defer sup.StopAll()

	sched := cron.New(cron.WithLocation(cfg.Location()))
	if _, err := sched.AddFunc(cfg.Workers.StalenessCron, func() {
		if err := engine.ReviveStaleOnce(ctx); err != nil {
			log.Printf("stale: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("scheduling staleness sweep: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	server := api.NewServer(st, engine, quota.New(cfg, st, cfg.Location()), sup,
		accountID, addr, cfg.Location())
	go func() {
		log.Printf("web api listening on http://%s", addr)
		if err := server.Start(); err != nil {
			log.Printf("web api: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()

	tasks, err := st.CountTasksByStatus(ctx)
	if err != nil {
		return err
	}
	prospects, err := st.CountProspectsByStatus(ctx, accountID)
	if err != nil {
		return err
	}
	overview, err := quota.New(cfg, st, cfg.Location()).Overview(ctx, accountID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TASKS\t")
	for status, n := range tasks {
		fmt.Fprintf(w, "  %s\t%d\n", status, n)
	}
	fmt.Fprintln(w, "PROSPECTS\t")
	for status, n := range prospects {
		fmt.Fprintf(w, "  %s\t%d\n", status, n)
	}
	fmt.Fprintln(w, "QUOTA\tUSED/CEILING")
	for _, q := range overview {
		fmt.Fprintf(w, "  %s\t%d/%d\n", q.Action, q.Used, q.Ceiling)
	}
	return w.Flush()
}

func runValidations(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := st.PendingValidations(context.Background(), accountID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("nothing waiting for a decision")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tACTION\tPROSPECT\tCREATED\tCONTENT")
	for _, e := range entries {
		content := ""
		if p, err := e.DecodePayload(); err == nil {
			content = p.Content
			if content == "" {
				content = p.Reply
			}
		}
		if len(content) > 60 {
			content = content[:60] + "..."
		}
		pid := int64(0)
		if e.ProspectID != nil {
			pid = *e.ProspectID
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n",
			e.ID, e.Action, pid, e.CreatedAt.Format("2006-01-02 15:04"), content)
	}
	return w.Flush()
}

// approve and reject go through the running daemon: an immediate send
// needs its provider client, rate limiter and quota engine.
func runApprove(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var id int64
	if _, err := fmt.Sscan(args[0], &id); err != nil {
		return fmt.Errorf("invalid entry id %q", args[0])
	}

	var result struct {
		Executed bool `json:"executed"`
	}
	url := fmt.Sprintf("%s/api/validations/%d/approve", apiBase(cfg), id)
	if err := postDecision(url, map[string]string{"content": approveContent}, &result); err != nil {
		return err
	}
	if result.Executed {
		fmt.Printf("entry %d approved and sent\n", id)
	} else {
		fmt.Printf("entry %d approved\n", id)
	}
	return nil
}

func runReject(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var id int64
	if _, err := fmt.Sscan(args[0], &id); err != nil {
		return fmt.Errorf("invalid entry id %q", args[0])
	}

	var result struct {
		RejectionCount int  `json:"rejection_count"`
		AutoClosed     bool `json:"auto_closed"`
	}
	url := fmt.Sprintf("%s/api/validations/%d/reject", apiBase(cfg), id)
	body := map[string]string{"reason": rejectReason, "category": rejectCategory}
	if err := postDecision(url, body, &result); err != nil {
		return err
	}
	fmt.Printf("entry %d rejected (rejection %d)\n", id, result.RejectionCount)
	if result.AutoClosed {
		fmt.Println("prospect auto-closed: rejection limit reached")
	}
	return nil
}

func postDecision(url string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("is the orchestrator running? %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := decodeJSON(resp, &apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	return decodeJSON(resp, out)
}

func apiBase(cfg *config.Config) string {
	return fmt.Sprintf("http://%s:%d", cfg.Web.Host, cfg.Web.Port)
}

func runWorkerStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	resp, err := http.Get(apiBase(cfg) + "/api/workers")
	if err != nil {
		return fmt.Errorf("is the orchestrator running? %w", err)
	}
	defer resp.Body.Close()

	var loops []worker.LoopStatus
	if err := decodeJSON(resp, &loops); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LOOP\tRUNNING\tINTERVAL\tLAST RUN\tLAST ERROR")
	for _, l := range loops {
		last := "-"
		if !l.LastRun.IsZero() {
			last = l.LastRun.Format("15:04:05")
		}
		fmt.Fprintf(w, "%s\t%v\t%s\t%s\t%s\n", l.Name, l.Running, l.Interval, last, l.LastErr)
	}
	return w.Flush()
}

func workerAction(name, op string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/workers/%s/%s", apiBase(cfg), name, op)
	resp, err := http.Post(url, "application/json", nil)
	if err != nil {
		return fmt.Errorf("is the orchestrator running? %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := decodeJSON(resp, &apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("%s %s failed with status %d", op, name, resp.StatusCode)
	}
	past := map[string]string{"start": "started", "stop": "stopped"}[op]
	fmt.Printf("%s %s\n", name, past)
	return nil
}

func decodeJSON(resp *http.Response, out interface{}) error {
	dec := json.NewDecoder(resp.Body)
	return dec.Decode(out)
}
