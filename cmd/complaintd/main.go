package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/complaint-service/internal/api/dto"
	httptransport "github.com/spec-kit/complaint-service/internal/api/http"
	"github.com/spec-kit/complaint-service/internal/api/http/handlers"
	"github.com/spec-kit/complaint-service/internal/auth"
	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/service"
	"github.com/spec-kit/complaint-service/internal/worker"
)

var (
	configPath string
	seedPath   string

	serveWithWorker bool

	operatorName     string
	operatorEmail    string
	operatorPassword string
	operatorRole     string
	operatorStation  string
)

var rootCmd = &cobra.Command{
	Use:           "complaintd",
	Short:         "Airline complaint lifecycle engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the operator dashboard API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rt, err := wire(ctx, wireOptions{engine: true})
		if err != nil {
			return err
		}
		defer rt.close()

		app := fiber.New(fiber.Config{AppName: rt.cfg.App.Name, DisableStartupMessage: true})
		httptransport.RegisterMiddlewares(app, rt.logger, rt.metrics, rt.cfg.App.RequestTimeout())

		var redisPing handlers.Pinger
		if rt.redis.Enabled() {
			redisPing = rt.redis
		}
		httptransport.RegisterRoutes(app, httptransport.RouteConfig{
			Health:         handlers.NewHealthHandler(rt.cfg.App.Name, rt.cfg.App.Version, rt.cfg.Mailbox.Provider, rt.store, redisPing),
			Auth:           handlers.NewAuthHandler(rt.auth),
			Complaints:     handlers.NewComplaintsHandler(rt.store, rt.engine, rt.review),
			Ops:            handlers.NewOpsHandler(rt.engine, rt.store.ResolutionAttempts(), rt.metrics),
			AuthMiddleware: auth.NewAuthMiddleware(rt.auth.TokenManager(), rt.store.Operators()),
		})

		var poller *worker.Poller
		if serveWithWorker {
			poller = worker.NewPoller(rt.engine, rt.cfg.Worker.PollInterval, rt.logger.Named("poller"))
			go poller.Run(ctx)
		}

		errCh := make(chan error, 1)
		go func() {
			rt.logger.Info("listening", zap.String("addr", rt.cfg.App.Addr()), zap.Bool("worker", serveWithWorker))
			errCh <- app.Listen(rt.cfg.App.Addr())
		}()

		select {
		case <-ctx.Done():
			rt.logger.Info("shutting down")
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("fiber listen: %w", err)
			}
		}
		if poller != nil {
			poller.Stop()
		}
		return app.Shutdown()
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll the mailboxes until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rt, err := wire(ctx, wireOptions{engine: true})
		if err != nil {
			return err
		}
		defer rt.close()

		worker.NewPoller(rt.engine, rt.cfg.Worker.PollInterval, rt.logger.Named("poller")).Run(ctx)
		return nil
	},
}

var runOnceCmd = &cobra.Command{
	Use:   "run-once",
	Short: "Run a single ingest, extract, resolve and dispatch cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := wire(cmd.Context(), wireOptions{engine: true})
		if err != nil {
			return err
		}
		defer rt.close()

		report := worker.NewPoller(rt.engine, rt.cfg.Worker.PollInterval, rt.logger).RunOnce(cmd.Context())
		return printJSON(cmd, report)
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <complaint-id>",
	Short: "Show a complaint, its replayed grid and what it waits for; changes nothing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := wire(cmd.Context(), wireOptions{})
		if err != nil {
			return err
		}
		defer rt.close()

		engine := service.NewEngine(service.EngineDependencies{Store: rt.store, Logger: rt.logger})
		in, err := engine.Inspect(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, dto.NewInspectionResponse(in))
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed <file.yaml>",
	Short: "Load passengers, policy limits, weather, past resolutions and operators",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := wire(cmd.Context(), wireOptions{})
		if err != nil {
			return err
		}
		defer rt.close()

		if rt.postgres.Pool == nil {
			rt.logger.Warn("POSTGRES_DSN not set; seeded data lasts only for this process")
		}
		return rt.loadSeed(cmd.Context(), args[0])
	},
}

var operatorCmd = &cobra.Command{
	Use:   "operator",
	Short: "Manage dashboard operators",
}

var operatorCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a dashboard operator",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := wire(cmd.Context(), wireOptions{})
		if err != nil {
			return err
		}
		defer rt.close()

		var station *string
		if s := strings.TrimSpace(operatorStation); s != "" {
			station = domain.StringPtr(strings.ToUpper(s))
		}
		op, err := rt.auth.CreateOperator(cmd.Context(), service.OperatorInput{
			Name:     operatorName,
			Email:    operatorEmail,
			Password: operatorPassword,
			Role:     domain.OperatorRole(strings.ToUpper(operatorRole)),
			Station:  station,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, dto.NewOperatorResponse(op))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (defaults to $CONFIG_FILE)")
	rootCmd.PersistentFlags().StringVar(&seedPath, "seed", "", "seed file loaded before the command runs")

	serveCmd.Flags().BoolVar(&serveWithWorker, "with-worker", false, "also run the polling engine in this process")

	operatorCreateCmd.Flags().StringVar(&operatorName, "name", "", "display name")
	operatorCreateCmd.Flags().StringVar(&operatorEmail, "email", "", "login email")
	operatorCreateCmd.Flags().StringVar(&operatorPassword, "password", "", "initial password")
	operatorCreateCmd.Flags().StringVar(&operatorRole, "role", string(domain.OperatorRoleBaseOps), "BASE_OPS, CX or ADMIN")
	operatorCreateCmd.Flags().StringVar(&operatorStation, "station", "", "home station for BASE_OPS operators")
	_ = operatorCreateCmd.MarkFlagRequired("email")
	_ = operatorCreateCmd.MarkFlagRequired("password")

	operatorCmd.AddCommand(operatorCreateCmd)
	rootCmd.AddCommand(serveCmd, runCmd, runOnceCmd, inspectCmd, seedCmd, operatorCmd)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "complaintd:", err)
		os.Exit(1)
	}
}
