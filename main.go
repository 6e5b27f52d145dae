package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"balcao/config"
	"balcao/db"
	"balcao/dispatch"
	"balcao/router"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:          "balcao",
		Short:        "Atendimento e pré-pedidos via WhatsApp para comércios locais",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json", "arquivo de configuração (JSON)")

	root.AddCommand(serveCmd(&configPath), dispatchCmd(&configPath), migrateCmd(&configPath))
	return root
}

// setup loads the configuration, configures the process logger and opens the
// database.
func setup(configPath string, migrate bool) (config.Configuration, *gorm.DB, error) {
	path := configPath
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// sem arquivo: só defaults + variáveis BALCAO_*
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, err
	}
	if err := setupLogging(cfg); err != nil {
		return cfg, nil, err
	}
	if migrate {
		cfg.AutoMigrate = true
	}
	gdb, err := db.Connect(cfg)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, gdb, nil
}

func setupLogging(cfg config.Configuration) error {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if cfg.LogPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0o755); err != nil {
		return errors.Wrap(err, "log: create dir")
	}
	f, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrap(err, "log: open file")
	}
	logrus.SetOutput(io.MultiWriter(os.Stdout, f))
	return nil
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Sobe a API HTTP, o processador de eventos, o loop de envio e a varredura de pré-pedidos",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gdb, err := setup(*configPath, false)
			if err != nil {
				return err
			}
			defer gdb.Close()

			log := logrus.StandardLogger()
			a, err := build(cfg, gdb, log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var wg sync.WaitGroup
			for _, run := range []func(context.Context){a.events.Run, a.dispatch.Run, a.sweep.Run} {
				wg.Add(1)
				go func(run func(context.Context)) {
					defer wg.Done()
					run(ctx)
				}(run)
			}

			if level, _ := logrus.ParseLevel(cfg.LogLevel); level < logrus.DebugLevel {
				gin.SetMode(gin.ReleaseMode)
			}
			engine := gin.New()
			router.Initialize(engine, cfg, gdb, a.controller, log)

			srv := &http.Server{
				Addr:              ":" + cfg.ApiPort,
				Handler:           engine,
				ReadHeaderTimeout: 10 * time.Second,
			}
			errc := make(chan error, 1)
			go func() {
				log.WithField("port", cfg.ApiPort).Info("balcao: listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errc <- err
				}
				close(errc)
			}()

			select {
			case <-ctx.Done():
			case err := <-errc:
				if err != nil {
					stop()
					wg.Wait()
					return errors.Wrap(err, "http")
				}
			}

			log.Info("balcao: shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.WithError(err).Warn("balcao: http shutdown")
			}
			wg.Wait()
			return nil
		},
	}
}

func dispatchCmd(configPath *string) *cobra.Command {
	var (
		tenant int64
		limit  int
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Executa um lote de envio do outbox e imprime o resultado em JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gdb, err := setup(*configPath, false)
			if err != nil {
				return err
			}
			defer gdb.Close()

			a, err := build(cfg, gdb, logrus.StandardLogger())
			if err != nil {
				return err
			}
			opts := dispatch.Options{Limit: limit}
			if tenant > 0 {
				opts.TenantID = &tenant
			}
			if cmd.Flags().Changed("dry-run") {
				opts.DryRun = &dryRun
			}

			res, err := a.runner.RunBatch(cmd.Context(), opts)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().Int64Var(&tenant, "tenant", 0, "só itens deste tenant")
	cmd.Flags().IntVar(&limit, "limit", 0, "máximo de itens no lote (padrão: dispatch.batch_limit)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "simula o envio sem chamar o WhatsApp")
	return cmd
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Cria/atualiza as tabelas",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gdb, err := setup(*configPath, true)
			if err != nil {
				return err
			}
			defer gdb.Close()
			logrus.Info("migrate: done")
			return nil
		},
	}
}
