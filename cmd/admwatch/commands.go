package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hkschools/admission-monitor/internal/app"
	"github.com/hkschools/admission-monitor/internal/db"
	"github.com/hkschools/admission-monitor/internal/ingest"
	"github.com/hkschools/admission-monitor/internal/models"
	"github.com/hkschools/admission-monitor/internal/monitor"
)

func newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <url>",
		Short: "Analyse any admission page without touching the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			svc := monitor.NewService(monitor.Deps{
				Fetcher: app.NewFetcher(cfg.Monitor, log),
				Logger:  log,
			}, monitor.Config{AnalyzeTimeout: cfg.Monitor.AnalyzeTimeout})

			page, err := svc.AnalyzePage(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), page)
			}
			renderAnalysis(cmd.OutOrStdout(), page)
			return nil
		},
	}
}

func newMonitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor <school_no>",
		Short: "Check one school now and persist the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				res := a.Monitor.MonitorSchool(cmd.Context(), args[0])
				if jsonOutput {
					return writeJSON(cmd.OutOrStdout(), res)
				}
				renderBatch(cmd.OutOrStdout(), &models.BatchResult{Results: []models.MonitorResult{res}})
				if !res.Success {
					return errors.New(res.Error)
				}
				return nil
			})
		},
	}
}

func newMonitorAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor-all",
		Short: "Check every active school in turn",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				batch, err := a.Monitor.MonitorAll(cmd.Context())
				if batch != nil {
					batch.Summarize()
					if jsonOutput {
						if werr := writeJSON(cmd.OutOrStdout(), batch); werr != nil {
							return werr
						}
					} else {
						renderBatch(cmd.OutOrStdout(), batch)
					}
				}
				return err
			})
		},
	}
}

func newTargetsCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "targets",
		Short: "List monitored schools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				f := models.TargetFilter{Limit: 200}
				if !all {
					active := true
					f.Active = &active
				}
				var targets []models.MonitorTarget
				for page := 1; ; page++ {
					f.Page = page
					batch, total, err := a.Store.ListTargets(cmd.Context(), f)
					if err != nil {
						return err
					}
					targets = append(targets, batch...)
					if len(batch) == 0 || len(targets) >= total {
						break
					}
				}
				if jsonOutput {
					return writeJSON(cmd.OutOrStdout(), targets)
				}
				renderTargets(cmd.OutOrStdout(), targets)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include inactive schools")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show monitoring statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				st, err := a.Store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd.OutOrStdout(), st)
				}
				renderStats(cmd.OutOrStdout(), st)
				return nil
			})
		},
	}
}

func newSeedCmd() *cobra.Command {
	var registry string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create targets from the school registry",
		Long: `seed reads the school registry (the embedded list, the --registry file or
monitor.registry from config) and creates a target for every school that is
not monitored yet. Existing targets are left untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				path := registry
				if path == "" {
					path = a.Config.Monitor.Registry
				}
				reg, err := ingest.LoadRegistry(path)
				if err != nil {
					return fmt.Errorf("load registry: %w", err)
				}
				created, skipped, err := seedTargets(cmd.Context(), a.Store, reg, a.Log)
				fmt.Fprintf(cmd.OutOrStdout(), "created %d, skipped %d\n", created, skipped)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&registry, "registry", "", "path to a schools YAML file")
	return cmd
}

type targetCreator interface {
	CreateTarget(ctx context.Context, t *models.MonitorTarget) error
}

// seedTargets creates one target per registry entry. Entries that already
// exist are counted as skipped.
func seedTargets(ctx context.Context, store targetCreator, reg *ingest.Registry, log *zap.Logger) (created, skipped int, err error) {
	for _, s := range reg.Schools {
		t := s.Target()
		switch cerr := store.CreateTarget(ctx, &t); {
		case cerr == nil:
			created++
			log.Info("target created", zap.String("school_no", t.SchoolNo))
		case errors.Is(cerr, db.ErrTargetExists):
			skipped++
		default:
			return created, skipped, fmt.Errorf("create %s: %w", t.SchoolNo, cerr)
		}
	}
	return created, skipped, nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status|version|reset]",
		Short:     "Run database migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status", "version", "reset"},
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) == 1 {
				command = args[0]
			}
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			pool, err := db.Connect(cmd.Context(), cfg.Database.URL, 2)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := db.Migrate(cmd.Context(), pool, command); err != nil {
				return err
			}
			log.Info("migrate finished", zap.String("command", command))
			return nil
		},
	}
}

func newNotifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Notification maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "digest",
		Short: "Deliver due daily and weekly digests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				sum, err := a.Monitor.ProcessDigests(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "users %d, sent %d, failed %d, held %d\n", sum.Users, sum.Sent, sum.Failed, sum.Held)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "reminders",
		Short: "Send reminders for deadlines in the next few days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				n, err := a.Monitor.SendDeadlineReminders(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reminders created %d\n", n)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "test <email>",
		Short: "Send a test email to check SMTP settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			d, err := app.NewDispatcher(cfg, nil, log)
			if err != nil {
				return err
			}
			addr := strings.TrimSpace(args[0])
			if err := d.SendTest(cmd.Context(), addr); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "test email sent to %s\n", addr)
			return nil
		},
	})
	return cmd
}
