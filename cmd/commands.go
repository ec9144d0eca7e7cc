package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"

	"pdmflow/internal/features"
	"pdmflow/internal/model"
	"pdmflow/pkg/constants"
	"pdmflow/pkg/deploy/k8s"
)

const shutdownTimeout = 30 * time.Second

func newTrainCmd(root *rootOptions) *cobra.Command {
	var runID, name, experiment string
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run the whole pipeline once in-process",
		Long: `Load the dataset, label and derive features, then train and register a
model. With --run-id an existing PENDING run is executed, otherwise a new run
is recorded first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app := NewApplication(ctx, root.configPath)
			defer app.Close()
			if err := app.Initialize(app.coreSteps()); err != nil {
				return err
			}

			if runID == "" {
				run, err := app.runService.Create(ctx, &model.SubmitRunRequest{Name: name, Experiment: experiment})
				if err != nil {
					return err
				}
				runID = run.ID
			}

			runErr := app.runService.Execute(ctx, runID)
			run, err := app.runService.Get(context.WithoutCancel(ctx), runID)
			if err != nil {
				return errors.Join(runErr, err)
			}
			if err := printJSON(cmd.OutOrStdout(), run); err != nil {
				return err
			}
			if runErr == nil && run.Status != model.RunStatusCompleted {
				return fmt.Errorf("run %s is %s", run.ID, run.Status)
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "execute an existing PENDING run")
	cmd.Flags().StringVar(&name, "name", "", "run name (default training.run_name)")
	cmd.Flags().StringVar(&experiment, "experiment", "", "experiment (default tracking.experiment)")
	return cmd
}

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, the run queue worker and background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := NewApplication(cmd.Context(), root.configPath)
			if err := app.Initialize(app.serverSteps()); err != nil {
				app.Close()
				return err
			}
			if err := app.Start(); err != nil {
				app.Close()
				return err
			}

			// Wait for exit signal
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case sig := <-quit:
				app.log.InfoCtx(app.ctx, "Received exit signal: %v", sig)
			case <-app.ctx.Done():
				app.log.WarnCtx(app.ctx, "Application context cancelled")
			}

			return app.Shutdown(shutdownTimeout)
		},
	}
}

func newLaunchCmd(root *rootOptions) *cobra.Command {
	var (
		name, experiment, configInPod string
		wait                          bool
		pollInterval                  time.Duration
		tailLines                     int64
	)
	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Record a run and execute it as a Kubernetes Job",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app := NewApplication(ctx, root.configPath)
			defer app.Close()
			if err := app.Initialize(app.coreSteps()); err != nil {
				return err
			}
			if !app.config.K8s.Enabled {
				return errors.New("k8s.enabled is false")
			}
			if app.config.Tracking.Backend != "mysql" {
				// the Job records into its own store otherwise
				return errors.New("launch requires the mysql tracking backend")
			}

			launcher, err := k8s.NewJobLauncher(app.config.K8s, app.log)
			if err != nil {
				return err
			}

			run, err := app.runService.Create(ctx, &model.SubmitRunRequest{Name: name, Experiment: experiment})
			if err != nil {
				return err
			}
			info, err := launcher.Launch(ctx, &k8s.LaunchRequest{
				RunID:      run.ID,
				Experiment: run.Experiment,
				ConfigPath: configInPod,
				Timeout:    time.Duration(app.config.Queue.TaskTimeout) * time.Second,
			})
			if err != nil {
				return err
			}
			if !wait {
				return printJSON(cmd.OutOrStdout(), info)
			}

			info, err = waitForJob(ctx, launcher, info.Name, pollInterval)
			if err != nil {
				return err
			}
			if logs, err := launcher.Logs(ctx, info.Name, tailLines); err == nil {
				fmt.Fprintln(cmd.ErrOrStderr(), logs)
			}
			if err := printJSON(cmd.OutOrStdout(), info); err != nil {
				return err
			}
			if info.Phase == constants.JobPhaseFailed {
				return fmt.Errorf("job %s failed", info.Name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "run name (default training.run_name)")
	cmd.Flags().StringVar(&experiment, "experiment", "", "experiment (default tracking.experiment)")
	cmd.Flags().StringVar(&configInPod, "pod-config", "", "config path inside the job container")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the job to finish")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 10*time.Second, "job status poll interval with --wait")
	cmd.Flags().Int64Var(&tailLines, "tail", 50, "log lines printed after --wait")
	return cmd
}

func waitForJob(ctx context.Context, launcher *k8s.JobLauncher, name string, interval time.Duration) (*k8s.JobInfo, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		info, err := launcher.Status(ctx, name)
		if err != nil {
			return nil, err
		}
		if info.Phase == constants.JobPhaseSucceeded || info.Phase == constants.JobPhaseFailed {
			return info, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func newFeaturesCmd(root *rootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "features",
		Short: "Derive the feature matrix and write it as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app := NewApplication(ctx, root.configPath)
			defer app.Close()
			if err := app.Initialize([]initStep{
				{"Configuration", app.initConfig},
				{"Logging", app.initLogger},
				{"Service Layer", app.initPipeline},
			}); err != nil {
				return err
			}

			m, err := app.pipeline.BuildFeatures(ctx, nil)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return features.WriteCSV(w, m)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "-", "output file, - for stdout")
	return cmd
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(pretty.Pretty(data))
	return err
}
