package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kastheco/haven/app"
	"github.com/kastheco/haven/config"
	sentrypkg "github.com/kastheco/haven/internal/sentry"
	"github.com/kastheco/haven/log"
	"github.com/kastheco/haven/project"
)

var (
	version   = "0.1.0"
	shellFlag string
	rootCmd   = &cobra.Command{
		Use:   "haven [path]",
		Short: "haven - A terminal workspace with split panes, tabs, and git worktree provisioning.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			cfg := config.LoadConfig()
			if shellFlag != "" {
				cfg.Shell = shellFlag
			}
			if err := sentrypkg.Init(version, cfg.IsTelemetryEnabled()); err != nil {
				// Non-fatal: sentry failure should not prevent startup
				_ = err
			}
			defer sentrypkg.Flush()
			defer sentrypkg.RecoverPanic()

			log.Initialize(cfg.IsTelemetryEnabled())
			defer log.Close()

			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			projectPath, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("failed to resolve project path: %w", err)
			}
			if info, err := os.Stat(projectPath); err != nil || !info.IsDir() {
				return fmt.Errorf("not a directory: %s", projectPath)
			}

			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			proj, err := resolveProject(store, projectPath)
			if err != nil {
				return err
			}

			sentrypkg.SetContext(cfg.ResolveShell(), filepath.Base(projectPath))

			return app.Run(ctx, cfg, proj, store)
		},
	}

	projectsCmd = &cobra.Command{
		Use:   "projects",
		Short: "List known projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Initialize(false)
			defer log.Close()

			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			projects, err := store.List()
			if err != nil {
				return err
			}
			if len(projects) == 0 {
				fmt.Println("No projects yet. Run haven in a directory to register it.")
				return nil
			}
			for _, p := range projects {
				worktrees, _ := store.Worktrees(p.ID)
				fmt.Printf("%-24s %s", p.Name, p.Path)
				if len(worktrees) > 0 {
					fmt.Printf("  (%d worktrees)", len(worktrees))
				}
				fmt.Println()
			}
			return nil
		},
	}

	resetCmd = &cobra.Command{
		Use:   "reset",
		Short: "Delete all saved workspaces and forget all projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Initialize(false)
			defer log.Close()

			wsDir, err := config.WorkspacesDir()
			if err != nil {
				return err
			}
			if err := os.RemoveAll(wsDir); err != nil {
				return fmt.Errorf("failed to delete workspaces: %w", err)
			}
			fmt.Println("Saved workspaces have been deleted")

			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			projects, err := store.List()
			if err != nil {
				return err
			}
			for _, p := range projects {
				if err := store.Delete(p.ID); err != nil {
					return fmt.Errorf("failed to forget project %s: %w", p.Name, err)
				}
			}
			fmt.Println("Projects have been forgotten")
			return nil
		},
	}

	debugCmd = &cobra.Command{
		Use:   "debug",
		Short: "Print debug information like config paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Initialize(false)
			defer log.Close()

			cfg := config.LoadConfig()

			configDir, err := config.GetConfigDir()
			if err != nil {
				return fmt.Errorf("failed to get config directory: %w", err)
			}
			configJson, _ := json.MarshalIndent(cfg, "", "  ")

			fmt.Printf("Config: %s\n%s\n", filepath.Join(configDir, config.ConfigFileName), configJson)

			return nil
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of haven",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("haven version %s\n", version)
		},
	}
)

func openStore() (project.Store, error) {
	configDir, err := config.GetConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	return project.NewSQLiteStore(filepath.Join(configDir, "haven.db"))
}

// resolveProject returns the registered project at path, registering it on
// first visit.
func resolveProject(store project.Store, path string) (project.Project, error) {
	proj, err := store.GetByPath(path)
	if err == nil {
		return proj, nil
	}
	if !errors.Is(err, project.ErrNotFound) {
		return project.Project{}, err
	}
	proj = project.Project{
		ID:        uuid.NewString(),
		Name:      filepath.Base(path),
		Path:      path,
		CreatedAt: time.Now(),
	}
	if err := store.Upsert(proj); err != nil {
		return project.Project{}, err
	}
	return proj, nil
}

func init() {
	rootCmd.Flags().StringVarP(&shellFlag, "shell", "s", "",
		"Shell to spawn in new panes (overrides the configured shell)")

	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(debugCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(resetCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
