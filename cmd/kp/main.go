package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"knowpack/internal/creds"
	"knowpack/internal/db"
	"knowpack/internal/domain"
	"knowpack/internal/fetch"
	"knowpack/internal/history"
	"knowpack/internal/migrate"
	"knowpack/internal/profile"
	"knowpack/internal/runner"
)

var rootCmd = &cobra.Command{
	Use:   "kp",
	Short: "Knowpack CLI",
	Long: `Knowpack aggregates a project's scattered knowledge into one directory of
flat files: Trello boards, Google Sheets, database schemas, and flattened
repository snapshots, all described by a single declarative profile.

A run reads the profile, resolves credentials per source, fetches each
declared entry in a fixed order, and writes one deterministically named
file per entry under the profile's output directory. One bad entry never
aborts the others; the run report shows exactly what succeeded.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("KNOWPACK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(profileCmd())
	rootCmd.AddCommand(authCmd())
	rootCmd.AddCommand(historyCmd())
}

func runCmd() *cobra.Command {
	var profilePath, outputDir string
	var noPause bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Aggregate all sources declared in a profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if err := creds.LoadDotenv(workspace); err != nil {
				return err
			}
			prof, err := profile.Load(profilePath)
			if err != nil {
				return err
			}
			if outputDir != "" {
				abs, err := filepath.Abs(outputDir)
				if err != nil {
					return err
				}
				prof.OutputDir = abs
			}

			store, closeDB, err := openHistory(workspace)
			if err != nil {
				return err
			}
			defer closeDB()

			statusf := func(format string, args ...any) {
				fmt.Fprintf(os.Stderr, "[info] "+format+"\n", args...)
			}
			r := runner.Runner{
				Registry: fetch.NewRegistry(fetch.Deps{Logf: statusf}),
				Creds:    creds.New(workspace),
				History:  store,
				Logf:     statusf,
			}
			report := r.Run(cmd.Context(), prof)

			if err := renderReport(report); err != nil {
				return err
			}
			if !noPause && !viper.GetBool("json") {
				fmt.Print("Press Enter to close...")
				_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
			}
			if failed := report.Failed(); failed > 0 {
				return fmt.Errorf("%d of %d source entries failed", failed, len(report.Outcomes))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&profilePath, "profile", "", "path to the project profile (YAML or JSON)")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "override the profile's output directory")
	cmd.Flags().BoolVar(&noPause, "no-pause", false, "do not wait for Enter after the run")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}

func profileCmd() *cobra.Command {
	prof := &cobra.Command{Use: "profile", Short: "Inspect profiles"}
	prof.AddCommand(profileValidateCmd())
	return prof
}

func profileValidateCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Normalize a profile and print its canonical form",
		RunE: func(cmd *cobra.Command, args []string) error {
			prof, err := profile.Load(filePath)
			if err != nil {
				return err
			}
			return printJSON(prof)
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to profile")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func authCmd() *cobra.Command {
	auth := &cobra.Command{Use: "auth", Short: "Manage cached authorizations"}
	auth.AddCommand(authGoogleCmd())
	return auth
}

func authGoogleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "google",
		Short: "Run the one-time Google consent flow and cache the token",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if err := creds.LoadDotenv(workspace); err != nil {
				return err
			}
			secrets := os.Getenv("GOOGLE_CLIENT_SECRETS_JSON")
			if secrets == "" {
				return errors.New("GOOGLE_CLIENT_SECRETS_JSON is not set; point it at your OAuth client secrets file")
			}
			tokenPath := creds.New(workspace).TokenPath()
			return fetch.Authorize(cmd.Context(), secrets, tokenPath, os.Stdin, os.Stdout)
		},
	}
	return cmd
}

func historyCmd() *cobra.Command {
	hist := &cobra.Command{Use: "history", Short: "Inspect past runs"}
	hist.AddCommand(historyListCmd())
	hist.AddCommand(historyShowCmd())
	return hist
}

func historyListCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store history.Store) error {
				runs, err := store.ListRuns(ctx, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(runs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Run", "Profile", "Started", "Entries", "Failed"})
				for _, r := range runs {
					tw.AppendRow(table.Row{r.RunID, r.Profile, r.StartedAt.Format("2006-01-02 15:04:05"), r.Outcomes, r.Failed})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of runs")
	return cmd
}

func historyShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run's report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store history.Store) error {
				report, err := store.GetReport(ctx, args[0])
				if err != nil {
					return err
				}
				return renderReport(report)
			})
		},
	}
	return cmd
}

// --- helpers ---

func openHistory(workspace string) (history.Store, func(), error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return history.Store{}, nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return history.Store{}, nil, err
	}
	return history.Store{DB: conn}, func() { conn.Close() }, nil
}

func withStore(ctx context.Context, fn func(context.Context, history.Store) error) error {
	store, closeDB, err := openHistory(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer closeDB()
	return fn(ctx, store)
}

func renderReport(report *domain.Report) error {
	if viper.GetBool("json") {
		return printJSON(report)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Kind", "Identity", "Status", "Output", "Detail"})
	for _, o := range report.Outcomes {
		detail := o.Err
		if detail == "" {
			detail = strings.Join(o.Notes, "; ")
		}
		tw.AppendRow(table.Row{o.Kind, o.Identity, o.Status, o.OutputPath, detail})
	}
	tw.Render()
	fmt.Printf("Run %s for %q finished in %s: %d entries, %d failed\n",
		report.RunID, report.Profile, report.Duration().Round(time.Millisecond), len(report.Outcomes), report.Failed())
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
