package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"codementor/internal/cache/result"
	"codementor/internal/gateway/app"
	"codementor/internal/gateway/config"
	"codementor/internal/scan"
	"codementor/internal/types/mentor"
	"codementor/internal/util/jsonutil"
)

func main() {
	root := &cobra.Command{
		Use:   "mentorctl",
		Short: "Run code mentor workflows against a local directory",
		Long: `mentorctl runs the code mentor orchestrator in-process.

Configuration is read the same way as the gateway: .env, CODEMENTOR_CONFIG,
then environment variables (LLM_PROVIDER, OPENAI_API_KEY, CACHE_BACKEND, ...).`,
		SilenceUsage: true,
	}
	var verbose bool
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log wiring and LLM traffic to stderr")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if !verbose {
			log.SetOutput(io.Discard)
		}
	}

	root.AddCommand(analyzeCmd())
	root.AddCommand(sandboxCmd())
	root.AddCommand(keyCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func analyzeCmd() *cobra.Command {
	var (
		intent      string
		active      string
		testCommand string
	)
	cmd := &cobra.Command{
		Use:   "analyze <dir>",
		Short: "Review, scan or auto-fix the files under dir",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := mentor.ParseIntent(intent)
			if err != nil {
				return err
			}
			files, err := scan.Load(args[0])
			if err != nil {
				return err
			}
			svc, err := newServices(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			p := mentor.RequestPayload{Files: files, Intent: in, ActiveFile: active}
			if testCommand != "" {
				p.ExtraContext = map[string]any{"test_command": testCommand}
			}
			resp := svc.Orchestrator.HandleRequest(cmd.Context(), p)
			if err := printJSON(cmd.OutOrStdout(), resp); err != nil {
				return err
			}
			if resp.Status == mentor.StatusFailed {
				return fmt.Errorf("%s failed: %s", in, resp.Insights)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&intent, "intent", string(mentor.IntentReview), "REVIEW, SECURITY_SCAN, AUTO_FIX or REFACTOR")
	cmd.Flags().StringVar(&active, "active", "", "file the request focuses on (defaults to the first path)")
	cmd.Flags().StringVar(&testCommand, "test-command", "", "command AUTO_FIX runs to test the code")
	return cmd
}

func sandboxCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sandbox <dir> -- <command...>",
		Short: "Run a command over a copy of dir in an isolated workspace",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := scan.Load(args[0])
			if err != nil {
				return err
			}
			svc, err := newServices(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			res := svc.Orchestrator.RunSandbox(cmd.Context(), files, strings.Join(args[1:], " "))
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if res.Error {
				return fmt.Errorf("command failed")
			}
			return nil
		},
	}
}

func keyCmd() *cobra.Command {
	var intent string
	cmd := &cobra.Command{
		Use:   "key <dir>",
		Short: "Print the result cache key for dir and intent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := mentor.ParseIntent(intent)
			if err != nil {
				return err
			}
			files, err := scan.Load(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), result.KeyFor(files, in))
			return err
		},
	}
	cmd.Flags().StringVar(&intent, "intent", string(mentor.IntentReview), "intent the key is derived for")
	return cmd
}

func newServices(ctx context.Context) (*app.Services, error) {
	cfg, err := config.Load(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return app.NewServices(ctx, cfg)
}

func printJSON(w io.Writer, v any) error {
	b, err := jsonutil.MarshalNoEscapeIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
