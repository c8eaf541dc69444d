package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"roomstaging/internal/assetstore"
	"roomstaging/internal/bootstrap"
	"roomstaging/internal/infra"
	"roomstaging/internal/jobs"
	"roomstaging/internal/providers/vsai"
)

var Version = "dev"

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:          "stagingctl",
		Short:        "Operator tools for the room staging service",
		Version:      Version,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().Duration("timeout", 3*time.Minute, "Timeout for remote calls")

	rootCmd.AddCommand(pingCmd())
	rootCmd.AddCommand(renderCmd())
	rootCmd.AddCommand(shareCmd())
	rootCmd.AddCommand(finalPathCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check the rendering service credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			client, err := renderClient()
			if err != nil {
				return err
			}
			resp, err := client.Ping(ctx)
			if err != nil {
				return err
			}
			return printResponse(cmd, resp)
		},
	}
}

func renderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "render [render_id]",
		Short: "Look up a render",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			client, err := renderClient()
			if err != nil {
				return err
			}
			resp, err := client.GetRender(ctx, args[0])
			if err != nil {
				return err
			}
			return printResponse(cmd, resp)
		},
	}
}

func shareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "share [path]",
		Short: "Ensure a shared link exists for a stored asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			cfg, err := infra.LoadConfig()
			if err != nil {
				return err
			}
			logger := infra.NopLogger()
			provider, _, err := bootstrap.NewAssetProvider(ctx, cfg, logger)
			if err != nil {
				return err
			}
			store := assetstore.New(provider, logger)

			password, _ := cmd.Flags().GetString("password")
			if password == "" {
				url, err := store.EnsureSharedLink(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), url)
				return nil
			}

			link, err := store.CreateGatedLink(ctx, args[0], password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", link.Tier, link.URL)
			if link.FallbackReason != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "fell back to a temporary link: %s\n", link.FallbackReason)
			}
			return nil
		},
	}
	cmd.Flags().StringP("password", "p", "", "Create a password-gated link instead of a public one")
	return cmd
}

func finalPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "final-path [original_path]",
		Short: "Print where the paid asset for an original is stored",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), jobs.FinalPath(args[0]))
			return nil
		},
	}
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	return context.WithTimeout(cmd.Context(), timeout)
}

func renderClient() (*vsai.Client, error) {
	client, err := vsai.NewClient(vsai.Options{
		APIKey:  os.Getenv("VSAI_API_KEY"),
		BaseURL: os.Getenv("VSAI_BASE_URL"),
	})
	if err != nil {
		return nil, err
	}
	if !client.HasCredentials() {
		return nil, vsai.ErrMissingAPIKey
	}
	return client, nil
}

func printResponse(cmd *cobra.Command, resp *vsai.Response) error {
	var out bytes.Buffer
	if len(resp.Data) > 0 {
		if err := json.Indent(&out, resp.Data, "", "  "); err != nil {
			out.Write(resp.Data)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "status %d\n%s\n", resp.Status, out.String())
	if !resp.OK {
		return fmt.Errorf("rendering service answered %d", resp.Status)
	}
	return nil
}
