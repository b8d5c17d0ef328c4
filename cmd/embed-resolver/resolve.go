package main

import (
	"os"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"embed-resolver-go/pkg/types"
)

func init() {
	rootCmd.AddCommand(resolveCmd)
	resolveCmd.Flags().String("referer", "", "Referer of the page the embed was found on")
	resolveCmd.Flags().String("label", "", "Label attached to the resulting streams")
	resolveCmd.Flags().StringArrayP("header", "H", nil, "Extra request header as key=value (repeatable)")
	resolveCmd.Flags().Bool("json", false, "Print JSON instead of a table")
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <embed-url>",
	Short: "Resolve one embed page into its playable streams",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		headers, err := parseHeaderFlags(lo.Must(cmd.Flags().GetStringArray("header")))
		if err != nil {
			return err
		}

		a, err := buildApp(cmd, os.Stderr, nil)
		if err != nil {
			return err
		}
		defer a.Shutdown()

		streams, err := a.Ctx.Resolver.Resolve(cmd.Context(), types.EmbedReference{
			URL:     args[0],
			Label:   lo.Must(cmd.Flags().GetString("label")),
			Referer: lo.Must(cmd.Flags().GetString("referer")),
			Headers: headers,
		})
		if err != nil {
			return err
		}

		return printStreams(cmd.OutOrStdout(), streams, lo.Must(cmd.Flags().GetBool("json")))
	},
}
