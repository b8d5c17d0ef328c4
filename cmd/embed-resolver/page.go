package main

import (
	"os"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"embed-resolver-go/pkg/config"
	"embed-resolver-go/pkg/services"
)

func init() {
	rootCmd.AddCommand(pageCmd)
	pageCmd.Flags().Int("season", 0, "Only embeds labelled with this season")
	pageCmd.Flags().Int("episode", 0, "Only embeds labelled with this episode")
	pageCmd.Flags().Int("target", 0, "Stop once this many streams are found (overrides TARGET_RESULTS)")
	pageCmd.Flags().String("title", "", "Treat the URL as a listing page and follow the link matching this title")
	pageCmd.Flags().StringArrayP("header", "H", nil, "Extra request header as key=value (repeatable)")
	pageCmd.Flags().Bool("json", false, "Print JSON instead of a table")
}

var pageCmd = &cobra.Command{
	Use:   "page <content-url>",
	Short: "Discover the embeds on a content page and resolve them concurrently",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		headers, err := parseHeaderFlags(lo.Must(cmd.Flags().GetStringArray("header")))
		if err != nil {
			return err
		}

		target := lo.Must(cmd.Flags().GetInt("target"))
		a, err := buildApp(cmd, os.Stderr, func(cfg *config.Config) {
			if target > 0 {
				cfg.TargetResults = target
			}
		})
		if err != nil {
			return err
		}
		defer a.Shutdown()

		res, err := a.Ctx.Resolver.ResolvePage(cmd.Context(), services.PageQuery{
			URL:     args[0],
			Headers: headers,
			Title:   lo.Must(cmd.Flags().GetString("title")),
			Season:  lo.Must(cmd.Flags().GetInt("season")),
			Episode: lo.Must(cmd.Flags().GetInt("episode")),
		})
		if err != nil {
			return err
		}

		return printPage(cmd.OutOrStdout(), res, lo.Must(cmd.Flags().GetBool("json")))
	},
}
