package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/ExamShell/backend/internal/integrity"
)

func keysCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "keys <url>",
		Short: "Print the integrity keys for a URL",
		Long: "Derives the configuration key and browser exam key a page at <url> would " +
			"see under the given secret and salt, for checking a server-side implementation.",
		Args: cobra.ExactArgs(1),
	}
	flags := newSettingsFlags(cmd.Flags())
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format (text|json)")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := flags.configuration()
		if err != nil {
			return err
		}
		gen := integrity.NewGenerator(cfg)
		tok, err := gen.Derive(args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch format {
		case "json":
			b, err := json.MarshalIndent(tok, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(b))
		case "text":
			fmt.Fprintf(out, "url:               %s\n", tok.URL)
			fmt.Fprintf(out, "configuration key: %s\n", tok.ConfigurationKey)
			fmt.Fprintf(out, "browser exam key:  %s\n", tok.BrowserExamKey)
			h := gen.RequestHeaders(tok)
			for _, name := range []string{integrity.HeaderRequestHash, integrity.HeaderConfigKeyHash} {
				if v := h.Get(name); v != "" {
					fmt.Fprintf(out, "header %s: %s\n", name, v)
				}
			}
		default:
			return fmt.Errorf("unknown format %q", format)
		}
		return nil
	}
	return cmd
}
