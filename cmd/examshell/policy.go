package main

import (
	"fmt"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/ExamShell/backend/internal/policy"
	"github.com/GriffinCanCode/ExamShell/backend/internal/settings"
)

type policyDump struct {
	Clipboard string                       `yaml:"clipboard"`
	Popups    string                       `yaml:"popups"`
	URLFilter urlFilterDump                `yaml:"url_filter"`
	Downloads []string                     `yaml:"download_allow_list,omitempty"`
	Uploads   []string                     `yaml:"upload_allow_list,omitempty"`
	Windows   map[string]map[string]string `yaml:"windows"`
}

type urlFilterDump struct {
	Enabled bool       `yaml:"enabled"`
	Rules   []ruleDump `yaml:"rules,omitempty"`
}

type ruleDump struct {
	Pattern string `yaml:"pattern"`
	Result  string `yaml:"result"`
}

func policyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Print the effective policy matrix as YAML",
		Args:  cobra.NoArgs,
	}
	flags := newSettingsFlags(cmd.Flags())

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		s := flags.settings()
		// The matrix does not depend on the keys
		if s.ConfigurationKey == "" {
			s.ConfigurationKey = "-"
		}
		if s.BrowserExamKeySalt == "" {
			s.BrowserExamKeySalt = "-"
		}
		cfg, err := settings.New(s)
		if err != nil {
			return err
		}

		b, err := yaml.Marshal(dumpPolicy(policy.FromConfiguration(cfg), s))
		if err != nil {
			return fmt.Errorf("encode policy: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(b)
		return err
	}
	return cmd
}

func dumpPolicy(m *policy.Matrix, s settings.Settings) policyDump {
	d := policyDump{
		Clipboard: string(m.ClipboardPolicy()),
		Popups:    string(m.PopupPolicy()),
		URLFilter: urlFilterDump{Enabled: m.URLFilter().Enabled()},
		Downloads: s.DownloadAllowList,
		Uploads:   s.UploadAllowList,
		Windows:   m.Snapshot(),
	}
	for _, r := range s.URLFilter.Rules {
		d.URLFilter.Rules = append(d.URLFilter.Rules, ruleDump{Pattern: r.Pattern, Result: string(r.Result)})
	}
	return d
}
