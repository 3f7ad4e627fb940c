package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	crisisconfig "github.com/lifeline-care/crisis/internal/crisis/config"
	"github.com/lifeline-care/crisis/internal/crisis/resources"
)

func newAnalyzeCmd() *cobra.Command {
	var tags []string

	cmd := &cobra.Command{
		Use:   "analyze [text]",
		Short: "Score text and show the planned response",
		Long:  "Score text and show the planned response. Reads stdin when no text is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := inputText(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			svc := newService(cmd.Context(), cmd.ErrOrStderr())
			defer svc.Wait()

			out := svc.Analyze(cmd.Context(), text, profileFrom(tags))
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "demographic tags (veteran, lgbtq, youth)")
	return cmd
}

func newResourcesCmd() *cobra.Command {
	var (
		tags    []string
		support bool
	)

	cmd := &cobra.Command{
		Use:   "resources",
		Short: "List crisis resources for a country",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := newService(cmd.Context(), cmd.ErrOrStderr())

			var list []crisisconfig.Resource
			if support {
				list = svc.Support(viper.GetString("default_country"))
			} else {
				list = svc.Emergency(profileFrom(tags))
			}

			w := cmd.OutOrStdout()
			for _, r := range list {
				contact := r.Number
				if contact == "" {
					contact = r.URL
				}
				if r.Keyword != "" {
					contact += " (text " + r.Keyword + ")"
				}
				fmt.Fprintf(w, "%-22s %-10s %s\n", r.ID, r.Type, contact)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "demographic tags (veteran, lgbtq, youth)")
	cmd.Flags().BoolVar(&support, "support", false, "list non-emergency support services")
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect crisis keyword configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the resolved config as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigs(cmd.Context(), cmd.ErrOrStderr()).Current()
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate <file>",
		Short: "Check an override file against the defaults",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			partial, err := crisisconfig.LoadFile(args[0])
			if err != nil {
				return err
			}
			if _, err := crisisconfig.Overlay(crisisconfig.Defaults(), partial, "file"); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", args[0])
			return nil
		},
	})

	return cmd
}

func profileFrom(tags []string) *resources.Profile {
	profile := &resources.Profile{Country: viper.GetString("default_country")}
	for _, raw := range tags {
		if tag, ok := resources.ParseTag(raw); ok {
			profile.Flags = append(profile.Flags, tag)
		}
	}
	return profile
}

func inputText(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	if f, ok := stdin.(*os.File); ok {
		if info, err := f.Stat(); err == nil && info.Mode()&os.ModeCharDevice != 0 {
			return "", fmt.Errorf("no text given")
		}
	}
	data, err := io.ReadAll(io.LimitReader(stdin, 64<<10))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
