package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/PentesterFlow/APIHunter/internal/profile"
)

const masked = "********"

func newProfileCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage saved hunt profiles",
		Long:  "Manage hunt configurations saved with crawl --save-as.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProfiles(cmd, g, func(s *profile.Store) error {
				infos, err := s.List()
				if err != nil {
					return err
				}
				printProfiles(cmd.OutOrStdout(), infos)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <name>",
		Short: "Show a profile with secrets masked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProfiles(cmd, g, func(s *profile.Store) error {
				p, err := s.Get(args[0])
				if err != nil {
					return err
				}
				return printProfile(cmd.OutOrStdout(), p)
			})
		},
		ValidArgsFunction: completeProfiles(g),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProfiles(cmd, g, func(s *profile.Store) error {
				if err := s.Delete(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Profile deleted: %s\n", args[0])
				return nil
			})
		},
		ValidArgsFunction: completeProfiles(g),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "export <name> <file>",
		Short: "Export a profile to a JSON file",
		Long:  "Export a profile to a JSON file. The file includes saved credentials.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProfiles(cmd, g, func(s *profile.Store) error {
				if err := s.Export(args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Profile exported to: %s\n", args[1])
				return nil
			})
		},
		ValidArgsFunction: completeProfiles(g),
	})

	var importName string
	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a profile from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProfiles(cmd, g, func(s *profile.Store) error {
				p, err := s.Import(args[0], importName)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Profile imported: %s\n", p.Name)
				return nil
			})
		},
	}
	importCmd.Flags().StringVar(&importName, "name", "", "Save under this name instead of the one in the file")
	cmd.AddCommand(importCmd)

	return cmd
}

func withProfiles(cmd *cobra.Command, g *globalFlags, fn func(*profile.Store) error) error {
	store, err := g.openProfiles(g.newLogger(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func printProfiles(w io.Writer, infos []profile.Info) {
	if len(infos) == 0 {
		fmt.Fprintln(w, "No saved profiles. Use crawl --save-as to save one.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tURL\tAUTH\tUPDATED\tDESCRIPTION")
	for _, p := range infos {
		authCol := "-"
		if p.HasAuth {
			authCol = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			p.Name, truncate(p.URL, 40), authCol, p.UpdatedAt.Local().Format("2006-01-02 15:04"), truncate(p.Description, 30))
	}
	tw.Flush()
	fmt.Fprintf(w, "\nTotal: %d profile(s)\n", len(infos))
}

// printProfile writes the profile as YAML with credentials and header and
// cookie values masked.
func printProfile(w io.Writer, p *profile.Profile) error {
	cfg := p.Config.Clone()
	if cfg.Password != "" {
		cfg.Password = masked
	}
	for k := range cfg.AuthHeaders {
		cfg.AuthHeaders[k] = masked
	}
	for k := range cfg.Cookies {
		cfg.Cookies[k] = masked
	}

	fmt.Fprintf(w, "Name:        %s\n", p.Name)
	if p.Description != "" {
		fmt.Fprintf(w, "Description: %s\n", p.Description)
	}
	fmt.Fprintf(w, "Created:     %s\n", p.CreatedAt.Local().Format("2006-01-02 15:04"))
	fmt.Fprintf(w, "Updated:     %s\n\n", p.UpdatedAt.Local().Format("2006-01-02 15:04"))

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	return enc.Close()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// completeProfiles completes the first argument with saved profile names.
func completeProfiles(g *globalFlags) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveDefault
		}
		var names []string
		_ = withProfiles(cmd, g, func(s *profile.Store) error {
			infos, err := s.List()
			names = sortedNames(infos)
			return err
		})
		return names, cobra.ShellCompDirectiveNoFileComp
	}
}

func sortedNames(infos []profile.Info) []string {
	names := make([]string, 0, len(infos))
	for _, p := range infos {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}
