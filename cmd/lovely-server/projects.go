package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/upb/lovely-prompts/config"
	"github.com/upb/lovely-prompts/internal/projects"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Output formats of projects list
const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

func newProjectsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Inspect and create projects",
	}
	cmd.AddCommand(newProjectsListCmd(opts))
	cmd.AddCommand(newProjectsCreateCmd(opts))
	return cmd
}

func newProjectsListCmd(opts *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the projects in the data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Context(), opts)
			if err != nil {
				return err
			}

			names, err := openRegistry(cfg).List()
			if err != nil {
				return err
			}
			return writeProjects(cmd.OutOrStdout(), names, output, cfg.Storage.DefaultProject)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format: text, json or yaml")
	return cmd
}

func newProjectsCreateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create NAME",
		Short: "Create an empty project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Context(), opts)
			if err != nil {
				return err
			}

			loc, err := openRegistry(cfg).Ensure(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", loc.Project, loc.Path)
			return nil
		},
	}
}

// openRegistry opens the project directory without starting the server
func openRegistry(cfg *config.Config) *projects.Registry {
	return projects.NewRegistry(cfg.Storage.ProjectsDir(), cfg.Storage.BusyTimeout, zap.NewNop())
}

func writeProjects(w io.Writer, names []string, format, defaultProject string) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(names)

	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(map[string][]string{"projects": names}); err != nil {
			return err
		}
		return enc.Close()

	case outputText:
		highlight := color.New(color.FgGreen, color.Bold)
		if !isTerminal(w) {
			highlight.DisableColor()
		}
		for _, name := range names {
			if name == defaultProject {
				fmt.Fprintf(w, "%s (default)\n", highlight.Sprint(name))
				continue
			}
			fmt.Fprintln(w, name)
		}
		return nil

	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}
