package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/constellation-sdi/constellation/configs"
	"github.com/constellation-sdi/constellation/internal/config"
	"github.com/constellation-sdi/constellation/internal/output"
	"github.com/constellation-sdi/constellation/internal/ui"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
		Long: `Manage the Constellation configuration file.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. Configuration file (--config, or ~/.config/constellation/constellation.yaml)
  3. Environment variables (CONSTELLATION_*)`,
		Example: `  # Create the configuration from the template
  constellation config init

  # Show the effective configuration
  constellation config show

  # Print the configuration file path
  constellation config path`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigRestoreCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the configuration file",
		Long: `Create the configuration file from the annotated template.

An existing file is kept unless --force is given, in which case it is
backed up first. Backups can be restored with 'constellation config restore'.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite the existing configuration")

	return cmd
}

func runConfigInit(cmd *cobra.Command, force bool) error {
	out := newOutput(cmd)
	path := configFile()

	if _, err := os.Stat(path); err == nil {
		if !force {
			out.Warning("Configuration already exists")
			out.Detailf("Location: %s", path)
			out.Detail("Use --force to replace it with the template (a backup is kept)")
			return nil
		}
		backup, err := config.Backup(path)
		if err != nil {
			return fmt.Errorf("failed to backup config: %w", err)
		}
		out.Successf("Backup: %s", backup)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(configs.ConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out.Success("Created configuration")
	out.Detailf("Location: %s", path)
	out.Newline()
	out.Status(">", "Next steps:")
	out.Detail("1. Declare your record sources and services")
	out.Detail("2. Run 'constellation config show' to verify")
	out.Detail("3. Run 'constellation serve'")
	return nil
}

// newOutput returns a status writer on the command's output.
func newOutput(cmd *cobra.Command) *output.Writer {
	w := cmd.OutOrStdout()
	return output.New(w, noColor || ui.DetectNoColor() || !ui.IsTTY(w))
}

func newConfigShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			if p := cfg.Path(); p != "" {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", p)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), configFile())
			return err
		},
	}
}

func newConfigRestoreCmd() *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "restore [backup]",
		Short: "Restore the configuration from a backup",
		Long: `Restore the configuration file from a backup. Without an argument the
newest backup is restored. The current file is backed up first.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configFile()

			backups, err := config.ListBackups(path)
			if err != nil {
				return err
			}
			if list {
				for _, b := range backups {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), b)
				}
				return nil
			}

			var backup string
			switch {
			case len(args) == 1:
				backup = args[0]
			case len(backups) > 0:
				backup = backups[0]
			default:
				return fmt.Errorf("no backups of %s found", path)
			}

			if err := config.Restore(path, backup); err != nil {
				return err
			}
			out := newOutput(cmd)
			out.Successf("Restored %s", path)
			out.Detailf("From: %s", backup)
			return nil
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "List backups, newest first")

	return cmd
}
