package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ralts/langindex/internal/config"
)

// newConfigCmd creates the config command group: init/backups/restore
// over the user/global config file (~/.config/langindex/config.yaml).
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the user-level langindexd configuration",
	}
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigBackupsCmd())
	cmd.AddCommand(newConfigRestoreCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default user config, backing up any existing one first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd)
		},
	}
}

func runConfigInit(cmd *cobra.Command) error {
	if config.UserConfigExists() {
		backupPath, err := config.BackupUserConfig()
		if err != nil {
			return fmt.Errorf("backing up existing config: %w", err)
		}
		cmd.Printf("Backed up existing config to %s\n", backupPath)
	}
	if err := config.NewConfig().WriteYAML(config.GetUserConfigPath()); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	cmd.Printf("Wrote default config to %s\n", config.GetUserConfigPath())
	return nil
}

func newConfigBackupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backups",
		Short: "List saved backups of the user config, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigBackups(cmd)
		},
	}
}

func runConfigBackups(cmd *cobra.Command) error {
	backups, err := config.ListUserConfigBackups()
	if err != nil {
		return fmt.Errorf("listing backups: %w", err)
	}
	if len(backups) == 0 {
		cmd.Println("No config backups found.")
		return nil
	}
	for _, b := range backups {
		cmd.Println(b)
	}
	return nil
}

func newConfigRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup-path>",
		Short: "Restore the user config from a backup file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigRestore(cmd, args[0])
		},
	}
}

func runConfigRestore(cmd *cobra.Command, backupPath string) error {
	if err := config.RestoreUserConfig(backupPath); err != nil {
		return fmt.Errorf("restoring config: %w", err)
	}
	cmd.Printf("Restored %s from %s\n", config.GetUserConfigPath(), backupPath)
	return nil
}
