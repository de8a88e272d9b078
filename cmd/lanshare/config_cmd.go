package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage lanshare configuration. Subcommands allow viewing the effective
settings and writing a starter config file.`,
		Example: `  lanshare config show
  lanshare config init`,
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigInitCmd(),
	)

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		Long: `Display the effective configuration in YAML format. Password hashes are
included; treat the output accordingly.`,
		Example: `  lanshare config show`,
		RunE:    configShowRun,
	}
}

func configShowRun(cmd *cobra.Command, args []string) error {
	data, err := yaml.Marshal(globalCfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if cfgPath != "" {
		fmt.Printf("# loaded from %s\n", cfgPath)
	} else {
		fmt.Println("# built-in defaults (no config file found)")
	}
	fmt.Print(string(data))
	return nil
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Long: `Write the default configuration to the user config location, refusing to
overwrite an existing file.`,
		Example: `  lanshare config init`,
		RunE:    configInitRun,
	}
}

func configInitRun(cmd *cobra.Command, args []string) error {
	path, err := savePath()
	if err != nil {
		return err
	}
	if err := globalCfg.SaveNew(path); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}
