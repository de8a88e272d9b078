package main

import (
	"fmt"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/lanshare/lanshare/internal/auth"
)

var (
	passwdDisable  bool
	passwdUsername string
)

func newPasswdCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Set or remove the share password",
		Long: `Set the password peers must supply to access the shared folder, or remove
it with --disable. A running serve session picks the change up on its next
restart.`,
		Example: `  lanshare passwd
  lanshare passwd --username alice
  lanshare passwd --disable`,
		RunE: passwdRun,
	}

	cmd.Flags().BoolVar(&passwdDisable, "disable", false, "turn password protection off")
	cmd.Flags().StringVar(&passwdUsername, "username", "", "username peers must use (default from config)")

	return cmd
}

func passwdRun(cmd *cobra.Command, args []string) error {
	path, err := savePath()
	if err != nil {
		return err
	}

	if passwdDisable {
		globalCfg.Auth.Enabled = false
		if err := globalCfg.Save(path); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}
		fmt.Println("Password protection disabled.")
		return nil
	}

	if passwdUsername != "" {
		globalCfg.Auth.Username = strings.TrimSpace(passwdUsername)
	}

	fmt.Print("New share password: ")
	first, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	fmt.Print("Repeat password: ")
	second, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	if string(first) != string(second) {
		return fmt.Errorf("passwords do not match")
	}

	hash, err := auth.HashPassword(string(first))
	if err != nil {
		return err
	}

	globalCfg.Auth.Enabled = true
	globalCfg.Auth.PasswordHash = hash
	if err := globalCfg.Save(path); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Printf("Password protection enabled for user %q.\n", globalCfg.Auth.Username)
	return nil
}
