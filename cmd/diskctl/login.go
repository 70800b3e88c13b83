package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/faciam-dev/gcdisk/pkg/client"
	"github.com/faciam-dev/gcdisk/pkg/config"
)

func newLoginCmd() *cobra.Command {
	var email, password string
	var nonInteractive bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and save the API endpoint and token into ~/.diskctl/config.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			o := config.FromFlags(cmd)
			prof := o.Profile
			if prof == "" {
				prof = cfg.Current
			}
			prev, _ := cfg.Profile(prof)
			url := o.APIURL
			if !nonInteractive {
				in := bufio.NewReader(cmd.InOrStdin())
				if url == "" {
					url = prompt(cmd, in, "API URL", prev.APIURL)
				}
				if email == "" {
					email = prompt(cmd, in, "Email", prev.Email)
				}
				if password == "" {
					if password, err = readPassword(cmd, "Password"); err != nil {
						return err
					}
				}
			}
			if url == "" || email == "" || password == "" {
				return fmt.Errorf("api-url, email and password are required")
			}

			tok, err := client.New(url).Login(cmd.Context(), email, password)
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}

			cfg.Put(prof, config.Profile{APIURL: url, Token: tok, Email: email})
			if err := cfg.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in. Active profile: %s\n", prof)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when empty)")
	cmd.Flags().BoolVar(&nonInteractive, "non-interactive", false, "Fail instead of prompting")
	return cmd
}

func prompt(cmd *cobra.Command, in *bufio.Reader, label, def string) string {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [%s]: ", label, def)
	s, err := in.ReadString('\n')
	if err != nil && s == "" {
		return def
	}
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}
