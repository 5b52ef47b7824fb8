package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/taskwire/taskwire/internal/config"
)

func newLoginCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store a gateway bearer token",
		Long: `Prompts for a gateway bearer token and writes it into the config file.
The token is read without echo when stdin is a terminal.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Taskwire config file")
	return cmd
}

func runLogin(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	// Validate the config before touching it.
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Gateway: %s\n", cfg.Gateway.BaseURL)

	token, err := readToken(cmd)
	if err != nil {
		return err
	}
	if token == "" {
		return fmt.Errorf("login: empty token")
	}

	if err := writeToken(configPath, token); err != nil {
		return err
	}
	fmt.Fprintf(out, "Token saved to %s\n", configPath)
	return nil
}

// readToken reads the token without echo when stdin is a real terminal,
// falling back to a plain line read otherwise (pipes, tests).
func readToken(cmd *cobra.Command) (string, error) {
	fmt.Fprint(cmd.OutOrStdout(), "Token: ")

	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return "", fmt.Errorf("login: read token: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("login: read token: %w", err)
		}
		return "", fmt.Errorf("login: no input")
	}
	return strings.TrimSpace(scanner.Text()), nil
}

// writeToken updates gateway.token in the YAML file, preserving the other
// keys the user has set (comments are not preserved).
func writeToken(configPath, token string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("login: read %s: %w", configPath, err)
	}

	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("login: parse %s: %w", configPath, err)
	}
	if doc == nil {
		doc = map[string]interface{}{}
	}

	gw, _ := doc["gateway"].(map[string]interface{})
	if gw == nil {
		gw = map[string]interface{}{}
	}
	gw["token"] = token
	doc["gateway"] = gw

	updated, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("login: encode config: %w", err)
	}
	if err := os.WriteFile(configPath, updated, 0600); err != nil {
		return fmt.Errorf("login: write %s: %w", configPath, err)
	}
	return nil
}
