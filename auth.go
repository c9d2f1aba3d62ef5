package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fleetbase/agent/internal/config"
	"github.com/fleetbase/agent/internal/transport"
)

// newAuthCmd builds the `auth` command: prompts for server address,
// password, and a sudo build user, validates them, and writes the config
// file. Grounded directly on original_source/mam.py's action_auth —
// including the retry-the-whole-prompt-loop-on-failure behaviour.
func newAuthCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "auth",
		Short:       "Authenticate this machine against the desired-state server",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE:        runAuth,
	}
}

func runAuth(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	reader := bufio.NewReader(os.Stdin)
	logger := buildLogger(nil)

	for {
		fmt.Print("Server address: ")

		address, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("auth: reading address: %w", err)
		}

		address = strings.TrimSpace(address)

		fmt.Print("Password: ")

		passwordBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()

		if err != nil {
			return fmt.Errorf("auth: reading password: %w", err)
		}

		password := string(passwordBytes)

		fmt.Print("Preferred sudo build user [nobody]: ")

		buildUser, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("auth: reading build user: %w", err)
		}

		buildUser = strings.TrimSpace(buildUser)
		if buildUser == "" {
			buildUser = "nobody"
		}

		client := transport.New(address, password, &http.Client{Timeout: config.DefaultHTTPTimeout}, logger)
		if !client.Check(ctx) {
			fmt.Fprintln(os.Stderr, "Server rejected address/password, please try again.")
			continue
		}

		if err := validateSudoUser(buildUser); err != nil {
			fmt.Fprintf(os.Stderr, "Sudo user %q is not usable: %v, please try again.\n", buildUser, err)
			continue
		}

		cfg := &config.Config{Address: address, Password: password, BuildUser: buildUser}
		stateDir := resolveStateDir(cmd)

		if err := config.Write(config.ConfigPath(stateDir), cfg); err != nil {
			return fmt.Errorf("auth: writing config: %w", err)
		}

		fmt.Println("Authenticated successfully.")

		return nil
	}
}

// validateSudoUser runs `sudo -l -U <user>` the way action_auth does,
// rejecting a user sudo refuses to describe.
func validateSudoUser(user string) error {
	out, err := exec.Command("sudo", "-l", "-U", user).CombinedOutput()
	if err != nil {
		return fmt.Errorf("running sudo -l -U %s: %w", user, err)
	}

	if strings.Contains(strings.ToLower(string(out)), "not allowed") {
		return fmt.Errorf("user is not permitted to run sudo commands")
	}

	return nil
}
