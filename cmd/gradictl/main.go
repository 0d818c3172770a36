// Command gradictl talks to a gradilisce server from the terminal.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/erazemk/gradilisce/internal/client"
)

// TokenEnv holds the bearer token when --token is not given.
const TokenEnv = "GRADILISCE_TOKEN"

type app struct {
	server string
	token  string
	out    *message.Printer
}

func (a *app) client() (*client.Client, error) {
	token := a.token
	if token == "" {
		token = os.Getenv(TokenEnv)
	}
	if token == "" {
		return nil, fmt.Errorf("not logged in: pass --token or set %s", TokenEnv)
	}
	return client.New(a.server, client.WithToken(token)), nil
}

func newRootCmd() *cobra.Command {
	a := &app{out: message.NewPrinter(language.English)}
	root := &cobra.Command{
		Use:           "gradictl",
		Short:         "Manage site inventory from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			a.out = message.NewPrinter(language.English, message.SetOutput(cmd.OutOrStdout()))
		},
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&a.server, "server", "s", "http://localhost:8080", "server base URL")
	pf.StringVarP(&a.token, "token", "t", "", "bearer token (default $"+TokenEnv+")")

	root.AddCommand(
		newLoginCmd(a),
		newInventoryCmd(a),
		newTransfersCmd(a),
		newPastWorkCmd(a),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", client.ErrorMessage(err))
		os.Exit(1)
	}
}

func newLoginCmd(a *app) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login USERNAME",
		Short: "Log in and print a token for " + TokenEnv,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = strings.TrimSpace(os.Getenv("GRADILISCE_PASSWORD"))
			}
			if password == "" {
				return fmt.Errorf("password required: pass --password or set GRADILISCE_PASSWORD")
			}
			token, err := client.New(a.server).Login(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			a.out.Printf("export %s=%s\n", TokenEnv, token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (default $GRADILISCE_PASSWORD)")
	return cmd
}
