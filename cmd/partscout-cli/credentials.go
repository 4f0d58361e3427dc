package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/elabx-org/partscout/internal/credential"
	"github.com/spf13/cobra"
)

var flagSetFile string

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manage per-user provider credentials",
}

var credentialsPutCmd = &cobra.Command{
	Use:   "put <user>",
	Short: "Replace a user's credential set from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE:  runCredentialsPut,
}

var credentialsDeleteCmd = &cobra.Command{
	Use:   "delete <user>",
	Short: "Delete a user's credential set",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newAPIClient(30*time.Second).call("DELETE", "/v1/credentials/"+url.PathEscape(args[0]), nil, nil); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "credentials for %s deleted\n", args[0])
		return nil
	},
}

var credentialsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users with stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Users []string `json:"users"`
			Count int      `json:"count"`
		}
		if err := newAPIClient(30*time.Second).call("GET", "/v1/credentials", nil, &resp); err != nil {
			return err
		}
		for _, u := range resp.Users {
			fmt.Fprintln(cmd.OutOrStdout(), u)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%d user(s)\n", resp.Count)
		return nil
	},
}

func init() {
	credentialsPutCmd.Flags().StringVar(&flagSetFile, "file", "-", "Credential set JSON: a path, or - for stdin")
	credentialsCmd.AddCommand(credentialsPutCmd, credentialsDeleteCmd, credentialsListCmd)
	rootCmd.AddCommand(credentialsCmd)
}

func runCredentialsPut(cmd *cobra.Command, args []string) error {
	set, err := readSet(flagSetFile)
	if err != nil {
		return err
	}
	if err := set.Validate(); err != nil {
		return err
	}

	var resp struct {
		User      string   `json:"user"`
		Providers []string `json:"providers"`
	}
	if err := newAPIClient(30*time.Second).call("PUT", "/v1/credentials/"+url.PathEscape(args[0]), set, &resp); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "stored %d credential(s) for %s\n", len(resp.Providers), resp.User)
	now := time.Now()
	for _, rec := range set.Records {
		exp := rec.ExpiresAt()
		switch {
		case exp.IsZero():
			fmt.Fprintf(w, "  %-16s  no expiry\n", rec.Provider)
		case rec.Expired(now):
			fmt.Fprintf(w, "  %-16s  expired %s\n", rec.Provider, humanize.Time(exp))
		default:
			fmt.Fprintf(w, "  %-16s  expires %s\n", rec.Provider, humanize.Time(exp))
		}
	}
	return nil
}

func readSet(path string) (credential.Set, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return credential.Set{}, fmt.Errorf("read credential set: %w", err)
	}
	var set credential.Set
	if err := json.Unmarshal(data, &set); err != nil {
		return credential.Set{}, fmt.Errorf("parse credential set: %w", err)
	}
	return set, nil
}
