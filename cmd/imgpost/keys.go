package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/manash/imgpost/internal/keys"
)

func newKeysCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage stored credentials",
		Long: fmt.Sprintf(`Store credentials in keys.json in the imgpost config directory.

A credential can be named by its key name or its environment variable.
Known credentials: %s.

Lookup order for every command: command-line flag, stored key, --secrets
file, environment variable.`, strings.Join(keys.Names(), ", ")),
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <name> [value]",
			Short: "Store a credential, prompting for it when no value is given",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runKeysSet(args, app)
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "Show which credentials are stored",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runKeysList(app)
			},
		},
		&cobra.Command{
			Use:   "delete <name>",
			Short: "Remove a stored credential",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runKeysDelete(args, app)
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the location of keys.json",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := app.NewKeyStore()
				if err != nil {
					return err
				}
				fmt.Fprintln(app.Out, store.Path())
				return nil
			},
		},
	)
	return cmd
}

func runKeysSet(args []string, app *App) error {
	cred, err := keys.Lookup(args[0])
	if err != nil {
		return err
	}

	var value string
	if len(args) == 2 {
		value = strings.TrimSpace(args[1])
	} else {
		value, err = app.ReadSecret(fmt.Sprintf("%s: ", cred.Description))
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", cred.Name, err)
		}
	}
	if value == "" {
		return fmt.Errorf("%s cannot be empty", cred.Name)
	}

	store, err := app.NewKeyStore()
	if err != nil {
		return err
	}
	if err := store.Set(cred.Name, value); err != nil {
		return err
	}

	fmt.Fprintf(app.Out, "Stored %s (%s) in %s\n", cred.Name, keys.MaskKey(value), store.Path())
	return nil
}

func runKeysList(app *App) error {
	store, err := app.NewKeyStore()
	if err != nil {
		return err
	}
	entries, err := store.Entries()
	if err != nil {
		return err
	}

	for _, cred := range keys.Credentials {
		status := "not stored"
		if entry, ok := entries[cred.Name]; ok && entry.Key != "" {
			status = keys.MaskKey(entry.Key)
			if !entry.Updated.IsZero() {
				status += " (set " + entry.Updated.Format("2006-01-02") + ")"
			}
		} else if app.GetEnv(cred.EnvVar) != "" {
			status = "from " + cred.EnvVar
		}

		required := ""
		if cred.Required {
			required = " (required)"
		}
		fmt.Fprintf(app.Out, "%-18s %-24s %s%s\n", cred.Name, cred.EnvVar, status, required)
	}
	return nil
}

func runKeysDelete(args []string, app *App) error {
	cred, err := keys.Lookup(args[0])
	if err != nil {
		return err
	}

	store, err := app.NewKeyStore()
	if err != nil {
		return err
	}
	if err := store.Delete(cred.Name); err != nil {
		return err
	}

	fmt.Fprintf(app.Out, "Deleted %s\n", cred.Name)
	return nil
}
