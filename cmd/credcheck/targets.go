package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tastythames/credcheck/internal/inventory"
	"github.com/tastythames/credcheck/internal/store"
)

func newTargetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "targets",
		Short: "Manage the targets stored in the database",
	}
	cmd.AddCommand(newTargetsAddCmd())
	cmd.AddCommand(newTargetsImportCmd())
	cmd.AddCommand(newTargetsListCmd())
	cmd.AddCommand(newTargetsRemoveCmd())
	return cmd
}

func newTargetsAddCmd() *cobra.Command {
	var t inventory.Target
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add one target; prints the generated id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if t.Host == "" {
				return errors.New("--host is required")
			}
			if t.Port == 0 {
				t.Port = inventory.DefaultPort(cfg.Protocol)
			}
			st, err := store.Open(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			id, err := st.Add(cmd.Context(), t)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", id)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&t.ID, "id", "", "target id, generated when empty")
	f.StringVar(&t.Host, "host", "", "server host name")
	f.IntVar(&t.Port, "port", 0, "server port, protocol default when 0")
	f.StringVar(&t.Username, "user", "", "login user name")
	f.StringVar(&t.Secret, "secret", "", "login password")
	return cmd
}

func newTargetsImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Upsert targets from a YAML inventory file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := inventory.Load(args[0], cfg.Protocol)
			if err != nil {
				return err
			}
			st, err := store.Open(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			n, err := st.Import(cmd.Context(), inv.Targets)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d targets\n", n)
			return nil
		},
	}
}

func newTargetsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List targets without their secrets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lister, closeLister, err := openLister(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = closeLister() }()

			targets, err := lister.List(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(targets))
			for _, t := range targets {
				rows = append(rows, []string{t.ID, t.Host, strconv.Itoa(t.Port), t.Username})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "HOST", "PORT", "USER"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
}

func newTargetsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm ID",
		Short: "Remove a target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()
			return st.Delete(cmd.Context(), args[0])
		},
	}
}
