package main

import (
	"fmt"
	"strings"

	"github.com/agentuity/go-datacache/frame"
	"github.com/agentuity/go-datacache/serializer"
	"github.com/agentuity/go-datacache/staleness"
	"github.com/agentuity/go-datacache/store"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

// parseFilters turns col=value arguments into filters, inferring value
// types the way delimited files are read.
func parseFilters(args []string) (store.Filters, error) {
	var filters store.Filters
	for _, arg := range args {
		col, val, ok := strings.Cut(arg, "=")
		if !ok || col == "" {
			return nil, errors.Newf("filter %q must look like column=value", arg)
		}
		filters = append(filters, store.F(col, serializer.Infer(val)))
	}
	return filters, nil
}

// dbPath returns the first argument or the configured database.
func dbPath(a *app, args []string) (string, []string, error) {
	if len(args) > 0 && !strings.Contains(args[0], "=") {
		return args[0], args[1:], nil
	}
	if a.cfg != nil && a.cfg.Database.Path != "" {
		return a.cfg.Database.Path, args, nil
	}
	return "", nil, errors.New("no database given and none configured")
}

func newDBCmd(a *app) *cobra.Command {
	db := &cobra.Command{
		Use:   "db",
		Short: "Query a SQLite store",
	}

	tables := &cobra.Command{
		Use:   "tables [file]",
		Short: "List tables",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _, err := dbPath(a, args)
			if err != nil {
				return err
			}
			registry := store.NewRegistry(store.WithLogger(a.log))
			defer registry.Close()
			names, err := registry.Acquire(store.Config{Path: path}).Tables(cmd.Context())
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}

	sel := &cobra.Command{
		Use:   "select [file] <table> [column=value ...]",
		Short: "Select rows matching every filter",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, rest, err := dbPath(a, args)
			if err != nil {
				return err
			}
			if len(rest) == 0 {
				return errors.New("table is required")
			}
			table := rest[0]
			filters, err := parseFilters(rest[1:])
			if err != nil {
				return err
			}
			where, _ := cmd.Flags().GetString("where")
			recent, _ := cmd.Flags().GetString("recent")
			dateCol, _ := cmd.Flags().GetString("date-col")
			showSQL, _ := cmd.Flags().GetBool("show-sql")

			if showSQL {
				q, err := store.SelectStatement(table, filters, where)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.ErrOrStderr(), q)
			}
			registry := store.NewRegistry(store.WithLogger(a.log))
			defer registry.Close()
			h := registry.Acquire(store.Config{Path: path})
			var data *frame.Frame
			if recent != "" {
				w, err := staleness.ParseWindow(recent)
				if err != nil {
					return err
				}
				data, err = h.SelectRecent(cmd.Context(), table, w, dateCol, filters)
				if err != nil {
					return err
				}
			} else if data, err = h.Select(cmd.Context(), table, filters, where); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), data.String())
			return nil
		},
	}
	sel.Flags().String("where", "", "extra SQL condition ANDed with the filters")
	sel.Flags().String("recent", "", "only rows whose date column falls inside this window, e.g. 1M")
	sel.Flags().String("date-col", store.DefaultDateColumn, "date column used with --recent")
	sel.Flags().Bool("show-sql", false, "print the statement to stderr")

	db.AddCommand(tables, sel)
	return db
}
