package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bartek5186/pricebridge/internal/apperr"
	"github.com/bartek5186/pricebridge/internal/dataset"
	"github.com/bartek5186/pricebridge/internal/importer"
	"github.com/bartek5186/pricebridge/internal/reconcile"
	"github.com/bartek5186/pricebridge/internal/sheet"
)

type importOptions struct {
	dataset    string
	file       string
	user       string
	mapping    string
	apply      bool
	async      bool
	onConflict string
	maxErrors  int
}

func newImportCmd() *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Zaimportuj plik CSV/XLSX (domyślnie dry-run: tylko plan)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runImport(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.dataset, "dataset", "", "typ zbioru: "+strings.Join(dataset.Types(), ", "))
	cmd.Flags().StringVar(&opts.file, "file", "", "plik do importu (.csv, .tsv, .txt, .xlsx)")
	cmd.Flags().StringVar(&opts.user, "user", "", "identyfikator użytkownika zapisywany w batchu")
	cmd.Flags().StringVar(&opts.mapping, "mapping", "", "mapowanie pole=nagłówek,... (puste: zgadywane z nagłówków)")
	cmd.Flags().BoolVar(&opts.apply, "apply", false, "zapisz zmiany w bazie (domyślnie dry-run)")
	cmd.Flags().BoolVar(&opts.async, "async", false, "z --apply: wyślij do kolejki zamiast zapisywać od razu")
	cmd.Flags().StringVar(&opts.onConflict, "on-conflict", string(reconcile.ActionKeep), "decyzja dla konfliktów: keep | replace")
	cmd.Flags().IntVar(&opts.maxErrors, "max-errors", 20, "ile błędów walidacji wypisać")
	_ = cmd.MarkFlagRequired("dataset")
	_ = cmd.MarkFlagRequired("file")

	cmd.PreRunE = func(*cobra.Command, []string) error {
		switch reconcile.Action(opts.onConflict) {
		case reconcile.ActionKeep, reconcile.ActionReplace:
		default:
			return fmt.Errorf("invalid --on-conflict %q (keep | replace)", opts.onConflict)
		}
		if opts.async && !opts.apply {
			return fmt.Errorf("--async requires --apply")
		}
		if opts.apply && opts.user == "" {
			return fmt.Errorf("--user is required with --apply")
		}
		return nil
	}
	return cmd
}

// parseMapping: "marque=Marque,cat_fab=Cat Fab" -> pole -> nagłówek.
func parseMapping(s string) (map[string]string, error) {
	out := map[string]string{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		field, header, ok := strings.Cut(part, "=")
		if !ok || strings.TrimSpace(field) == "" || strings.TrimSpace(header) == "" {
			return nil, fmt.Errorf("invalid mapping entry %q (expected field=header)", part)
		}
		out[strings.TrimSpace(field)] = strings.TrimSpace(header)
	}
	return out, nil
}

func runImport(cmd *cobra.Command, opts importOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	mapping, err := parseMapping(opts.mapping)
	if err != nil {
		return err
	}
	content, err := os.ReadFile(opts.file)
	if err != nil {
		return err
	}
	name := filepath.Base(opts.file)

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if !opts.apply {
		schema, err := dataset.MustLookup(opts.dataset)
		if err != nil {
			return err
		}
		table, err := sheet.Read(name, strings.NewReader(string(content)))
		if err != nil {
			return err
		}
		plan, err := a.planner.Prepare(ctx, schema, name, table, mapping)
		if err != nil {
			printAppErr(cmd, err)
			return err
		}
		c := plan.Diff.Counts
		fmt.Fprintf(out, "%s: %d wierszy, %d poprawnych, %d błędnych\n", name, plan.TotalLines, len(plan.Valid), len(plan.Errors))
		fmt.Fprintf(out, "create=%d update=%d conflict=%d unchanged=%d\n", c.Create, c.Update, c.Conflict, c.Unchanged)
		for _, e := range plan.Errors.First(opts.maxErrors) {
			fmt.Fprintf(out, "  linia %d, %s: %s (%q)\n", e.Line, e.Field, e.Message, e.Value)
		}
		if len(plan.Errors) > opts.maxErrors {
			fmt.Fprintf(out, "  ... i %d więcej\n", len(plan.Errors)-opts.maxErrors)
		}
		return nil
	}

	req := importer.Request{
		Dataset:  opts.dataset,
		FileName: name,
		Content:  content,
		Mapping:  mapping,
		UserID:   opts.user,
	}
	if reconcile.Action(opts.onConflict) == reconcile.ActionReplace {
		req.Bulk = &importer.BulkRule{Statuses: []reconcile.Status{reconcile.StatusConflict}, Action: reconcile.ActionReplace}
	}

	var exec importer.Executor = a.local
	if opts.async {
		// kolejka w pamięci ginie razem z tym procesem
		if a.inproc != nil {
			return errAsyncInProc
		}
		exec = a.remote
	}
	res, err := exec.Execute(ctx, req)
	if err != nil {
		printAppErr(cmd, err)
		return err
	}
	if res.Deferred {
		fmt.Fprintf(out, "batch %s wysłany do przetworzenia\n", res.BatchID)
		return nil
	}
	fmt.Fprintf(out, "batch %s: created=%d updated=%d skipped=%d invalid=%d\n", res.BatchID, res.Created, res.Updated, res.Skipped, res.Invalid)
	return nil
}

func printAppErr(cmd *cobra.Command, err error) {
	ae := apperr.As(err)
	if ae.Details == nil {
		return
	}
	b, _ := json.MarshalIndent(ae.Details, "", "  ")
	fmt.Fprintln(cmd.ErrOrStderr(), string(b))
}

func newBatchCmd() *cobra.Command {
	var changes bool
	cmd := &cobra.Command{
		Use:   "batch <id>",
		Short: "Pokaż stan batcha importu",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			b, err := a.store.GetBatch(ctx, args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(b); err != nil {
				return err
			}
			if !changes {
				return nil
			}
			logs, err := a.store.ChangeLogs(ctx, b.ID)
			if err != nil {
				return err
			}
			return enc.Encode(logs)
		},
	}
	cmd.Flags().BoolVar(&changes, "changes", false, "wypisz też ślad zmian (change_log)")
	return cmd
}
