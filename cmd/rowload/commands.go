package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/go-pkgz/stringutils"
	"github.com/hashicorp/go-multierror"

	"github.com/umputun/rowload/pkg/db"
	"github.com/umputun/rowload/pkg/inclause"
	"github.com/umputun/rowload/pkg/meta"
)

// runTarget connects to a single database and runs the active command on it
func runTarget(ctx context.Context, cmd string, opts options, tg target, w *syncWriter) (err error) {
	m, err := db.New(ctx, tg.opts)
	if err != nil {
		return err
	}
	defer func() {
		if e := m.Close(); e != nil {
			err = multierror.Append(err, e).ErrorOrNil()
		}
	}()

	switch cmd {
	case "query":
		return runQuery(ctx, m, opts.QueryCmd.PositionalArgs.SQL, opts.QueryCmd.Limit, tg.name, w)
	case "exec":
		script := opts.ExecCmd.PositionalArgs.Script
		if opts.ExecCmd.File {
			data, e := os.ReadFile(script) //nolint:gosec // script file from cli
			if e != nil {
				return fmt.Errorf("can't read script %s: %w", script, e)
			}
			script = string(data)
		}
		return runExec(ctx, m, script, tg.name, w)
	case "table":
		reg := meta.NewRegistry()
		if len(tg.stamps) > 0 {
			reg.StampColumns = tg.stamps
		}
		return runTable(ctx, reg, m, opts, tg.name, w)
	case "in":
		args := opts.InCmd.PositionalArgs
		return runIn(ctx, m, args.SQL, args.Column, parseValues(args.Values), tg.name, w)
	}
	return fmt.Errorf("unknown command %s", cmd)
}

// runQuery prints rows of the query, up to limit if positive
func runQuery(ctx context.Context, m *db.Manager, query string, limit int, name string, w *syncWriter) error {
	nav, err := m.ExecuteQuery(ctx, query)
	if err != nil {
		return err
	}
	it := db.NewRawIterator(nav)
	defer it.Close() //nolint:errcheck // read-only cursor

	w.Printf(name, "%s\n", color.New(color.FgGreen, color.Bold).Sprint(strings.Join(nav.Columns(), "\t")))
	count := 0
	for it.HasNext() {
		if limit > 0 && count >= limit {
			break
		}
		vals, err := it.Next()
		if err != nil {
			return err
		}
		w.Printf(name, "%s\n", formatRow(vals))
		count++
	}
	log.Printf("[INFO] %d rows printed from %s", count, name)
	return nil
}

// runExec runs statements of the script one by one, commits at the end or rolls back on the first error
func runExec(ctx context.Context, m *db.Manager, script, name string, w *syncWriter) error {
	stmts := splitStatements(script)
	if len(stmts) == 0 {
		return fmt.Errorf("no statements in script")
	}
	var total int64
	for i, stmt := range stmts {
		n, err := m.ExecuteUpdate(ctx, stmt)
		if err != nil {
			if rbErr := m.Rollback(); rbErr != nil {
				err = multierror.Append(err, rbErr)
			}
			return fmt.Errorf("statement %d failed: %w", i+1, err)
		}
		if n > 0 {
			total += n
		}
		log.Printf("[DEBUG] statement %d affected %d rows", i+1, n)
	}
	if err := m.Commit(); err != nil {
		return err
	}
	w.Printf(name, "%d statements executed, %d rows affected\n", len(stmts), total)
	return nil
}

// runTable prints table columns and keys, issues --next keys and validates fields passed as arguments
func runTable(ctx context.Context, reg *meta.Registry, m *db.Manager, opts options, name string, w *syncWriter) error {
	args := opts.TableCmd.PositionalArgs
	t, err := reg.Table(ctx, m, args.Name)
	if err != nil {
		return err
	}
	cols, err := t.Columns(ctx)
	if err != nil {
		return err
	}
	keys, err := t.PrimaryKeys(ctx)
	if err != nil {
		return err
	}
	keyNames := make([]string, len(keys))
	for i, k := range keys {
		keyNames[i] = k.Name
	}

	w.Printf(name, "table %s, keys [%s]\n", color.New(color.FgGreen, color.Bold).Sprint(t.Name()), strings.Join(keyNames, ", "))
	for _, c := range cols {
		null := "not null"
		if c.Nullable {
			null = "null"
		}
		w.Printf(name, "  %-24s %-16s %-8s size %d,%d %s\n", c.Name, c.TypeName, c.Type, c.Size, c.DecimalSize, null)
	}

	if n := opts.TableCmd.Next; n > 0 {
		issued := make([]any, 0, n)
		for range n {
			k, err := t.NextKey(ctx)
			if err != nil {
				return err
			}
			issued = append(issued, k)
		}
		w.Printf(name, "next keys: %s\n", strings.Join(stringutils.SliceToString(issued), ", "))
	}

	if len(args.Fields) > 0 {
		if err := t.ValidateFields(ctx, parseValues(args.Fields), opts.TableCmd.AutoStamp); err != nil {
			return err
		}
		w.Printf(name, "%d fields valid\n", len(args.Fields))
	}
	return nil
}

// runIn runs query with IN list split by max_in_clause and prints all rows
func runIn(ctx context.Context, m *db.Manager, query, column string, values []any, name string, w *syncWriter) error {
	series, err := inclause.Query(m, query, column, values)
	if err != nil {
		return err
	}
	defer series.Close() //nolint:errcheck // read-only cursors

	header, count := false, 0
	for series.HasNext() {
		nav, err := series.ExecuteNextQuery(ctx)
		if err != nil {
			return err
		}
		if !header {
			w.Printf(name, "%s\n", color.New(color.FgGreen, color.Bold).Sprint(strings.Join(nav.Columns(), "\t")))
			header = true
		}
		rows, err := db.NewRawIterator(nav).All()
		if err != nil {
			return err
		}
		for _, vals := range rows {
			w.Printf(name, "%s\n", formatRow(vals))
		}
		count += len(rows)
	}
	log.Printf("[INFO] %d rows from %d queries printed from %s", count, series.Len(), name)
	return nil
}

// parseValues converts cli arguments to int64 if possible, "null" to nil, string otherwise
func parseValues(args []string) []any {
	res := make([]any, len(args))
	for i, a := range args {
		if strings.EqualFold(a, "null") {
			res[i] = nil
			continue
		}
		if n, err := strconv.ParseInt(a, 10, 64); err == nil {
			res[i] = n
			continue
		}
		if f, err := strconv.ParseFloat(a, 64); err == nil {
			res[i] = f
			continue
		}
		res[i] = a
	}
	return res
}

func formatRow(vals []any) string {
	strs := make([]string, len(vals))
	for i, v := range vals {
		if v == nil {
			strs[i] = "NULL"
			continue
		}
		strs[i] = db.AsString(v)
	}
	return strings.Join(strs, "\t")
}

// splitStatements splits script on ';' outside of quotes, skipping blank statements
func splitStatements(script string) []string {
	var res []string
	var quote rune
	start := 0
	add := func(s string) {
		if !stringutils.IsBlank(s) {
			res = append(res, strings.TrimSpace(s))
		}
	}
	for i, r := range script {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"' || r == '`':
			quote = r
		case r == ';':
			add(script[start:i])
			start = i + 1
		}
	}
	add(script[start:])
	return res
}
