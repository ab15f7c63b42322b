// Package main is the recdb command-line front end. It translates flags
// into the structured operations the engine packages (schema, table, txn)
// consume directly; it is a harness for exercising the core end to end,
// not a SQL-like text grammar.
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RecDB/recdb/internal/catalog"
	"github.com/RecDB/recdb/internal/config"
	"github.com/RecDB/recdb/internal/schema"
	"github.com/RecDB/recdb/internal/table"
	"github.com/RecDB/recdb/internal/txn"
)

type rootFlags struct {
	configPath string
	root       string
	db         string
}

func main() {
	flags := &rootFlags{}
	rootCmd := &cobra.Command{
		Use:   "recdb",
		Short: "Single-node record storage engine",
	}
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "recdb.toml", "Path to recdb.toml")
	rootCmd.PersistentFlags().StringVar(&flags.root, "root", "", "Data root directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flags.db, "db", "", "Active database (overrides the saved selection)")

	rootCmd.AddCommand(
		createDBCmd(flags),
		useCmd(flags),
		createTableCmd(flags),
		createIndexCmd(flags),
		insertCmd(flags),
		selectAllCmd(flags),
		selectWhereCmd(flags),
		selectWhereExprCmd(flags),
		selectJoinCmd(flags),
		updateCmd(flags),
		deleteCmd(flags),
		txCmd(flags),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// session resolves a catalog.Session and the loaded configuration for the
// current invocation. The data root is --root, else recdb.toml's data_root.
// The database is --db, else the state file written by `recdb use`, else
// recdb.toml's default_database. Callers that need cfg.Engine.IntWidth/KeepBackups get
// them from the same load instead of reloading recdb.toml themselves.
func session(flags *rootFlags) (catalog.Session, *config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return catalog.Session{}, nil, err
	}

	root := flags.root
	if root == "" {
		root = cfg.Engine.DataRoot
	}

	db := flags.db
	if db == "" {
		db = readCurrentDB(root)
	}
	if db == "" {
		db = cfg.Engine.DefaultDB
	}
	if db == "" {
		return catalog.Session{}, nil, fmt.Errorf("no database selected: pass --db or run 'recdb use <db>'")
	}

	return catalog.Session{Root: root, Database: db}, cfg, nil
}

func currentDBFile(root string) string { return filepath.Join(root, ".current_db") }

func readCurrentDB(root string) string {
	b, err := os.ReadFile(currentDBFile(root))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func writeCurrentDB(root, name string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	return os.WriteFile(currentDBFile(root), []byte(name), 0o644)
}

func createDBCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "createdb <name>",
		Short: "Create a new, empty database",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			root := flags.root
			if root == "" {
				root = cfg.Engine.DataRoot
			}
			cat := catalog.New(catalog.Session{Root: root, Database: args[0]})
			if err := cat.CreateDatabase(); err != nil {
				return err
			}
			fmt.Printf("created database %q\n", args[0])
			return nil
		},
	}
}

func useCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "use <name>",
		Short: "Select the active database for subsequent commands",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			root := flags.root
			if root == "" {
				root = cfg.Engine.DataRoot
			}
			if err := writeCurrentDB(root, args[0]); err != nil {
				return err
			}
			fmt.Printf("using database %q\n", args[0])
			return nil
		},
	}
}

// columnSpec parses a --column value of the form
// "name:TYPE[:width][:flag,flag,...]". Recognized flags: PK, UNIQUE,
// NOT_NULL, INDEXED, FK=table.column. An INT column with no explicit width
// defaults to defaultIntWidth (recdb.toml's engine.default_int_width).
func columnSpec(raw string, defaultIntWidth int) (*schema.Column, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid --column %q: expected name:TYPE[:width][:flags]", raw)
	}
	col := &schema.Column{Name: parts[0]}

	switch strings.ToUpper(parts[1]) {
	case "INT":
		col.Type = schema.TypeInt
		col.Width = defaultIntWidth
	case "STRING":
		col.Type = schema.TypeString
	default:
		return nil, fmt.Errorf("invalid --column %q: unknown type %q", raw, parts[1])
	}

	rest := parts[2:]
	if len(rest) > 0 {
		if w, err := strconv.Atoi(rest[0]); err == nil {
			col.Width = w
			rest = rest[1:]
		}
	}
	if col.Type == schema.TypeString && col.Width == 0 {
		return nil, fmt.Errorf("invalid --column %q: STRING columns require a width", raw)
	}

	for _, flagGroup := range rest {
		for _, f := range strings.Split(flagGroup, ",") {
			switch {
			case f == "PK":
				col.PrimaryKey = true
			case f == "UNIQUE":
				col.Unique = true
			case f == "NOT_NULL":
				col.NotNull = true
			case f == "INDEXED":
				col.Indexed = true
			case strings.HasPrefix(f, "FK="):
				ref := strings.SplitN(strings.TrimPrefix(f, "FK="), ".", 2)
				if len(ref) != 2 {
					return nil, fmt.Errorf("invalid --column %q: FK must be table.column", raw)
				}
				col.ForeignKey = &schema.ForeignKey{RefTable: ref[0], RefColumn: ref[1]}
			case f == "":
			default:
				return nil, fmt.Errorf("invalid --column %q: unknown flag %q", raw, f)
			}
		}
	}
	return col, nil
}

func createTableCmd(flags *rootFlags) *cobra.Command {
	var columns []string
	cmd := &cobra.Command{
		Use:   "createtable <name>",
		Short: "Create a table from one or more --column specs",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			sess, cfg, err := session(flags)
			if err != nil {
				return err
			}
			sch := &schema.Table{Name: args[0]}
			for _, raw := range columns {
				col, err := columnSpec(raw, cfg.Engine.IntWidth)
				if err != nil {
					return err
				}
				sch.Cols = append(sch.Cols, col)
			}
			cat := catalog.New(sess)
			if _, err := cat.CreateTable(sch, table.Options{Out: os.Stdout}); err != nil {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&columns, "column", nil, "Column spec: name:TYPE[:width][:flag,flag,...]")
	return cmd
}

func createIndexCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "createindex <table> <column>",
		Short: "Build an index on a column",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			sess, _, err := session(flags)
			if err != nil {
				return err
			}
			tbl, err := catalog.New(sess).OpenTable(args[0], table.Options{Out: os.Stdout})
			if err != nil {
				return err
			}
			return tbl.CreateIndex(args[1])
		},
	}
}

func insertCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "insert <table> <value>...",
		Short: "Insert one row",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			sess, _, err := session(flags)
			if err != nil {
				return err
			}
			tbl, err := catalog.New(sess).OpenTable(args[0], table.Options{Out: os.Stdout})
			if err != nil {
				return err
			}
			return tbl.Insert(args[1:])
		},
	}
}

func printRows(rows [][]string) {
	for _, row := range rows {
		fmt.Println(strings.Join(row, " | "))
	}
	fmt.Printf("(%d rows)\n", len(rows))
}

func selectAllCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "select-all <table>",
		Short: "Print every row",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			sess, _, err := session(flags)
			if err != nil {
				return err
			}
			tbl, err := catalog.New(sess).OpenTable(args[0], table.Options{})
			if err != nil {
				return err
			}
			rows, err := tbl.SelectAll()
			if err != nil {
				return err
			}
			printRows(rows)
			return nil
		},
	}
}

func selectWhereCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "select-where <table> <column> <op> <value>",
		Short: "Filter rows by a single column/operator/value comparison",
		Args:  cobra.ExactArgs(4),
		RunE: func(_ *cobra.Command, args []string) error {
			sess, _, err := session(flags)
			if err != nil {
				return err
			}
			tbl, err := catalog.New(sess).OpenTable(args[0], table.Options{})
			if err != nil {
				return err
			}
			rows, err := tbl.SelectWhere(args[1], args[2], args[3])
			if err != nil {
				return err
			}
			printRows(rows)
			return nil
		},
	}
}

func selectWhereExprCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "select-where-expr <table> <predicate>",
		Short: "Filter rows with a boolean predicate",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			sess, _, err := session(flags)
			if err != nil {
				return err
			}
			tbl, err := catalog.New(sess).OpenTable(args[0], table.Options{})
			if err != nil {
				return err
			}
			rows, err := tbl.SelectWhereExpr(args[1])
			if err != nil {
				return err
			}
			printRows(rows)
			return nil
		},
	}
}

func selectJoinCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "select-join <table1> <table2> <col1> <col2>",
		Short: "Equi-join two tables on table1.col1 = table2.col2",
		Args:  cobra.ExactArgs(4),
		RunE: func(_ *cobra.Command, args []string) error {
			sess, _, err := session(flags)
			if err != nil {
				return err
			}
			cat := catalog.New(sess)
			t1, err := cat.OpenTable(args[0], table.Options{})
			if err != nil {
				return err
			}
			t2, err := cat.OpenTable(args[1], table.Options{})
			if err != nil {
				return err
			}
			rows, err := t1.SelectJoin(t2, args[2], args[3])
			if err != nil {
				return err
			}
			printRows(rows)
			return nil
		},
	}
}

func updateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "update <table> <column> <new-value> <predicate>",
		Short: "Update column to new-value on every row matching predicate",
		Args:  cobra.ExactArgs(4),
		RunE: func(_ *cobra.Command, args []string) error {
			sess, _, err := session(flags)
			if err != nil {
				return err
			}
			tbl, err := catalog.New(sess).OpenTable(args[0], table.Options{Out: os.Stdout})
			if err != nil {
				return err
			}
			_, err = tbl.Update(args[1], args[2], args[3])
			return err
		},
	}
}

func deleteCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <table> <predicate>",
		Short: "Delete every row matching predicate",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			sess, _, err := session(flags)
			if err != nil {
				return err
			}
			tbl, err := catalog.New(sess).OpenTable(args[0], table.Options{Out: os.Stdout})
			if err != nil {
				return err
			}
			_, err = tbl.DeleteWhere(args[1])
			return err
		},
	}
}

// txCmd runs a small scripted transaction: one BEGIN...COMMIT (or
// ...ROLLBACK) span per invocation, read as newline-separated statements
// from a file. Each Transaction lives only for the lifetime of one
// process, mirroring how the original engine's single-process REPL held
// its transaction state in memory for one session.
func txCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx run <script-file>",
		Short: "Run a scripted transaction (INSERT/UPDATE/DELETE/CHECKPOINT/COMMIT/ROLLBACK lines)",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			if args[0] != "run" {
				return fmt.Errorf("unknown tx subcommand %q, expected \"run\"", args[0])
			}
			sess, cfg, err := session(flags)
			if err != nil {
				return err
			}
			return runTxScript(sess, cfg.Engine.KeepBackups, args[1])
		},
	}
	return cmd
}

func runTxScript(sess catalog.Session, keepBackups bool, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("tx: open script %s: %w", path, err)
	}
	defer f.Close()

	tx := txn.New(sess, txn.Options{Out: os.Stdout, KeepBackups: keepBackups})
	if err := tx.Begin(); err != nil {
		return err
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := applyScriptLine(tx, line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func applyScriptLine(tx *txn.Transaction, line string) error {
	fields := strings.Fields(line)
	kind := strings.ToUpper(fields[0])

	switch kind {
	case "INSERT":
		if len(fields) < 3 {
			return fmt.Errorf("tx: INSERT requires a table and at least one value: %q", line)
		}
		return tx.AddInsert(fields[1], fields[2:])
	case "UPDATE":
		if len(fields) < 5 {
			return fmt.Errorf("tx: UPDATE requires table, column, new-value, WHERE ...: %q", line)
		}
		where := strings.Join(fields[4:], " ")
		return tx.AddUpdate(fields[1], fields[2], fields[3], where)
	case "DELETE":
		if len(fields) < 3 {
			return fmt.Errorf("tx: DELETE requires table, WHERE ...: %q", line)
		}
		where := strings.Join(fields[2:], " ")
		return tx.AddDelete(fields[1], where)
	case "CHECKPOINT":
		if len(fields) == 2 && strings.ToUpper(fields[1]) == "LIST" {
			for _, id := range tx.ListCheckpoints() {
				fmt.Println(id)
			}
			return nil
		}
		if len(fields) < 3 {
			return fmt.Errorf("tx: CHECKPOINT requires CREATE/ROLLBACK/COMMIT/LIST and, except LIST, an id: %q", line)
		}
		switch strings.ToUpper(fields[1]) {
		case "CREATE":
			return tx.CreateCheckpoint(fields[2])
		case "ROLLBACK":
			return tx.RollbackToCheckpoint(fields[2])
		case "COMMIT":
			return tx.CommitToCheckpoint(fields[2])
		default:
			return fmt.Errorf("tx: unknown CHECKPOINT subcommand %q", fields[1])
		}
	case "LIST-CHECKPOINTS":
		for _, id := range tx.ListCheckpoints() {
			fmt.Println(id)
		}
		return nil
	case "COMMIT":
		return tx.Commit()
	case "ROLLBACK":
		return tx.Rollback()
	default:
		return fmt.Errorf("tx: unknown statement %q", kind)
	}
}
