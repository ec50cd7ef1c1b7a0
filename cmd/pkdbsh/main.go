// pkdbsh is an interactive shell for browsing and editing a pakdb file.
//
// Usage:
//
//	pkdbsh <db-file>   Open (creating if absent) and start the REPL
//
// Commands:
//
//	tables                          List tables
//	use <table>                     Select the active table
//	columns                         List the active table's columns
//	addtable <name>                 Create a table
//	addcol <name> <int|bool|string> Add a column to the active table
//	create                          Create an object, prints its key
//	set <key> <col> <value>         Write a cell
//	get <key> <col>                 Read a cell
//	rm <key>                        Remove an object
//	find <col> <op> <value>         Find first object matching (op: eq|ne|lt|le|gt|ge)
//	count <col> <op> <value>        Count objects matching
//	len                             Row count of the active table
//	help                            Show this help
//	exit / quit / q                 Exit
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/peterh/liner"

	"github.com/pakdb/pakdb/pkg/pakdb"
	"github.com/pakdb/pakdb/pkg/query"
	"github.com/pakdb/pakdb/pkg/schema"
	"github.com/pakdb/pakdb/pkg/txn"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: pkdbsh <db-file>")
		return fmt.Errorf("missing db file path")
	}

	db, err := pakdb.Open(os.Args[1], pakdb.Options{})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	repl := &REPL{db: db, path: os.Args[1]}
	return repl.Run()
}

// REPL is the interactive command loop for one open database. It keeps only
// the active table's name, not a *schema.Table - a table resolved against
// one transaction's Group snapshot must never be reused against a later
// transaction, so every command re-resolves activeName against whichever
// read or write Group it is currently working with.
type REPL struct {
	db         *pakdb.DB
	path       string
	activeName string
	liner      *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".pkdbsh_history")
}

func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("pkdbsh - pakdb shell (%s)\n", r.path)
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		prompt := "pkdbsh> "
		if r.activeName != "" {
			prompt = fmt.Sprintf("pkdbsh[%s]> ", r.activeName)
		}

		line, err := r.liner.Prompt(prompt)
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nBye!")
				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			r.saveHistory()
			return nil
		case "help", "?":
			r.printHelp()
		case "tables":
			r.cmdTables()
		case "use":
			r.cmdUse(args)
		case "columns", "cols":
			r.cmdColumns()
		case "addtable":
			r.cmdAddTable(args)
		case "addcol":
			r.cmdAddColumn(args)
		case "create":
			r.cmdCreate()
		case "set":
			r.cmdSet(args)
		case "get":
			r.cmdGet(args)
		case "rm", "delete":
			r.cmdRemove(args)
		case "find":
			r.cmdFind(args)
		case "count":
			r.cmdCount(args)
		case "len":
			r.cmdLen()
		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()
	return nil
}

func (r *REPL) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			r.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (r *REPL) completer(line string) []string {
	commands := []string{
		"tables", "use", "columns", "cols", "addtable", "addcol",
		"create", "set", "get", "rm", "delete", "find", "count", "len",
		"help", "exit", "quit", "q",
	}

	var out []string
	lower := strings.ToLower(line)
	for _, c := range commands {
		if strings.HasPrefix(c, lower) {
			out = append(out, c)
		}
	}

	return out
}

func (r *REPL) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  tables                          List tables")
	fmt.Println("  use <table>                     Select the active table")
	fmt.Println("  columns                         List the active table's columns")
	fmt.Println("  addtable <name>                 Create a table")
	fmt.Println("  addcol <name> <int|bool|string> Add a column")
	fmt.Println("  create                          Create an object, prints its key")
	fmt.Println("  set <key> <col> <value>         Write a cell")
	fmt.Println("  get <key> <col>                 Read a cell")
	fmt.Println("  rm <key>                        Remove an object")
	fmt.Println("  find <col> <op> <value>         op: eq|ne|lt|le|gt|ge")
	fmt.Println("  count <col> <op> <value>")
	fmt.Println("  len                             Row count")
	fmt.Println("  help                            Show this help")
	fmt.Println("  exit / quit / q                 Exit")
}

// readGroup begins a read transaction, fetches its Group snapshot, and
// returns it along with the transaction to release once the caller is done
// resolving tables/columns out of it. Tables and columns are plain in-memory
// values once resolved, so callers may keep using them after releasing tx.
func (r *REPL) readGroup() (*schema.Group, *txn.Transaction, error) {
	tx, err := r.db.BeginRead()
	if err != nil {
		return nil, nil, err
	}

	group, err := r.db.Group(tx)
	if err != nil {
		tx.Release()
		return nil, nil, err
	}

	return group, tx, nil
}

// currentTable resolves activeName against the database's latest committed
// Group, for read-only commands.
func (r *REPL) currentTable() (*schema.Table, error) {
	if r.activeName == "" {
		return nil, fmt.Errorf("no active table; use 'use <table>' first")
	}

	group, tx, err := r.readGroup()
	if err != nil {
		return nil, err
	}
	defer tx.Release()

	return group.GetTableByName(r.activeName)
}

// activeTableForWrite resolves activeName against tx's Group - the private
// mutable clone a write transaction mutates - so AddColumn/CreateObject/
// SetInt and friends land on the snapshot this same tx will commit.
func (r *REPL) activeTableForWrite(tx *txn.Transaction) (*schema.Table, error) {
	if r.activeName == "" {
		return nil, fmt.Errorf("no active table; use 'use <table>' first")
	}

	group, err := r.db.Group(tx)
	if err != nil {
		return nil, err
	}

	return group.GetTableByName(r.activeName)
}

func (r *REPL) cmdTables() {
	group, tx, err := r.readGroup()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer tx.Release()

	keys := group.TableKeys()
	if len(keys) == 0 {
		fmt.Println("(no tables)")
		return
	}

	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		tbl, err := group.GetTable(k)
		if err != nil {
			continue
		}
		rows = append(rows, []string{tbl.Name(), strconv.Itoa(tbl.RowCount())})
	}

	printTable([]string{"table", "rows"}, rows)
}

func (r *REPL) cmdUse(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: use <table>")
		return
	}

	group, tx, err := r.readGroup()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer tx.Release()

	tbl, err := group.GetTableByName(args[0])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	r.activeName = tbl.Name()
	fmt.Printf("OK: using %s\n", tbl.Name())
}

func (r *REPL) requireActive() (*schema.Table, bool) {
	tbl, err := r.currentTable()
	if err != nil {
		fmt.Println(err)
		return nil, false
	}

	return tbl, true
}

func (r *REPL) cmdColumns() {
	tbl, ok := r.requireActive()
	if !ok {
		return
	}

	rows := make([][]string, 0)
	for _, c := range tbl.Columns() {
		rows = append(rows, []string{c.Name, kindName(c.Kind)})
	}

	printTable([]string{"column", "kind"}, rows)
}

func kindName(k schema.ColumnKind) string {
	switch k {
	case schema.Int:
		return "int"
	case schema.Bool:
		return "bool"
	case schema.String:
		return "string"
	case schema.Link:
		return "link"
	case schema.Embedded:
		return "embedded"
	case schema.Backlink:
		return "backlink"
	default:
		return "unknown"
	}
}

func (r *REPL) cmdAddTable(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: addtable <name>")
		return
	}

	tx, err := r.db.BeginWrite()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer tx.Release()

	group, err := r.db.Group(tx)
	if err != nil {
		_ = r.db.Rollback(tx)
		fmt.Printf("Error: %v\n", err)
		return
	}

	tbl, err := group.AddTable(tx, args[0], schema.TableOptions{})
	if err != nil {
		_ = r.db.Rollback(tx)
		fmt.Printf("Error: %v\n", err)
		return
	}

	if err := r.db.Commit(tx); err != nil {
		fmt.Printf("Error committing: %v\n", err)
		return
	}

	r.activeName = tbl.Name()
	fmt.Printf("OK: created table %q\n", tbl.Name())
}

func (r *REPL) cmdAddColumn(args []string) {
	if r.activeName == "" {
		fmt.Println("No active table; use 'use <table>' first")
		return
	}
	if len(args) < 2 {
		fmt.Println("Usage: addcol <name> <int|bool|string>")
		return
	}

	var kind schema.ColumnKind
	switch strings.ToLower(args[1]) {
	case "int":
		kind = schema.Int
	case "bool":
		kind = schema.Bool
	case "string":
		kind = schema.String
	default:
		fmt.Printf("Unknown column kind: %s\n", args[1])
		return
	}

	tx, err := r.db.BeginWrite()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer tx.Release()

	tbl, err := r.activeTableForWrite(tx)
	if err != nil {
		_ = r.db.Rollback(tx)
		fmt.Printf("Error: %v\n", err)
		return
	}

	if _, err := tbl.AddColumn(tx, args[0], kind); err != nil {
		_ = r.db.Rollback(tx)
		fmt.Printf("Error: %v\n", err)
		return
	}

	if err := r.db.Commit(tx); err != nil {
		fmt.Printf("Error committing: %v\n", err)
		return
	}

	fmt.Printf("OK: added column %q\n", args[0])
}

func (r *REPL) cmdCreate() {
	if r.activeName == "" {
		fmt.Println("No active table; use 'use <table>' first")
		return
	}

	tx, err := r.db.BeginWrite()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer tx.Release()

	tbl, err := r.activeTableForWrite(tx)
	if err != nil {
		_ = r.db.Rollback(tx)
		fmt.Printf("Error: %v\n", err)
		return
	}

	key, err := tbl.CreateObject(tx)
	if err != nil {
		_ = r.db.Rollback(tx)
		fmt.Printf("Error: %v\n", err)
		return
	}

	if err := r.db.Commit(tx); err != nil {
		fmt.Printf("Error committing: %v\n", err)
		return
	}

	fmt.Printf("OK: created object %d\n", key)
}

func (r *REPL) resolveColumn(tbl *schema.Table, name string) (*schema.Column, error) {
	return tbl.ColumnByName(name)
}

func (r *REPL) cmdSet(args []string) {
	if r.activeName == "" {
		fmt.Println("No active table; use 'use <table>' first")
		return
	}
	if len(args) < 3 {
		fmt.Println("Usage: set <key> <col> <value>")
		return
	}

	key, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		fmt.Printf("Error parsing key: %v\n", err)
		return
	}

	tx, err := r.db.BeginWrite()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer tx.Release()

	tbl, err := r.activeTableForWrite(tx)
	if err != nil {
		_ = r.db.Rollback(tx)
		fmt.Printf("Error: %v\n", err)
		return
	}

	col, err := r.resolveColumn(tbl, args[1])
	if err != nil {
		_ = r.db.Rollback(tx)
		fmt.Printf("Error: %v\n", err)
		return
	}

	obj, err := tbl.GetObject(schema.ObjKey(key))
	if err != nil {
		_ = r.db.Rollback(tx)
		fmt.Printf("Error: %v\n", err)
		return
	}

	switch col.Kind {
	case schema.String:
		err = obj.SetString(tx, col.Key, strings.Join(args[2:], " "))
	default:
		var v int64
		v, err = strconv.ParseInt(args[2], 10, 64)
		if err == nil {
			err = obj.SetInt(tx, col.Key, v)
		}
	}

	if err != nil {
		_ = r.db.Rollback(tx)
		fmt.Printf("Error: %v\n", err)
		return
	}

	if err := r.db.Commit(tx); err != nil {
		fmt.Printf("Error committing: %v\n", err)
		return
	}

	fmt.Println("OK")
}

func (r *REPL) cmdGet(args []string) {
	tbl, ok := r.requireActive()
	if !ok {
		return
	}
	if len(args) < 2 {
		fmt.Println("Usage: get <key> <col>")
		return
	}

	key, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		fmt.Printf("Error parsing key: %v\n", err)
		return
	}

	col, err := r.resolveColumn(tbl, args[1])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	obj, err := tbl.GetObject(schema.ObjKey(key))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	if col.Kind == schema.String {
		v, err := obj.GetString(col.Key)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Println(v)
		return
	}

	v, err := obj.GetInt(col.Key)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println(v)
}

func (r *REPL) cmdRemove(args []string) {
	if r.activeName == "" {
		fmt.Println("No active table; use 'use <table>' first")
		return
	}
	if len(args) < 1 {
		fmt.Println("Usage: rm <key>")
		return
	}

	key, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		fmt.Printf("Error parsing key: %v\n", err)
		return
	}

	tx, err := r.db.BeginWrite()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer tx.Release()

	tbl, err := r.activeTableForWrite(tx)
	if err != nil {
		_ = r.db.Rollback(tx)
		fmt.Printf("Error: %v\n", err)
		return
	}

	if err := tbl.RemoveObject(tx, schema.ObjKey(key)); err != nil {
		_ = r.db.Rollback(tx)
		fmt.Printf("Error: %v\n", err)
		return
	}

	if err := r.db.Commit(tx); err != nil {
		fmt.Printf("Error committing: %v\n", err)
		return
	}

	fmt.Println("OK: removed")
}

var condByName = map[string]query.Cond{
	"eq": query.Eq, "ne": query.NotEq,
	"lt": query.Less, "le": query.LessEq,
	"gt": query.Greater, "ge": query.GreaterEq,
}

func (r *REPL) parseFilter(tbl *schema.Table, args []string) (*schema.Column, query.Cond, int64, bool) {
	if len(args) < 3 {
		fmt.Println("Usage: <col> <op> <value>  (op: eq|ne|lt|le|gt|ge)")
		return nil, 0, 0, false
	}

	col, err := r.resolveColumn(tbl, args[0])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return nil, 0, 0, false
	}

	cond, ok := condByName[strings.ToLower(args[1])]
	if !ok {
		fmt.Printf("Unknown operator: %s\n", args[1])
		return nil, 0, 0, false
	}

	v, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		fmt.Printf("Error parsing value: %v\n", err)
		return nil, 0, 0, false
	}

	return col, cond, v, true
}

func (r *REPL) cmdFind(args []string) {
	tbl, ok := r.requireActive()
	if !ok {
		return
	}

	col, cond, v, ok := r.parseFilter(tbl, args)
	if !ok {
		return
	}

	key, found, err := query.On(tbl).
		Where(query.Compare(cond, query.Column(col.Key), query.Value(v))).
		FindFirst()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if !found {
		fmt.Println("(no match)")
		return
	}

	fmt.Printf("%d\n", key)
}

func (r *REPL) cmdCount(args []string) {
	tbl, ok := r.requireActive()
	if !ok {
		return
	}

	col, cond, v, ok := r.parseFilter(tbl, args)
	if !ok {
		return
	}

	n, err := query.On(tbl).
		Where(query.Compare(cond, query.Column(col.Key), query.Value(v))).
		Count()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Println(n)
}

func (r *REPL) cmdLen() {
	tbl, ok := r.requireActive()
	if !ok {
		return
	}

	fmt.Println(tbl.RowCount())
}

// printTable renders rows as a left-aligned, space-padded table, measuring
// column widths by display width (not byte length) so multi-byte table or
// column names still line up.
func printTable(header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	printRow(header, widths)
	for _, row := range rows {
		printRow(row, widths)
	}
}

func printRow(cells []string, widths []int) {
	var b strings.Builder
	for i, cell := range cells {
		b.WriteString(runewidth.FillRight(cell, widths[i]))
		if i < len(cells)-1 {
			b.WriteString("  ")
		}
	}
	fmt.Println(b.String())
}
