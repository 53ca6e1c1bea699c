// Command kdbtool is a minimal inspector over the db package's §6 API
// surface. It stands in for the SQL parser/REPL spec.md §1 places out of
// scope: callers type the create-table/insert/select operations directly
// instead of SQL text.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"

	"github.com/oliverhu/kdb/db"
	"github.com/oliverhu/kdb/page"
)

var cli struct {
	DB string `required:"" help:"Path to the database file." type:"path"`

	CreateTable createTableCmd `cmd:"" help:"Create a table."`
	Insert      insertCmd      `cmd:"" help:"Insert a row into a table."`
	Select      selectCmd      `cmd:"" help:"Select rows from a table."`
	Dump        dumpCmd        `cmd:"" help:"List tables and their size on disk."`
}

func main() {
	ctx := kong.Parse(&cli, kong.Name("kdbtool"),
		kong.Description("Inspect and drive a kdb database file directly."))
	ctx.FatalIfErrorf(ctx.Run())
}

type createTableCmd struct {
	Name    string `arg:"" help:"Table name."`
	Columns string `required:"" help:"Comma-separated name:TYPE[?] pairs; the first column is the primary key."`
	SQL     string `help:"CREATE TABLE text to store alongside the table, verbatim."`
}

func (c *createTableCmd) Run() error {
	schema, err := parseSchema(c.Columns)
	if err != nil {
		return err
	}
	return withDB(func(d *db.DB) error {
		sqlText := c.SQL
		if sqlText == "" {
			sqlText = fmt.Sprintf("CREATE TABLE %s(%s)", c.Name, c.Columns)
		}
		_, err := d.CreateTable(c.Name, schema, sqlText)
		return err
	})
}

type insertCmd struct {
	Table  string `arg:"" help:"Table name."`
	Values string `required:"" help:"Comma-separated values, in schema column order."`
}

func (c *insertCmd) Run() error {
	return withDB(func(d *db.DB) error {
		t, err := d.OpenTable(c.Table)
		if err != nil {
			return err
		}
		values, err := parseValues(t.Schema(), c.Values)
		if err != nil {
			return err
		}
		return d.Insert(t, values)
	})
}

type selectCmd struct {
	Table string  `arg:"" help:"Table name."`
	Key   *uint64 `help:"If set, select only the row with this primary key."`
}

func (c *selectCmd) Run() error {
	return withDB(func(d *db.DB) error {
		t, err := d.OpenTable(c.Table)
		if err != nil {
			return err
		}
		if c.Key != nil {
			row, found, err := d.SelectByPKey(t, *c.Key)
			if err != nil {
				return err
			}
			if !found {
				fmt.Println("(not found)")
				return nil
			}
			printRow(row)
			return nil
		}
		rows, err := d.SelectAll(t)
		if err != nil {
			return err
		}
		n := 0
		for rows.Next() {
			printRow(rows.Row())
			n++
		}
		if err := rows.Err(); err != nil {
			return err
		}
		fmt.Printf("(%d rows)\n", n)
		return nil
	})
}

type dumpCmd struct{}

func (c *dumpCmd) Run() error {
	return withDB(func(d *db.DB) error {
		fi, err := os.Stat(cli.DB)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s (%s)\n", cli.DB, humanize.Bytes(uint64(fi.Size())),
			humanize.Comma(fi.Size()/page.PageSize))
		for _, name := range d.TableNames() {
			t, err := d.OpenTable(name)
			if err != nil {
				return err
			}
			sqlText, err := d.TableSQL(name)
			if err != nil {
				return err
			}
			rows, err := d.SelectAll(t)
			if err != nil {
				return err
			}
			n := 0
			for rows.Next() {
				n++
			}
			if err := rows.Err(); err != nil {
				return err
			}
			fmt.Printf("  %s: %s rows\n    %s\n", name, humanize.Comma(int64(n)), sqlText)
		}
		return nil
	})
}

func withDB(fn func(*db.DB) error) error {
	d, err := db.Open(cli.DB, false)
	if err != nil {
		return err
	}
	defer d.Close()
	return fn(d)
}

func printRow(row db.Row) {
	parts := make([]string, len(row))
	for i, v := range row {
		if v == nil {
			parts[i] = "NULL"
		} else {
			parts[i] = fmt.Sprintf("%v", v)
		}
	}
	fmt.Println(joinWithPipe(parts))
}

func joinWithPipe(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " | "
		}
		out += p
	}
	return out
}
