// Package output is the terminal-facing side of the CLI: colored status
// lines for long-running commands and a format-switchable printer for
// commands that emit data (table, json, yaml, plain).
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

// Format selects how a Printer renders data.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatPlain Format = "plain"
)

// Printer renders data in one configured format.
type Printer struct {
	format Format
}

// NewPrinter creates a printer for format, falling back to table for
// anything unrecognized.
func NewPrinter(format string) *Printer {
	f := Format(strings.ToLower(format))
	switch f {
	case FormatTable, FormatJSON, FormatYAML, FormatPlain:
		return &Printer{format: f}
	default:
		return &Printer{format: FormatTable}
	}
}

// Print outputs data in the configured format.
func (p *Printer) Print(data interface{}) error {
	switch p.format {
	case FormatJSON:
		return p.printJSON(data)
	case FormatYAML:
		out, err := yaml.Marshal(data)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	case FormatPlain:
		return p.printPlain(data)
	default:
		return p.printTable(data)
	}
}

func (p *Printer) printJSON(data interface{}) error {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func (p *Printer) printPlain(data interface{}) error {
	switch v := data.(type) {
	case []string:
		for _, s := range v {
			fmt.Println(s)
		}
	case string:
		fmt.Println(v)
	default:
		fmt.Printf("%v\n", v)
	}
	return nil
}

// printTable handles the generic shapes: a plain list renders as a
// one-column table, a [][]string as header row plus data rows. Anything
// else falls back to JSON.
func (p *Printer) printTable(data interface{}) error {
	switch v := data.(type) {
	case []string:
		table := newTable()
		table.SetHeader([]string{"Value"})
		for _, s := range v {
			table.Append([]string{s})
		}
		table.Render()
	case [][]string:
		if len(v) == 0 {
			return nil
		}
		table := newTable()
		table.SetHeader(v[0])
		for _, row := range v[1:] {
			table.Append(row)
		}
		table.Render()
	default:
		return p.printJSON(data)
	}
	return nil
}

func newTable() *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	return table
}

// PrintTable prints rows under headers without going through a Printer.
func PrintTable(headers []string, rows [][]string) {
	table := newTable()
	table.SetHeader(headers)
	table.SetHeaderLine(true)
	for _, row := range rows {
		table.Append(row)
	}
	table.Render()
}

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	blue   = color.New(color.FgBlue).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// Success prints a success message.
func Success(format string, args ...interface{}) {
	fmt.Printf("%s %s\n", green("✓"), fmt.Sprintf(format, args...))
}

// Error prints an error message.
func Error(format string, args ...interface{}) {
	fmt.Printf("%s %s\n", red("✗"), fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func Warning(format string, args ...interface{}) {
	fmt.Printf("%s %s\n", yellow("⚠"), fmt.Sprintf(format, args...))
}

// Info prints an info message.
func Info(format string, args ...interface{}) {
	fmt.Printf("%s %s\n", blue("ℹ"), fmt.Sprintf(format, args...))
}

// Step prints a step message.
func Step(format string, args ...interface{}) {
	fmt.Printf("%s %s\n", cyan("→"), fmt.Sprintf(format, args...))
}

// Header prints a section header with an underline.
func Header(format string, args ...interface{}) {
	fmt.Printf("\n%s\n", bold(fmt.Sprintf(format, args...)))
	fmt.Println(strings.Repeat("─", 50))
}
