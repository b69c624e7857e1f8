// Package report renders migration plans and apply results for people and for
// machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/stokaro/schemasync/migration/plantypes"
)

// Format selects the rendering.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat validates an output format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output %q", s)
	}
}

// Writer renders plans and results to an output stream.
type Writer struct {
	out    io.Writer
	format Format
	add    *color.Color
	drop   *color.Color
	change *color.Color
	warn   *color.Color
	title  cases.Caser
}

// New creates a report writer. Colors are only used for text output and only
// when colored is true.
func New(out io.Writer, format Format, colored bool) *Writer {
	w := &Writer{
		out:    out,
		format: format,
		add:    color.New(color.FgGreen),
		drop:   color.New(color.FgRed),
		change: color.New(color.FgYellow),
		warn:   color.New(color.FgMagenta, color.Bold),
		title:  cases.Title(language.English),
	}
	for _, c := range []*color.Color{w.add, w.drop, w.change, w.warn} {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return w
}

// Plan renders a migration plan.
func (w *Writer) Plan(plan *plantypes.MigrationPlan) error {
	if w.format == FormatJSON {
		return w.json(plan)
	}
	return w.planText(plan)
}

// appliedReport is the JSON shape of an apply result.
type appliedReport struct {
	Applied []string `json:"applied"`
	Error   string   `json:"error,omitempty"`
}

// Applied renders the result lines of an apply run. A non-nil err is reported
// after the lines that were applied before it.
func (w *Writer) Applied(lines []string, err error) error {
	if w.format == FormatJSON {
		r := appliedReport{Applied: lines}
		if r.Applied == nil {
			r.Applied = []string{}
		}
		if err != nil {
			r.Error = err.Error()
		}
		return w.json(r)
	}

	if len(lines) == 0 && err == nil {
		_, werr := fmt.Fprintln(w.out, "Database is up to date.")
		return werr
	}
	for _, line := range lines {
		if _, werr := w.add.Fprintf(w.out, "✓ %s\n", line); werr != nil {
			return werr
		}
	}
	if err != nil {
		_, werr := w.drop.Fprintf(w.out, "✗ %v\n", err)
		return werr
	}
	return nil
}

func (w *Writer) json(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (w *Writer) planText(plan *plantypes.MigrationPlan) error {
	p := &printer{w: w}

	if plan.SettingsTable.Create {
		p.line(0, w.add, "+ create settings table %s", plan.SettingsTable.Name)
	}
	for _, e := range plan.Entries {
		if !e.HasChanges() && len(e.ExtraneousChildTables) == 0 {
			continue
		}
		p.heading(0, "entry type", e.Type, e.Table.Name)
		p.table(1, e.Table)
		p.columns(1, e.Columns)
		for _, child := range e.Children {
			if !child.HasChanges() {
				continue
			}
			p.heading(1, "child type", child.Type, child.Table.Name)
			p.table(2, child.Table)
			p.columns(2, child.Columns)
		}
		for _, extra := range e.ExtraneousChildTables {
			p.line(1, w.warn, "! table %s is no longer declared and is left in place", extra)
		}
	}
	for _, s := range plan.Settings {
		if !s.HasChanges() {
			continue
		}
		p.heading(0, "settings type", s.Type, plan.SettingsTable.Name)
		for _, f := range s.Fields.Create {
			p.line(1, w.add, "+ %s = %s", f.Field, jsonText(f.Value))
		}
		for _, f := range s.Fields.Modify {
			p.line(1, w.change, "~ %s: %s -> %s", f.Field, jsonText(f.Value.From), jsonText(f.Value.To))
		}
		for _, f := range s.Fields.Drop {
			p.line(1, w.drop, "- %s (row %s)", f.Field, f.ID)
		}
	}

	if !plan.HasChanges() {
		p.line(0, nil, "No changes.")
		return p.err
	}
	p.summary(plan.Summary)
	return p.err
}

// printer accumulates the first write error so rendering code stays linear.
type printer struct {
	w   *Writer
	err error
}

func (p *printer) line(indent int, c *color.Color, format string, args ...any) {
	if p.err != nil {
		return
	}
	text := strings.Repeat("  ", indent) + fmt.Sprintf(format, args...) + "\n"
	if c == nil {
		_, p.err = io.WriteString(p.w.out, text)
		return
	}
	_, p.err = c.Fprint(p.w.out, text)
}

func (p *printer) heading(indent int, kind, name, table string) {
	p.line(indent, nil, "%s %s (table %s)", p.w.title.String(kind), name, table)
}

func (p *printer) table(indent int, t plantypes.TablePlan) {
	if t.Create {
		p.line(indent, p.w.add, "+ create table %s with %s id", t.Name, t.IDMode.OrDefault())
	}
	if d := t.UpdateDescription; d != nil {
		p.line(indent, p.w.change, "~ description: %q -> %q", d.From, d.To)
	}
}

func (p *printer) columns(indent int, cols plantypes.ColumnsPlan) {
	for _, c := range cols.Create {
		detail := c.Column.Type.String()
		if !c.Column.IsNullable {
			detail += ", not null"
		}
		if c.Column.Unique {
			detail += ", unique"
		}
		if c.ForeignKey != nil {
			detail += fmt.Sprintf(", references %s.%s", c.ForeignKey.ForeignTableName, c.ForeignKey.ForeignColumnName)
		}
		p.line(indent, p.w.add, "+ column %s (%s)", c.ColumnName, detail)
	}
	for _, m := range cols.Modify {
		p.line(indent, p.w.change, "~ column %s: %s", m.ColumnName, strings.Join(modifyDetails(m), "; "))
	}
	for _, d := range cols.Drop {
		p.line(indent, p.w.drop, "- column %s", d.ColumnName)
	}
}

func modifyDetails(m plantypes.ColumnModify) []string {
	var details []string
	if fk := m.ForeignKey; fk != nil && fk.Drop != "" {
		details = append(details, "drop foreign key "+fk.Drop)
	}
	if t := m.DataType; t != nil {
		details = append(details, fmt.Sprintf("type %s -> %s", t.From, t.To))
	}
	if n := m.Nullable; n != nil {
		details = append(details, fmt.Sprintf("nullable %t -> %t", n.From, n.To))
	}
	if u := m.Unique; u != nil {
		details = append(details, fmt.Sprintf("unique %t -> %t", u.From, u.To))
	}
	if fk := m.ForeignKey; fk != nil && fk.Create != nil {
		details = append(details, fmt.Sprintf("add foreign key %s -> %s.%s", fk.Create.ConstraintName, fk.Create.ForeignTableName, fk.Create.ForeignColumnName))
	}
	return details
}

func (p *printer) summary(s plantypes.Summary) {
	parts := []string{}
	add := func(n int, what string) {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, what))
		}
	}
	add(s.TablesCreated, "tables created")
	add(s.DescriptionsUpdated, "descriptions updated")
	add(s.ColumnsAdded, "columns added")
	add(s.ColumnsModified, "columns modified")
	add(s.ColumnsDropped, "columns dropped")
	add(s.SettingsFieldsAdded, "settings added")
	add(s.SettingsFieldsModified, "settings updated")
	add(s.SettingsFieldsDropped, "settings removed")
	if len(parts) == 0 {
		parts = append(parts, "settings table only")
	}
	p.line(0, nil, "%s: %s", p.w.title.String("summary"), strings.Join(parts, ", "))
}

func jsonText(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
