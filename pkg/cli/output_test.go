package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fatih/color"
)

var providersTable = Table{
	Headers: []string{"provider", "healthy"},
	Rows: [][]string{
		{"openai", "true"},
		{"azure-east", "false"},
	},
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"json", FormatJSON, false},
		{"csv", FormatCSV, false},
		{"junit", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTextFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TextFormatter{}).FormatTo(&buf, "test message"); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}
	if buf.String() != "test message\n" {
		t.Errorf("FormatTo() = %q", buf.String())
	}
}

func TestTextFormatter_Table(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TextFormatter{}).FormatTo(&buf, providersTable); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "provider    ") {
		t.Errorf("header not aligned: %q", lines[0])
	}
	if !strings.HasPrefix(lines[2], "azure-east  false") {
		t.Errorf("row = %q", lines[2])
	}
}

func TestJSONFormatter(t *testing.T) {
	tests := []struct {
		name   string
		data   any
		indent bool
		want   string
	}{
		{"string", "test", false, `"test"`},
		{"map indented", map[string]string{"key": "value"}, true, "{\n  \"key\": \"value\"\n}"},
		{"table", Table{Headers: []string{"a"}, Rows: [][]string{{"1"}}}, false, `[{"a":"1"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := (&JSONFormatter{Indent: tt.indent}).FormatTo(&buf, tt.data); err != nil {
				t.Fatalf("FormatTo() error = %v", err)
			}
			if got := strings.TrimSpace(buf.String()); got != tt.want {
				t.Errorf("FormatTo() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTable_MarshalJSON_ShortRow(t *testing.T) {
	data, err := json.Marshal(Table{Headers: []string{"a", "b"}, Rows: [][]string{{"1"}}})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `[{"a":"1"}]` {
		t.Errorf("Marshal() = %s", data)
	}
}

func TestCSVFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := (&CSVFormatter{}).FormatTo(&buf, &providersTable); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}
	want := "provider,healthy\nopenai,true\nazure-east,false\n"
	if buf.String() != want {
		t.Errorf("FormatTo() = %q, want %q", buf.String(), want)
	}

	if err := (&CSVFormatter{}).FormatTo(&buf, "not a table"); err == nil {
		t.Error("expected error for non-table data")
	}
}

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		format OutputFormat
		want   string
	}{
		{FormatText, "*cli.TextFormatter"},
		{FormatJSON, "*cli.JSONFormatter"},
		{FormatCSV, "*cli.CSVFormatter"},
		{"unknown", "*cli.TextFormatter"},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			if got := typeName(NewFormatter(tt.format)); got != tt.want {
				t.Errorf("NewFormatter() = %s, want %s", got, tt.want)
			}
		})
	}
}

func typeName(v any) string {
	switch v.(type) {
	case *TextFormatter:
		return "*cli.TextFormatter"
	case *JSONFormatter:
		return "*cli.JSONFormatter"
	case *CSVFormatter:
		return "*cli.CSVFormatter"
	}
	return "unknown"
}

func TestPrinter(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.Success("loaded %d providers", 2)
	p.Warn("no pricing for %s", "gpt-4o")
	p.Error("run failed")
	p.Info("run %s", "abc")

	want := "✓ loaded 2 providers\n! no pricing for gpt-4o\n✗ run failed\nrun abc\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}
