package formhydrate

import (
	"encoding/json"
	"testing"
)

func TestLooseIntUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{"number", `7`, 7, false},
		{"string number", `"7"`, 7, false},
		{"string with spaces", `" 42 "`, 42, false},
		{"float truncates", `7.9`, 7, false},
		{"null", `null`, 0, true},
		{"empty string", `""`, 0, true},
		{"word", `"seven"`, 0, true},
		{"bool", `true`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n looseInt
			err := json.Unmarshal([]byte(tt.input), &n)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && int64(n) != tt.want {
				t.Errorf("value = %d, want %d", int64(n), tt.want)
			}
		})
	}
}

func TestLooseBoolUnmarshal(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{`true`, true},
		{`false`, false},
		{`1`, true},
		{`0`, false},
		{`null`, false},
		{`"1"`, true},
		{`"0"`, false},
		{`"true"`, true},
		{`"yes"`, true},
		{`"on"`, true},
		{`""`, false},
		{`"no"`, false},
		{`2`, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var b looseBool
			if err := json.Unmarshal([]byte(tt.input), &b); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if bool(b) != tt.want {
				t.Errorf("value = %v, want %v", bool(b), tt.want)
			}
		})
	}
}

func TestNormalizeFields(t *testing.T) {
	items := []json.RawMessage{
		json.RawMessage(`{"id": "101", "field_key": "email", "type": "email", "name": "Email", "required": "1", "default_value": "a@b.c"}`),
		json.RawMessage(`{"id": 102, "key": "msg", "type": "textarea", "required": false, "field_options": {"max": 500}}`),
	}

	fields := NormalizeFields(items)
	if len(fields) != 2 {
		t.Fatalf("len = %d, want 2", len(fields))
	}

	first := fields[0]
	if first.ID != 101 || first.Key != "email" || first.Type != "email" || !first.Required {
		t.Errorf("first field normalized wrong: %+v", first)
	}
	if first.Default != "a@b.c" {
		t.Errorf("Default = %v", first.Default)
	}

	second := fields[1]
	if second.ID != 102 {
		t.Errorf("second.ID = %d, want 102", second.ID)
	}
	// key is the fallback when field_key is absent.
	if second.Key != "msg" {
		t.Errorf("second.Key = %q, want msg", second.Key)
	}
	if second.Required {
		t.Error("second.Required = true, want false")
	}
	if second.Config == nil {
		t.Error("second.Config lost")
	}
}

func TestNormalizeFieldsKeepsRawOnBadItem(t *testing.T) {
	items := []json.RawMessage{json.RawMessage(`"just a string"`)}

	fields := NormalizeFields(items)
	if len(fields) != 1 {
		t.Fatalf("len = %d, want 1", len(fields))
	}
	if string(fields[0].Raw) != `"just a string"` {
		t.Errorf("Raw = %s", fields[0].Raw)
	}
	if fields[0].ID != 0 || fields[0].Key != "" {
		t.Errorf("expected zero normalized fields for a non-object item: %+v", fields[0])
	}
}

func TestDefaultEndpoints(t *testing.T) {
	e := DefaultEndpoints()
	if e.IDLookup != "custom/v1/form-id/%s" {
		t.Errorf("IDLookup = %q", e.IDLookup)
	}
	if e.Metadata != "frm/v2/forms/%d" {
		t.Errorf("Metadata = %q", e.Metadata)
	}
	if e.Fields != "frm/v2/forms/%d/fields" {
		t.Errorf("Fields = %q", e.Fields)
	}
}
