package annot

import (
	"encoding/json"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		cell string
		want Value
	}{
		{name: "empty cell", cell: "", want: Null()},
		{name: "NA marker", cell: "NA", want: Null()},
		{name: "python none", cell: "None", want: Null()},
		{name: "bool true", cell: "true", want: Bool(true)},
		{name: "bool capitalized", cell: "False", want: Bool(false)},
		{name: "int", cell: "42", want: Int(42)},
		{name: "negative int", cell: "-7", want: Int(-7)},
		{name: "float", cell: "3.25", want: Float(3.25)},
		{name: "scientific", cell: "1e3", want: Float(1000)},
		{name: "string", cell: "cortex", want: String("cortex")},
		{name: "mixed token", cell: "day14", want: String("day14")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.cell)
			if !got.Equal(tt.want) {
				t.Errorf("Parse(%q) = %s, want %s", tt.cell, got.GoString(), tt.want.GoString())
			}
		})
	}
}

func TestValueJSONRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		json string
	}{
		{name: "null", v: Null(), json: "null"},
		{name: "int", v: Int(64), json: "64"},
		{name: "float", v: Float(0.5), json: "0.5"},
		{name: "string", v: String("hippocampus"), json: `"hippocampus"`},
		{name: "bool", v: Bool(true), json: "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.v)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(data) != tt.json {
				t.Errorf("Marshal() = %s, want %s", data, tt.json)
			}

			var got Value
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if !got.Equal(tt.v) {
				t.Errorf("round trip = %s, want %s", got.GoString(), tt.v.GoString())
			}
		})
	}
}

func TestValueKeyStability(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Null(), "null"},
		{Int(12), "i:12"},
		{String("batch_a"), "s:batch_a"},
		{Bool(false), "b:0"},
	}

	for _, tt := range tests {
		if got := tt.v.Key(); got != tt.want {
			t.Errorf("Key(%s) = %q, want %q", tt.v.GoString(), got, tt.want)
		}
	}

	// Float keys encode the bit pattern, so equal floats agree and
	// distinct floats differ.
	if Float(1.5).Key() != Float(1.5).Key() {
		t.Error("equal float values produced different keys")
	}
	if Float(1.5).Key() == Float(2.5).Key() {
		t.Error("distinct float values produced equal keys")
	}
}

func TestValueAccessors(t *testing.T) {
	if _, ok := String("x").AsInt64(); ok {
		t.Error("AsInt64 on string should fail")
	}
	if f, ok := Int(3).AsFloat64(); !ok || f != 3.0 {
		t.Errorf("AsFloat64 on int = %v, %v", f, ok)
	}
	if s, ok := String("x").AsString(); !ok || s != "x" {
		t.Errorf("AsString = %q, %v", s, ok)
	}
	if !Null().IsNull() {
		t.Error("Null().IsNull() = false")
	}
}
