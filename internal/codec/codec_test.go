package codec

import (
	"bytes"
	"strings"
	"testing"
)

type sample struct {
	Name  string            `json:"name"`
	Size  int64             `json:"size"`
	Attrs map[string]string `json:"attrs"`
}

func TestParseFormat(t *testing.T) {
	for _, f := range Formats {
		got, err := ParseFormat(string(f))
		if err != nil || got != f {
			t.Errorf("ParseFormat(%q) = %q, %v", f, got, err)
		}
	}
	if _, err := ParseFormat("yaml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestJSONIsIndented(t *testing.T) {
	data, err := Marshal(JSON, sample{Name: "a", Size: 1})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "\n  \"name\": \"a\"") || !strings.HasSuffix(string(data), "}\n") {
		t.Errorf("json = %q", data)
	}
}

func TestCanonicalSortsKeys(t *testing.T) {
	data, err := Marshal(Canonical, sample{Name: "a", Size: 2, Attrs: map[string]string{"z": "1", "b": "2"}})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"attrs":{"b":"2","z":"1"},"name":"a","size":2}`
	if string(data) != want {
		t.Errorf("canonical = %s, want %s", data, want)
	}
}

func TestCBORRoundTripAndDeterminism(t *testing.T) {
	v := sample{Name: "a", Size: 1 << 40, Attrs: map[string]string{"k": "v", "a": "b"}}
	first, err := Marshal(CBOR, v)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Marshal(CBOR, v)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Error("CBOR output not deterministic")
	}

	var got sample
	if err := UnmarshalCBOR(first, &got); err != nil {
		t.Fatal(err)
	}
	if got.Name != "a" || got.Size != 1<<40 || got.Attrs["a"] != "b" {
		t.Errorf("decoded = %+v", got)
	}
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, Canonical, map[string]int{"b": 1, "a": 2}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != `{"a":2,"b":1}` {
		t.Errorf("written = %s", buf.String())
	}
}
