package watermark

import "testing"

func TestDecodeSelections(t *testing.T) {
	tests := []struct {
		name      string
		blob      string
		wantLen   int
		wantValid []bool
	}{
		{"bare array", `[{"x":10,"y":10,"width":50,"height":20}]`, 1, []bool{true}},
		{"envelope", `{"watermarks":[{"x":1,"y":2,"width":3,"height":4},{"x":5,"y":6,"width":7,"height":8}]}`, 2, []bool{true, true}},
		{"envelope null", `{"watermarks":null}`, 0, nil},
		{"numeric strings", `[{"x":"10","y":" 4.5 ","width":"50","height":"20"}]`, 1, []bool{true}},
		{"unparseable field", `[{"x":"left","y":0,"width":10,"height":10},{"x":1,"y":1,"width":2,"height":2}]`, 2, []bool{false, true}},
		{"null field", `[{"x":null,"y":0,"width":10,"height":10}]`, 1, []bool{false}},
		{"non-object item", `[42, {"x":1,"y":1,"width":2,"height":2}]`, 2, []bool{false, true}},
		{"unknown envelope", `{"regions":[{"x":1}]}`, 0, nil},
		{"malformed json", `[{"x":1,`, 0, nil},
		{"scalar", `"hello"`, 0, nil},
		{"empty", ``, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeSelections([]byte(tt.blob))
			if len(got) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(got), tt.wantLen)
			}
			for i, want := range tt.wantValid {
				if got[i].Valid() != want {
					t.Errorf("region %d Valid() = %v, want %v", i, got[i].Valid(), want)
				}
			}
		})
	}
}

func TestRegion_MissingFieldsDefaultToZero(t *testing.T) {
	regions := DecodeSelections([]byte(`[{"width":30,"height":40}]`))
	if len(regions) != 1 {
		t.Fatalf("len = %d, want 1", len(regions))
	}
	r := regions[0]
	if !r.Valid() || r.X != 0 || r.Y != 0 || r.Width != 30 || r.Height != 40 {
		t.Errorf("region = %+v", r)
	}
}

func TestRegion_TimestampIsInert(t *testing.T) {
	withTS := DecodeSelections([]byte(`[{"x":1,"y":1,"width":10,"height":10,"timestamp":12.5}]`))
	withoutTS := DecodeSelections([]byte(`[{"x":1,"y":1,"width":10,"height":10}]`))

	if withTS[0].Timestamp == nil || *withTS[0].Timestamp != 12.5 {
		t.Errorf("timestamp not preserved: %+v", withTS[0])
	}

	a, _ := BuildFilterChain(withTS)
	b, _ := BuildFilterChain(withoutTS)
	if a != b {
		t.Errorf("timestamp changed the filter chain: %q vs %q", a, b)
	}
}

func TestSplitSelections(t *testing.T) {
	tests := []struct {
		name   string
		blob   string
		want   []string
		wantOK bool
	}{
		{"bare array keeps raw items", `[{"x":1}, {"x":"bad"}]`, []string{`{"x":1}`, `{"x":"bad"}`}, true},
		{"watermarks envelope", `{"watermarks":[{"x":2}]}`, []string{`{"x":2}`}, true},
		{"envelope null", `{"watermarks":null}`, []string{}, true},
		{"selections key is not an envelope", `{"selections":[{"x":2}]}`, nil, false},
		{"envelope not an array", `{"watermarks":{"x":2}}`, nil, false},
		{"number", `7`, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := splitSelections([]byte(tt.blob))
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("items = %s, want %v", got, tt.want)
			}
			for i, item := range got {
				if string(item) != tt.want[i] {
					t.Errorf("item %d = %s, want %s", i, item, tt.want[i])
				}
			}
		})
	}
}
