package uniform

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewTable(t *testing.T) {
	tbl, err := NewTable([]Descriptor{
		{Name: "gamma", Value: 0.25, Default: 1},
		{Name: "gain", Value: 2, Default: 2},
	})
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	want := []string{"gamma", "gain"}
	if diff := cmp.Diff(want, tbl.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
	if tbl.Version() != 1 {
		t.Errorf("Version() = %d, want 1", tbl.Version())
	}
}

func TestSetDuplicateName(t *testing.T) {
	tbl, err := NewTable([]Descriptor{{Name: "a", Value: 1}})
	if err != nil {
		t.Fatal(err)
	}
	before := tbl.Descriptors()

	err = tbl.Set([]Descriptor{{Name: "x"}, {Name: "y"}, {Name: "x"}})
	var dup *DuplicateNameError
	if !errors.As(err, &dup) {
		t.Fatalf("Set() error = %v, want *DuplicateNameError", err)
	}
	if dup.Name != "x" || dup.First != 0 || dup.Index != 2 {
		t.Errorf("DuplicateNameError = %+v", dup)
	}
	if diff := cmp.Diff(before, tbl.Descriptors()); diff != "" {
		t.Errorf("failed Set modified the table (-want +got):\n%s", diff)
	}
	if tbl.Version() != 1 {
		t.Errorf("failed Set bumped Version to %d", tbl.Version())
	}
}

func TestSetDuplicateAfterNormalization(t *testing.T) {
	tbl, _ := NewTable(nil)
	// "é" precomposed vs "e" + combining acute.
	err := tbl.Set([]Descriptor{{Name: "caf\u00e9"}, {Name: "cafe\u0301"}})
	var dup *DuplicateNameError
	if !errors.As(err, &dup) {
		t.Fatalf("Set() error = %v, want *DuplicateNameError", err)
	}
}

func TestSetEmptyName(t *testing.T) {
	tbl, _ := NewTable(nil)
	if err := tbl.Set([]Descriptor{{Name: ""}}); !errors.Is(err, ErrEmptyName) {
		t.Errorf("Set() error = %v, want ErrEmptyName", err)
	}
}

func TestSetValue(t *testing.T) {
	tbl, _ := NewTable([]Descriptor{{Name: "gamma", Value: 0.25, Default: 1}})
	v0 := tbl.Version()

	if err := tbl.SetValue("gamma", 0.5); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if got, ok := tbl.Value("gamma"); !ok || got != 0.5 {
		t.Errorf("Value(gamma) = %v, %v; want 0.5, true", got, ok)
	}
	if tbl.Version() != v0 {
		t.Errorf("SetValue changed Version: %d -> %d", v0, tbl.Version())
	}

	if err := tbl.Reset("gamma"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if got, _ := tbl.Value("gamma"); got != 1 {
		t.Errorf("after Reset Value(gamma) = %v, want 1", got)
	}
}

func TestSetValueUnknown(t *testing.T) {
	tbl, _ := NewTable([]Descriptor{{Name: "gamma"}})
	tests := []struct {
		name string
		op   func() error
	}{
		{"SetValue", func() error { return tbl.SetValue("gain", 1) }},
		{"Reset", func() error { return tbl.Reset("gain") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var unk *UnknownUniformError
			if err := tt.op(); !errors.As(err, &unk) || unk.Name != "gain" {
				t.Errorf("error = %v, want *UnknownUniformError{gain}", err)
			}
		})
	}
}

func TestGather(t *testing.T) {
	tbl, _ := NewTable([]Descriptor{
		{Name: "a", Value: 1},
		{Name: "b", Value: 2},
	})
	got := tbl.Gather(nil, []string{"b", "missing", "a"})
	want := []float32{2, 0, 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Gather mismatch (-want +got):\n%s", diff)
	}
}

func TestConcurrentValueAndSet(t *testing.T) {
	tbl, _ := NewTable([]Descriptor{{Name: "a"}})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = tbl.SetValue("a", float32(i))
		}(i)
		go func() {
			defer wg.Done()
			_ = tbl.Set([]Descriptor{{Name: "a"}, {Name: "b"}})
		}()
	}
	wg.Wait()
	if tbl.Len() != 2 {
		t.Errorf("Len() = %d, want 2", tbl.Len())
	}
}
