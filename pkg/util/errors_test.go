package util

import (
	"errors"
	"strings"
	"testing"
)

func TestParseErrorFormat(t *testing.T) {
	e := NewSchemaError("etc/netplan/01.yaml", 3, 7, "unknown key '%s'", "dchp4")
	e.Excerpt = "      dchp4: true"
	msg := e.Error()
	if !strings.HasPrefix(msg, "etc/netplan/01.yaml:3:7: unknown key 'dchp4'") {
		t.Errorf("unexpected message: %q", msg)
	}
	lines := strings.Split(msg, "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), msg)
	}
	if lines[2] != "      ^" {
		t.Errorf("caret line = %q", lines[2])
	}
	if !errors.Is(e, ErrSchema) {
		t.Error("schema error should unwrap to ErrSchema")
	}
}

func TestSemanticError(t *testing.T) {
	e := NewSemanticError("eth0", "PSK length must be between %d and %d characters", 8, 63)
	if e.Error() != "eth0: PSK length must be between 8 and 63 characters" {
		t.Errorf("unexpected message: %q", e.Error())
	}
	if !errors.Is(e, ErrValidation) {
		t.Error("semantic error should unwrap to ErrValidation")
	}
	if !errors.Is(NewUnsupportedError("t0", "nope"), ErrUnsupported) {
		t.Error("unsupported error should unwrap to ErrUnsupported")
	}
}

func TestValidationBuilder(t *testing.T) {
	v := &ValidationBuilder{}
	if v.Build() != nil {
		t.Error("empty builder should build nil")
	}
	v.Add(true, "should not appear")
	v.Add(false, "first")
	v.AddErrorf("second %d", 2)
	err := v.Build()
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "first") || !strings.Contains(msg, "second 2") {
		t.Errorf("unexpected message: %q", msg)
	}
	if strings.Contains(msg, "should not appear") {
		t.Errorf("true condition leaked into errors: %q", msg)
	}
	if !errors.Is(err, ErrValidation) {
		t.Error("builder error should unwrap to ErrValidation")
	}
}

func TestValidationBuilderMerge(t *testing.T) {
	inner := (&ValidationBuilder{}).AddError("a").AddError("b").Build()
	v := &ValidationBuilder{}
	v.Merge(inner)
	v.Merge(nil)
	v.Merge(errors.New("c"))
	err := v.Build().(*ValidationError)
	if len(err.Errors) != 3 {
		t.Errorf("expected 3 merged errors, got %v", err.Errors)
	}
}
