package patch_test

import (
	"testing"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/patch"
)

type greeter func(string) string

func hello(s string) string { return "hello " + s }
func hi(s string) string    { return "hi " + s }
func hey(s string) string   { return "hey " + s }

func TestPatchAttributeKeepsFirstOriginal(t *testing.T) {
	r := patch.NewRegistry()
	c := patch.NewClass("Greeter", nil).Define("greet", greeter(hello))

	r.PatchAttribute(c, "greet", greeter(hi))
	r.PatchAttribute(c, "greet", greeter(hey))

	cur, ok := patch.Lookup[greeter](c, "greet")
	if !ok || cur("x") != "hey x" {
		t.Fatalf("current attribute not the latest replacement")
	}
	orig, ok := patch.OriginalOf[greeter](r, c, "greet")
	if !ok || orig("x") != "hello x" {
		t.Fatalf("original not preserved across repeated patches")
	}
}

func TestOriginalFallsBackToAncestor(t *testing.T) {
	r := patch.NewRegistry()
	base := patch.NewClass("Base", nil).Define("greet", greeter(hello))
	child := patch.NewClass("Child", base)

	r.PatchAttribute(base, "greet", greeter(hi))

	orig, ok := patch.OriginalOf[greeter](r, child, "greet")
	if !ok || orig("y") != "hello y" {
		t.Fatal("child lookup should find the ancestor's original")
	}
	cur, _ := patch.Lookup[greeter](child, "greet")
	if cur("y") != "hi y" {
		t.Fatal("child should inherit the patched attribute")
	}
}

func TestPatchClassOnlyPatchesDifferences(t *testing.T) {
	r := patch.NewRegistry()
	base := patch.NewClass("Base", nil).
		Define("greet", greeter(hello)).
		Define("wave", greeter(hi))
	sub := patch.NewClass("Sub", base).
		Define("greet", greeter(hey)).
		Define("wave", greeter(hi))

	r.PatchClass(sub)

	if !r.IsPatched(base, "greet") {
		t.Error("greet differs and should be patched")
	}
	if r.IsPatched(base, "wave") {
		t.Error("wave is identical and should not be patched")
	}
	cur, _ := patch.Lookup[greeter](base, "greet")
	if cur("z") != "hey z" {
		t.Error("base.greet not replaced")
	}
}

func prefixer(prefix string) greeter {
	return func(s string) string { return prefix + s }
}

func TestPatchClassPatchesClosuresWithOtherCaptures(t *testing.T) {
	r := patch.NewRegistry()
	base := patch.NewClass("Base", nil).Define("greet", prefixer("hello "))
	sub := patch.NewClass("Sub", base).Define("greet", prefixer("howdy "))

	r.PatchClass(sub)

	if !r.IsPatched(base, "greet") {
		t.Fatal("closure with a different capture was skipped")
	}
	cur, _ := patch.Lookup[greeter](base, "greet")
	if cur("z") != "howdy z" {
		t.Errorf("base.greet = %q", cur("z"))
	}
	orig, _ := patch.OriginalOf[greeter](r, base, "greet")
	if orig("z") != "hello z" {
		t.Errorf("original = %q", orig("z"))
	}
}

func TestPatchNeverPanics(t *testing.T) {
	r := patch.NewRegistry()
	r.PatchAttribute(nil, "greet", greeter(hi))
	r.PatchClass(nil)
	r.PatchClass(patch.NewClass("Orphan", nil))
	if _, ok := r.Original(nil, "greet"); ok {
		t.Fatal("nil class has no originals")
	}
}

func TestPatchNewAttributeRecordsNilOriginal(t *testing.T) {
	r := patch.NewRegistry()
	c := patch.NewClass("Empty", nil)
	r.PatchAttribute(c, "greet", greeter(hi))

	if !r.IsPatched(c, "greet") {
		t.Fatal("attribute should be recorded as patched")
	}
	if _, ok := patch.OriginalOf[greeter](r, c, "greet"); ok {
		t.Fatal("no original existed")
	}
}
