package object

import (
	"testing"

	"github.com/koslang/kosvm/pkg/value"
)

func TestSetOwnThenGetOwn(t *testing.T) {
	o := NewObject(value.Bad)
	o.SetOwn("x", value.NewSmallInt(7))

	v, ok := o.GetOwn("x")
	if !ok || value.GetSmallInt(v) != 7 {
		t.Fatalf("GetOwn(x) = %v, %v; want 7, true", v, ok)
	}
	if _, ok := o.GetOwn("y"); ok {
		t.Fatalf("GetOwn(y) unexpectedly found a value")
	}
}

func TestDeleteOwnRemovesProperty(t *testing.T) {
	o := NewObject(value.Bad)
	o.SetOwn("x", value.NewSmallInt(1))
	o.DeleteOwn("x")
	if _, ok := o.GetOwn("x"); ok {
		t.Fatalf("property survived DeleteOwn")
	}
}

func TestGetFollowsPrototypeChain(t *testing.T) {
	proto := NewObject(value.Bad)
	proto.SetOwn("shared", value.NewSmallInt(42))

	child := NewObject(value.NewHeapRef(proto))
	child.SetOwn("own", value.NewSmallInt(1))

	if _, ok := child.GetOwn("shared"); ok {
		t.Fatalf("GetOwn should not see inherited properties")
	}
	v, ok := Get(nil, child, "shared")
	if !ok || value.GetSmallInt(v) != 42 {
		t.Fatalf("Get(shared) = %v, %v; want 42, true", v, ok)
	}

	v, ok = Get(nil, child, "own")
	if !ok || value.GetSmallInt(v) != 1 {
		t.Fatalf("Get(own) = %v, %v; want 1, true", v, ok)
	}

	if _, ok := Get(nil, child, "missing"); ok {
		t.Fatalf("Get(missing) unexpectedly found a value")
	}
}

func TestHasShallowVersusDeep(t *testing.T) {
	proto := NewObject(value.Bad)
	proto.SetOwn("shared", value.NewSmallInt(1))
	child := NewObject(value.NewHeapRef(proto))

	if Has(child, "shared", false) {
		t.Fatalf("shallow Has should not see inherited properties")
	}
	if !Has(child, "shared", true) {
		t.Fatalf("deep Has should see inherited properties")
	}
}

func TestKeysReturnsOwnPropertiesOnly(t *testing.T) {
	proto := NewObject(value.Bad)
	proto.SetOwn("inherited", value.NewSmallInt(1))
	child := NewObject(value.NewHeapRef(proto))
	child.SetOwn("a", value.NewSmallInt(1))
	child.SetOwn("b", value.NewSmallInt(2))

	keys := child.Keys()
	if len(keys) != 2 {
		t.Fatalf("Keys() = %v, want exactly the 2 own properties", keys)
	}
	seen := map[string]bool{}
	for _, k := range keys {
		seen[k] = true
	}
	if !seen["a"] || !seen["b"] {
		t.Fatalf("Keys() = %v, missing expected own properties", keys)
	}
}

func TestSetOwnOverwritesExistingKey(t *testing.T) {
	o := NewObject(value.Bad)
	o.SetOwn("x", value.NewSmallInt(1))
	o.SetOwn("x", value.NewSmallInt(2))
	v, _ := o.GetOwn("x")
	if value.GetSmallInt(v) != 2 {
		t.Fatalf("GetOwn(x) = %d, want the overwritten value 2", value.GetSmallInt(v))
	}
}
