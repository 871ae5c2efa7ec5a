package engine

import "testing"

func TestCatalogOrderedLargestFirst(t *testing.T) {
	for i := 1; i < len(Catalog); i++ {
		if Catalog[i].ResidentSize >= Catalog[i-1].ResidentSize {
			t.Errorf("catalog entry %d (%s) is not smaller than its predecessor", i, Catalog[i].Name)
		}
	}
}

func TestFindModel(t *testing.T) {
	for _, spec := range Catalog {
		got, ok := FindModel(spec.Name)
		if !ok || got.Name != spec.Name {
			t.Errorf("FindModel(%q) = %v, %v", spec.Name, got.Name, ok)
		}
	}
	if _, ok := FindModel("gpt-17"); ok {
		t.Error("FindModel matched an unknown name")
	}
}

func TestSmallestResidentSize(t *testing.T) {
	want := Catalog[len(Catalog)-1].ResidentSize
	if got := SmallestResidentSize(); got != want {
		t.Errorf("SmallestResidentSize = %d, want %d", got, want)
	}
}
