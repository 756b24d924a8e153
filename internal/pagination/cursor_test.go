package pagination

import (
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cursor := Encode("TXN-000042")
	id, err := Decode(cursor)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if id != "TXN-000042" {
		t.Fatalf("expected TXN-000042, got %q", id)
	}
}

func TestDecodeEmpty(t *testing.T) {
	id, err := Decode("")
	if err != nil {
		t.Fatalf("empty cursor should not error: %v", err)
	}
	if id != "" {
		t.Fatalf("expected empty ID, got %q", id)
	}
}

func TestDecodeInvalid(t *testing.T) {
	for _, bad := range []string{"not-base64!!", "bm8tc2VwYXJhdG9y", "djJ8VFhOLTE="} {
		if _, err := Decode(bad); err == nil {
			t.Errorf("Decode(%q) should fail", bad)
		}
	}
}

func TestPage(t *testing.T) {
	items := []string{"TXN-000001", "TXN-000002", "TXN-000003", "TXN-000004", "TXN-000005"}
	id := func(s string) string { return s }

	page, next, more := Page(items, 2, "", id)
	if len(page) != 2 || page[0] != "TXN-000001" {
		t.Fatalf("unexpected first page: %v", page)
	}
	if !more || next == "" {
		t.Fatal("expected more pages")
	}

	afterID, err := Decode(next)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	page, next, more = Page(items, 2, afterID, id)
	if len(page) != 2 || page[0] != "TXN-000003" {
		t.Fatalf("unexpected second page: %v", page)
	}
	if !more {
		t.Fatal("expected a third page")
	}

	afterID, _ = Decode(next)
	page, next, more = Page(items, 2, afterID, id)
	if len(page) != 1 || page[0] != "TXN-000005" {
		t.Fatalf("unexpected last page: %v", page)
	}
	if more || next != "" {
		t.Fatal("last page should not report more")
	}
}

func TestPageStaleCursorRestarts(t *testing.T) {
	items := []string{"TXN-000001", "TXN-000002"}
	id := func(s string) string { return s }

	page, _, _ := Page(items, 10, "TXN-999999", id)
	if len(page) != 2 || page[0] != "TXN-000001" {
		t.Fatalf("stale cursor should restart from the top, got %v", page)
	}
}

func TestPageZeroLimitReturnsAll(t *testing.T) {
	items := []string{"a", "b", "c"}
	id := func(s string) string { return s }

	page, next, more := Page(items, 0, "", id)
	if len(page) != 3 {
		t.Fatalf("expected all items, got %v", page)
	}
	if more || next != "" {
		t.Fatal("full page should not report more")
	}
}

func TestPageEmpty(t *testing.T) {
	page, next, more := Page([]string{}, 5, "", func(s string) string { return s })
	if len(page) != 0 || more || next != "" {
		t.Fatal("empty input should yield an empty page")
	}
}
