package postgres

import (
	"database/sql"
	"testing"

	"github.com/ledgerline-labs/ledgerline-go/internal/domain"
)

func TestDecodeMetadataEmpty(t *testing.T) {
	meta, err := decodeMetadata(nil)
	if err != nil {
		t.Fatalf("decodeMetadata() err=%v", err)
	}
	if meta == nil {
		t.Fatalf("decodeMetadata() returned nil map")
	}
}

func TestDecodeMetadataRoundTrip(t *testing.T) {
	raw, err := encodeMetadata(domain.Metadata{"book_value": float64(0)})
	if err != nil {
		t.Fatalf("encodeMetadata() err=%v", err)
	}
	meta, err := decodeMetadata(raw)
	if err != nil {
		t.Fatalf("decodeMetadata() err=%v", err)
	}
	if meta["book_value"] != float64(0) {
		t.Fatalf("decodeMetadata()=%v, want book_value=0", meta)
	}
}

func TestNullIfEmpty(t *testing.T) {
	if got := nullIfEmpty("  "); got.Valid {
		t.Fatalf("nullIfEmpty(blank)=%v, want invalid", got)
	}
	want := sql.NullString{String: "x", Valid: true}
	if got := nullIfEmpty(" x "); got != want {
		t.Fatalf("nullIfEmpty()=%v, want %v", got, want)
	}
}

func TestNilStoresAreSafe(t *testing.T) {
	if NewPipelineStore(nil) != nil {
		t.Fatalf("NewPipelineStore(nil) should be nil")
	}
	if NewEntityStateStore(nil) != nil {
		t.Fatalf("NewEntityStateStore(nil) should be nil")
	}
	if NewStateLogStore(nil) != nil {
		t.Fatalf("NewStateLogStore(nil) should be nil")
	}
}
