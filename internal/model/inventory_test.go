package model

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestInventoryTypeValid(t *testing.T) {
	tests := []struct {
		typ  InventoryType
		want bool
		name string
	}{
		{InventoryReusable, true, "reusable"},
		{InventoryConsumable, true, "consumable"},
		{0, false, "unknown"},
		{3, false, "unknown"},
	}
	for _, tt := range tests {
		if got := tt.typ.Valid(); got != tt.want {
			t.Errorf("InventoryType(%d).Valid() = %v, want %v", tt.typ, got, tt.want)
		}
		if got := tt.typ.String(); got != tt.name {
			t.Errorf("InventoryType(%d).String() = %q, want %q", tt.typ, got, tt.name)
		}
	}
}

func TestDecimalInBounds(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"10", true},
		{"10.50", true},
		{"-3.25", true},
		{"0.00000001", true},
		{"1e15", true},
		{"0.000000001", false},
		{"1e16", false},
		{"1e-300000000", false},
		{"1e300000000", false},
		{"1000000000000000000000000000000000000000", false},
	}
	for _, tt := range tests {
		if got := DecimalInBounds(decimal.RequireFromString(tt.in)); got != tt.want {
			t.Errorf("DecimalInBounds(%s) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLineTotal(t *testing.T) {
	got := LineTotal(decimal.NewFromInt(10), decimal.NewFromInt(5))
	if !got.Equal(decimal.NewFromInt(50)) {
		t.Errorf("LineTotal(10, 5) = %s, want 50", got)
	}

	got = LineTotal(decimal.RequireFromString("2.5"), decimal.RequireFromString("0.1"))
	if !got.Equal(decimal.RequireFromString("0.25")) {
		t.Errorf("LineTotal(2.5, 0.1) = %s, want 0.25", got)
	}
}

func TestMediaKindFor(t *testing.T) {
	tests := map[string]string{
		"image/jpeg":      MediaPhoto,
		"video/mp4":       MediaVideo,
		"audio/webm":      MediaAudio,
		"application/pdf": MediaDocument,
		"":                MediaDocument,
	}
	for mime, want := range tests {
		if got := MediaKindFor(mime); got != want {
			t.Errorf("MediaKindFor(%q) = %q, want %q", mime, got, want)
		}
	}
}
