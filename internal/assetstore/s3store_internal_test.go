package assetstore

import (
	"testing"
	"time"
)

func TestObjectNameUsesPrefix(t *testing.T) {
	key := Key{SourceID: "/raw/a.arw", Kind: KindPreview}
	if got := objectName("", key); got != key.StorageName() {
		t.Fatalf("unexpected name %q", got)
	}
	if got := objectName("cache", key); got != "cache/"+key.StorageName() {
		t.Fatalf("unexpected prefixed name %q", got)
	}
}

func TestParseEndpoint(t *testing.T) {
	cases := []struct {
		in      string
		ssl     bool
		wantEP  string
		wantSSL bool
	}{
		{"localhost:9000", false, "localhost:9000", false},
		{"http://minio.local:9000", true, "minio.local:9000", false},
		{"https://s3.example.com", false, "s3.example.com", true},
	}
	for _, tc := range cases {
		ep, ssl, err := parseEndpoint(tc.in, tc.ssl)
		if err != nil {
			t.Fatalf("parseEndpoint(%q): %v", tc.in, err)
		}
		if ep != tc.wantEP || ssl != tc.wantSSL {
			t.Fatalf("parseEndpoint(%q) = %q %v, want %q %v", tc.in, ep, ssl, tc.wantEP, tc.wantSSL)
		}
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	key := Key{SourceID: "/raw/ä b.arw", Kind: KindThumbnail}
	asset := Asset{
		Fingerprint: Fingerprint{Size: 7, ModTimeUnixNano: -5, Checksum: "deadbeef"},
		GeneratedAt: time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC),
	}
	meta := encodeMetadata(key, asset)
	fp, generated, err := decodeMetadata(func(name string) string { return meta[name] })
	if err != nil {
		t.Fatalf("decodeMetadata: %v", err)
	}
	if !fp.Equal(asset.Fingerprint) || !generated.Equal(asset.GeneratedAt) {
		t.Fatalf("unexpected decode %+v %v", fp, generated)
	}
	if _, _, err := decodeMetadata(func(string) string { return "" }); err == nil {
		t.Fatal("expected error for missing fingerprint metadata")
	}
}
