package storekit

import (
	"context"
	"strings"
	"testing"
)

func TestCalculateChecksumKnownVectors(t *testing.T) {
	tests := []struct {
		algorithm ChecksumAlgorithm
		input     string
		want      string
	}{
		{ChecksumMD5, "", "d41d8cd98f00b204e9800998ecf8427e"},
		{ChecksumSHA1, "", "da39a3ee5e6b4b0d3255bfef95601890afd80709"},
		{ChecksumSHA256, "", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{ChecksumSHA256, "hello world", "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"},
	}
	for _, tt := range tests {
		t.Run(string(tt.algorithm), func(t *testing.T) {
			got, err := CalculateChecksum(strings.NewReader(tt.input), tt.algorithm)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("checksum(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestCalculateChecksumUnsupported(t *testing.T) {
	_, err := CalculateChecksum(strings.NewReader("x"), ChecksumAlgorithm("rot13"))
	if !IsNotSupported(err) {
		t.Errorf("unsupported algorithm error = %v", err)
	}
}

func TestCalculateChecksumsSinglePass(t *testing.T) {
	algos := []ChecksumAlgorithm{ChecksumMD5, ChecksumSHA256, ChecksumXXHash, ChecksumCRC32}
	sums, err := CalculateChecksums(strings.NewReader("hello world"), algos)
	if err != nil {
		t.Fatal(err)
	}
	if len(sums) != len(algos) {
		t.Fatalf("got %d sums, want %d", len(sums), len(algos))
	}
	// Multi-pass result must match the single-algorithm path.
	for _, algo := range algos {
		single, err := CalculateChecksum(strings.NewReader("hello world"), algo)
		if err != nil {
			t.Fatal(err)
		}
		if sums[algo] != single {
			t.Errorf("%s: multi=%s single=%s", algo, sums[algo], single)
		}
	}
}

func TestVerifyChecksum(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	backend.files["a.txt"] = []byte("hello world")

	ok, err := VerifyChecksum(ctx, backend, "a.txt",
		"b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", ChecksumSHA256)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("checksum should verify")
	}

	ok, err = VerifyChecksum(ctx, backend, "a.txt", "deadbeef", ChecksumSHA256)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("wrong checksum should not verify")
	}
}
