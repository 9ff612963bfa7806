package s3

import (
	"errors"
	"net"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/gobeaver/storekit"
)

func TestNewRequiresBucket(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"valid", Options{Bucket: "data"}, false},
		{"empty bucket", Options{}, true},
		{"whitespace bucket", Options{Bucket: "   "}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%+v) error = %v, wantErr %v", tt.opts, err, tt.wantErr)
			}
		})
	}
}

func TestNewDoesNotConnect(t *testing.T) {
	// Construction with unreachable endpoints must succeed; the client
	// is built on first use.
	a, err := New(Options{
		Bucket:   "data",
		Endpoint: "http://127.0.0.1:1",
		Region:   "us-east-1",
	})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	if a.client != nil {
		t.Error("client built eagerly")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want func(error) bool
	}{
		{"no such key", &types.NoSuchKey{}, storekit.IsNotFound},
		{"no such bucket", &types.NoSuchBucket{}, storekit.IsNotFound},
		{"head not found", &types.NotFound{}, storekit.IsNotFound},
		{"api 404", &smithy.GenericAPIError{Code: "NotFound"}, storekit.IsNotFound},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, storekit.IsPermission},
		{"forbidden", &smithy.GenericAPIError{Code: "403"}, storekit.IsPermission},
		{"dns failure", &net.DNSError{Err: "no such host", IsNotFound: true}, storekit.IsUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if !tt.want(got) {
				t.Errorf("classify(%v) = %v, wrong kind", tt.err, got)
			}
		})
	}
}

func TestClassifyPassesThroughUnknown(t *testing.T) {
	sentinel := errors.New("something else")
	if got := classify(sentinel); !errors.Is(got, sentinel) {
		t.Errorf("classify rewrote an unknown error: %v", got)
	}
}

func TestToKey(t *testing.T) {
	a, err := New(Options{Bucket: "data"})
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		native string
		want   string
	}{
		{"s3://data/reports/q1.csv", "reports/q1.csv"},
		{"data/reports/q1.csv", "reports/q1.csv"},
		{"reports/q1.csv", "reports/q1.csv"},
		{"/reports/q1.csv", "reports/q1.csv"},
	}
	for _, tt := range tests {
		if got := a.ToKey(tt.native); got != tt.want {
			t.Errorf("ToKey(%q) = %q, want %q", tt.native, got, tt.want)
		}
	}
}

func TestObjectInfoSkipsFolderMarkers(t *testing.T) {
	key := "reports/"
	if _, ok := objectInfo(types.Object{Key: &key}); ok {
		t.Error("folder marker object produced a FileInfo")
	}

	real := "reports/q1.csv"
	size := int64(10)
	etag := `"abc123"`
	info, ok := objectInfo(types.Object{Key: &real, Size: &size, ETag: &etag})
	if !ok {
		t.Fatal("real object rejected")
	}
	if info.Path.String() != "reports/q1.csv" || info.Size != 10 || info.Checksum != "abc123" {
		t.Errorf("objectInfo = %+v", info)
	}
}

func TestCapabilities(t *testing.T) {
	a, err := New(Options{Bucket: "data"})
	if err != nil {
		t.Fatal(err)
	}
	caps := a.Capabilities()
	for _, c := range storekit.AllCapabilities().List() {
		if !caps.Supports(c) {
			t.Errorf("s3 adapter missing %s", c)
		}
	}
}
