// Package s3 implements the storekit Backend on an S3-compatible
// object store using aws-sdk-go-v2.
//
// Folders are virtual: a folder exists exactly while at least one
// object lives under its prefix, and empty folders vanish. Writes are
// single PUTs, which S3 already applies atomically, so WriteAtomic is
// plain Write.
//
// The client is created lazily on first use; constructing the adapter
// never reaches the network.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/gobeaver/storekit"
)

const backendName = "s3"

// deleteBatchSize is the DeleteObjects API limit.
const deleteBatchSize = 1000

// Options configures the S3 adapter.
type Options struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
}

// Adapter provides an S3 implementation of storekit.Backend.
type Adapter struct {
	opts Options

	mu     sync.Mutex
	client *awss3.Client
}

var _ storekit.Backend = (*Adapter)(nil)

// New validates opts and returns an adapter. The S3 client is not
// built until the first operation.
func New(opts Options) (*Adapter, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, fmt.Errorf("s3 backend requires a non-empty 'bucket' option")
	}
	return &Adapter{opts: opts}, nil
}

// Name implements storekit.Backend
func (a *Adapter) Name() string { return backendName }

// Capabilities implements storekit.Backend
func (a *Adapter) Capabilities() storekit.CapabilitySet {
	return storekit.AllCapabilities()
}

func (a *Adapter) s3Client(ctx context.Context) (*awss3.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil {
		return a.client, nil
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if a.opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(a.opts.Region))
	}
	if a.opts.AccessKeyID != "" && a.opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(a.opts.AccessKeyID, a.opts.SecretAccessKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, &storekit.Error{
			Op:      "connect",
			Backend: backendName,
			Err:     fmt.Errorf("%w: %v", storekit.ErrUnavailable, err),
		}
	}

	a.client = awss3.NewFromConfig(cfg, func(o *awss3.Options) {
		if a.opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(a.opts.Endpoint)
		}
		o.UsePathStyle = a.opts.ForcePathStyle
	})
	return a.client, nil
}

func (a *Adapter) wrap(op, path string, err error) error {
	return &storekit.Error{Op: op, Path: path, Backend: backendName, Err: classify(err)}
}

// classify translates AWS SDK errors into the storekit taxonomy.
func classify(err error) error {
	var nsk *types.NoSuchKey
	var nsb *types.NoSuchBucket
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nsb) || errors.As(err, &nf) {
		return fmt.Errorf("%w: %v", storekit.ErrNotFound, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound", "404":
			return fmt.Errorf("%w: %v", storekit.ErrNotFound, err)
		case "AccessDenied", "Forbidden", "403":
			return fmt.Errorf("%w: %v", storekit.ErrPermission, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", storekit.ErrUnavailable, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%w: %v", storekit.ErrUnavailable, err)
	}

	return err
}

func folderPrefix(path string) string {
	if path == "" {
		return ""
	}
	return path + "/"
}

// Exists implements storekit.Backend
func (a *Adapter) Exists(ctx context.Context, path string) (bool, error) {
	isFile, err := a.IsFile(ctx, path)
	if err != nil {
		return false, err
	}
	if isFile {
		return true, nil
	}
	return a.IsFolder(ctx, path)
}

// IsFile implements storekit.Backend
func (a *Adapter) IsFile(ctx context.Context, path string) (bool, error) {
	client, err := a.s3Client(ctx)
	if err != nil {
		return false, err
	}
	_, err = client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(a.opts.Bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		wrapped := a.wrap("is_file", path, err)
		if storekit.IsNotFound(wrapped) {
			return false, nil
		}
		return false, wrapped
	}
	return true, nil
}

// IsFolder implements storekit.Backend. A folder exists while at
// least one object lives under its prefix.
func (a *Adapter) IsFolder(ctx context.Context, path string) (bool, error) {
	client, err := a.s3Client(ctx)
	if err != nil {
		return false, err
	}
	out, err := client.ListObjectsV2(ctx, &awss3.ListObjectsV2Input{
		Bucket:  aws.String(a.opts.Bucket),
		Prefix:  aws.String(folderPrefix(path)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, a.wrap("is_folder", path, err)
	}
	return len(out.Contents) > 0, nil
}

// Read implements storekit.Backend
func (a *Adapter) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	client, err := a.s3Client(ctx)
	if err != nil {
		return nil, err
	}
	out, err := client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(a.opts.Bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return nil, a.wrap("read", path, err)
	}
	return out.Body, nil
}

// ReadBytes implements storekit.Backend
func (a *Adapter) ReadBytes(ctx context.Context, path string) ([]byte, error) {
	rc, err := a.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, a.wrap("read", path, err)
	}
	return data, nil
}

// Write implements storekit.Backend
func (a *Adapter) Write(ctx context.Context, path string, content io.Reader, opts ...storekit.WriteOption) error {
	client, err := a.s3Client(ctx)
	if err != nil {
		return err
	}
	o := storekit.ApplyWriteOptions(opts)
	if !o.Overwrite {
		exists, err := a.IsFile(ctx, path)
		if err != nil {
			return err
		}
		if exists {
			return a.wrap("write", path, fmt.Errorf("%w: %s", storekit.ErrAlreadyExists, path))
		}
	}

	if content == nil {
		content = bytes.NewReader(nil)
	}
	input := &awss3.PutObjectInput{
		Bucket: aws.String(a.opts.Bucket),
		Key:    aws.String(path),
		Body:   content,
	}
	if o.ContentType != "" {
		input.ContentType = aws.String(o.ContentType)
	}
	if len(o.Metadata) > 0 {
		input.Metadata = o.Metadata
	}
	if _, err := client.PutObject(ctx, input); err != nil {
		return a.wrap("write", path, err)
	}
	return nil
}

// WriteAtomic implements storekit.Backend. A single PUT is already
// atomic on S3: readers see the old object or the new one, never a
// partial body.
func (a *Adapter) WriteAtomic(ctx context.Context, path string, content io.Reader, opts ...storekit.WriteOption) error {
	return a.Write(ctx, path, content, opts...)
}

// Delete implements storekit.Backend
func (a *Adapter) Delete(ctx context.Context, path string, missingOK bool) error {
	client, err := a.s3Client(ctx)
	if err != nil {
		return err
	}
	exists, err := a.IsFile(ctx, path)
	if err != nil {
		return err
	}
	if !exists {
		if missingOK {
			return nil
		}
		return a.wrap("delete", path, fmt.Errorf("%w: %s", storekit.ErrNotFound, path))
	}
	if _, err := client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(a.opts.Bucket),
		Key:    aws.String(path),
	}); err != nil {
		return a.wrap("delete", path, err)
	}
	return nil
}

// DeleteFolder implements storekit.Backend. Since folders are
// virtual, a non-recursive delete can never succeed: an absent prefix
// is NotFound and a present one still has objects under it.
func (a *Adapter) DeleteFolder(ctx context.Context, path string, recursive, missingOK bool) error {
	client, err := a.s3Client(ctx)
	if err != nil {
		return err
	}
	exists, err := a.IsFolder(ctx, path)
	if err != nil {
		return err
	}
	if !exists {
		if missingOK {
			return nil
		}
		return a.wrap("delete_folder", path, fmt.Errorf("%w: %s", storekit.ErrNotFound, path))
	}
	if !recursive {
		return a.wrap("delete_folder", path, fmt.Errorf("folder not empty"))
	}

	paginator := awss3.NewListObjectsV2Paginator(client, &awss3.ListObjectsV2Input{
		Bucket: aws.String(a.opts.Bucket),
		Prefix: aws.String(folderPrefix(path)),
	})
	var batch []types.ObjectIdentifier
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		_, err := client.DeleteObjects(ctx, &awss3.DeleteObjectsInput{
			Bucket: aws.String(a.opts.Bucket),
			Delete: &types.Delete{Objects: batch, Quiet: aws.Bool(true)},
		})
		batch = batch[:0]
		return err
	}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return a.wrap("delete_folder", path, err)
		}
		for _, obj := range page.Contents {
			batch = append(batch, types.ObjectIdentifier{Key: obj.Key})
			if len(batch) == deleteBatchSize {
				if err := flush(); err != nil {
					return a.wrap("delete_folder", path, err)
				}
			}
		}
	}
	if err := flush(); err != nil {
		return a.wrap("delete_folder", path, err)
	}
	return nil
}

// ListFiles implements storekit.Backend
func (a *Adapter) ListFiles(ctx context.Context, path string, recursive bool) ([]storekit.FileInfo, error) {
	client, err := a.s3Client(ctx)
	if err != nil {
		return nil, err
	}
	input := &awss3.ListObjectsV2Input{
		Bucket: aws.String(a.opts.Bucket),
		Prefix: aws.String(folderPrefix(path)),
	}
	if !recursive {
		input.Delimiter = aws.String("/")
	}
	var infos []storekit.FileInfo
	paginator := awss3.NewListObjectsV2Paginator(client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, a.wrap("list_files", path, err)
		}
		for _, obj := range page.Contents {
			info, ok := objectInfo(obj)
			if !ok {
				continue
			}
			infos = append(infos, info)
		}
	}
	return infos, nil
}

func objectInfo(obj types.Object) (storekit.FileInfo, bool) {
	key := aws.ToString(obj.Key)
	if key == "" || strings.HasSuffix(key, "/") {
		return storekit.FileInfo{}, false // folder marker object
	}
	p, err := storekit.NewPath(key)
	if err != nil {
		return storekit.FileInfo{}, false
	}
	info := storekit.FileInfo{
		Path:     p,
		Name:     p.Name(),
		Size:     aws.ToInt64(obj.Size),
		Checksum: strings.Trim(aws.ToString(obj.ETag), `"`),
	}
	if obj.LastModified != nil {
		info.ModTime = *obj.LastModified
	}
	return info, true
}

// ListFolders implements storekit.Backend
func (a *Adapter) ListFolders(ctx context.Context, path string) ([]string, error) {
	client, err := a.s3Client(ctx)
	if err != nil {
		return nil, err
	}
	pfx := folderPrefix(path)
	paginator := awss3.NewListObjectsV2Paginator(client, &awss3.ListObjectsV2Input{
		Bucket:    aws.String(a.opts.Bucket),
		Prefix:    aws.String(pfx),
		Delimiter: aws.String("/"),
	})
	var names []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, a.wrap("list_folders", path, err)
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), pfx), "/")
			if name != "" {
				names = append(names, name)
			}
		}
	}
	return names, nil
}

// GetFileInfo implements storekit.Backend
func (a *Adapter) GetFileInfo(ctx context.Context, path string) (*storekit.FileInfo, error) {
	client, err := a.s3Client(ctx)
	if err != nil {
		return nil, err
	}
	out, err := client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(a.opts.Bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return nil, a.wrap("file_info", path, err)
	}
	p, err := storekit.NewPath(path)
	if err != nil {
		return nil, err
	}
	info := &storekit.FileInfo{
		Path:        p,
		Name:        p.Name(),
		Size:        aws.ToInt64(out.ContentLength),
		Checksum:    strings.Trim(aws.ToString(out.ETag), `"`),
		ContentType: aws.ToString(out.ContentType),
		Metadata:    out.Metadata,
	}
	if out.LastModified != nil {
		info.ModTime = *out.LastModified
	}
	return info, nil
}

// GetFolderInfo implements storekit.Backend
func (a *Adapter) GetFolderInfo(ctx context.Context, path string) (*storekit.FolderInfo, error) {
	infos, err := a.ListFiles(ctx, path, true)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, a.wrap("folder_info", path, fmt.Errorf("%w: %s", storekit.ErrNotFound, path))
	}
	folder := &storekit.FolderInfo{}
	if path != "" {
		p, err := storekit.NewPath(path)
		if err != nil {
			return nil, err
		}
		folder.Path = p
	}
	for _, info := range infos {
		folder.FileCount++
		folder.TotalSize += info.Size
		if info.ModTime.After(folder.ModTime) {
			folder.ModTime = info.ModTime
		}
	}
	return folder, nil
}

// Move implements storekit.Backend. Object stores have no rename, so
// move decomposes into copy+delete; the source delete is not atomic
// with the copy.
func (a *Adapter) Move(ctx context.Context, src, dst string, overwrite bool) error {
	if err := a.Copy(ctx, src, dst, overwrite); err != nil {
		return err
	}
	return a.Delete(ctx, src, false)
}

// Copy implements storekit.Backend
func (a *Adapter) Copy(ctx context.Context, src, dst string, overwrite bool) error {
	client, err := a.s3Client(ctx)
	if err != nil {
		return err
	}
	exists, err := a.IsFile(ctx, src)
	if err != nil {
		return err
	}
	if !exists {
		return a.wrap("copy", src, fmt.Errorf("%w: %s", storekit.ErrNotFound, src))
	}
	if !overwrite {
		dstExists, err := a.IsFile(ctx, dst)
		if err != nil {
			return err
		}
		if dstExists {
			return a.wrap("copy", dst, fmt.Errorf("%w: %s", storekit.ErrAlreadyExists, dst))
		}
	}
	if _, err := client.CopyObject(ctx, &awss3.CopyObjectInput{
		Bucket:     aws.String(a.opts.Bucket),
		Key:        aws.String(dst),
		CopySource: aws.String(a.opts.Bucket + "/" + src),
	}); err != nil {
		return a.wrap("copy", src, err)
	}
	return nil
}

// ToKey implements storekit.Backend. Accepts s3://bucket/key URLs and
// bucket-prefixed paths; keys pass through unchanged.
func (a *Adapter) ToKey(native string) string {
	key := strings.TrimPrefix(native, "s3://"+a.opts.Bucket+"/")
	key = strings.TrimPrefix(key, a.opts.Bucket+"/")
	return strings.TrimPrefix(key, "/")
}

// Unwrap implements storekit.Backend
func (a *Adapter) Unwrap(kind storekit.ClientKind) (any, error) {
	if kind == storekit.ClientKindS3 {
		return a.s3Client(context.Background())
	}
	return nil, &storekit.Error{
		Op:      "unwrap",
		Backend: backendName,
		Err:     fmt.Errorf("%w: no %s client", storekit.ErrNotSupported, kind),
	}
}

// Close implements storekit.Backend. The SDK client holds no
// persistent connection; Close just drops it.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.client = nil
	return nil
}
