// Package s3hybrid implements the storekit Backend on an
// S3-compatible object store with a split client: bulk data transfer
// goes through the S3 transfer manager (concurrent multipart uploads
// and downloads), while existence checks, listing, metadata and
// deletes go through the plain S3 client.
//
// Contract semantics match the s3 driver: virtual folders, atomic
// single-object writes, copy+delete moves. The trade-off is raw
// throughput on large objects against the extra moving parts of two
// client vocabularies.
package s3hybrid

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
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/gobeaver/storekit"
)

const backendName = "s3-hybrid"

const deleteBatchSize = 1000

// Options configures the hybrid S3 adapter.
type Options struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`

	// TransferConcurrency is the number of parallel parts per upload
	// or download. Zero uses the transfer manager default.
	TransferConcurrency int `mapstructure:"transfer_concurrency"`

	// PartSizeBytes is the multipart chunk size. Zero uses the
	// transfer manager default.
	PartSizeBytes int64 `mapstructure:"part_size_bytes"`
}

// Adapter provides a hybrid S3 implementation of storekit.Backend.
type Adapter struct {
	opts Options

	mu         sync.Mutex
	client     *awss3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
}

var _ storekit.Backend = (*Adapter)(nil)

// New validates opts and returns an adapter. Clients are not built
// until the first operation.
func New(opts Options) (*Adapter, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, fmt.Errorf("s3-hybrid backend requires a non-empty 'bucket' option")
	}
	return &Adapter{opts: opts}, nil
}

// Name implements storekit.Backend
func (a *Adapter) Name() string { return backendName }

// Capabilities implements storekit.Backend
func (a *Adapter) Capabilities() storekit.CapabilitySet {
	return storekit.AllCapabilities()
}

// clients builds the control client and both transfer-manager clients
// on first use. All three share one SDK configuration.
func (a *Adapter) clients(ctx context.Context) (*awss3.Client, *manager.Uploader, *manager.Downloader, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil {
		return a.client, a.uploader, a.downloader, nil
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
		return nil, nil, nil, &storekit.Error{
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
	a.uploader = manager.NewUploader(a.client, func(u *manager.Uploader) {
		if a.opts.TransferConcurrency > 0 {
			u.Concurrency = a.opts.TransferConcurrency
		}
		if a.opts.PartSizeBytes > 0 {
			u.PartSize = a.opts.PartSizeBytes
		}
	})
	a.downloader = manager.NewDownloader(a.client, func(d *manager.Downloader) {
		if a.opts.TransferConcurrency > 0 {
			d.Concurrency = a.opts.TransferConcurrency
		}
		if a.opts.PartSizeBytes > 0 {
			d.PartSize = a.opts.PartSizeBytes
		}
	})
	return a.client, a.uploader, a.downloader, nil
}

func (a *Adapter) controlClient(ctx context.Context) (*awss3.Client, error) {
	client, _, _, err := a.clients(ctx)
	return client, err
}

func (a *Adapter) wrap(op, path string, err error) error {
	return &storekit.Error{Op: op, Path: path, Backend: backendName, Err: classify(err)}
}

// classify translates both error vocabularies into the storekit
// taxonomy: plain SDK errors from the control path and multipart
// failures from the transfer manager.
func classify(err error) error {
	// A failed multipart upload wraps the causal SDK error; classify
	// that instead of the wrapper.
	var multi manager.MultiUploadFailure
	if errors.As(err, &multi) {
		if cause := errors.Unwrap(multi); cause != nil {
			err = cause
		}
	}

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
	client, err := a.controlClient(ctx)
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

// IsFolder implements storekit.Backend
func (a *Adapter) IsFolder(ctx context.Context, path string) (bool, error) {
	client, err := a.controlClient(ctx)
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

// Read implements storekit.Backend. The whole object is fetched
// through the concurrent downloader before the reader is returned, so
// large objects trade memory for transfer speed.
func (a *Adapter) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	data, err := a.ReadBytes(ctx, path)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// ReadBytes implements storekit.Backend
func (a *Adapter) ReadBytes(ctx context.Context, path string) ([]byte, error) {
	_, _, downloader, err := a.clients(ctx)
	if err != nil {
		return nil, err
	}
	buf := manager.NewWriteAtBuffer(nil)
	_, err = downloader.Download(ctx, buf, &awss3.GetObjectInput{
		Bucket: aws.String(a.opts.Bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return nil, a.wrap("read", path, err)
	}
	return buf.Bytes(), nil
}

// Write implements storekit.Backend. Content streams through the
// concurrent multipart uploader.
func (a *Adapter) Write(ctx context.Context, path string, content io.Reader, opts ...storekit.WriteOption) error {
	_, uploader, _, err := a.clients(ctx)
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
	if _, err := uploader.Upload(ctx, input); err != nil {
		return a.wrap("write", path, err)
	}
	return nil
}

// WriteAtomic implements storekit.Backend. Completed multipart
// uploads materialize as one object, so readers never observe a
// partial write.
func (a *Adapter) WriteAtomic(ctx context.Context, path string, content io.Reader, opts ...storekit.WriteOption) error {
	return a.Write(ctx, path, content, opts...)
}

// Delete implements storekit.Backend
func (a *Adapter) Delete(ctx context.Context, path string, missingOK bool) error {
	client, err := a.controlClient(ctx)
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

// DeleteFolder implements storekit.Backend
func (a *Adapter) DeleteFolder(ctx context.Context, path string, recursive, missingOK bool) error {
	client, err := a.controlClient(ctx)
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
	client, err := a.controlClient(ctx)
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
			key := aws.ToString(obj.Key)
			if key == "" || strings.HasSuffix(key, "/") {
				continue
			}
			p, perr := storekit.NewPath(key)
			if perr != nil {
				continue
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
			infos = append(infos, info)
		}
	}
	return infos, nil
}

// ListFolders implements storekit.Backend
func (a *Adapter) ListFolders(ctx context.Context, path string) ([]string, error) {
	client, err := a.controlClient(ctx)
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
	client, err := a.controlClient(ctx)
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

// Move implements storekit.Backend. Decomposed into explicit steps on
// the control path: source check, copy, source delete. A crash
// between copy and delete leaves both objects in place; the window is
// inherent to object stores.
func (a *Adapter) Move(ctx context.Context, src, dst string, overwrite bool) error {
	if err := a.Copy(ctx, src, dst, overwrite); err != nil {
		return err
	}
	return a.Delete(ctx, src, false)
}

// Copy implements storekit.Backend
func (a *Adapter) Copy(ctx context.Context, src, dst string, overwrite bool) error {
	client, err := a.controlClient(ctx)
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

// ToKey implements storekit.Backend
func (a *Adapter) ToKey(native string) string {
	key := strings.TrimPrefix(native, "s3://"+a.opts.Bucket+"/")
	key = strings.TrimPrefix(key, a.opts.Bucket+"/")
	return strings.TrimPrefix(key, "/")
}

// Unwrap implements storekit.Backend
func (a *Adapter) Unwrap(kind storekit.ClientKind) (any, error) {
	switch kind {
	case storekit.ClientKindS3, storekit.ClientKindS3Uploader, storekit.ClientKindS3Downloader:
	default:
		return nil, &storekit.Error{
			Op:      "unwrap",
			Backend: backendName,
			Err:     fmt.Errorf("%w: no %s client", storekit.ErrNotSupported, kind),
		}
	}
	client, uploader, downloader, err := a.clients(context.Background())
	if err != nil {
		return nil, err
	}
	switch kind {
	case storekit.ClientKindS3Uploader:
		return uploader, nil
	case storekit.ClientKindS3Downloader:
		return downloader, nil
	default:
		return client, nil
	}
}

// Close implements storekit.Backend
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.client = nil
	a.uploader = nil
	a.downloader = nil
	return nil
}
