// Package s3 implements remote.Store on S3 multipart uploads. The vault of a
// job is the bucket; each job becomes one object under an optional prefix.
//
// S3 does not compute tree hashes, so the store derives the remote hash from
// the parts S3 acknowledged with a matching SHA-256 checksum. Parts it did
// not see in this process (a resumed job) are verified by reading the
// completed object back.
package s3

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"path"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/jladan/glacier-upload/internal/chunker"
	"github.com/jladan/glacier-upload/internal/common"
	"github.com/jladan/glacier-upload/internal/remote"
	"github.com/jladan/glacier-upload/internal/remote/awsconf"
	"github.com/jladan/glacier-upload/internal/treehash"
)

const scheme = "s3"

// API is the subset of the S3 client used by Store.
type API interface {
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	ListParts(ctx context.Context, params *s3.ListPartsInput, optFns ...func(*s3.Options)) (*s3.ListPartsOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// acked is what S3 acknowledged for one part.
type acked struct {
	tree   treehash.Digest
	sha256 string
}

// Store is safe for concurrent use.
type Store struct {
	api    API
	prefix string

	mu    sync.Mutex
	parts map[string]map[int32]acked
}

// New wraps an API client. Objects are created under prefix.
func New(api API, prefix string) *Store {
	return &Store{api: api, prefix: prefix, parts: make(map[string]map[int32]acked)}
}

// NewFromOptions builds an S3 client from AWS options. A custom endpoint
// switches to path-style addressing.
func NewFromOptions(ctx context.Context, o awsconf.Options, prefix string) (*Store, error) {
	cfg, err := awsconf.Load(ctx, o)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(cfg, func(opts *s3.Options) {
		opts.BaseEndpoint = o.BaseEndpoint()
		opts.UsePathStyle = o.Endpoint != ""
	})
	return New(client, prefix), nil
}

func (s *Store) Initiate(ctx context.Context, req remote.InitiateRequest) (string, error) {
	key := path.Join(s.prefix, uuid.NewString())
	out, err := s.api.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:            aws.String(req.Vault),
		Key:               aws.String(key),
		ChecksumAlgorithm: types.ChecksumAlgorithmSha256,
		Metadata: map[string]string{
			"description": req.Description,
			"part-size":   fmt.Sprint(req.ChunkSize),
			"size":        fmt.Sprint(req.TotalSize),
		},
	})
	if err != nil {
		return "", remote.NewError("initiate", common.ErrRemoteInit, err).WithVault(req.Vault)
	}

	ref := remote.Ref{
		Scheme:    scheme,
		Container: req.Vault,
		Key:       key,
		UploadID:  aws.ToString(out.UploadId),
		PartSize:  req.ChunkSize,
	}
	return ref.String(), nil
}

func (s *Store) UploadPart(ctx context.Context, jobID string, r chunker.Range, body []byte, hash treehash.Digest) error {
	ref, err := remote.ParseRef(scheme, jobID)
	if err != nil {
		return remote.NewError("upload_part", common.ErrRemoteRejected, err).WithJob(jobID)
	}
	fail := func(kind, err error) error {
		return remote.NewError("upload_part", kind, err).WithVault(ref.Container).WithJob(ref.Key)
	}
	if ref.PartSize <= 0 || r.Start%ref.PartSize != 0 {
		return fail(common.ErrRemoteRejected, fmt.Errorf("range %s is not aligned to part size %d", r, ref.PartSize))
	}
	if int64(len(body)) != r.Len() {
		return fail(common.ErrRemoteRejected, fmt.Errorf("body length %d does not match range %s", len(body), r))
	}

	partNumber := int32(r.Start/ref.PartSize + 1)
	sum := sha256.Sum256(body)
	checksum := base64.StdEncoding.EncodeToString(sum[:])

	_, err = s.api.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:         aws.String(ref.Container),
		Key:            aws.String(ref.Key),
		UploadId:       aws.String(ref.UploadID),
		PartNumber:     aws.Int32(partNumber),
		Body:           bytes.NewReader(body),
		ContentLength:  aws.Int64(int64(len(body))),
		ChecksumSHA256: aws.String(checksum),
	})
	if err != nil {
		return fail(awsconf.PartErrorKind(err), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.parts[ref.UploadID] == nil {
		s.parts[ref.UploadID] = make(map[int32]acked)
	}
	s.parts[ref.UploadID][partNumber] = acked{tree: treehash.ChunkHash(body), sha256: checksum}
	return nil
}

func (s *Store) Complete(ctx context.Context, jobID string, totalSize int64, hash treehash.Digest) (*remote.CompleteResult, error) {
	ref, err := remote.ParseRef(scheme, jobID)
	if err != nil {
		return nil, remote.NewError("complete", common.ErrRemoteComplete, err).WithJob(jobID)
	}
	fail := func(err error) error {
		return remote.NewError("complete", common.ErrRemoteComplete, err).WithVault(ref.Container).WithJob(ref.Key)
	}

	listed, err := s.listParts(ctx, ref)
	if err != nil {
		return nil, fail(err)
	}

	s.mu.Lock()
	known := s.parts[ref.UploadID]
	s.mu.Unlock()

	var (
		size      int64
		completed = make([]types.CompletedPart, 0, len(listed))
		digests   = make([]treehash.Digest, 0, len(listed))
		verified  = true
	)
	for i, p := range listed {
		n := aws.ToInt32(p.PartNumber)
		if n != int32(i+1) {
			return nil, fail(fmt.Errorf("missing part %d", i+1))
		}
		size += aws.ToInt64(p.Size)
		completed = append(completed, types.CompletedPart{
			ETag:           p.ETag,
			PartNumber:     p.PartNumber,
			ChecksumSHA256: p.ChecksumSHA256,
		})

		a, ok := known[n]
		if !ok || a.sha256 != aws.ToString(p.ChecksumSHA256) {
			verified = false
			continue
		}
		digests = append(digests, a.tree)
	}
	if size != totalSize {
		return nil, fail(fmt.Errorf("parts hold %d of %d bytes", size, totalSize))
	}

	out, err := s.api.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(ref.Container),
		Key:             aws.String(ref.Key),
		UploadId:        aws.String(ref.UploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return nil, fail(err)
	}

	s.mu.Lock()
	delete(s.parts, ref.UploadID)
	s.mu.Unlock()

	var remoteHash treehash.Digest
	if verified {
		remoteHash, err = treehash.TreeHash(digests)
	} else {
		remoteHash, err = s.hashObject(ctx, ref.Container, ref.Key, aws.ToString(out.VersionId))
	}
	archiveID := ref.Key
	if v := aws.ToString(out.VersionId); v != "" {
		archiveID += "?versionId=" + v
	}
	res := &remote.CompleteResult{ArchiveID: archiveID, Hash: remoteHash, Location: aws.ToString(out.Location)}
	if err != nil {
		return res, remote.NewError("complete", common.ErrRemoteUnverified, err).WithVault(ref.Container).WithJob(ref.Key)
	}
	return res, nil
}

func (s *Store) listParts(ctx context.Context, ref remote.Ref) ([]types.Part, error) {
	var parts []types.Part
	p := s3.NewListPartsPaginator(s.api, &s3.ListPartsInput{
		Bucket:   aws.String(ref.Container),
		Key:      aws.String(ref.Key),
		UploadId: aws.String(ref.UploadID),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list parts: %w", err)
		}
		parts = append(parts, page.Parts...)
	}
	return parts, nil
}

// hashObject reads an object back and returns its tree hash.
func (s *Store) hashObject(ctx context.Context, bucket, key, version string) (treehash.Digest, error) {
	in := &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)}
	if version != "" {
		in.VersionId = aws.String(version)
	}
	out, err := s.api.GetObject(ctx, in)
	if err != nil {
		return treehash.Digest{}, fmt.Errorf("read back %s: %w", key, err)
	}
	defer out.Body.Close()

	h := treehash.New()
	if _, err := io.Copy(h, out.Body); err != nil {
		return treehash.Digest{}, fmt.Errorf("read back %s: %w", key, err)
	}
	return h.Sum(), nil
}

func (s *Store) Abort(ctx context.Context, jobID string) error {
	ref, err := remote.ParseRef(scheme, jobID)
	if err != nil {
		return remote.NewError("abort", common.ErrRemoteAbort, err).WithJob(jobID)
	}

	s.mu.Lock()
	delete(s.parts, ref.UploadID)
	s.mu.Unlock()

	_, err = s.api.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(ref.Container),
		Key:      aws.String(ref.Key),
		UploadId: aws.String(ref.UploadID),
	})
	if err != nil {
		return remote.NewError("abort", common.ErrRemoteAbort, err).WithVault(ref.Container).WithJob(ref.Key)
	}
	return nil
}
