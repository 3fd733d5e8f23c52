// Package glacier implements remote.Store on the Amazon S3 Glacier multipart
// upload API. Every part carries its tree hash and Glacier recomputes the
// archive tree hash on completion.
package glacier

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glacier"
	"github.com/jladan/glacier-upload/internal/chunker"
	"github.com/jladan/glacier-upload/internal/common"
	"github.com/jladan/glacier-upload/internal/remote"
	"github.com/jladan/glacier-upload/internal/remote/awsconf"
	"github.com/jladan/glacier-upload/internal/treehash"
)

const scheme = "glacier"

// API is the subset of the Glacier client used by Store.
type API interface {
	InitiateMultipartUpload(ctx context.Context, params *glacier.InitiateMultipartUploadInput, optFns ...func(*glacier.Options)) (*glacier.InitiateMultipartUploadOutput, error)
	UploadMultipartPart(ctx context.Context, params *glacier.UploadMultipartPartInput, optFns ...func(*glacier.Options)) (*glacier.UploadMultipartPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *glacier.CompleteMultipartUploadInput, optFns ...func(*glacier.Options)) (*glacier.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *glacier.AbortMultipartUploadInput, optFns ...func(*glacier.Options)) (*glacier.AbortMultipartUploadOutput, error)
}

// Store uploads archives into Glacier vaults.
type Store struct {
	api       API
	accountID string
}

// New wraps an API client. An empty accountID means the account of the
// credentials ("-").
func New(api API, accountID string) *Store {
	if accountID == "" {
		accountID = "-"
	}
	return &Store{api: api, accountID: accountID}
}

// NewFromOptions builds a Glacier client from AWS options.
func NewFromOptions(ctx context.Context, o awsconf.Options, accountID string) (*Store, error) {
	cfg, err := awsconf.Load(ctx, o)
	if err != nil {
		return nil, err
	}
	client := glacier.NewFromConfig(cfg, func(opts *glacier.Options) {
		opts.BaseEndpoint = o.BaseEndpoint()
	})
	return New(client, accountID), nil
}

func (s *Store) Initiate(ctx context.Context, req remote.InitiateRequest) (string, error) {
	out, err := s.api.InitiateMultipartUpload(ctx, &glacier.InitiateMultipartUploadInput{
		AccountId:          aws.String(s.accountID),
		VaultName:          aws.String(req.Vault),
		ArchiveDescription: aws.String(req.Description),
		PartSize:           aws.String(strconv.FormatInt(req.ChunkSize, 10)),
	})
	if err != nil {
		return "", remote.NewError("initiate", common.ErrRemoteInit, err).WithVault(req.Vault)
	}

	ref := remote.Ref{Scheme: scheme, Container: req.Vault, UploadID: aws.ToString(out.UploadId)}
	return ref.String(), nil
}

func (s *Store) UploadPart(ctx context.Context, jobID string, r chunker.Range, body []byte, hash treehash.Digest) error {
	ref, err := remote.ParseRef(scheme, jobID)
	if err != nil {
		return remote.NewError("upload_part", common.ErrRemoteRejected, err).WithJob(jobID)
	}

	out, err := s.api.UploadMultipartPart(ctx, &glacier.UploadMultipartPartInput{
		AccountId: aws.String(s.accountID),
		VaultName: aws.String(ref.Container),
		UploadId:  aws.String(ref.UploadID),
		Range:     aws.String(r.ContentRange()),
		Checksum:  aws.String(hash.String()),
		Body:      bytes.NewReader(body),
	})
	if err != nil {
		return remote.NewError("upload_part", awsconf.PartErrorKind(err), err).WithVault(ref.Container).WithJob(ref.UploadID)
	}
	if got := aws.ToString(out.Checksum); got != "" && got != hash.String() {
		err := fmt.Errorf("part %s acknowledged with checksum %s, sent %s", r, got, hash)
		return remote.NewError("upload_part", common.ErrRemoteRejected, err).WithVault(ref.Container).WithJob(ref.UploadID)
	}
	return nil
}

func (s *Store) Complete(ctx context.Context, jobID string, totalSize int64, hash treehash.Digest) (*remote.CompleteResult, error) {
	ref, err := remote.ParseRef(scheme, jobID)
	if err != nil {
		return nil, remote.NewError("complete", common.ErrRemoteComplete, err).WithJob(jobID)
	}

	out, err := s.api.CompleteMultipartUpload(ctx, &glacier.CompleteMultipartUploadInput{
		AccountId:   aws.String(s.accountID),
		VaultName:   aws.String(ref.Container),
		UploadId:    aws.String(ref.UploadID),
		ArchiveSize: aws.String(strconv.FormatInt(totalSize, 10)),
		Checksum:    aws.String(hash.String()),
	})
	if err != nil {
		return nil, remote.NewError("complete", common.ErrRemoteComplete, err).WithVault(ref.Container).WithJob(ref.UploadID)
	}

	res := &remote.CompleteResult{
		ArchiveID: aws.ToString(out.ArchiveId),
		Location:  aws.ToString(out.Location),
	}
	res.Hash, err = treehash.ParseDigest(aws.ToString(out.Checksum))
	if err != nil {
		return res, remote.NewError("complete", common.ErrRemoteUnverified, err).WithVault(ref.Container).WithJob(ref.UploadID)
	}
	return res, nil
}

func (s *Store) Abort(ctx context.Context, jobID string) error {
	ref, err := remote.ParseRef(scheme, jobID)
	if err != nil {
		return remote.NewError("abort", common.ErrRemoteAbort, err).WithJob(jobID)
	}
	_, err = s.api.AbortMultipartUpload(ctx, &glacier.AbortMultipartUploadInput{
		AccountId: aws.String(s.accountID),
		VaultName: aws.String(ref.Container),
		UploadId:  aws.String(ref.UploadID),
	})
	if err != nil {
		return remote.NewError("abort", common.ErrRemoteAbort, err).WithVault(ref.Container).WithJob(ref.UploadID)
	}
	return nil
}
