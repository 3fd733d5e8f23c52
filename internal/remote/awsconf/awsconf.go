// Package awsconf builds AWS SDK configuration for the remote stores and
// classifies SDK errors into the remote error taxonomy.
package awsconf

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/smithy-go"
	"github.com/jladan/glacier-upload/internal/common"
)

// Options selects region, credentials and an optional custom endpoint
// (MinIO, LocalStack).
type Options struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// seam for tests
var loadDefaultConfig = config.LoadDefaultConfig

// Load returns an aws.Config. Static credentials are used when an access key
// is given; otherwise the default credential chain applies.
func Load(ctx context.Context, o Options) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if o.Region != "" {
		opts = append(opts, config.WithRegion(o.Region))
	}
	if o.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.AccessKey, o.SecretKey, ""),
		))
	}

	cfg, err := loadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

// BaseEndpoint returns the custom endpoint, or nil for the AWS default.
func (o Options) BaseEndpoint() *string {
	if o.Endpoint == "" {
		return nil
	}
	return aws.String(o.Endpoint)
}

// transient lists 4xx error codes that are worth retrying.
var transient = map[string]bool{
	"RequestTimeout":           true,
	"RequestTimeoutException":  true,
	"SlowDown":                 true,
	"Throttling":               true,
	"ThrottlingException":      true,
	"LimitExceededException":   true,
	"TooManyRequestsException": true,
}

// PartErrorKind classifies a part upload failure. A 4xx response other than
// throttling and timeouts is ErrRemoteRejected; everything else, including
// network errors and cancellation, is ErrRemotePart.
func PartErrorKind(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && transient[apiErr.ErrorCode()] {
		return common.ErrRemotePart
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		switch code := respErr.HTTPStatusCode(); {
		case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		case code >= 400 && code < 500:
			return common.ErrRemoteRejected
		}
	}
	return common.ErrRemotePart
}
