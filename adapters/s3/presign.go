package s3

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gostratum/core/logx"

	"github.com/gostratum/fsx"
)

// SignGet generates a signed URL for downloading an object
func (s *Storage) SignGet(ctx context.Context, p string, so *fsx.SignOptions, opts ...fsx.CallOption) (string, error) {
	if err := ValidateSignOptions(so); err != nil {
		return "", &fsx.StorageError{Op: "sign_get", Path: p, Err: err}
	}
	cm, bucket, err := s.prepare("sign_get", p, opts)
	if err != nil {
		return "", err
	}
	if so == nil {
		so = &fsx.SignOptions{}
	}
	if fsx.FileKey(p) == "" {
		return "", &fsx.StorageError{Op: "sign_get", Path: p, Err: fsx.ErrInvalidKey}
	}

	expiry := s.cfg.SignExpiry(so.Expiry)
	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(s.keys.FileKey(p)),
	}
	if so.ContentDisposition != "" {
		input.ResponseContentDisposition = aws.String(so.ContentDisposition)
	}
	if so.ContentType != "" {
		input.ResponseContentType = aws.String(so.ContentType)
	}

	req, err := cm.GetPresignClient().PresignGetObject(ctx, input, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", &fsx.StorageError{Op: "sign_get", Path: p, Err: fmt.Errorf("failed to generate signed GET URL: %w", err)}
	}

	signed, err := s.toCDN(req.URL, bucket)
	if err != nil {
		return "", &fsx.StorageError{Op: "sign_get", Path: p, Err: err}
	}

	s.inst.RecordPresignOperation("sign_get")
	s.logger.Debug("Signed GET URL generated", logx.Any("path", p), logx.Any("expiry", expiry))
	return signed, nil
}

// SignPut generates a signed URL for uploading an object
func (s *Storage) SignPut(ctx context.Context, p string, so *fsx.SignOptions, opts ...fsx.CallOption) (string, error) {
	if err := ValidateSignOptions(so); err != nil {
		return "", &fsx.StorageError{Op: "sign_put", Path: p, Err: err}
	}
	cm, bucket, err := s.prepare("sign_put", p, opts)
	if err != nil {
		return "", err
	}
	if so == nil {
		so = &fsx.SignOptions{}
	}
	if fsx.FileKey(p) == "" {
		return "", &fsx.StorageError{Op: "sign_put", Path: p, Err: fsx.ErrInvalidKey}
	}

	expiry := s.cfg.SignExpiry(so.Expiry)
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(s.keys.FileKey(p)),
	}
	if so.ContentType != "" {
		input.ContentType = aws.String(so.ContentType)
	}

	req, err := cm.GetPresignClient().PresignPutObject(ctx, input, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", &fsx.StorageError{Op: "sign_put", Path: p, Err: fmt.Errorf("failed to generate signed PUT URL: %w", err)}
	}

	signed, err := s.toCDN(req.URL, bucket)
	if err != nil {
		return "", &fsx.StorageError{Op: "sign_put", Path: p, Err: err}
	}

	s.inst.RecordPresignOperation("sign_put")
	s.logger.Debug("Signed PUT URL generated", logx.Any("path", p), logx.Any("expiry", expiry))
	return signed, nil
}

// ValidateSignOptions rejects options the signer cannot honor.
// Expiry beyond the 7 day limit is clamped rather than rejected.
func ValidateSignOptions(so *fsx.SignOptions) error {
	if so == nil {
		return nil
	}
	if so.Expiry < 0 {
		return fmt.Errorf("%w: expiry cannot be negative", fsx.ErrInvalidConfig)
	}
	for _, v := range []string{so.ContentDisposition, so.ContentType} {
		if strings.ContainsAny(v, "\r\n") {
			return fmt.Errorf("%w: header value %q contains a line break", fsx.ErrInvalidConfig, v)
		}
	}
	return nil
}
