package s3

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/gostratum/fsx"
)

// RewriteHost moves a URL signed against origin onto the cdn endpoint.
// Only URLs whose host is the origin host, or its virtual-hosted bucket
// subdomain, are rewritten; path and query are kept as signed.
func RewriteHost(rawURL, origin, cdn, bucket string) (string, error) {
	if cdn == "" {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse signed url: %w", err)
	}
	o, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("parse origin endpoint: %w", err)
	}
	c, err := url.Parse(cdn)
	if err != nil {
		return "", fmt.Errorf("parse cdn endpoint: %w", err)
	}
	if c.Host == "" {
		return "", fmt.Errorf("%w: cdn endpoint %q has no host", fsx.ErrInvalidConfig, cdn)
	}

	if u.Host != o.Host && (bucket == "" || u.Host != bucket+"."+o.Host) {
		return rawURL, nil
	}
	u.Scheme = c.Scheme
	u.Host = c.Host
	return u.String(), nil
}

func (s *Storage) toCDN(rawURL, bucket string) (string, error) {
	if s.cfg.CDNEndpoint == "" {
		return rawURL, nil
	}
	return RewriteHost(rawURL, s.cfg.EndpointURL(), s.cfg.CDNEndpointURL(), bucket)
}

// readViaCDN fetches an object through the CDN with a short-lived signed URL
func (s *Storage) readViaCDN(ctx context.Context, cm *ClientManager, bucket, key string) ([]byte, error) {
	req, err := cm.GetPresignClient().PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(fsx.CDNFetchExpiry))
	if err != nil {
		return nil, fmt.Errorf("sign cdn read: %w", err)
	}

	target, err := s.toCDN(req.URL, bucket)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := cm.GetHTTPClient().Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: cdn responded %s", fsx.ErrNotFound, resp.Status)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("cdn responded %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
