package contract

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// DefaultSource names the embedded contract.
const DefaultSource = "default"

// Default returns a fresh copy of the embedded contract.
func Default() *Contract {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded contract: %v", err))
	}
	return c
}

// DefaultYAML returns the embedded contract document.
func DefaultYAML() []byte {
	return bytes.Clone(defaultYAML)
}

// Parse decodes a YAML contract, fills defaults and validates it.
// Unknown keys are rejected so that typos surface at load time.
func Parse(data []byte) (*Contract, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var c Contract
	if err := dec.Decode(&c); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("parse contract: empty document")
		}
		return nil, fmt.Errorf("parse contract: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Marshal encodes the contract back to YAML.
func Marshal(c *Contract) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("marshal contract: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("marshal contract: %w", err)
	}
	return buf.Bytes(), nil
}

// ObjectGetter is the subset of the S3 client used to fetch contracts.
type ObjectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Loader resolves a contract source: "" or "default" for the embedded
// contract, "s3://bucket/key" for an object in S3, anything else is a
// local file path.
type Loader struct {
	S3 ObjectGetter
}

// Load fetches and parses the contract named by source.
func (l Loader) Load(ctx context.Context, source string) (*Contract, error) {
	source = strings.TrimSpace(source)
	switch {
	case source == "" || source == DefaultSource:
		return Default(), nil
	case strings.HasPrefix(source, "s3://"):
		data, err := l.fetchS3(ctx, source)
		if err != nil {
			return nil, err
		}
		return Parse(data)
	default:
		data, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("read contract from %s: %w", source, err)
		}
		c, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", source, err)
		}
		return c, nil
	}
}

func (l Loader) fetchS3(ctx context.Context, source string) ([]byte, error) {
	if l.S3 == nil {
		return nil, fmt.Errorf("contract source %s requires AWS credentials", source)
	}
	bucket, key, err := splitS3URI(source)
	if err != nil {
		return nil, err
	}

	out, err := l.S3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch contract %s: %w", source, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read contract %s: %w", source, err)
	}
	return data, nil
}

func splitS3URI(uri string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(uri, "s3://")
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid S3 contract URI %q (want s3://bucket/key)", uri)
	}
	return bucket, key, nil
}
