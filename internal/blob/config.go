package blob

import "errors"

// S3Config points the client at an S3-compatible bucket. Endpoint is empty
// for AWS proper; set it (with path-style addressing) for MinIO and friends.
type S3Config struct {
	Endpoint  string `json:"endpoint" mapstructure:"endpoint"`
	Region    string `json:"region" mapstructure:"region"`
	Bucket    string `json:"bucket" mapstructure:"bucket"`
	AccessKey string `json:"access_key" mapstructure:"access_key"`
	SecretKey string `json:"secret_key" mapstructure:"secret_key"`
	KeyPrefix string `json:"key_prefix" mapstructure:"key_prefix"`
}

func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("s3 bucket is required")
	}
	if c.Region == "" && c.Endpoint == "" {
		return errors.New("s3 region or endpoint is required")
	}
	return nil
}
