package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"colonycraft.ai/internal/persistence/r2s3"
)

// buildSnapshotMirror returns nil when CC_SNAPSHOT_MIRROR is off.
func buildSnapshotMirror(ctx context.Context, dataDir string, logger *log.Logger) (*r2s3.Mirror, error) {
	if !envBool("CC_SNAPSHOT_MIRROR", false) {
		return nil, nil
	}

	bucket := strings.TrimSpace(os.Getenv("CC_S3_BUCKET"))
	if bucket == "" {
		return nil, fmt.Errorf("CC_SNAPSHOT_MIRROR=true but CC_S3_BUCKET is not set")
	}
	client, err := r2s3.New(ctx, r2s3.Config{
		Endpoint:        os.Getenv("CC_S3_ENDPOINT"),
		Bucket:          bucket,
		Region:          os.Getenv("CC_S3_REGION"),
		AccessKeyID:     os.Getenv("CC_S3_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("CC_S3_SECRET_ACCESS_KEY"),
		PathStyle:       envBool("CC_S3_PATH_STYLE", false),
	})
	if err != nil {
		return nil, err
	}
	return r2s3.NewMirror(client, dataDir, r2s3.MirrorOptions{
		Prefix:  os.Getenv("CC_S3_PREFIX"),
		Workers: envInt("CC_S3_UPLOAD_WORKERS", 2),
	}, logger), nil
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
