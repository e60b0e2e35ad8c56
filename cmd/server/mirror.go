package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"citydev.io/internal/persistence/objstore"
)

type mirrorRuntime struct {
	enabled      bool
	rotateLayout string
	mirror       *objstore.Mirror
}

func buildMirrorRuntime(ctx context.Context, dataDir string, logger *log.Logger) (*mirrorRuntime, error) {
	if !envBool("CD_S3_MIRROR", false) {
		return &mirrorRuntime{}, nil
	}
	bucket := strings.TrimSpace(os.Getenv("CD_S3_BUCKET"))
	if bucket == "" {
		return nil, fmt.Errorf("CD_S3_MIRROR=true but CD_S3_BUCKET is empty")
	}
	client, err := objstore.New(ctx, objstore.Config{
		Bucket:    bucket,
		Region:    os.Getenv("CD_S3_REGION"),
		Endpoint:  os.Getenv("CD_S3_ENDPOINT"),
		PathStyle: envBool("CD_S3_PATH_STYLE", false),
		// Empty keys fall back to the default AWS credential chain.
		AccessKeyID:     strings.TrimSpace(os.Getenv("CD_S3_ACCESS_KEY_ID")),
		SecretAccessKey: strings.TrimSpace(os.Getenv("CD_S3_SECRET_ACCESS_KEY")),
	})
	if err != nil {
		return nil, err
	}
	m := objstore.NewMirror(client, dataDir, os.Getenv("CD_S3_PREFIX"), objstore.MirrorOptions{
		Workers: envInt("CD_S3_UPLOAD_WORKERS", 2),
	}, logger)
	return &mirrorRuntime{
		enabled:      true,
		rotateLayout: "2006-01-02-15-04", // 1-minute segments to lower RPO.
		mirror:       m,
	}, nil
}

func (r *mirrorRuntime) Enqueue(localPath string) {
	if r == nil || !r.enabled {
		return
	}
	r.mirror.Enqueue(localPath)
}

// EnqueueIfExists is for optional side files such as meta.json.
func (r *mirrorRuntime) EnqueueIfExists(localPath string) {
	if r == nil || !r.enabled {
		return
	}
	if _, err := os.Stat(localPath); err == nil {
		r.mirror.Enqueue(localPath)
	}
}

func (r *mirrorRuntime) Stats() objstore.Stats {
	if r == nil {
		return objstore.Stats{}
	}
	return r.mirror.Stats()
}

func (r *mirrorRuntime) Close() {
	if r == nil {
		return
	}
	r.mirror.Close()
}
