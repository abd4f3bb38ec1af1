package storage

import (
	"errors"
	"strings"

	"github.com/minio/minio-go/v7"
)

var (
	ErrEmptyFile = errors.New("file is empty")
	ErrTooLarge  = errors.New("file exceeds upload limit")
	ErrInfected  = errors.New("malicious file detected")
)

// IsNoSuchKey 判断错误是否明确表示对象不存在（S3/MinIO: NoSuchKey/NotFound）。
func IsNoSuchKey(err error) bool {
	if err == nil {
		return false
	}

	var minioErr minio.ErrorResponse
	if errors.As(err, &minioErr) {
		switch strings.ToLower(strings.TrimSpace(minioErr.Code)) {
		case "nosuchkey", "notfound":
			return true
		}
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "nosuchkey") ||
		strings.Contains(lower, "specified key does not exist")
}
