// Package storage 保存投递申请附带的简历与附件。
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"gigboard/internal/domain"
)

// ObjectStore 为附件的底层存储（MinIO 或本地目录）。
type ObjectStore interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
}

// Attachments 负责校验、扫描并保存上传文件。
type Attachments struct {
	store    ObjectStore
	scanner  Scanner
	maxBytes int64
	logger   *slog.Logger
}

func NewAttachments(store ObjectStore, scanner Scanner, maxBytes int64, logger *slog.Logger) *Attachments {
	if scanner == nil {
		scanner = NopScanner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Attachments{store: store, scanner: scanner, maxBytes: maxBytes, logger: logger}
}

// Save 保存一个 multipart 文件，key 形如 applications/<ownerID>/<kind>/<uuid><ext>。
func (a *Attachments) Save(ctx context.Context, ownerID, kind string, file *multipart.FileHeader) (domain.AttachmentRef, error) {
	if file.Size <= 0 {
		return domain.AttachmentRef{}, ErrEmptyFile
	}
	if a.maxBytes > 0 && file.Size > a.maxBytes {
		return domain.AttachmentRef{}, ErrTooLarge
	}

	if err := a.scan(file); err != nil {
		return domain.AttachmentRef{}, err
	}

	reader, err := file.Open()
	if err != nil {
		return domain.AttachmentRef{}, fmt.Errorf("open upload: %w", err)
	}
	defer reader.Close()

	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	key := fmt.Sprintf("applications/%s/%s/%s%s", ownerID, kind, uuid.NewString(), ext)

	if err := a.store.Put(ctx, key, reader, file.Size, contentType); err != nil {
		return domain.AttachmentRef{}, err
	}
	return domain.AttachmentRef{
		Key:         key,
		Filename:    filepath.Base(file.Filename),
		ContentType: contentType,
		Size:        file.Size,
	}, nil
}

// Remove 尽力删除已保存的附件，用于申请失败后的回滚。
func (a *Attachments) Remove(ctx context.Context, refs ...domain.AttachmentRef) {
	for _, ref := range refs {
		if err := a.store.Delete(ctx, ref.Key); err != nil {
			a.logger.Warn("remove attachment failed", slog.String("key", ref.Key), slog.Any("error", err))
		}
	}
}

func (a *Attachments) scan(file *multipart.FileHeader) error {
	reader, err := file.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer reader.Close()
	if err := a.scanner.Scan(reader); err != nil {
		if err == ErrInfected {
			return err
		}
		a.logger.Error("scan upload failed", slog.Any("error", err))
		return fmt.Errorf("scan upload: %w", err)
	}
	return nil
}
