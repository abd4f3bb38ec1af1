package storage

import (
	"fmt"
	"io"

	"github.com/dutchcoders/go-clamd"
)

// Scanner 在上传前检查文件内容。
type Scanner interface {
	Scan(r io.Reader) error
}

// ClamdScanner 通过 clamd 的 INSTREAM 接口扫描文件。
type ClamdScanner struct {
	client *clamd.Clamd
}

func NewClamdScanner(addr string) *ClamdScanner {
	return &ClamdScanner{client: clamd.NewClamd(addr)}
}

// Scan 发现病毒时返回 ErrInfected。
func (s *ClamdScanner) Scan(r io.Reader) error {
	abort := make(chan bool)
	defer close(abort)

	results, err := s.client.ScanStream(r, abort)
	if err != nil {
		return fmt.Errorf("scan stream: %w", err)
	}
	infected := false
	for result := range results {
		switch result.Status {
		case clamd.RES_OK:
		case clamd.RES_FOUND:
			infected = true
		default:
			return fmt.Errorf("scan stream: %s", result.Description)
		}
	}
	if infected {
		return ErrInfected
	}
	return nil
}

// NopScanner 不做任何检查，在未配置 clamd 时使用。
type NopScanner struct{}

func (NopScanner) Scan(io.Reader) error { return nil }
