// Package compression은 캐시 페이로드 압축기를 제공합니다.
// gzip(호환성), s2(속도), zstd(압축률)를 지원합니다.
package compression

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// =============================================================================
// Compressor: 페이로드 압축
// =============================================================================
// 압축은 엔드포인트별 최적화 힌트 또는 전역 설정으로 켜집니다.
// 엔트리의 CompressionType 필드에 Name()이 기록됩니다.
// =============================================================================

// Compressor는 바이트 압축/해제 인터페이스입니다.
// core.Compressor와 동일한 시그니처입니다.
type Compressor interface {
	Name() string
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// New는 이름으로 압축기를 생성합니다.
//
// Parameters:
//   - name: "gzip", "s2", "zstd", "none"
//
// Returns:
//   - Compressor: 압축기
//   - error: 알 수 없는 이름인 경우
func New(name string) (Compressor, error) {
	switch name {
	case "gzip":
		return NewGzip(), nil
	case "s2", "":
		return NewS2(), nil
	case "zstd":
		return NewZstd()
	case "none":
		return NewNoop(), nil
	default:
		return nil, fmt.Errorf("compression: unknown compressor %q", name)
	}
}

// =============================================================================
// Gzip
// =============================================================================

// GzipCompressor는 표준 gzip 압축기입니다.
type GzipCompressor struct {
	level int
}

// NewGzip은 기본 레벨의 gzip 압축기를 생성합니다.
func NewGzip() *GzipCompressor {
	return &GzipCompressor{level: gzip.DefaultCompression}
}

func (c *GzipCompressor) Name() string {
	return "gzip"
}

func (c *GzipCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	w, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, fmt.Errorf("gzip compress: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("gzip compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip compress: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *GzipCompressor) Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip decompress: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gzip decompress: %w", err)
	}
	return out, nil
}

// =============================================================================
// S2: 속도 우선 (기본값)
// =============================================================================

// S2Compressor는 snappy 호환 S2 압축기입니다.
// 압축률보다 속도가 중요한 캐시에 적합해 기본값입니다.
type S2Compressor struct{}

// NewS2는 S2 압축기를 생성합니다.
func NewS2() *S2Compressor {
	return &S2Compressor{}
}

func (c *S2Compressor) Name() string {
	return "s2"
}

func (c *S2Compressor) Compress(data []byte) ([]byte, error) {
	return s2.Encode(nil, data), nil
}

func (c *S2Compressor) Decompress(data []byte) ([]byte, error) {
	out, err := s2.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("s2 decompress: %w", err)
	}
	return out, nil
}

// =============================================================================
// Zstd: 압축률 우선
// =============================================================================

// ZstdCompressor는 zstd 압축기입니다.
// 대형 페이로드에서 압축률이 필요할 때 사용합니다.
type ZstdCompressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewZstd는 zstd 압축기를 생성합니다.
// 인코더/디코더는 재사용 가능하며 동시 호출에 안전합니다.
func NewZstd() (*ZstdCompressor, error) {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	return &ZstdCompressor{encoder: encoder, decoder: decoder}, nil
}

func (c *ZstdCompressor) Name() string {
	return "zstd"
}

func (c *ZstdCompressor) Compress(data []byte) ([]byte, error) {
	return c.encoder.EncodeAll(data, nil), nil
}

func (c *ZstdCompressor) Decompress(data []byte) ([]byte, error) {
	out, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return out, nil
}

// =============================================================================
// Noop
// =============================================================================

// NoopCompressor는 압축하지 않는 압축기입니다.
type NoopCompressor struct{}

// NewNoop은 Noop 압축기를 생성합니다.
func NewNoop() *NoopCompressor {
	return &NoopCompressor{}
}

func (c *NoopCompressor) Name() string {
	return "none"
}

func (c *NoopCompressor) Compress(data []byte) ([]byte, error) {
	return data, nil
}

func (c *NoopCompressor) Decompress(data []byte) ([]byte, error) {
	return data, nil
}
