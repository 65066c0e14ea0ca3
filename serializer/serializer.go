// Package serializer는 캐시 페이로드 직렬화기를 제공합니다.
// 기본값은 msgpack이며 json, raw를 선택할 수 있습니다.
package serializer

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// =============================================================================
// Serializer: 페이로드 인코딩/디코딩
// =============================================================================
// 엔트리의 ContentType 필드에 직렬화기 이름이 기록되므로
// Name()은 안정적인 식별자여야 합니다.
// =============================================================================

// Serializer는 값을 바이트로 변환하는 인터페이스입니다.
// core.Serializer와 동일한 시그니처입니다.
type Serializer interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// New는 이름으로 직렬화기를 생성합니다.
//
// Parameters:
//   - name: "msgpack", "json", "raw"
//
// Returns:
//   - Serializer: 직렬화기
//   - error: 알 수 없는 이름인 경우
func New(name string) (Serializer, error) {
	switch name {
	case "msgpack", "":
		return NewMsgPack(), nil
	case "json":
		return NewJSON(), nil
	case "raw":
		return NewRaw(), nil
	default:
		return nil, fmt.Errorf("serializer: unknown serializer %q", name)
	}
}

// =============================================================================
// MsgPack: 기본 직렬화기
// =============================================================================

// MsgPackSerializer는 MessagePack 직렬화기입니다.
// JSON보다 작고 빠르므로 기본값입니다.
type MsgPackSerializer struct{}

// NewMsgPack은 MessagePack 직렬화기를 생성합니다.
func NewMsgPack() *MsgPackSerializer {
	return &MsgPackSerializer{}
}

func (s *MsgPackSerializer) Name() string {
	return "msgpack"
}

func (s *MsgPackSerializer) Marshal(v any) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("msgpack marshal: %w", err)
	}
	return data, nil
}

func (s *MsgPackSerializer) Unmarshal(data []byte, v any) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("msgpack unmarshal: %w", err)
	}
	return nil
}

// =============================================================================
// JSON
// =============================================================================

// JSONSerializer는 JSON 직렬화기입니다.
// 사람이 읽을 수 있어야 하는 경우(디버깅, Redis CLI 검사)에 사용합니다.
type JSONSerializer struct{}

// NewJSON은 JSON 직렬화기를 생성합니다.
func NewJSON() *JSONSerializer {
	return &JSONSerializer{}
}

func (s *JSONSerializer) Name() string {
	return "json"
}

func (s *JSONSerializer) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json marshal: %w", err)
	}
	return data, nil
}

func (s *JSONSerializer) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("json unmarshal: %w", err)
	}
	return nil
}

// =============================================================================
// Raw
// =============================================================================

// RawSerializer는 []byte 페이로드를 그대로 통과시킵니다.
// 이미 직렬화된 응답(프록시 등)을 저장할 때 사용합니다.
type RawSerializer struct{}

// NewRaw는 Raw 직렬화기를 생성합니다.
func NewRaw() *RawSerializer {
	return &RawSerializer{}
}

func (s *RawSerializer) Name() string {
	return "raw"
}

func (s *RawSerializer) Marshal(v any) ([]byte, error) {
	switch data := v.(type) {
	case []byte:
		return data, nil
	case string:
		return []byte(data), nil
	default:
		return nil, fmt.Errorf("raw serializer: expected []byte or string, got %T", v)
	}
}

func (s *RawSerializer) Unmarshal(data []byte, v any) error {
	switch dest := v.(type) {
	case *[]byte:
		*dest = data
		return nil
	case *string:
		*dest = string(data)
		return nil
	default:
		return fmt.Errorf("raw serializer: expected *[]byte or *string, got %T", v)
	}
}
