package compression

import (
	"bytes"
	"strings"
	"testing"
)

func testRoundTrip(t *testing.T, c Compressor) {
	t.Helper()

	original := []byte(strings.Repeat("adaptive response cache ", 100))

	packed, err := c.Compress(original)
	if err != nil {
		t.Fatalf("%s 압축 실패: %v", c.Name(), err)
	}

	restored, err := c.Decompress(packed)
	if err != nil {
		t.Fatalf("%s 해제 실패: %v", c.Name(), err)
	}
	if !bytes.Equal(original, restored) {
		t.Errorf("%s 왕복 후 데이터가 다름", c.Name())
	}
}

func TestGzip_왕복(t *testing.T) {
	testRoundTrip(t, NewGzip())
}

func TestS2_왕복(t *testing.T) {
	testRoundTrip(t, NewS2())
}

func TestZstd_왕복(t *testing.T) {
	c, err := NewZstd()
	if err != nil {
		t.Fatalf("zstd 생성 실패: %v", err)
	}
	testRoundTrip(t, c)
}

func TestNoop_통과(t *testing.T) {
	c := NewNoop()
	data := []byte("unchanged")

	packed, _ := c.Compress(data)
	if !bytes.Equal(data, packed) {
		t.Error("noop이 데이터를 변경함")
	}
}

func Test압축률(t *testing.T) {
	original := []byte(strings.Repeat("a", 8192))

	for _, name := range []string{"gzip", "s2", "zstd"} {
		c, err := New(name)
		if err != nil {
			t.Fatalf("생성 실패 %q: %v", name, err)
		}
		packed, _ := c.Compress(original)
		if len(packed) >= len(original) {
			t.Errorf("%s: 반복 데이터가 압축되지 않음 (%d >= %d)", name, len(packed), len(original))
		}
	}
}

func TestNew_알수없는이름(t *testing.T) {
	if _, err := New("lzma"); err == nil {
		t.Error("알 수 없는 압축기가 통과됨")
	}
}

func BenchmarkS2Compress(b *testing.B) {
	c := NewS2()
	data := []byte(strings.Repeat("adaptive response cache ", 100))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Compress(data)
	}
}
