package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"peitu-server-go/src/configs"
	"peitu-server-go/src/core/utils"
)

func newTestLogger(t *testing.T) *utils.Logger {
	t.Helper()
	config := &configs.Config{}
	config.Log.LogDir = t.TempDir()
	config.Log.LogFile = "test.log"
	config.Log.LogLevel = "error"
	logger, err := utils.NewLogger(config)
	if err != nil {
		t.Fatalf("创建测试日志失败: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger
}

func testPipelineConfig() *configs.PipelineConfig {
	config := &configs.PipelineConfig{
		MinFileSize:     50,
		MaxFileSize:     8 * 1024 * 1024,
		DownloadTimeout: 3 * time.Second,
	}
	config.ApplyDefaults()
	config.MinFileSize = 50 // 测试用小图，放宽下限
	return config
}

// pngBytes 生成一张可解码的PNG测试图
func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 7), uint8(y * 13), uint8(x ^ y), 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("生成测试PNG失败: %v", err)
	}
	return buf.Bytes()
}

func TestEncodeSuccess(t *testing.T) {
	data := pngBytes(t, 64, 64)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	}))
	defer server.Close()

	encoder := NewEncoder(testPipelineConfig(), newTestLogger(t))
	encoded := encoder.Encode(context.Background(), Candidate{
		AnalysisURL: server.URL + "/thumb.png",
		DisplayURL:  server.URL + "/full.png",
	})

	if encoded == nil {
		t.Fatal("有效PNG应编码成功")
	}
	if encoded.MimeType != "image/png" {
		t.Errorf("MimeType = %q, want image/png", encoded.MimeType)
	}
	if encoded.Size != int64(len(data)) {
		t.Errorf("Size = %d, want %d", encoded.Size, len(data))
	}
	if encoded.Data != base64.StdEncoding.EncodeToString(data) {
		t.Error("分块编码结果应与整体编码一致")
	}
	if encoded.DisplayURL != server.URL+"/full.png" {
		t.Error("展示URL不应在编码过程中丢失")
	}
}

func TestEncodeRejectsBadCandidates(t *testing.T) {
	pngData := pngBytes(t, 64, 64)

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "非2xx状态码",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "not found", http.StatusNotFound)
			},
		},
		{
			name: "非图片Content-Type",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				w.Write([]byte("<html>hotlink denied</html>"))
			},
		},
		{
			name: "伪装成图片的HTML",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "image/jpeg")
				w.Write(bytes.Repeat([]byte("<html>not an image</html>"), 10))
			},
		},
		{
			name: "响应体过小",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "image/png")
				w.Write(pngData[:20])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			encoder := NewEncoder(testPipelineConfig(), newTestLogger(t))
			if got := encoder.Encode(context.Background(), Candidate{AnalysisURL: server.URL}); got != nil {
				t.Error("无效候选应返回nil")
			}
		})
	}
}

func TestEncodeChunkedMatchesWholeEncoding(t *testing.T) {
	// 跨越多个切片边界的尺寸都应与一次性编码等价
	sizes := []int{0, 1, encodeChunkSize - 1, encodeChunkSize, encodeChunkSize + 1, 3*encodeChunkSize + 17}
	for _, size := range sizes {
		data := make([]byte, size)
		for i := range data {
			data[i] = byte(i * 31)
		}
		if got, want := encodeChunked(data), base64.StdEncoding.EncodeToString(data); got != want {
			t.Errorf("size=%d 分块编码与整体编码不一致", size)
		}
	}
}

func TestValidateBounds(t *testing.T) {
	config := testPipelineConfig()
	config.MinFileSize = 500
	validator := NewValidator(config, newTestLogger(t))

	small := pngBytes(t, 2, 2)
	if result := validator.Validate(small); result.IsValid && int64(len(small)) < 500 {
		t.Error("小于500字节的图片应被拒绝")
	}

	big := pngBytes(t, 128, 128)
	if int64(len(big)) >= 500 {
		result := validator.Validate(big)
		if !result.IsValid {
			t.Fatalf("有效PNG应通过验证: %v", result.Error)
		}
		if result.Width != 128 || result.Height != 128 {
			t.Errorf("解码尺寸 = %dx%d, want 128x128", result.Width, result.Height)
		}
	}
}
