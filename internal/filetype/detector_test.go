package filetype

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/local/pdfassembly/internal/items"
)

func TestDetectBytes(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	var pngBuf, jpgBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		t.Fatal(err)
	}
	if err := jpeg.Encode(&jpgBuf, img, nil); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		data []byte
		kind items.Kind
	}{
		{"pdf", []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n1 0 obj\n"), items.KindPDF},
		{"png", pngBuf.Bytes(), items.KindPNG},
		{"jpeg", jpgBuf.Bytes(), items.KindJPEG},
		{"text", []byte("hello world"), ""},
		{"empty", nil, ""},
	}
	d := New()
	for _, c := range cases {
		info := d.DetectBytes(c.data)
		if info.Kind != c.kind || info.Supported != (c.kind != "") {
			t.Errorf("%s: got %+v", c.name, info)
		}
	}
	if !d.Matches(pngBuf.Bytes(), items.KindPNG) || d.Matches(pngBuf.Bytes(), items.KindPDF) {
		t.Fatal("Matches disagrees with DetectBytes")
	}
}
