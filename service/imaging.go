package service

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	stddraw "image/draw"
	"image/jpeg"
	_ "image/png"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

// CompressImage scales an image down so its longest side is at most maxSide
// and re-encodes it as JPEG. Payloads that are not decodable images (PDF
// certificates, for example) are returned unchanged with their mime type.
func CompressImage(data []byte, mimeType string, maxSide, quality int) ([]byte, string, error) {
	if !strings.HasPrefix(mimeType, "image/") {
		return data, mimeType, nil
	}
	src, err := decodeImage(data)
	if err != nil {
		return data, mimeType, nil
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, "", errors.New("image has no pixels")
	}
	if maxSide > 0 && (w > maxSide || h > maxSide) {
		if w >= h {
			h = h * maxSide / w
			w = maxSide
		} else {
			w = w * maxSide / h
			h = maxSide
		}
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
	}

	// JPEG has no alpha: flatten onto white first
	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	stddraw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, stddraw.Src)
	xdraw.ApproxBiLinear.Scale(canvas, canvas.Bounds(), src, b, stddraw.Over, nil)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, canvas, &jpeg.Options{Quality: quality}); err != nil {
		return nil, "", fmt.Errorf("failed to encode image: %w", err)
	}
	if out.Len() >= len(data) && mimeType == "image/jpeg" && w == b.Dx() && h == b.Dy() {
		return data, mimeType, nil
	}
	return out.Bytes(), "image/jpeg", nil
}

func decodeImage(raw []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err == nil {
		return img, nil
	}
	if decoded, webpErr := webp.Decode(bytes.NewReader(raw)); webpErr == nil {
		return decoded, nil
	}
	return nil, err
}

// EncodeDataURL renders data as a base64 data URL.
func EncodeDataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ParseDataURL decodes a base64 data URL into its bytes and mime type.
func ParseDataURL(value string) ([]byte, string, error) {
	raw := strings.TrimSpace(value)
	if !strings.HasPrefix(raw, "data:") {
		return nil, "", errors.New("invalid data url prefix")
	}
	comma := strings.Index(raw, ",")
	if comma <= 5 {
		return nil, "", errors.New("invalid data url payload")
	}
	meta := raw[5:comma]
	if !strings.HasSuffix(strings.ToLower(meta), ";base64") {
		return nil, "", errors.New("data url must be base64")
	}
	mimeType := strings.TrimSpace(meta[:len(meta)-len(";base64")])
	if mimeType == "" {
		return nil, "", errors.New("missing data url mime type")
	}
	decoded, err := base64.StdEncoding.DecodeString(raw[comma+1:])
	if err != nil {
		return nil, "", errors.New("unable to decode data url")
	}
	if len(decoded) == 0 {
		return nil, "", errors.New("empty data url content")
	}
	return decoded, mimeType, nil
}

var extensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

// UploadName builds the stored file name <enquiry>_<field>_<unix>.<ext>.
// The extension follows the mime type, falling back to the original name.
func UploadName(businessKey, field, original, mimeType string, now time.Time) string {
	key := strings.TrimSpace(businessKey)
	if key == "" {
		key = "unknown"
	}
	key = strings.NewReplacer("/", "-", "\\", "-", " ", "_").Replace(key)

	ext, ok := extensions[mimeType]
	if !ok {
		ext = strings.ToLower(filepath.Ext(original))
	}
	return key + "_" + field + "_" + strconv.FormatInt(now.Unix(), 10) + ext
}
