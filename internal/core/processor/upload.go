package processor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"slices"

	"photo-transform-go/config"

	_ "golang.org/x/image/webp"
)

var (
	ErrFileTooLarge      = errors.New("file too large")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrBadDimensions     = errors.New("image dimensions out of range")
	ErrEmptyUpload       = errors.New("no image uploaded")
)

// UploadInfo beschreibt ein geprüftes Upload-Bild
type UploadInfo struct {
	MIMEType string
	Width    int
	Height   int
	Bytes    int64
}

// ValidateUpload prüft Größe, Format und Abmessungen anhand des Bild-Headers.
// Das Bild wird dabei nicht vollständig dekodiert.
func ValidateUpload(data []byte, cfg config.UploadConfig) (UploadInfo, error) {
	if len(data) == 0 {
		return UploadInfo{}, ErrEmptyUpload
	}
	if cfg.MaxBytes > 0 && int64(len(data)) > cfg.MaxBytes {
		return UploadInfo{}, fmt.Errorf("%w: %d bytes, maximum is %d", ErrFileTooLarge, len(data), cfg.MaxBytes)
	}

	header, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return UploadInfo{}, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	mime := "image/" + format
	if !slices.Contains(cfg.SupportedFormats, mime) {
		return UploadInfo{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mime)
	}

	if header.Width < cfg.MinDimension || header.Height < cfg.MinDimension ||
		(cfg.MaxDimension > 0 && (header.Width > cfg.MaxDimension || header.Height > cfg.MaxDimension)) {
		return UploadInfo{}, fmt.Errorf("%w: %dx%d, allowed %d-%d px", ErrBadDimensions,
			header.Width, header.Height, cfg.MinDimension, cfg.MaxDimension)
	}

	return UploadInfo{
		MIMEType: mime,
		Width:    header.Width,
		Height:   header.Height,
		Bytes:    int64(len(data)),
	}, nil
}
