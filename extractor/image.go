package extractor

import (
	"bytes"
	"context"
	"image"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/hazyhaar/docintel/detect"
	"github.com/hazyhaar/docintel/extract"
	"github.com/hazyhaar/docintel/fault"
)

// Image extracts standalone images: dimensions and format always, text
// content only when image OCR is enabled and a backend is registered.
type Image struct{}

func (Image) Supports(f detect.Format) bool { return detect.IsImage(f) }

func (Image) Extract(ctx context.Context, req extract.Request) (*extract.Result, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(req.Data))
	if err != nil {
		return nil, fault.ImageProcessing("decode image header", err)
	}

	res := &extract.Result{
		MimeType: detect.MimeType(req.Format),
		Metadata: extract.Metadata{
			Format: extract.FormatMeta{
				Kind: extract.MetaImage,
				Image: &extract.ImageMeta{
					Width:  uint32(cfg.Width),
					Height: uint32(cfg.Height),
					Format: format,
					EXIF:   map[string]string{},
				},
			},
		},
	}

	if req.Config == nil || !req.Config.Images.OCR {
		return res, nil
	}
	ordered := extract.OCRBackends().Ordered()
	if len(ordered) == 0 {
		req.Config.Logger.Warn("image OCR requested but no backend registered")
		return res, nil
	}

	out, err := ordered[0].Value.Run(ctx, req.Data, req.Config)
	if err != nil {
		return nil, fault.OCR("recognize image text", err)
	}
	res.Content = strings.TrimSpace(out.Text)
	res.Tables = out.Tables
	return res, nil
}
