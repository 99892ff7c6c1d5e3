package extractor

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/hazyhaar/docintel/detect"
	"github.com/hazyhaar/docintel/extract"
	"github.com/hazyhaar/docintel/fault"
)

// Archive lists the contents of zip, tar and tar.gz archives. Content is a
// human-readable file listing; members are never extracted recursively.
type Archive struct{}

func (Archive) Supports(f detect.Format) bool {
	switch f {
	case detect.FormatZIP, detect.FormatTAR, detect.FormatTGZ:
		return true
	}
	return false
}

func (Archive) Extract(_ context.Context, req extract.Request) (*extract.Result, error) {
	var (
		meta *extract.ArchiveMeta
		err  error
	)
	switch req.Format {
	case detect.FormatZIP:
		meta, err = listZip(req.Data)
	case detect.FormatTAR:
		meta, err = listTar(bytes.NewReader(req.Data), "tar")
	case detect.FormatTGZ:
		var gz *gzip.Reader
		gz, err = gzip.NewReader(bytes.NewReader(req.Data))
		if err != nil {
			return nil, fault.Parsing("open gzip stream", err)
		}
		defer gz.Close()
		meta, err = listTar(gz, "tar.gz")
	default:
		return nil, fault.UnsupportedFormat(string(req.Format))
	}
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Archive (%s, %d files, %d bytes)\n", meta.Format, meta.FileCount, meta.TotalSize)
	for _, name := range meta.FileList {
		sb.WriteString(name)
		sb.WriteByte('\n')
	}

	return &extract.Result{
		Content:  sb.String(),
		MimeType: detect.MimeType(req.Format),
		Metadata: extract.Metadata{
			Format: extract.FormatMeta{Kind: extract.MetaArchive, Archive: meta},
		},
	}, nil
}

func listZip(data []byte) (*extract.ArchiveMeta, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fault.Parsing("open zip archive", err)
	}

	meta := &extract.ArchiveMeta{Format: "zip", FileList: []string{}}
	compressed := 0
	for _, f := range r.File {
		meta.FileList = append(meta.FileList, f.Name)
		if !f.FileInfo().IsDir() {
			meta.FileCount++
			meta.TotalSize += int(f.UncompressedSize64)
			compressed += int(f.CompressedSize64)
		}
	}
	meta.CompressedSize = &compressed
	return meta, nil
}

func listTar(r io.Reader, format string) (*extract.ArchiveMeta, error) {
	tr := tar.NewReader(r)
	meta := &extract.ArchiveMeta{Format: format, FileList: []string{}}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fault.Parsing("read tar archive", err)
		}
		meta.FileList = append(meta.FileList, hdr.Name)
		if hdr.Typeflag == tar.TypeReg {
			meta.FileCount++
			meta.TotalSize += int(hdr.Size)
		}
	}
	return meta, nil
}
