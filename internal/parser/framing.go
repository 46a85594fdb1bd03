package parser

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"ingest/internal/format"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Frame wraps a raw file stream with decompression and character decoding so
// that decoders always read uncompressed UTF-8 (or raw bytes for binary
// formats). path is only used for suffix-based compression detection.
//
// Errors of src are tagged as *SourceError; errors produced while
// decompressing are decode errors.
func Frame(src io.Reader, path string, opts format.FileFormatOptions) (io.ReadCloser, error) {
	br := bufio.NewReaderSize(sourceReader{src}, 64*1024)

	comp := opts.Compression
	if comp == format.CompressionAuto {
		comp = detectCompression(br, path)
	}

	var (
		r      io.Reader = br
		closer func()
	)
	switch comp {
	case format.CompressionGzip:
		zr, err := gzip.NewReader(br)
		switch {
		case errors.Is(err, io.EOF):
			// Zero-byte member: an empty file.
			r = bytes.NewReader(nil)
		case err != nil:
			return nil, StreamError(1, err)
		default:
			r = zr
			closer = func() { _ = zr.Close() }
		}
	case format.CompressionZstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, StreamError(1, err)
		}
		r = zr
		closer = zr.Close
	}

	if opts.Kind != format.Avro {
		// BOMOverride strips a UTF-8 BOM and honors UTF-16 BOMs; the fallback
		// applies when no BOM is present.
		var fallback transform.Transformer = transform.Nop
		if opts.Encoding != nil {
			fallback = opts.Encoding.NewDecoder()
		}
		r = transform.NewReader(r, unicode.BOMOverride(fallback))
	}
	return &framed{Reader: r, close: closer}, nil
}

func detectCompression(br *bufio.Reader, path string) format.Compression {
	p := strings.ToLower(path)
	switch {
	case strings.HasSuffix(p, ".gz"), strings.HasSuffix(p, ".gzip"):
		return format.CompressionGzip
	case strings.HasSuffix(p, ".zst"), strings.HasSuffix(p, ".zstd"):
		return format.CompressionZstd
	}
	head, _ := br.Peek(len(zstdMagic))
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		return format.CompressionGzip
	case bytes.HasPrefix(head, zstdMagic):
		return format.CompressionZstd
	}
	return format.CompressionNone
}

type framed struct {
	io.Reader
	close func()
}

// Close releases decompressor state. The underlying source is closed by its
// owner.
func (f *framed) Close() error {
	if f.close != nil {
		f.close()
	}
	return nil
}

type sourceReader struct{ r io.Reader }

func (s sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		err = &SourceError{Err: err}
	}
	return n, err
}
