package upload

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/aryan0dhankhar/visiongate/internal/domain"
	"github.com/aryan0dhankhar/visiongate/internal/staging"
)

// FieldName is the only multipart field read as the image
const FieldName = "image"

// sniffLen matches what http.DetectContentType considers
const sniffLen = 512

// multipartOverhead is the body allowance on top of the file limit for boundaries and headers
const multipartOverhead = 64 << 10

var knownExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
	"image/bmp":  ".bmp",
}

// Intake validates an inbound multipart upload and streams the image into the staging area
type Intake struct {
	area     *staging.Area
	maxBytes int64
	allowed  map[string]bool
	now      func() time.Time
	logger   *slog.Logger
}

// NewIntake creates an intake bound to a staging area
func NewIntake(area *staging.Area, maxBytes int64, allowedTypes []string, logger *slog.Logger) (*Intake, error) {
	if area == nil {
		return nil, errors.New("staging area is required")
	}
	if maxBytes <= 0 {
		return nil, errors.New("max upload size must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[string]bool, len(allowedTypes))
	for _, t := range allowedTypes {
		allowed[normalizeType(t)] = true
	}
	if len(allowed) == 0 {
		return nil, errors.New("at least one allowed content type is required")
	}
	return &Intake{
		area:     area,
		maxBytes: maxBytes,
		allowed:  allowed,
		now:      time.Now,
		logger:   logger,
	}, nil
}

// Accept reads the request body and returns the staged asset.
// On any error nothing is left in the staging area.
func (in *Intake) Accept(w http.ResponseWriter, r *http.Request) (*domain.UploadedAsset, error) {
	r.Body = http.MaxBytesReader(w, r.Body, in.maxBytes+multipartOverhead)

	reader, err := r.MultipartReader()
	if err != nil {
		return nil, domain.NewError(domain.ErrValidation, `no image uploaded; send multipart/form-data with an "image" field`)
	}

	var asset *domain.UploadedAsset
	fail := func(err error) (*domain.UploadedAsset, error) {
		if asset != nil {
			in.discard(asset.Path)
		}
		return nil, err
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fail(in.bodyError(err))
		}

		if part.FormName() != FieldName || part.FileName() == "" {
			_, err := io.Copy(io.Discard, part)
			part.Close()
			if err != nil {
				return fail(in.bodyError(err))
			}
			continue
		}

		if asset != nil {
			part.Close()
			return fail(domain.NewError(domain.ErrValidation, "only one image may be uploaded per request"))
		}

		asset, err = in.stage(part.FileName(), part.Header.Get("Content-Type"), part)
		part.Close()
		if err != nil {
			return nil, err
		}
	}

	if asset == nil {
		return nil, domain.NewError(domain.ErrValidation, `no image uploaded; use the "image" field`)
	}
	return asset, nil
}

func (in *Intake) stage(filename, declared string, src io.Reader) (*domain.UploadedAsset, error) {
	declaredType := normalizeType(declared)
	if !in.allowed[declaredType] {
		return nil, domain.NewError(domain.ErrValidation,
			fmt.Sprintf("unsupported file type %q; allowed: %s", declaredType, in.allowedList()))
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, in.bodyError(err)
	}
	head = head[:n]
	if n == 0 {
		return nil, domain.NewError(domain.ErrValidation, "uploaded file is empty")
	}

	sniffed := normalizeType(http.DetectContentType(head))
	if !strings.HasPrefix(sniffed, "image/") || !in.allowed[sniffed] {
		return nil, domain.NewError(domain.ErrValidation, "file content is not a supported image")
	}

	id, f, err := in.area.Create(extensionFor(sniffed))
	if err != nil {
		return nil, domain.WrapError(domain.ErrInternal, "could not store upload", err)
	}
	path := f.Name()

	written, err := f.Write(head)
	if err == nil {
		var rest int64
		rest, err = io.Copy(f, io.LimitReader(src, in.maxBytes-int64(written)+1))
		written += int(rest)
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		in.discard(path)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, in.tooLarge()
		}
		return nil, in.bodyError(err)
	}
	if int64(written) > in.maxBytes {
		in.discard(path)
		return nil, in.tooLarge()
	}

	return &domain.UploadedAsset{
		ID:               id,
		Path:             path,
		OriginalFilename: filename,
		Size:             int64(written),
		MimeType:         sniffed,
		UploadedAt:       in.now().UTC(),
	}, nil
}

func (in *Intake) bodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return in.tooLarge()
	}
	return domain.WrapError(domain.ErrValidation, "malformed multipart body", err)
}

func (in *Intake) tooLarge() error {
	return domain.NewError(domain.ErrValidation, fmt.Sprintf("file exceeds the %d byte limit", in.maxBytes))
}

func (in *Intake) discard(path string) {
	if err := in.area.Remove(path); err != nil {
		in.logger.Error("failed to remove rejected upload",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

func (in *Intake) allowedList() string {
	types := make([]string, 0, len(in.allowed))
	for t := range in.allowed {
		types = append(types, t)
	}
	slices.Sort(types)
	return strings.Join(types, ", ")
}

func normalizeType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(contentType)
	}
	mediaType = strings.ToLower(mediaType)
	if mediaType == "image/jpg" || mediaType == "image/pjpeg" {
		return "image/jpeg"
	}
	return mediaType
}

func extensionFor(mediaType string) string {
	if ext, ok := knownExtensions[mediaType]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
