package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"tlu-support/internal/models"
)

type UploadKind string

const (
	UploadImage  UploadKind = "IMAGE"
	UploadFile   UploadKind = "FILE"
	UploadAvatar UploadKind = "AVATAR"
)

type uploadRule struct {
	folder  string
	allowed []string
}

var uploadRules = map[UploadKind]uploadRule{
	UploadImage: {folder: "chat/images", allowed: []string{"image/jpeg", "image/png", "image/gif"}},
	UploadFile: {folder: "chat/files", allowed: []string{
		"application/pdf",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"text/plain",
		"application/vnd.ms-excel",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	}},
	UploadAvatar: {folder: "avatars", allowed: []string{"image/jpeg", "image/png"}},
}

type UploadResult struct {
	URL         string     `json:"url"`
	Type        UploadKind `json:"type"`
	Filename    string     `json:"filename"`
	ContentType string     `json:"content_type"`
	Size        int64      `json:"size"`
}

// MediaService validates uploads by sniffing their content and stores them in object storage.
type MediaService struct {
	storage  ObjectStorage
	maxBytes int64
	log      zerolog.Logger
}

func NewMediaService(storage ObjectStorage, maxBytes int64, log zerolog.Logger) *MediaService {
	return &MediaService{
		storage:  storage,
		maxBytes: maxBytes,
		log:      log.With().Str("component", "media").Logger(),
	}
}

func ParseUploadKind(raw string) (UploadKind, error) {
	kind := UploadKind(strings.ToUpper(raw))
	if kind != UploadImage && kind != UploadFile {
		return "", fmt.Errorf("%w: type must be IMAGE or FILE", models.ErrValidation)
	}
	return kind, nil
}

func (s *MediaService) Upload(ctx context.Context, kind UploadKind, filename string, r io.Reader) (*UploadResult, error) {
	rule, ok := uploadRules[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported upload type %q", models.ErrValidation, kind)
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read upload", models.ErrValidation)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: file is empty", models.ErrValidation)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", models.ErrValidation, s.maxBytes)
	}

	mtype := mimetype.Detect(data)
	if !mimetype.EqualsAny(mtype.String(), rule.allowed...) {
		return nil, fmt.Errorf("%w: file type %s is not allowed for %s", models.ErrValidation, mtype.String(), kind)
	}

	name := sanitizeFilename(filename, mtype.Extension())
	objectKey := fmt.Sprintf("%s/%d_%s", rule.folder, time.Now().UnixNano(), name)

	url, err := s.storage.Put(ctx, objectKey, bytes.NewReader(data), int64(len(data)), mtype.String())
	if err != nil {
		s.log.Error().Err(err).Str("key", objectKey).Msg("upload failed")
		return nil, fmt.Errorf("%w: failed to store file", models.ErrPersistence)
	}

	return &UploadResult{
		URL:         url,
		Type:        kind,
		Filename:    name,
		ContentType: mtype.String(),
		Size:        int64(len(data)),
	}, nil
}

func sanitizeFilename(name, fallbackExt string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
	if name == "" || name == "." || name == "_" {
		name = "file" + fallbackExt
	}
	return name
}
