package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tlu-support/internal/models"
	"tlu-support/internal/repository"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

type fakeStorage struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (s *fakeStorage) Put(_ context.Context, key string, r io.Reader, size int64, _ string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	data, _ := io.ReadAll(r)
	if int64(len(data)) != size {
		return "", errors.New("size mismatch")
	}
	s.mu.Lock()
	s.keys = append(s.keys, key)
	s.mu.Unlock()
	return "http://cdn.test/bucket/" + key, nil
}

func TestMediaUploadValidation(t *testing.T) {
	storage := &fakeStorage{}
	media := NewMediaService(storage, 1024, zerolog.Nop())
	ctx := context.Background()

	res, err := media.Upload(ctx, UploadImage, "../../photo.png", bytes.NewReader(pngHeader))
	require.NoError(t, err)
	assert.Equal(t, "image/png", res.ContentType)
	assert.Equal(t, "photo.png", res.Filename)
	assert.True(t, strings.HasPrefix(storage.keys[0], "chat/images/"))
	assert.True(t, strings.HasSuffix(res.URL, "_photo.png"))

	res, err = media.Upload(ctx, UploadFile, "notes.txt", strings.NewReader("plain notes"))
	require.NoError(t, err)
	assert.Equal(t, UploadFile, res.Type)

	_, err = media.Upload(ctx, UploadImage, "notes.txt", strings.NewReader("plain notes"))
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = media.Upload(ctx, UploadFile, "big.txt", strings.NewReader(strings.Repeat("a", 2048)))
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = media.Upload(ctx, UploadFile, "empty.txt", strings.NewReader(""))
	assert.ErrorIs(t, err, models.ErrValidation)

	storage.err = errors.New("minio down")
	_, err = media.Upload(ctx, UploadImage, "photo.png", bytes.NewReader(pngHeader))
	assert.ErrorIs(t, err, models.ErrPersistence)
}

func TestParseUploadKind(t *testing.T) {
	k, err := ParseUploadKind("image")
	require.NoError(t, err)
	assert.Equal(t, UploadImage, k)

	_, err = ParseUploadKind("AVATAR")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestProfileIsCachedAndInvalidated(t *testing.T) {
	store := repository.NewMemoryStore()
	cache := newFakeCache()
	storage := &fakeStorage{}
	svc := NewStudentService(store, store, NewMediaService(storage, 1024, zerolog.Nop()), cache, 0, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, &models.User{ID: "u-1", Email: "a@uni.test", FullName: "A", Role: models.RoleStudent}))
	require.NoError(t, store.CreateStudent(ctx, &models.Student{UserID: "u-1", StudentCode: "S1", AcademicStatus: models.AcademicWarning}))

	p, err := svc.GetProfile(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "S1", p.StudentCode)
	assert.True(t, cache.Exists(ctx, profileCacheKey("u-1")))

	phone := "+84912345678"
	p, err = svc.UpdateProfile(ctx, "u-1", UpdateProfileInput{
		Phone:  &phone,
		Avatar: &AvatarUpload{Filename: "me.png", Reader: bytes.NewReader(pngHeader)},
	})
	require.NoError(t, err)
	assert.Equal(t, phone, p.Phone)
	assert.True(t, strings.HasPrefix(p.Avatar, "http://cdn.test/bucket/avatars/"))

	_, err = svc.UpdateProfile(ctx, "u-1", UpdateProfileInput{
		Avatar: &AvatarUpload{Filename: "doc.txt", Reader: strings.NewReader("not an image")},
	})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestListStudentsDefaultsAndLimits(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := NewStudentService(store, store, nil, newFakeCache(), 0, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, &models.User{ID: "u-1", Email: "a@uni.test", FullName: "A"}))
	require.NoError(t, store.CreateStudent(ctx, &models.Student{UserID: "u-1", StudentCode: "S1", AcademicStatus: models.AcademicActive}))
	require.NoError(t, store.CreateUser(ctx, &models.User{ID: "l-1", Email: "l@uni.test", FullName: "L", Role: models.RoleLecturer}))

	page, err := svc.ListStudents(ctx, models.StudentFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, DefaultRosterSize, page.Size)
	assert.EqualValues(t, 1, page.Total)

	_, err = svc.ListStudents(ctx, models.StudentFilter{Size: 101})
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = svc.ListStudents(ctx, models.StudentFilter{Status: "EXPELLED"})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = svc.GetStudent(ctx, "l-1")
	assert.ErrorIs(t, err, models.ErrNotFound)
	p, err := svc.GetStudent(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "S1", p.StudentCode)
}
