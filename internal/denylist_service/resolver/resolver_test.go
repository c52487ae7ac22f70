package resolver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/autobahn/moderation/internal/denylist_service/domain"
)

type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) ResolveInviteLink(ctx context.Context, hash string) (int64, error) {
	args := m.Called(ctx, hash)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDirectory) GetEntity(ctx context.Context, handle string) (int64, error) {
	args := m.Called(ctx, handle)
	return args.Get(0).(int64), args.Error(1)
}

type MockFollower struct {
	mock.Mock
}

func (m *MockFollower) Follow(ctx context.Context, rawURL string) (string, error) {
	args := m.Called(ctx, rawURL)
	return args.String(0), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func defaultOptions() Options {
	return Options{
		FirstPartyDomains:  []string{"t.me", "telegram.me", "telegram.org", "telegra.ph"},
		MHashWarnSymbol:    '0',
		MHashWarnThreshold: 8,
		HashWorkers:        2,
	}
}

func legacyInviteHash(creator, chat uint32) string {
	raw := make([]byte, 16)
	binary.BigEndian.PutUint32(raw[0:4], creator)
	binary.BigEndian.PutUint32(raw[4:8], chat)
	binary.BigEndian.PutUint64(raw[8:16], 0xdeadbeefcafe)
	return base64.RawURLEncoding.EncodeToString(raw)
}

func TestCanonicalize_TextCategories(t *testing.T) {
	r := New(nil, nil, defaultOptions(), testLogger())
	ctx := context.Background()

	got, err := r.Canonicalize(ctx, domain.CategoryString, "invest with bitcoin")
	require.NoError(t, err)
	assert.Equal(t, "invest with bitcoin", got)

	got, err = r.Canonicalize(ctx, domain.CategoryTLD, ".xyz")
	require.NoError(t, err)
	assert.Equal(t, "xyz", got)

	_, err = r.Canonicalize(ctx, domain.CategoryBio, "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = r.Canonicalize(ctx, domain.CategoryTLD, "..")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = r.Canonicalize(ctx, domain.CategoryFile, "abc")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCanonicalize_Channel(t *testing.T) {
	ctx := context.Background()

	t.Run("NumericID", func(t *testing.T) {
		dir := new(MockDirectory)
		r := New(dir, nil, defaultOptions(), testLogger())
		got, err := r.Canonicalize(ctx, domain.CategoryChannel, "-1001234567")
		require.NoError(t, err)
		assert.Equal(t, "-1001234567", got)
		dir.AssertNotCalled(t, "GetEntity", mock.Anything, mock.Anything)
	})

	t.Run("Handles", func(t *testing.T) {
		for _, token := range []string{"@durov", "https://t.me/durov?start=abc", "tg://resolve?domain=durov&start=1", "t.me/@durov"} {
			dir := new(MockDirectory)
			dir.On("GetEntity", mock.Anything, "durov").Return(int64(1006503122), nil).Once()
			r := New(dir, nil, defaultOptions(), testLogger())

			got, err := r.Canonicalize(ctx, domain.CategoryChannel, token)
			require.NoError(t, err, token)
			assert.Equal(t, "1006503122", got, token)
			dir.AssertExpectations(t)
		}
	})

	t.Run("LegacyInviteDecodedLocally", func(t *testing.T) {
		dir := new(MockDirectory)
		r := New(dir, nil, defaultOptions(), testLogger())

		hash := legacyInviteHash(777, 1234567)
		got, err := r.Canonicalize(ctx, domain.CategoryChannel, "https://t.me/joinchat/"+hash)
		require.NoError(t, err)
		assert.Equal(t, "1234567", got)

		got, err = r.Canonicalize(ctx, domain.CategoryChannel, "tg://join?invite="+hash)
		require.NoError(t, err)
		assert.Equal(t, "1234567", got)
		dir.AssertNotCalled(t, "ResolveInviteLink", mock.Anything, mock.Anything)
	})

	t.Run("OpaqueInviteGoesToDirectory", func(t *testing.T) {
		dir := new(MockDirectory)
		dir.On("ResolveInviteLink", mock.Anything, "AbCd").Return(int64(42), nil).Once()
		r := New(dir, nil, defaultOptions(), testLogger())

		got, err := r.Canonicalize(ctx, domain.CategoryChannel, "t.me/joinchat/AbCd")
		require.NoError(t, err)
		assert.Equal(t, "42", got)
		dir.AssertExpectations(t)
	})

	t.Run("DirectoryFailureIsUnresolvable", func(t *testing.T) {
		dir := new(MockDirectory)
		dir.On("GetEntity", mock.Anything, "ghost").Return(int64(0), errors.New("USERNAME_NOT_OCCUPIED")).Once()
		r := New(dir, nil, defaultOptions(), testLogger())

		_, err := r.Canonicalize(ctx, domain.CategoryChannel, "@ghost")
		assert.ErrorIs(t, err, domain.ErrUnresolvable)
	})

	t.Run("NoDirectory", func(t *testing.T) {
		r := New(nil, nil, defaultOptions(), testLogger())
		_, err := r.Canonicalize(ctx, domain.CategoryChannel, "@ghost")
		assert.ErrorIs(t, err, domain.ErrUnresolvable)
	})
}

func TestCanonicalize_Domain(t *testing.T) {
	r := New(nil, nil, defaultOptions(), testLogger())
	ctx := context.Background()

	tests := []struct {
		token   string
		want    string
		wantErr error
	}{
		{token: "example.com", want: "example.com"},
		{token: "https://WWW.Example.COM/path?q=1", want: "example.com"},
		{token: "cdn.spam.example.co.uk", want: "example.co.uk"},
		{token: "http://10.0.0.1:8080/x", want: "10.0.0.1"},
		{token: "t.me/joinchat/abc", wantErr: domain.ErrFirstPartyDomain},
		{token: "https://www.telegram.org", wantErr: domain.ErrFirstPartyDomain},
		{token: "http://", wantErr: domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, err := r.Canonicalize(ctx, domain.CategoryDomain, tt.token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanonicalize_DomainFollowsRedirects(t *testing.T) {
	ctx := context.Background()
	opts := defaultOptions()
	opts.FollowRedirects = true

	t.Run("UsesFinalURL", func(t *testing.T) {
		follower := new(MockFollower)
		follower.On("Follow", mock.Anything, "bit.ly/xyz").Return("https://landing.scam.example/offer", nil).Once()
		r := New(nil, follower, opts, testLogger())

		got, err := r.Canonicalize(ctx, domain.CategoryDomain, "bit.ly/xyz")
		require.NoError(t, err)
		assert.Equal(t, "scam.example", got)
		follower.AssertExpectations(t)
	})

	t.Run("FallsBackToToken", func(t *testing.T) {
		follower := new(MockFollower)
		follower.On("Follow", mock.Anything, "dead.example.net").Return("", errors.New("no such host")).Once()
		r := New(nil, follower, opts, testLogger())

		got, err := r.Canonicalize(ctx, domain.CategoryDomain, "dead.example.net")
		require.NoError(t, err)
		assert.Equal(t, "example.net", got)
	})
}

func TestWrittenDomain(t *testing.T) {
	follower := new(MockFollower)
	opts := defaultOptions()
	opts.FollowRedirects = true
	r := New(nil, follower, opts, testLogger())

	got, err := r.WrittenDomain("https://bit.ly/xyz")
	require.NoError(t, err)
	assert.Equal(t, "bit.ly", got)

	_, err = r.WrittenDomain("https://t.me/joinchat/abc")
	assert.ErrorIs(t, err, domain.ErrFirstPartyDomain)

	_, err = r.WrittenDomain("  ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	follower.AssertNotCalled(t, "Follow", mock.Anything, mock.Anything)
}

func TestHTTPRedirectFollower(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/end", http.StatusFound)
	})
	mux.HandleFunc("/end", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "moderation-test", r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	f := NewHTTPRedirectFollower(server.Client(), "moderation-test")
	final, err := f.Follow(context.Background(), server.URL+"/start")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(final, "/end"), final)
}

func TestHashFile(t *testing.T) {
	r := New(nil, nil, defaultOptions(), testLogger())

	digest, err := r.HashFile(context.Background(), []byte("abc"))
	require.NoError(t, err)
	assert.Len(t, digest, 128)
	assert.Equal(t, "ddaf35a193617abacc417349ae20413112e6fa4e89a97ea20a9eeee64b55d39a"+
		"2192992a274fc1a836ba3c23a3feebbd454d4423643ce80e2a9ac94fa54ca49f", digest)

	_, err = r.HashFile(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestHashFile_WaitsForWorker(t *testing.T) {
	opts := defaultOptions()
	opts.HashWorkers = 1
	r := New(nil, nil, opts, testLogger())

	require.NoError(t, r.workers.Acquire(context.Background(), 1))
	defer r.workers.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.HashFile(ctx, []byte("abc"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOffload_CancelledWhileWorking(t *testing.T) {
	opts := defaultOptions()
	opts.HashWorkers = 1
	r := New(nil, nil, opts, testLogger())

	started := make(chan struct{})
	release := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	valueCh := make(chan string, 1)
	go func() {
		value, err := r.offload(ctx, func() (string, error) {
			close(started)
			<-release
			return "late result", nil
		})
		valueCh <- value
		errCh <- err
	}()

	<-started
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
	assert.Empty(t, <-valueCh)

	close(release)
	acquireCtx, stop := context.WithTimeout(context.Background(), time.Second)
	defer stop()
	require.NoError(t, r.workers.Acquire(acquireCtx, 1))
	r.workers.Release(1)
}

func TestHashesSimilar(t *testing.T) {
	tests := []struct {
		name      string
		a, b      string
		tolerance int
		want      bool
	}{
		{"Identical", "0f0f0f0f0f0f0f0f", "0f0f0f0f0f0f0f0f", 2, true},
		{"TwoBitsApart", "0f0f0f0f0f0f0f0f", "0f0f0f0f0f0f0f0c", 2, true},
		{"ThreeBitsApart", "0f0f0f0f0f0f0f0f", "0f0f0f0f0f0f0f08", 2, false},
		{"ZeroTolerance", "0000000000000000", "0000000000000001", 0, false},
		{"Malformed", "zz", "0000000000000000", 64, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HashesSimilar(tt.a, tt.b, tt.tolerance))
		})
	}
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestHashImage(t *testing.T) {
	ctx := context.Background()

	t.Run("SplitImageHasNoWarning", func(t *testing.T) {
		r := New(nil, nil, defaultOptions(), testLogger())
		img := image.NewGray(image.Rect(0, 0, 8, 8))
		for y := 0; y < 8; y++ {
			for x := 4; x < 8; x++ {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}

		hash, warning, err := r.HashImage(ctx, encodePNG(t, img))
		require.NoError(t, err)
		assert.Equal(t, "0f0f0f0f0f0f0f0f", hash)
		assert.Empty(t, warning)
	})

	t.Run("UniformImageWarns", func(t *testing.T) {
		r := New(nil, nil, defaultOptions(), testLogger())
		img := image.NewRGBA(image.Rect(0, 0, 32, 32))
		for i := 3; i < len(img.Pix); i += 4 {
			img.Pix[i] = 0xff
		}

		hash, warning, err := r.HashImage(ctx, encodePNG(t, img))
		require.NoError(t, err)
		assert.Equal(t, "0000000000000000", hash)
		assert.NotEmpty(t, warning)
	})

	t.Run("ThresholdIsConfigurable", func(t *testing.T) {
		opts := defaultOptions()
		opts.MHashWarnThreshold = 16
		r := New(nil, nil, opts, testLogger())

		hash, warning, err := r.HashImage(ctx, encodePNG(t, image.NewGray(image.Rect(0, 0, 8, 8))))
		require.NoError(t, err)
		assert.Equal(t, "0000000000000000", hash)
		assert.Empty(t, warning)
	})

	t.Run("NotAnImage", func(t *testing.T) {
		r := New(nil, nil, defaultOptions(), testLogger())
		_, _, err := r.HashImage(ctx, []byte("definitely not a picture"))
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestDigest(t *testing.T) {
	r := New(nil, nil, defaultOptions(), testLogger())
	ctx := context.Background()

	value, warning, err := r.Digest(ctx, domain.CategoryFile, []byte("abc"))
	require.NoError(t, err)
	assert.Len(t, value, 128)
	assert.Empty(t, warning)

	_, _, err = r.Digest(ctx, domain.CategoryDomain, []byte("abc"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
