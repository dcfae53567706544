package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/John-Robertt/subfetch/internal/archive"
	"github.com/John-Robertt/subfetch/internal/domain"
)

func TestKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("podnapisi: %w", ErrNoMovies), domain.KindNoMovies},
		{&Error{Provider: "x", Stage: "list", Err: ErrNoSubtitles}, domain.KindNoSubtitles},
		{&Error{Provider: "x", Stage: "resolve", Err: &NoLocatorError{}}, domain.KindNoLocator},
		{&Error{Provider: "x", Stage: "search", Err: &NetworkError{StatusCode: 503}}, domain.KindNetwork},
		{&archive.EmptyArchiveError{}, domain.KindEmptyArchive},
		{&ArchiveExtractionError{ArchiveErr: errors.New("zip"), TextErr: archive.ErrNotText}, domain.KindArchiveExtraction},
		{fmt.Errorf("wrap: %w", context.Canceled), domain.KindCanceled},
		{&Error{Provider: "x", Stage: "search", Err: context.DeadlineExceeded}, domain.KindTimeout},
		{errors.New("selector changed"), domain.KindFetchFailed},
	}
	for _, tc := range cases {
		if got := Kind(tc.err); got != tc.want {
			t.Fatalf("Kind(%v)：期望 %q，实际 %q", tc.err, tc.want, got)
		}
	}
}

func TestError_Unwrap(t *testing.T) {
	inner := &NetworkError{URL: "https://example.test", StatusCode: 500}
	err := &Error{Provider: "podnapisi", Stage: "search", Err: inner}
	var ne *NetworkError
	if !errors.As(err, &ne) || ne != inner {
		t.Fatalf("errors.As 应能取到内部 NetworkError")
	}
}

func TestKind_Timeouts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, _, err := Get(ctx, srv.Client(), srv.URL, nil); Kind(err) != domain.KindTimeout {
		t.Fatalf("context 超时：期望 %q，实际 %q（err=%v）", domain.KindTimeout, Kind(err), err)
	}

	c := srv.Client()
	c.Timeout = 20 * time.Millisecond
	if _, _, err := Get(context.Background(), c, srv.URL, nil); Kind(err) != domain.KindTimeout {
		t.Fatalf("client 超时：期望 %q，实际 %q（err=%v）", domain.KindTimeout, Kind(err), err)
	}
}
