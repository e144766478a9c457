package upload

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type received struct {
	filename       string
	partFilename   string
	partType       string
	uploadToRemote string
	payload        []byte
}

func backend(t *testing.T, status int, response string, got chan<- received) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		file, header, err := r.FormFile("photo")
		if err != nil {
			t.Errorf("photo part: %v", err)
		} else {
			data, _ := io.ReadAll(file)
			file.Close()
			if got != nil {
				got <- received{
					filename:       r.FormValue("filename"),
					partFilename:   header.Filename,
					partType:       header.Header.Get("Content-Type"),
					uploadToRemote: r.FormValue("uploadToRemote"),
					payload:        data,
				}
			}
		}
		w.WriteHeader(status)
		io.WriteString(w, response)
	}))
}

func TestUploadPublishable(t *testing.T) {
	got := make(chan received, 1)
	srv := backend(t, http.StatusOK, `{"imageUrl":"https://cdn.example/p.png"}`, got)
	defer srv.Close()

	c := New(srv.URL, time.Second, quietLogger())
	res, err := c.Upload(context.Background(), Task{
		Payload:     []byte("png-bytes"),
		Filename:    "photoboothComposite1@1-2-2026-3-04-05-PM.png",
		ContentType: "image/png",
		Publishable: true,
	})
	if err != nil {
		t.Fatalf("Upload() error: %v", err)
	}
	if res.ImageURL != "https://cdn.example/p.png" {
		t.Errorf("ImageURL = %q", res.ImageURL)
	}

	r := <-got
	if r.filename != "photoboothComposite1@1-2-2026-3-04-05-PM.png" || r.partFilename != r.filename {
		t.Errorf("filename fields = %q / %q", r.filename, r.partFilename)
	}
	if r.uploadToRemote != "true" {
		t.Errorf("uploadToRemote = %q, want true", r.uploadToRemote)
	}
	if r.partType != "image/png" {
		t.Errorf("photo part type = %q", r.partType)
	}
	if string(r.payload) != "png-bytes" {
		t.Errorf("payload = %q", r.payload)
	}
}

func TestUploadRawIgnoresBody(t *testing.T) {
	got := make(chan received, 1)
	srv := backend(t, http.StatusOK, `not json`, got)
	defer srv.Close()

	c := New(srv.URL, time.Second, quietLogger())
	res, err := c.Upload(context.Background(), Task{Payload: []byte("x"), Filename: "photobooth0@x.png"})
	if err != nil {
		t.Fatalf("Upload() error: %v", err)
	}
	if res.ImageURL != "" {
		t.Errorf("raw upload returned url %q", res.ImageURL)
	}
	if r := <-got; r.uploadToRemote != "false" {
		t.Errorf("uploadToRemote = %q, want false", r.uploadToRemote)
	}
}

func TestUploadErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
	}{
		{"server error", http.StatusInternalServerError, "disk full", 500},
		{"malformed body", http.StatusOK, "{", 200},
		{"missing url", http.StatusOK, `{"imageUrl":""}`, 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := backend(t, tt.status, tt.body, nil)
			defer srv.Close()

			c := New(srv.URL, time.Second, quietLogger())
			_, err := c.Upload(context.Background(), Task{Payload: []byte("x"), Filename: "c.png", Publishable: true})

			var ue *UploadError
			if !errors.As(err, &ue) {
				t.Fatalf("err = %v, want *UploadError", err)
			}
			if ue.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", ue.StatusCode, tt.wantStatus)
			}
			if ue.Filename != "c.png" {
				t.Errorf("Filename = %q", ue.Filename)
			}
		})
	}
}

func TestUploadTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, time.Second, quietLogger())
	_, err := c.Upload(context.Background(), Task{Payload: []byte("x"), Filename: "a.png"})

	var ue *UploadError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want *UploadError", err)
	}
	if ue.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0 for transport failure", ue.StatusCode)
	}
}

func TestNamer(t *testing.T) {
	fixed := time.Date(2026, time.October, 16, 15, 4, 5, 0, time.UTC)
	n := NewNamer()
	n.now = func() time.Time { return fixed }

	if got, want := n.Raw(".png"), "photobooth0@10-16-2026-3-04-05-PM.png"; got != want {
		t.Errorf("first Raw = %q, want %q", got, want)
	}
	if got, want := n.Raw(".png"), "photobooth1@10-16-2026-3-04-05-PM.png"; got != want {
		t.Errorf("second Raw = %q, want %q", got, want)
	}
	if got, want := n.Composite(7), "photoboothComposite7@10-16-2026-3-04-05-PM.png"; got != want {
		t.Errorf("Composite = %q, want %q", got, want)
	}
}

func TestTimestampMorning(t *testing.T) {
	ts := Timestamp(time.Date(2026, time.January, 2, 9, 30, 0, 0, time.UTC))
	if ts != "1-2-2026-9-30-00-AM" {
		t.Errorf("Timestamp = %q", ts)
	}
}
