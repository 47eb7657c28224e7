package steam

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPublishedFileDetails(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != detailsPath {
			t.Errorf("request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Error(err)
		}
		if r.PostForm.Get("itemcount") != "2" || r.PostForm.Get("publishedfileids[1]") != "222" || r.PostForm.Get("key") != "k" {
			t.Errorf("form = %v", r.PostForm)
		}
		_, _ = w.Write([]byte(`{"response":{"result":1,"resultcount":2,"publishedfiledetails":[
			{"publishedfileid":"111","result":1,"title":"Better Cars","description":"vroom","preview_url":"https://img/1.png","time_updated":1700000000},
			{"publishedfileid":"222","result":9}
		]}}`))
	}))
	defer srv.Close()

	got, err := New(srv.URL, "k", time.Second).PublishedFileDetails(context.Background(), []string{"111", "222"})
	if err != nil {
		t.Fatalf("PublishedFileDetails: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d", len(got))
	}
	if !got[0].Found() || got[0].TimeUpdated != 1700000000 || got[0].Title != "Better Cars" {
		t.Fatalf("details[0] = %+v", got[0])
	}
	if got[1].Found() {
		t.Fatalf("details[1] should be missing: %+v", got[1])
	}
}

func TestPublishedFileDetailsHTTPError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "", time.Second).PublishedFileDetails(context.Background(), []string{"1"})
	if !errors.Is(err, ErrStatus) {
		t.Fatalf("err = %v, want ErrStatus", err)
	}
}

func TestWorkshopURL(t *testing.T) {
	t.Parallel()
	if got := WorkshopURL("2169435993"); got != "https://steamcommunity.com/sharedfiles/filedetails/?id=2169435993" {
		t.Fatalf("WorkshopURL = %q", got)
	}
}
