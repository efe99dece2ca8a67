package registryclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wessley-grants/ingestor/internal/domain"
)

func newTestClient(srv *httptest.Server) *Client {
	return New(srv.URL, WithRate(1000, 1000))
}

func TestClient_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(SearchPage{
			Results: []GrantSummary{{ExternalID: "BDNS-1", Title: "Ayuda I+D", Organism: "Ministerio de Ciencia"}},
			Total:   1, Page: 1, HasMore: false,
		})
	}))
	defer srv.Close()

	c := newTestClient(srv)
	sp, err := c.Search(context.Background(), SearchFilter{}, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(sp.Results) != 1 || sp.Results[0].ExternalID != "BDNS-1" {
		t.Errorf("unexpected results: %+v", sp.Results)
	}
}

func TestClient_Search_EncodesFilter(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode(SearchPage{})
	}))
	defer srv.Close()

	c := newTestClient(srv)
	_, err := c.Search(context.Background(), SearchFilter{
		PurposeCode:      "I+D",
		BeneficiaryCodes: []string{"pyme", "autonomo"},
		OnlyOpen:         true,
	}, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !strings.Contains(gotQuery, "finalidad=I%2BD") {
		t.Errorf("expected encoded purpose code in query, got %q", gotQuery)
	}
	if !strings.Contains(gotQuery, "tiposBeneficiario=pyme%2Cautonomo") {
		t.Errorf("expected joined beneficiary codes in query, got %q", gotQuery)
	}
	if !strings.Contains(gotQuery, "abierto=true") {
		t.Errorf("expected abierto=true in query, got %q", gotQuery)
	}
}

func TestClient_Iterate(t *testing.T) {
	pages := map[int]SearchPage{
		1: {Results: []GrantSummary{{ExternalID: "A"}}, HasMore: true},
		2: {Results: []GrantSummary{{ExternalID: "B"}}, HasMore: false},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := 1
		if r.URL.Query().Get("page") == "2" {
			page = 2
		}
		json.NewEncoder(w).Encode(pages[page])
	}))
	defer srv.Close()

	c := newTestClient(srv)
	var seen []string
	err := c.Iterate(context.Background(), SearchFilter{}, 0, func(g GrantSummary) error {
		seen = append(seen, g.ExternalID)
		return nil
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(seen) != 2 || seen[0] != "A" || seen[1] != "B" {
		t.Errorf("expected [A B], got %v", seen)
	}
}

func TestClient_Iterate_RespectsMaxItems(t *testing.T) {
	pages := map[int]SearchPage{
		1: {Results: []GrantSummary{{ExternalID: "A"}, {ExternalID: "B"}}, HasMore: true},
		2: {Results: []GrantSummary{{ExternalID: "C"}}, HasMore: false},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := 1
		if r.URL.Query().Get("page") == "2" {
			page = 2
		}
		json.NewEncoder(w).Encode(pages[page])
	}))
	defer srv.Close()

	c := newTestClient(srv)
	var seen []string
	err := c.Iterate(context.Background(), SearchFilter{}, 1, func(g GrantSummary) error {
		seen = append(seen, g.ExternalID)
		return nil
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(seen) != 1 || seen[0] != "A" {
		t.Errorf("expected iterate to stop at maxItems=1, got %v", seen)
	}
}

func TestClient_PrimaryDocumentURL(t *testing.T) {
	c := New("https://registry.example")

	withPDF := GrantDetail{ExternalID: "X", Documents: []DocLink{
		{URL: "https://registry.example/doc1.txt"},
		{URL: "https://registry.example/doc2.pdf", IsPDF: true},
	}}
	if got := c.PrimaryDocumentURL(withPDF); got != "https://registry.example/doc2.pdf" {
		t.Errorf("expected the pdf-classified document, got %s", got)
	}

	noneClassified := GrantDetail{ExternalID: "Y"}
	want := "https://registry.example/grants/Y/document"
	if got := c.PrimaryDocumentURL(noneClassified); got != want {
		t.Errorf("expected fallback document endpoint %s, got %s", want, got)
	}
}

func TestClient_DownloadDocument_ValidPDF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("%PDF-1.4 fake content"))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	body, err := c.DownloadDocument(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if string(body[:4]) != "%PDF" {
		t.Errorf("expected pdf magic bytes, got %q", body[:4])
	}
}

func TestClient_DownloadDocument_NotPDF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not a pdf</html>"))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	_, err := c.DownloadDocument(context.Background(), srv.URL)
	if !errors.Is(err, domain.ErrNotPDF) {
		t.Errorf("expected ErrNotPDF, got %v", err)
	}
}

func TestClient_GetDetail_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	_, err := c.GetDetail(context.Background(), "BDNS-1")
	if !errors.Is(err, domain.ErrTransportError) {
		t.Errorf("expected ErrTransportError, got %v", err)
	}
}
