package cbr

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const keyRateReply = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope">
  <soap:Body>
    <KeyRateResponse xmlns="http://web.cbr.ru/">
      <KeyRateResult>
        <diffgr:diffgram xmlns:diffgr="urn:schemas-microsoft-com:xml-diffgram-v1">
          <KeyRate xmlns="">
            <KR><DT>2024-03-01T00:00:00+03:00</DT><Rate>16.00</Rate></KR>
            <KR><DT>2024-02-29T00:00:00+03:00</DT><Rate>15.50</Rate></KR>
          </KeyRate>
        </diffgr:diffgram>
      </KeyRateResult>
    </KeyRateResponse>
  </soap:Body>
</soap:Envelope>`

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestReferenceRate(t *testing.T) {
	var gotBody, gotAction string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotAction = r.Header.Get("SOAPAction")
		io.WriteString(w, keyRateReply)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, quietLogger())
	c.now = func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) }

	rate, err := c.ReferenceRate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !rate.Equal(decimal.RequireFromString("21")) {
		t.Fatalf("rate=%s want 21", rate)
	}
	if gotAction != "http://web.cbr.ru/KeyRate" {
		t.Fatalf("SOAPAction=%q", gotAction)
	}
	if !strings.Contains(gotBody, "<fromDate>2024-01-31</fromDate>") || !strings.Contains(gotBody, "<ToDate>2024-03-01</ToDate>") {
		t.Fatalf("request body=%s", gotBody)
	}
}

func TestReferenceRateErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, ""},
		{"not xml", http.StatusOK, "<<<"},
		{"no rates", http.StatusOK, `<root><diffgram><KeyRate></KeyRate></diffgram></root>`},
		{"no rate element", http.StatusOK, `<root><diffgram><KeyRate><KR><DT>x</DT></KR></KeyRate></diffgram></root>`},
		{"bad number", http.StatusOK, `<root><diffgram><KeyRate><KR><Rate>abc</Rate></KR></KeyRate></diffgram></root>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()
			if _, err := NewClient(srv.URL, quietLogger()).ReferenceRate(context.Background()); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}
