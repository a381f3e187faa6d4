package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/api/gmail/v1"

	"github.com/ArionMiles/smsexpensor/pkg/api"
)

func encode(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func TestToRawMessage(t *testing.T) {
	smsBody, err := loadFixture("hdfc_card_sms.txt")
	if err != nil {
		t.Fatalf("failed to load fixture: %v", err)
	}

	received := time.Date(2024, 1, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		name       string
		msg        *gmail.Message
		wantOK     bool
		wantSender string
		wantBody   string
	}{
		{
			name: "multipart with sender in subject",
			msg: &gmail.Message{
				Id:           "18c1",
				InternalDate: received.UnixMilli(),
				Payload: &gmail.MessagePart{
					MimeType: "multipart/alternative",
					Headers: []*gmail.MessagePartHeader{
						{Name: "Subject", Value: "SMS from VM-HDFCBK"},
						{Name: "From", Value: "SMS Forwarder <forwarder@example.com>"},
					},
					Parts: []*gmail.MessagePart{
						{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: encode("<p>ignored</p>")}},
						{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: encode(smsBody)}},
					},
				},
			},
			wantOK:     true,
			wantSender: "VM-HDFCBK",
			wantBody:   "Rs.999.00 spent on HDFC Bank Card x1234 at SWIGGY on 2024-01-15:14:30:45. Not you? Call 18002586161",
		},
		{
			name: "single part with sender in display name",
			msg: &gmail.Message{
				Id:           "18c2",
				InternalDate: received.UnixMilli(),
				Payload: &gmail.MessagePart{
					MimeType: "text/plain",
					Headers: []*gmail.MessagePartHeader{
						{Name: "Subject", Value: "Forwarded message"},
						{Name: "From", Value: "AX-ICICIB <noreply@example.com>"},
					},
					Body: &gmail.MessagePartBody{Data: encode("INR 250 debited from A/c XX12")},
				},
			},
			wantOK:     true,
			wantSender: "AX-ICICIB",
			wantBody:   "INR 250 debited from A/c XX12",
		},
		{
			name: "html only",
			msg: &gmail.Message{
				Id: "18c3",
				Payload: &gmail.MessagePart{
					MimeType: "text/html",
					Body:     &gmail.MessagePartBody{Data: encode("<b>hi</b>")},
				},
			},
			wantOK: false,
		},
		{
			name:   "no payload",
			msg:    &gmail.Message{Id: "18c4"},
			wantOK: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ToRawMessage(tc.msg, DefaultSenderPattern)
			if ok != tc.wantOK {
				t.Fatalf("ok: got %v, want %v", ok, tc.wantOK)
			}
			if !ok {
				return
			}

			if got.ID != tc.msg.Id {
				t.Errorf("id: got %q, want %q", got.ID, tc.msg.Id)
			}
			if got.Sender != tc.wantSender {
				t.Errorf("sender: got %q, want %q", got.Sender, tc.wantSender)
			}
			if got.Body != tc.wantBody {
				t.Errorf("body: got %q, want %q", got.Body, tc.wantBody)
			}
			if !got.ReceivedAt.Equal(received) {
				t.Errorf("received at: got %v, want %v", got.ReceivedAt, received)
			}
			if got.Source != Source {
				t.Errorf("source: got %q, want %q", got.Source, Source)
			}
		})
	}
}

func TestExtractSender(t *testing.T) {
	custom := regexp.MustCompile(`\[(\S+)\]`)

	tests := []struct {
		name    string
		subject string
		from    string
		pattern *regexp.Regexp
		want    string
	}{
		{"default pattern with colon", "SMS from: JD-SBIINB", "", DefaultSenderPattern, "JD-SBIINB"},
		{"default pattern case insensitive", "sms FROM HDFC-123", "", DefaultSenderPattern, "HDFC-123"},
		{"custom pattern", "New text [BZ-KOTAKB]", "", custom, "BZ-KOTAKB"},
		{"display name fallback", "hello", "VM-PROMO <a@example.com>", DefaultSenderPattern, "VM-PROMO"},
		{"nothing found", "hello", "a@example.com", DefaultSenderPattern, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			headers := []*gmail.MessagePartHeader{
				{Name: "Subject", Value: tc.subject},
				{Name: "From", Value: tc.from},
			}
			if got := extractSender(headers, tc.pattern); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

// fakeGmail serves message bodies by ID and records modify calls.
type fakeGmail struct {
	bodies map[string]string

	mu       sync.Mutex
	modified []string
}

func (f *fakeGmail) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const prefix = "/gmail/v1/users/me/messages/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)

	if id, ok := strings.CutSuffix(rest, "/modify"); ok {
		f.mu.Lock()
		f.modified = append(f.modified, id)
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(&gmail.Message{Id: id})
		return
	}

	body, ok := f.bodies[rest]
	if !ok {
		http.NotFound(w, r)
		return
	}
	_ = json.NewEncoder(w).Encode(&gmail.Message{
		Id:           rest,
		InternalDate: 1705329045000,
		Payload: &gmail.MessagePart{
			MimeType: "text/plain",
			Headers:  []*gmail.MessagePartHeader{{Name: "Subject", Value: "SMS from VM-HDFCBK"}},
			Body:     &gmail.MessagePartBody{Data: encode(body)},
		},
	})
}

// redirect sends every request to the test server.
type redirect struct{ target *url.URL }

func (rt redirect) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = rt.target.Scheme
	req.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func TestProcessMessageDropsLongBodies(t *testing.T) {
	fake := &fakeGmail{bodies: map[string]string{
		"short": "Rs.999.00 spent on HDFC Bank Card x1234",
		"long":  "Rs.999.00 spent on HDFC Bank Card x1234 " + strings.Repeat("x", 100),
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	target, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	r, err := New(&http.Client{Transport: redirect{target: target}}, Config{MaxBodyLength: 64}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	out := make(chan *api.RawMessage, 2)
	for _, id := range []string{"short", "long"} {
		if err := r.processMessage(ctx, id, out); err != nil {
			t.Fatalf("processMessage(%q): %v", id, err)
		}
	}
	close(out)

	var ids []string
	for msg := range out {
		ids = append(ids, msg.ID)
	}
	if len(ids) != 1 || ids[0] != "short" {
		t.Errorf("forwarded: got %v, want [short]", ids)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.modified) != 1 || fake.modified[0] != "long" {
		t.Errorf("marked read: got %v, want [long]", fake.modified)
	}
}

// loadFixture loads a forwarded SMS body from the testdata directory.
func loadFixture(filename string) (string, error) {
	data, err := os.ReadFile(filepath.Join("testdata", filename))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
