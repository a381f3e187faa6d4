package smsbackup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArionMiles/smsexpensor/pkg/api"
)

const testBackup = `<?xml version='1.0' encoding='UTF-8' standalone='yes' ?>
<smses count="4">
  <sms protocol="0" address="VM-HDFCBK" date="1705329045000" type="1" body="Rs.999.00 spent on HDFC Bank Card x1234 at SWIGGY" read="1" />
  <sms protocol="0" address="+919800000000" date="1705329100000" type="2" body="ok, see you" read="1" />
  <sms protocol="0" address="AX-ICICIB" date="not-a-date" type="1" body="INR 250 debited" read="1" />
  <sms protocol="0" address="AD-SBIBNK" date="1705330000000" type="1" body="Your A/c is credited with INR 5,000.00 &amp; balance is INR 9,000.00" read="1" />
</smses>`

func collect(t *testing.T, src string) []*api.RawMessage {
	t.Helper()
	var got []*api.RawMessage
	err := Scan(strings.NewReader(src), func(m *api.RawMessage) error {
		got = append(got, m)
		return nil
	}, nil)
	require.NoError(t, err)
	return got
}

func TestScan(t *testing.T) {
	got := collect(t, testBackup)
	require.Len(t, got, 2)

	assert.Equal(t, "VM-HDFCBK", got[0].Sender)
	assert.Equal(t, "Rs.999.00 spent on HDFC Bank Card x1234 at SWIGGY", got[0].Body)
	assert.Equal(t, time.Date(2024, 1, 15, 14, 30, 45, 0, time.UTC), got[0].ReceivedAt)
	assert.Equal(t, Source, got[0].Source)
	assert.True(t, strings.HasPrefix(got[0].ID, "smsbackup-"))

	assert.Equal(t, "AD-SBIBNK", got[1].Sender)
	assert.Contains(t, got[1].Body, "& balance", "XML entities are decoded")
}

func TestScanStableIDs(t *testing.T) {
	a := collect(t, testBackup)
	b := collect(t, testBackup)
	require.Len(t, b, len(a))
	for i := range a {
		assert.Equal(t, a[i].ID, b[i].ID)
	}
	assert.NotEqual(t, a[0].ID, a[1].ID)
}

func TestScanMalformed(t *testing.T) {
	err := Scan(strings.NewReader(`<smses><sms address="x" body="y"`), func(*api.RawMessage) error { return nil }, nil)
	assert.Error(t, err)
}

func TestConvert(t *testing.T) {
	tests := []struct {
		name    string
		typ     string
		body    string
		date    string
		wantErr bool
	}{
		{name: "inbox", typ: "1", body: "hello", date: "1705329045000"},
		{name: "no type", typ: "", body: "hello", date: "1705329045000"},
		{name: "sent", typ: "2", body: "hello", date: "1705329045000", wantErr: true},
		{name: "draft", typ: "3", body: "hello", date: "1705329045000", wantErr: true},
		{name: "blank body", typ: "1", body: "   ", date: "1705329045000", wantErr: true},
		{name: "bad date", typ: "1", body: "hello", date: "yesterday", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Convert("VM-HDFCBK", tt.body, tt.date, tt.typ)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sms.xml")
	require.NoError(t, os.WriteFile(path, []byte(testBackup), 0o600))

	r, err := New(Config{Path: path}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan *api.RawMessage, 10)
	require.NoError(t, r.Read(ctx, out, make(chan string)))

	var ids []string
	for m := range out {
		ids = append(ids, m.ID)
	}
	assert.Len(t, ids, 2)
}

func TestReadDropsLongBodies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sms.xml")
	require.NoError(t, os.WriteFile(path, []byte(testBackup), 0o600))

	r, err := New(Config{Path: path, MaxBodyLength: 50}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan *api.RawMessage, 10)
	require.NoError(t, r.Read(ctx, out, make(chan string)))

	var senders []string
	for m := range out {
		senders = append(senders, m.Sender)
	}
	assert.Equal(t, []string{"VM-HDFCBK"}, senders, "the 64-byte credit alert is dropped")
}

func TestNewRequiresPath(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)
}
