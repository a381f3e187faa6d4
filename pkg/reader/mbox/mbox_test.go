package mbox

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

const testMbox = `From forwarder@example.com Mon Jan 15 14:30:45 2024
From: SMS Forwarder <forwarder@example.com>
Subject: SMS from VM-HDFCBK
Date: Mon, 15 Jan 2024 14:30:45 +0000
Message-Id: <sms-1@example.com>
Content-Type: text/plain; charset=utf-8

Rs.999.00 spent on HDFC Bank Card x1234 at SWIGGY

From forwarder@example.com Mon Jan 15 15:00:00 2024
From: forwarder@example.com
Subject: Forwarded text
X-SMS-Sender: AX-ICICIB
Date: Mon, 15 Jan 2024 20:30:00 +0530
Message-Id: <sms-2@example.com>
Content-Type: multipart/alternative; boundary="b1"

--b1
Content-Type: text/html

<p>INR 250 debited</p>
--b1
Content-Type: text/plain

INR 250 debited from A/c XX12
--b1--

From forwarder@example.com Mon Jan 15 16:00:00 2024
From: forwarder@example.com
Subject: SMS from JD-SBIINB
Date: Mon, 15 Jan 2024 16:00:00 +0000
Content-Type: text/html

<p>html only</p>
`

func TestScan(t *testing.T) {
	var got []*api.RawMessage
	err := Scan(strings.NewReader(testMbox), func(msg *api.RawMessage) error {
		got = append(got, msg)
		return nil
	}, nil)
	require.NoError(t, err)
	require.Len(t, got, 2, "html-only message is skipped")

	assert.Equal(t, "sms-1@example.com", got[0].ID)
	assert.Equal(t, "VM-HDFCBK", got[0].Sender)
	assert.Equal(t, "Rs.999.00 spent on HDFC Bank Card x1234 at SWIGGY", got[0].Body)
	assert.Equal(t, time.Date(2024, 1, 15, 14, 30, 45, 0, time.UTC), got[0].ReceivedAt)
	assert.Equal(t, Source, got[0].Source)

	assert.Equal(t, "sms-2@example.com", got[1].ID)
	assert.Equal(t, "AX-ICICIB", got[1].Sender)
	assert.Equal(t, "INR 250 debited from A/c XX12", got[1].Body)
	assert.Equal(t, time.Date(2024, 1, 15, 15, 0, 0, 0, time.UTC), got[1].ReceivedAt)
}

func TestRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.mbox")
	require.NoError(t, os.WriteFile(path, []byte(testMbox), 0o600))

	r, err := New(Config{Path: path}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan *api.RawMessage, 10)
	ackChan := make(chan string, 10)
	require.NoError(t, r.Read(ctx, out, ackChan))

	var ids []string
	for msg := range out {
		ids = append(ids, msg.ID)
	}
	assert.Equal(t, []string{"sms-1@example.com", "sms-2@example.com"}, ids)
}

func TestReadDropsLongBodies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.mbox")
	require.NoError(t, os.WriteFile(path, []byte(testMbox), 0o600))

	// The first body is 49 bytes, the second 29.
	r, err := New(Config{Path: path, MaxBodyLength: 40}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan *api.RawMessage, 10)
	require.NoError(t, r.Read(ctx, out, make(chan string)))

	var ids []string
	for msg := range out {
		ids = append(ids, msg.ID)
	}
	assert.Equal(t, []string{"sms-2@example.com"}, ids)
}

func TestNewRequiresPath(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)
}

func TestReadMissingFile(t *testing.T) {
	r, err := New(Config{Path: filepath.Join(t.TempDir(), "missing.mbox")}, nil)
	require.NoError(t, err)

	out := make(chan *api.RawMessage)
	err = r.Read(context.Background(), out, make(chan string))
	assert.Error(t, err)

	_, open := <-out
	assert.False(t, open, "output channel is closed on return")
}
