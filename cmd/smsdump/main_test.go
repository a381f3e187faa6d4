package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "mbox_2024-01-02_101010_VM-HDFCBK", want: "mbox_2024-01-02_101010_VM-HDFCBK"},
		{name: "unsafe characters", in: `a<b>c:"d"/e`, want: "a_b_c_d_e"},
		{name: "whitespace collapses", in: "  sms  from  bank  ", want: "sms_from_bank"},
		{name: "phone number", in: "smsbackup_2024_+91 98000", want: "smsbackup_2024_+91_98000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeFilename(tt.in))
		})
	}
}

func TestScanner(t *testing.T) {
	_, err := scanner("export.mbox", "")
	assert.NoError(t, err)
	_, err = scanner("sms-20240101.XML", "")
	assert.NoError(t, err)
	_, err = scanner("export", "eml")
	assert.Error(t, err)
}

const backup = `<?xml version='1.0' encoding='UTF-8' standalone='yes' ?>
<smses count="3">
  <sms protocol="0" address="VM-HDFCBK" date="1709285400000" type="1" body="Rs.450.00 debited from A/c XX1234 at ZOMATO" />
  <sms protocol="0" address="+919800000000" date="1709285460000" type="1" body="Lunch tomorrow?" />
  <sms protocol="0" address="VM-HDFCBK" date="1709285520000" type="2" body="Rs 10 debited" />
</smses>`

func TestRunDumpsTransactions(t *testing.T) {
	dir := t.TempDir()
	export := filepath.Join(dir, "backup.xml")
	require.NoError(t, os.WriteFile(export, []byte(backup), 0o600))

	out := filepath.Join(dir, "dump")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, run(export, options{dir: out, withRecord: true}, logger))

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	body, err := os.ReadFile(filepath.Join(out, "smsbackup_2024-03-01_093000_VM-HDFCBK.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Rs.450.00 debited from A/c XX1234 at ZOMATO", string(body))

	rec, err := os.ReadFile(filepath.Join(out, "smsbackup_2024-03-01_093000_VM-HDFCBK.json"))
	require.NoError(t, err)
	assert.Contains(t, string(rec), `"amount": "450.00"`)

	// A second run leaves existing files alone.
	require.NoError(t, run(export, options{dir: out}, logger))
}
