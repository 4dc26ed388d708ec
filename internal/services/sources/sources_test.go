package sources

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/hermes/internal/models"
)

func TestParseSpec(t *testing.T) {
	tests := []struct {
		arg     string
		want    Spec
		wantErr bool
	}{
		{"data/emails.csv", Spec{Path: "data/emails.csv"}, false},
		{"  ./products.csv ", Spec{Path: "./products.csv"}, false},
		{"1abcDEF#emails", Spec{SheetID: "1abcDEF", Tab: "emails"}, false},
		{"1abcDEF#products tab", Spec{SheetID: "1abcDEF", Tab: "products tab"}, false},
		{"#emails", Spec{}, true},
		{"1abcDEF#", Spec{}, true},
		{"", Spec{}, true},
	}
	for _, tt := range tests {
		got, err := ParseSpec(tt.arg)
		if tt.wantErr {
			assert.Error(t, err, tt.arg)
			continue
		}
		require.NoError(t, err, tt.arg)
		assert.Equal(t, tt.want, got)
	}
}

func TestReadRecords(t *testing.T) {
	csv := "\uFEFFEmail_ID,Subject, Message \nE001,Hello,I want boots\n,,\nE002,\"Hi, there\",\"Two\nlines\"\n"
	records, err := ReadRecords(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, records, 2, "blank row is skipped")

	assert.Equal(t, "E001", records[0]["email_id"], "header is lowercased and BOM stripped")
	assert.Equal(t, "I want boots", records[0]["message"])
	assert.Equal(t, "Hi, there", records[1]["subject"])
	assert.Equal(t, "Two\nlines", records[1]["message"])
}

func TestReadRecords_ShortRow(t *testing.T) {
	records, err := ReadRecords(strings.NewReader("email_id,subject,message\nE001,Hello\n"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "", records[0]["message"])
}

func TestReadRecords_Empty(t *testing.T) {
	_, err := ReadRecords(strings.NewReader(""))
	assert.Error(t, err)
}

func TestLoadEmails_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "emails.csv")
	content := "email_id,subject,body\nE001,Order,I want the wallet LTH0976\n,missing id,skipped\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	svc := NewService(arbor.NewLogger())
	emails, err := svc.LoadEmails(context.Background(), Spec{Path: path})
	require.NoError(t, err)
	require.Len(t, emails, 1)

	assert.Equal(t, "E001", emails[0].ID)
	assert.Equal(t, "Order", emails[0].Subject)
	assert.Equal(t, "I want the wallet LTH0976", emails[0].Body, "body alias column is accepted")
	assert.Equal(t, models.EmailSourceCSV, emails[0].Source)
}

func TestLoadEmails_ConvertsHTMLBody(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "emails.csv")
	content := "email_id,subject,message\nE001,Order,\"<html><body><p>I want <strong>two</strong> scarves.</p></body></html>\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	svc := NewService(arbor.NewLogger())
	emails, err := svc.LoadEmails(context.Background(), Spec{Path: path})
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.Equal(t, "I want **two** scarves.", emails[0].Body)
}

func TestSheetExportURL(t *testing.T) {
	url := sheetExportURL("1abcDEF", "products tab")
	assert.Equal(t, "https://docs.google.com/spreadsheets/d/1abcDEF/gviz/tq?tqx=out:csv&sheet=products+tab", url)
}

func TestLooksLikeHTML(t *testing.T) {
	assert.True(t, LooksLikeHTML("<p>hello</p>"))
	assert.True(t, LooksLikeHTML("<div class=\"x\">hi</div>"))
	assert.False(t, LooksLikeHTML("price < 100 and size > 40"))
	assert.False(t, LooksLikeHTML("plain text"))
}

func TestNormalizeBody_FallbackExtraction(t *testing.T) {
	logger := arbor.NewLogger()

	// Script and style content must not leak into the text.
	html := "<html><head><style>p{color:red}</style></head><body><p>Hello there</p><script>alert(1)</script></body></html>"
	out := NormalizeBody(html, logger)
	assert.Contains(t, out, "Hello there")
	assert.NotContains(t, out, "alert")
	assert.NotContains(t, out, "color:red")
}

func TestNormalizeBody_PlainTextUntouched(t *testing.T) {
	body := "Hello,\n\nI would like to order CBT8901.\n"
	assert.Equal(t, "Hello,\n\nI would like to order CBT8901.", NormalizeBody(body, arbor.NewLogger()))
}

func TestFilterByID(t *testing.T) {
	emails := []models.IncomingEmail{{ID: "E001"}, {ID: "E002"}, {ID: "E003"}}

	filtered := FilterByID(emails, []string{" E003 ", "E001"})
	require.Len(t, filtered, 2)
	assert.Equal(t, "E001", filtered[0].ID, "source order is preserved")
	assert.Equal(t, "E003", filtered[1].ID)

	assert.Len(t, FilterByID(emails, nil), 3)
	assert.Len(t, FilterByID(emails, []string{"  "}), 3)
}

func TestLimit(t *testing.T) {
	emails := []models.IncomingEmail{{ID: "E001"}, {ID: "E002"}, {ID: "E003"}}
	assert.Len(t, Limit(emails, 2), 2)
	assert.Len(t, Limit(emails, 0), 3)
	assert.Len(t, Limit(emails, 9), 3)
}
