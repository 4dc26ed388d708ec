package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func testService(server *httptest.Server) *Service {
	return &Service{
		client: server.Client(),
		logger: arbor.NewLogger(),
		base:   server.URL,
	}
}

func TestReadTable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/sheet-1/values/order-status", r.URL.Path)

		json.NewEncoder(w).Encode(valueRange{
			Range:  "order-status!A1:D3",
			Values: [][]interface{}{{"email ID", "product ID", "quantity", "status"}, {"E001", "LTH0976", 2, "created"}},
		})
	}))
	defer server.Close()

	rows, err := testService(server).ReadTable(context.Background(), "sheet-1", "order-status")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"email ID", "product ID", "quantity", "status"}, rows[0])
	// Numeric cells come back as their string rendering.
	assert.Equal(t, []string{"E001", "LTH0976", "2", "created"}, rows[1])
}

func TestReadTable_MissingTabReadsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "Unable to parse range"}}`, http.StatusBadRequest)
	}))
	defer server.Close()

	rows, err := testService(server).ReadTable(context.Background(), "sheet-1", "never-written")
	require.NoError(t, err)
	assert.Nil(t, rows)
}

func TestReadTable_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend unavailable", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := testService(server).ReadTable(context.Background(), "sheet-1", "order-status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned 500")
}

func TestWriteTable_ClearsThenWrites(t *testing.T) {
	var calls []string
	var written valueRange

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		switch r.Method {
		case http.MethodPost:
			assert.Equal(t, "/sheet-1/values/email-classification:clear", r.URL.Path)
		case http.MethodPut:
			assert.Equal(t, "RAW", r.URL.Query().Get("valueInputOption"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&written))
		}
		w.Write([]byte("{}"))
	}))
	defer server.Close()

	rows := [][]string{{"email ID", "category"}, {"E001", "order request"}}
	err := testService(server).WriteTable(context.Background(), "sheet-1", "email-classification", rows)
	require.NoError(t, err)

	require.Len(t, calls, 2)
	assert.Equal(t, "POST /sheet-1/values/email-classification:clear", calls[0])
	assert.Equal(t, "PUT /sheet-1/values/email-classification", calls[1])

	assert.Equal(t, "ROWS", written.MajorDimension)
	require.Len(t, written.Values, 2)
	assert.Equal(t, []interface{}{"E001", "order request"}, written.Values[1])
}

func TestWriteTable_MissingTabToleratedOnClear(t *testing.T) {
	var sawPut bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			http.Error(w, "no such tab", http.StatusNotFound)
			return
		}
		sawPut = true
		w.Write([]byte("{}"))
	}))
	defer server.Close()

	err := testService(server).WriteTable(context.Background(), "sheet-1", "fresh-tab", [][]string{{"email ID"}})
	require.NoError(t, err)
	assert.True(t, sawPut, "write should proceed after a failed clear on a missing tab")
}

func TestWriteTable_WriteFailureSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			http.Error(w, "permission denied", http.StatusForbidden)
			return
		}
		w.Write([]byte("{}"))
	}))
	defer server.Close()

	err := testService(server).WriteTable(context.Background(), "sheet-1", "order-status", [][]string{{"email ID"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned 403")
	assert.Contains(t, err.Error(), "permission denied")
}
