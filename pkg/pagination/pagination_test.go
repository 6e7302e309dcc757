package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func contextFor(query string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/?"+query, nil)
	return c
}

func TestParse(t *testing.T) {
	tests := []struct {
		query string
		want  Params
	}{
		{query: "", want: Params{Page: 1, Limit: 20}},
		{query: "page=3&limit=50", want: Params{Page: 3, Limit: 50}},
		{query: "page=-1&limit=0", want: Params{Page: 1, Limit: 20}},
		{query: "limit=5000", want: Params{Page: 1, Limit: 100}},
		{query: "page=abc&limit=xyz", want: Params{Page: 1, Limit: 20}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if got := Parse(contextFor(tt.query)); got != tt.want {
				t.Fatalf("Parse(%q) = %+v, want %+v", tt.query, got, tt.want)
			}
		})
	}
}

func TestParseCursor(t *testing.T) {
	cursor, limit := ParseCursor(contextFor("cursor=abc&limit=2000"))
	if cursor != "abc" || limit != MaxHistoryLimit {
		t.Fatalf("got %q/%d", cursor, limit)
	}
	if _, limit := ParseCursor(contextFor("")); limit != DefaultHistoryLimit {
		t.Fatalf("default limit = %d", limit)
	}
}
