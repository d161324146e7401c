package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractReply(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"reply field", `{"reply":"from reply"}`, "from reply"},
		{"text field", `{"text":"from text"}`, "from text"},
		{"content field", `{"content":"from content"}`, "from content"},
		{"message field", `{"message":"from message"}`, "from message"},
		{"reply wins over text", `{"text":"loser","reply":"winner"}`, "winner"},
		{"text wins over choices", `{"choices":[{"text":"loser"}],"text":"winner"}`, "winner"},
		{"choices string", `{"choices":["bare choice"]}`, "bare choice"},
		{"choices text", `{"choices":[{"text":"completion text"}]}`, "completion text"},
		{"choices message content", `{"choices":[{"message":{"content":"chat content"}}]}`, "chat content"},
		{"first choice only", `{"choices":[{"text":"first"},{"text":"second"}]}`, "first"},
		{"reply is trimmed", `{"reply":"  padded  "}`, "padded"},
		{"empty reply falls through to choices", `{"reply":"","choices":[{"text":"fallback"}]}`, "fallback"},
		{"empty object", `{}`, DefaultNoResponse},
		{"empty choices", `{"choices":[]}`, DefaultNoResponse},
		{"choice with no known field", `{"choices":[{"index":0}]}`, DefaultNoResponse},
		{"non-string reply", `{"reply":42}`, DefaultNoResponse},
		{"not an object", `[1,2,3]`, DefaultNoResponse},
		{"not json", `oops`, DefaultNoResponse},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractReply([]byte(tc.body)))
		})
	}
}
