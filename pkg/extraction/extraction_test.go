package extraction

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arnavshah/timetable-wizard-go/pkg/errs"
	"github.com/arnavshah/timetable-wizard-go/pkg/models"
	"github.com/arnavshah/timetable-wizard-go/pkg/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlattenConversation(t *testing.T) {
	history := []Turn{
		{Role: models.RoleAssistant, Text: "hello"},
		{Role: models.RoleUser, Text: "An dạy Toán"},
		{Role: models.RoleSystem, Text: "Đã tự động nhập 1 mục vào bảng!"},
	}

	got := FlattenConversation(history, "thêm Bình")

	assert.Equal(t, "AI: hello\nNgười dùng: An dạy Toán\nAI: Đã tự động nhập 1 mục vào bảng!\nNgười dùng: thêm Bình", got)
	assert.Equal(t, "Người dùng: hi", FlattenConversation(nil, "hi"))
}

func TestParseResponse(t *testing.T) {
	t.Run("object with text and data", func(t *testing.T) {
		resp, err := ParseResponse([]byte(`{"text":"found one","data":[{"teacher":"An","subject":"Toán","class":"10A1","periods":"4"}]}`))
		require.NoError(t, err)
		assert.Equal(t, "found one", resp.Text)
		require.Len(t, resp.Data, 1)
		assert.Equal(t, 4, resp.Data[0].Periods)
	})

	t.Run("text only is an empty batch", func(t *testing.T) {
		resp, err := ParseResponse([]byte(`{"text":"nothing here"}`))
		require.NoError(t, err)
		assert.Equal(t, "nothing here", resp.Text)
		assert.Empty(t, resp.Data)
	})

	t.Run("data only gets a narrative", func(t *testing.T) {
		resp, err := ParseResponse([]byte(`{"data":[{"teacher":"An","subject":"Toán","class":"10A1","periods":5}]}`))
		require.NoError(t, err)
		assert.Contains(t, resp.Text, "An - Toán - 10A1 - 5")
	})

	t.Run("bare array", func(t *testing.T) {
		resp, err := ParseResponse([]byte(`[{"teacher":"Bình","subject":"Lý","class":"10B2","sessions":3}]`))
		require.NoError(t, err)
		require.Len(t, resp.Data, 1)
		assert.Equal(t, 3, resp.Data[0].Periods)
		assert.Contains(t, resp.Text, "hãy trả lời 'OK'")
	})

	t.Run("neither field", func(t *testing.T) {
		_, err := ParseResponse([]byte(`{"result":"?"}`))
		assert.True(t, errs.Is(err, errs.KindSchema))
	})

	t.Run("scalar", func(t *testing.T) {
		_, err := ParseResponse([]byte(`"just text"`))
		assert.True(t, errs.Is(err, errs.KindSchema))
	})
}

func TestNarrate(t *testing.T) {
	assert.Equal(t, "Không tìm thấy dữ liệu.", Narrate(nil))

	got := Narrate([]models.Row{{Teacher: "An", Subject: "Toán", Class: "10A1", Periods: 5}})
	assert.Equal(t, "Dữ liệu đã trích xuất:\n\nAn - Toán - 10A1 - 5\n\nBạn có cần chỉnh sửa gì không? (Nếu đã ổn, hãy trả lời 'OK')", got)
}

func TestClient_SendsFlattenedTextAndImage(t *testing.T) {
	var got wireRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, `{"text":"ok","data":[]}`)
	}))
	defer srv.Close()

	c := NewClient(webhook.New(srv.URL, 5*time.Second, nil))
	img := &models.Attachment{Name: "sheet.png", MIMEType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}

	resp, err := c.Extract(context.Background(), Request{
		History: []Turn{{Role: models.RoleAssistant, Text: "hi"}},
		Text:    "see image",
		Image:   img,
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, "AI: hi\nNgười dùng: see image", got.Text)
	assert.Equal(t, base64.StdEncoding.EncodeToString(img.Data), got.Image)
	assert.Equal(t, "image/png", got.MimeType)
}
