package lark

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeMessages struct {
	req  *larkim.CreateMessageReq
	resp *larkim.CreateMessageResp
	err  error
}

func (f *fakeMessages) Create(_ context.Context, req *larkim.CreateMessageReq, _ ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error) {
	f.req = req
	return f.resp, f.err
}

func okResponse(id string) *larkim.CreateMessageResp {
	return &larkim.CreateMessageResp{
		Data: &larkim.CreateMessageRespData{MessageId: &id},
	}
}

func TestMessenger_SendText(t *testing.T) {
	fake := &fakeMessages{resp: okResponse("om_123")}
	m := newMessenger(fake, zap.NewNop())

	id, err := m.SendText(context.Background(), "u-42", `Leave "L-1" approved`)
	require.NoError(t, err)
	assert.Equal(t, "om_123", id)
	assert.Equal(t, ChannelName, m.Channel())

	require.NotNil(t, fake.req)
	body := fake.req.Body
	require.NotNil(t, body)
	assert.Equal(t, "u-42", *body.ReceiveId)
	assert.Equal(t, "text", *body.MsgType)

	var content map[string]string
	require.NoError(t, json.Unmarshal([]byte(*body.Content), &content))
	assert.Equal(t, `Leave "L-1" approved`, content["text"])
}

func TestMessenger_Failures(t *testing.T) {
	t.Run("transport error", func(t *testing.T) {
		m := newMessenger(&fakeMessages{err: errors.New("dial tcp: timeout")}, zap.NewNop())
		_, err := m.SendText(context.Background(), "u-1", "hi")
		assert.ErrorContains(t, err, "dial tcp")
	})

	t.Run("api error", func(t *testing.T) {
		resp := &larkim.CreateMessageResp{CodeError: larkcore.CodeError{Code: 230001, Msg: "invalid receive_id"}}
		m := newMessenger(&fakeMessages{resp: resp}, zap.NewNop())
		_, err := m.SendText(context.Background(), "u-1", "hi")
		assert.ErrorContains(t, err, "code=230001")
	})

	t.Run("empty input", func(t *testing.T) {
		m := newMessenger(&fakeMessages{}, zap.NewNop())
		_, err := m.SendText(context.Background(), "", "hi")
		assert.Error(t, err)
		_, err = m.SendText(context.Background(), "u-1", "")
		assert.Error(t, err)
	})
}
