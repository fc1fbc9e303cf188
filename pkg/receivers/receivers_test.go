package receivers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nano "github.com/nanopay/nanogate/pkg"
)

func TestEventTypesForResolvesFamilies(t *testing.T) {
	types := eventTypesFor("test", []string{"PAY", "LEDGER", "BOGUS", "ALL"})
	names := []string{}
	for _, x := range types {
		names = append(names, x.Type())
	}
	assert.Equal(t, []string{"PAY", "LEDGER", "ALL"}, names, "unknown families are skipped")
}

func TestEventTypesForEmptyConfig(t *testing.T) {
	assert.Empty(t, eventTypesFor("test", nil))
}

func TestGenerateSha256HMAC(t *testing.T) {
	payload := []byte(`{"event":"PAY_SETTLED"}`)
	sig := generateSha256HMAC("1700000000", payload, "secret")

	// verify the way a callback receiver would.
	h := hmac.New(sha256.New, []byte("secret"))
	h.Write([]byte("1700000000." + string(payload)))
	assert.Equal(t, hex.EncodeToString(h.Sum(nil)), sig)

	assert.Empty(t, generateSha256HMAC("1700000000", payload, ""), "no secret, no signature")
}

func TestCallbackRetryResendsBody(t *testing.T) {
	bodies := make(chan []byte, 3)
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies <- b
		// first attempt fails, forcing a retry.
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	s := NewCallbackSender(nano.CallbackConfig{Path: srv.URL, HMACSecret: "secret"}, nano.NewMessageBus())
	require.NoError(t, postWithRetry(s, nano.Message{EventType: nano.PAY_SETTLED, Message: []byte(`{"amount":"1"}`), ID: "m1"}))

	read := func() []byte {
		select {
		case b := <-bodies:
			return b
		case <-time.After(5 * time.Second):
			t.Fatal("callback attempt never arrived")
			return nil
		}
	}
	first := read()
	second := read()
	assert.NotEmpty(t, first)
	assert.Equal(t, first, second, "the retry must post the same payload, not a drained body")
}

func TestMessageLoggerSubscribes(t *testing.T) {
	l := NewMessageLogger("/tmp/nanogate-test.log")
	var _ nano.MessageSubscriber = l
	assert.NotNil(t, l.GetChan())
	assert.Equal(t, 1000, cap(l.Rec))
}
