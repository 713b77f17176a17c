package transport_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/killallgit/skillstream/pkg/config"
	"github.com/killallgit/skillstream/pkg/skill"
	"github.com/killallgit/skillstream/pkg/transport"
	"github.com/tidwall/gjson"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// portServer plays the extension background: it answers every start message
// by running script on the connection
type portServer struct {
	server   *httptest.Server
	received chan string
	conns    int32
	script   func(conn *websocket.Conn, uniqueID string)
}

func newPortServer() *portServer {
	ps := &portServer{received: make(chan string, 16)}
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	ps.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		atomic.AddInt32(&ps.conns, 1)

		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				return
			}
			ps.received <- string(message)
			if gjson.GetBytes(message, "body.type").String() == "start" && ps.script != nil {
				ps.script(conn, gjson.GetBytes(message, "uniqueId").String())
			}
		}
	}))
	return ps
}

func (ps *portServer) url() string {
	return "ws" + strings.TrimPrefix(ps.server.URL, "http") + "/ports"
}

func envelope(typ, uniqueID, message string) []byte {
	if uniqueID == "" {
		return []byte(fmt.Sprintf(`{"type":%q,"message":%s}`, typ, message))
	}
	return []byte(fmt.Sprintf(`{"type":%q,"uniqueId":%q,"message":%s}`, typ, uniqueID, message))
}

var _ = Describe("ExtensionTransport", func() {
	var (
		ps       *portServer
		recorder *eventRecorder
		ext      *transport.ExtensionTransport
		task     skill.InvokeRequest
	)

	BeforeEach(func() {
		ps = newPortServer()
		recorder = &eventRecorder{}
		task = skill.InvokeRequest{SkillID: "skill-1", Input: skill.Input{Query: "hello"}}
		ext = transport.NewExtensionTransport(config.ExtensionConfig{
			PortURL:  ps.url(),
			PortName: "streaming-chat",
			Source:   "extension-sidepanel",
		}, nil)
	})

	AfterEach(func() {
		ext.Shutdown()
		ps.server.Close()
	})

	It("posts the task with a correlation id and routes matching envelopes", func() {
		ps.script = func(conn *websocket.Conn, id string) {
			msg := `{"skillMeta":{"skillId":"skill-1","tplName":"commonQnA"},"spanId":"span-1","content":"%s"}`
			_ = conn.WriteMessage(websocket.TextMessage, envelope("start", id, "{}"))
			_ = conn.WriteMessage(websocket.TextMessage, envelope("skill-start", id, fmt.Sprintf(msg, "")))
			_ = conn.WriteMessage(websocket.TextMessage, envelope("skill-thought", id, fmt.Sprintf(msg, "plan")))
			_ = conn.WriteMessage(websocket.TextMessage, envelope("skill-stream", "someone-else", fmt.Sprintf(msg, "foreign")))
			_ = conn.WriteMessage(websocket.TextMessage, envelope("skill-stream", "", fmt.Sprintf(msg, "A")))
			_ = conn.WriteMessage(websocket.TextMessage, envelope("skill-stream", id, fmt.Sprintf(msg, "B")))
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
			_ = conn.WriteMessage(websocket.TextMessage, envelope("skill-end", id, fmt.Sprintf(msg, "")))
			_ = conn.WriteMessage(websocket.TextMessage, envelope("completed", id, "null"))
			_ = conn.WriteMessage(websocket.TextMessage, envelope("skill-stream", id, fmt.Sprintf(msg, "late")))
		}

		handle, err := ext.Open(context.Background(), task, recorder.handler())
		Expect(err).ToNot(HaveOccurred())

		var start string
		Eventually(ps.received).Should(Receive(&start))
		Expect(gjson.Get(start, "body.type").String()).To(Equal("start"))
		Expect(gjson.Get(start, "body.payload.skillId").String()).To(Equal("skill-1"))
		Expect(gjson.Get(start, "body.payload.input.query").String()).To(Equal("hello"))
		Expect(gjson.Get(start, "source").String()).To(Equal("extension-sidepanel"))
		Expect(gjson.Get(start, "uniqueId").String()).To(Equal(handle.ID))

		Eventually(handle.Done()).Should(BeClosed())
		Consistently(recorder.Calls, 100*time.Millisecond).Should(Equal([]string{
			"start", "skill-start", "skill-log", "skill-stream", "skill-stream", "skill-end", "completed",
		}))

		var streamed []string
		for _, ev := range recorder.Events() {
			if ev.Type == skill.EventSkillStream {
				streamed = append(streamed, ev.Content)
			}
		}
		Expect(streamed).To(Equal([]string{"A", "B"}))
	})

	It("posts a shutdown control message on Close and drops later events", func() {
		ps.script = func(conn *websocket.Conn, id string) {
			_ = conn.WriteMessage(websocket.TextMessage, envelope("start", id, "{}"))
		}

		handle, err := ext.Open(context.Background(), task, recorder.handler())
		Expect(err).ToNot(HaveOccurred())
		Eventually(ps.received).Should(Receive())
		Eventually(recorder.Calls).Should(Equal([]string{"start"}))

		Expect(ext.Close(handle)).To(Succeed())
		Expect(ext.Close(handle)).To(Succeed())

		var shutdown string
		Eventually(ps.received).Should(Receive(&shutdown))
		Expect(gjson.Get(shutdown, "body.type").String()).To(Equal("shutdown"))
		Expect(gjson.Get(shutdown, "uniqueId").String()).To(Equal(handle.ID))
		Expect(handle.Done()).To(BeClosed())
		Consistently(recorder.Calls, 50*time.Millisecond).Should(Equal([]string{"start"}))
	})

	It("re-acquires the port and uses a fresh id for every invocation", func() {
		first, err := ext.Open(context.Background(), task, recorder.handler())
		Expect(err).ToNot(HaveOccurred())
		Eventually(ps.received).Should(Receive())
		Expect(ext.Close(first)).To(Succeed())
		Eventually(ps.received).Should(Receive())

		second, err := ext.Open(context.Background(), task, recorder.handler())
		Expect(err).ToNot(HaveOccurred())
		Eventually(ps.received).Should(Receive())

		Expect(second.ID).ToNot(Equal(first.ID))
		Eventually(func() int32 { return atomic.LoadInt32(&ps.conns) }).Should(BeNumerically("==", 2))
	})

	It("reports a port that dies mid-stream", func() {
		ps.script = func(conn *websocket.Conn, id string) {
			_ = conn.WriteMessage(websocket.TextMessage, envelope("start", id, "{}"))
			_ = conn.Close()
		}

		handle, err := ext.Open(context.Background(), task, recorder.handler())
		Expect(err).ToNot(HaveOccurred())
		Eventually(handle.Done()).Should(BeClosed())
		Eventually(recorder.Calls).Should(Equal([]string{"start", "error"}))
		Expect(errors.Is(recorder.Err(), transport.ErrPortClosed)).To(BeTrue())
	})

	It("fails Open when the port cannot be reached", func() {
		broken := transport.NewExtensionTransport(config.ExtensionConfig{
			PortURL:  "ws://127.0.0.1:1/ports",
			PortName: "streaming-chat",
		}, nil)
		_, err := broken.Open(context.Background(), task, recorder.handler())
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Port listeners", func() {
	var (
		ps    *portServer
		ports *transport.PortManager
	)

	BeforeEach(func() {
		ps = newPortServer()
		ports = transport.NewPortManager(ps.url())
	})

	AfterEach(func() {
		ports.CloseAll()
		ps.server.Close()
	})

	It("adds and removes listeners idempotently", func() {
		port, err := ports.Get(context.Background(), "streaming-chat")
		Expect(err).ToNot(HaveOccurred())

		Expect(func() { port.RemoveListener("never-added") }).ToNot(Panic())

		port.AddListener("a", func([]byte) {})
		port.AddListener("a", func([]byte) {})
		Expect(port.HasListener("a")).To(BeTrue())

		port.RemoveListener("a")
		port.RemoveListener("a")
		Expect(port.HasListener("a")).To(BeFalse())
	})

	It("returns the same live port until it is removed", func() {
		first, err := ports.Get(context.Background(), "streaming-chat")
		Expect(err).ToNot(HaveOccurred())
		again, err := ports.Get(context.Background(), "streaming-chat")
		Expect(err).ToNot(HaveOccurred())
		Expect(again).To(BeIdenticalTo(first))

		Expect(ports.Remove("streaming-chat")).To(Succeed())
		Expect(ports.Remove("streaming-chat")).To(Succeed())
		Eventually(first.Done()).Should(BeClosed())

		fresh, err := ports.Get(context.Background(), "streaming-chat")
		Expect(err).ToNot(HaveOccurred())
		Expect(fresh).ToNot(BeIdenticalTo(first))
	})
})
