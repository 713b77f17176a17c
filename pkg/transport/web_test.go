package transport_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/killallgit/skillstream/pkg/config"
	"github.com/killallgit/skillstream/pkg/skill"
	"github.com/killallgit/skillstream/pkg/transport"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("WebTransport", func() {
	var (
		server   *httptest.Server
		handler  http.HandlerFunc
		recorder *eventRecorder
		web      *transport.WebTransport
		task     skill.InvokeRequest
	)

	BeforeEach(func() {
		recorder = &eventRecorder{}
		task = skill.InvokeRequest{SkillID: "skill-1", Input: skill.Input{Query: "hello"}}
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handler(w, r)
		}))
		web = transport.NewWebTransport(config.WebConfig{
			BaseURL:  server.URL + "/",
			Endpoint: "/v1/skill/streamInvoke",
			Token:    "secret",
			Timeout:  5 * time.Second,
		})
	})

	AfterEach(func() {
		server.Close()
	})

	It("posts the task and streams events in order", func() {
		type captured struct {
			auth, path string
			body       skill.InvokeRequest
		}
		requests := make(chan captured, 1)
		handler = func(w http.ResponseWriter, r *http.Request) {
			c := captured{auth: r.Header.Get("Authorization"), path: r.URL.Path}
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, &c.body)
			requests <- c

			w.Header().Set("Content-Type", "text/event-stream")
			meta := `"skillMeta":{"skillId":"skill-1","tplName":"commonQnA"},"spanId":"span-1"`
			fmt.Fprintf(w, "data: {\"event\":\"start\",%s}\n\n", meta)
			fmt.Fprintf(w, "data: {\"event\":\"log\",%s,\"content\":\"thinking\"}\n\n", meta)
			fmt.Fprintf(w, "data: {\"event\":\"stream\",%s,\"content\":\"Hel\"}\n\n", meta)
			fmt.Fprintf(w, "data: {\"event\":\"stream\",%s,\"content\":\"lo\"}\n\n", meta)
			fmt.Fprint(w, ": keep-alive\n\n")
			fmt.Fprintf(w, "data: {\"event\":\"end\",%s}\n\n", meta)
		}

		handle, err := web.Open(context.Background(), task, recorder.handler())
		Expect(err).ToNot(HaveOccurred())
		Eventually(handle.Done()).Should(BeClosed())

		var req captured
		Eventually(requests).Should(Receive(&req))
		Expect(req.auth).To(Equal("Bearer secret"))
		Expect(req.path).To(Equal("/v1/skill/streamInvoke"))
		Expect(req.body.SkillID).To(Equal("skill-1"))
		Expect(req.body.Input.Query).To(Equal("hello"))

		Expect(recorder.Calls()).To(Equal([]string{
			"start", "skill-start", "skill-log", "skill-stream", "skill-stream", "skill-end", "completed",
		}))
		events := recorder.Events()
		Expect(events[2].Content).To(Equal("Hel"))
		Expect(events[3].Content).To(Equal("lo"))
		Expect(events[0].SpanID).To(Equal("span-1"))
	})

	It("uses the SSE event name when the data is a bare message", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "event: skill-stream\ndata: {\"spanId\":\"s\",\"content\":\"x\"}\n\n")
		}

		handle, err := web.Open(context.Background(), task, recorder.handler())
		Expect(err).ToNot(HaveOccurred())
		Eventually(handle.Done()).Should(BeClosed())
		Expect(recorder.Calls()).To(Equal([]string{"start", "skill-stream", "completed"}))
	})

	It("reports HTTP failures as stream errors", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"success":false,"errCode":"E0001","errMsg":"unauthorized"}`)
		}

		handle, err := web.Open(context.Background(), task, recorder.handler())
		Expect(err).ToNot(HaveOccurred())
		Eventually(handle.Done()).Should(BeClosed())

		Expect(recorder.Calls()).To(Equal([]string{"error"}))
		se := recorder.StreamError()
		Expect(se).ToNot(BeNil())
		Expect(se.Status).To(Equal(http.StatusUnauthorized))
		Expect(se.ErrCode).To(Equal("E0001"))
	})

	It("stops at a server error event", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "data: {\"event\":\"error\",\"content\":\"{\\\"errCode\\\":\\\"E9\\\",\\\"errMsg\\\":\\\"boom\\\"}\"}\n\n")
			fmt.Fprint(w, "data: {\"event\":\"stream\",\"content\":\"late\"}\n\n")
		}

		handle, err := web.Open(context.Background(), task, recorder.handler())
		Expect(err).ToNot(HaveOccurred())
		Eventually(handle.Done()).Should(BeClosed())

		Expect(recorder.Calls()).To(Equal([]string{"start", "error"}))
		Expect(recorder.StreamError().ErrCode).To(Equal("E9"))
	})

	It("drops everything after Close", func() {
		release := make(chan struct{})
		handler = func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "data: {\"event\":\"stream\",\"content\":\"first\"}\n\n")
			w.(http.Flusher).Flush()
			select {
			case <-r.Context().Done():
			case <-release:
			}
		}
		defer close(release)

		handle, err := web.Open(context.Background(), task, recorder.handler())
		Expect(err).ToNot(HaveOccurred())
		Eventually(recorder.Calls).Should(ContainElement("skill-stream"))

		Expect(web.Close(handle)).To(Succeed())
		Expect(web.Close(handle)).To(Succeed())
		Eventually(handle.Done()).Should(BeClosed())

		Consistently(recorder.Calls, 100*time.Millisecond).Should(Equal([]string{"start", "skill-stream"}))
		Expect(handle.Closed()).To(BeTrue())
	})
})
