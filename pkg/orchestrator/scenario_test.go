package orchestrator_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/killallgit/skillstream/pkg/chat"
	"github.com/killallgit/skillstream/pkg/config"
	"github.com/killallgit/skillstream/pkg/orchestrator"
	"github.com/killallgit/skillstream/pkg/skill"
	"github.com/killallgit/skillstream/pkg/stream"
	"github.com/killallgit/skillstream/pkg/testutil"
	"github.com/killallgit/skillstream/pkg/transport"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Streaming sessions", func() {
	var notes *notifications

	BeforeEach(func() {
		notes = &notifications{}
	})

	Context("with a scripted transport", func() {
		It("streams a whole reply and completes", func() {
			fake := testutil.NewFakeTransport(testutil.Conversation(qnaMeta, "span-1", "The quick brown fox", 4)...)
			o, err := orchestrator.New(fake, chat.NewStore(), orchestrator.WithNotifier(notes))
			Expect(err).NotTo(HaveOccurred())

			sess, err := o.Start(context.Background(), task("tell me", qnaMeta.SkillID))
			Expect(err).NotTo(HaveOccurred())

			Eventually(sess.Done()).Should(BeClosed())
			Expect(sess.State()).To(Equal(stream.StateCompleted))
			Expect(o.Wait(context.Background())).To(Succeed())

			msgs := o.Store().Messages()
			Expect(msgs).To(HaveLen(2))
			Expect(msgs[1].Content).To(Equal("The quick brown fox"))
			Expect(msgs[1].Pending).To(BeFalse())
			Expect(notes.Count()).To(BeZero())
		})

		It("keeps partial content when the user stops mid-stream", func() {
			fake := testutil.NewFakeTransport(testutil.Conversation(qnaMeta, "span-1", "abcdefghijklmnop", 1)...)
			fake.SetChunkDelay(20 * time.Millisecond)
			o, err := orchestrator.New(fake, chat.NewStore(), orchestrator.WithNotifier(notes))
			Expect(err).NotTo(HaveOccurred())

			sess, err := o.Start(context.Background(), task("tell me", qnaMeta.SkillID))
			Expect(err).NotTo(HaveOccurred())

			Eventually(func() string {
				return o.Store().Messages()[1].Content
			}).ShouldNot(BeEmpty())
			o.Shutdown()

			Eventually(sess.Done()).Should(BeClosed())
			Expect(sess.State()).To(Equal(stream.StateAborted))

			stopped := o.Store().Messages()[1].Content
			Consistently(func() string {
				return o.Store().Messages()[1].Content
			}, 100*time.Millisecond).Should(Equal(stopped))
			Expect(notes.Count()).To(BeZero())
		})

		It("surfaces a mid-stream failure once", func() {
			fake := testutil.NewFakeTransport(testutil.Conversation(qnaMeta, "span-1", "abcdef", 2)...)
			fake.SetFailAfter(2, "upstream went away")
			o, err := orchestrator.New(fake, chat.NewStore(), orchestrator.WithNotifier(notes))
			Expect(err).NotTo(HaveOccurred())

			sess, err := o.Start(context.Background(), task("tell me", qnaMeta.SkillID))
			Expect(err).NotTo(HaveOccurred())

			Eventually(sess.Done()).Should(BeClosed())
			Expect(sess.State()).To(Equal(stream.StateErrored))
			Expect(o.Wait(context.Background())).To(MatchError(ContainSubstring("upstream went away")))
			Expect(notes.Count()).To(Equal(1))
			Expect(o.MessageState().Error).To(BeTrue())
		})
	})

	Context("over HTTP server-sent events", func() {
		var server *httptest.Server

		AfterEach(func() {
			server.Close()
		})

		It("drives the store from a real stream", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				meta := `"skillMeta":{"skillId":"skill-qna","tplName":"commonQnA"},"spanId":"span-1"`
				fmt.Fprintf(w, "data: {\"event\":\"start\",%s}\n\n", meta)
				fmt.Fprintf(w, "data: {\"event\":\"log\",%s,\"content\":\"thinking\"}\n\n", meta)
				fmt.Fprintf(w, "data: {\"event\":\"stream\",%s,\"content\":\"Hello \"}\n\n", meta)
				fmt.Fprintf(w, "data: {\"event\":\"stream\",%s,\"content\":\"there [[citation:2]]\"}\n\n", meta)
				fmt.Fprintf(w, "data: {\"event\":\"structured_data\",%s,\"structuredDataKey\":\"sources\",\"content\":\"[{\\\"url\\\":\\\"https://go.dev\\\"}]\"}\n\n", meta)
				fmt.Fprintf(w, "data: {\"event\":\"end\",%s}\n\n", meta)
				fmt.Fprint(w, "data: [DONE]\n\n")
			}))

			web := transport.NewWebTransport(config.WebConfig{
				BaseURL:  server.URL,
				Endpoint: "/v1/skill/streamInvoke",
				Timeout:  5 * time.Second,
			})
			o, err := orchestrator.New(web, chat.NewStore(),
				orchestrator.WithNotifier(notes),
				orchestrator.WithSkillCatalog(orchestrator.CatalogMap{qnaMeta.SkillID: qnaMeta}),
			)
			Expect(err).NotTo(HaveOccurred())

			_, err = o.Start(context.Background(), task("hi", qnaMeta.SkillID))
			Expect(err).NotTo(HaveOccurred())

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			Expect(o.Wait(ctx)).To(Succeed())

			msgs := o.Store().Messages()
			Expect(msgs).To(HaveLen(2))
			reply := msgs[1]
			Expect(reply.Content).To(Equal("Hello there [citation](2)"))
			Expect(reply.Logs).To(Equal([]string{"thinking"}))
			Expect(reply.StructuredData).To(HaveKeyWithValue(skill.KeySources,
				[]any{map[string]any{"url": "https://go.dev"}}))
			Expect(reply.Pending).To(BeFalse())
			Expect(o.Session().State()).To(Equal(stream.StateCompleted))
			Expect(notes.Count()).To(BeZero())
		})

		It("reports HTTP failures as stream errors", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				fmt.Fprint(w, `{"errCode":"E0001","errMsg":"token expired"}`)
			}))

			web := transport.NewWebTransport(config.WebConfig{BaseURL: server.URL, Endpoint: "/invoke"})
			o, err := orchestrator.New(web, chat.NewStore(), orchestrator.WithNotifier(notes))
			Expect(err).NotTo(HaveOccurred())

			_, err = o.Start(context.Background(), task("hi", ""))
			Expect(err).NotTo(HaveOccurred())

			var se *skill.StreamError
			Expect(o.Wait(context.Background())).To(BeAssignableToTypeOf(se))
			Expect(o.Session().Err()).To(MatchError(ContainSubstring("token expired")))
			Expect(notes.Count()).To(Equal(1))
		})
	})
})
