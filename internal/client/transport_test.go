package client_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/imposteroid/apkscan/internal/client"
	"github.com/imposteroid/apkscan/pkg/requestid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type progressCall struct {
	loaded, total int64
}

var _ = Describe("transport", func() {
	var (
		ctx    context.Context
		server *httptest.Server
	)

	BeforeEach(func() {
		ctx = context.Background()
	})

	AfterEach(func() {
		if server != nil {
			server.Close()
			server = nil
		}
	})

	Describe("Upload", func() {
		content := bytes.Repeat([]byte("x"), 64*1024)

		newPayload := func() client.Payload {
			return client.Payload{
				Name:        "app.apk",
				ContentType: "application/vnd.android.package-archive",
				Size:        int64(len(content)),
				Reader:      bytes.NewReader(content),
			}
		}

		It("streams the payload as a multipart form", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				defer GinkgoRecover()
				Expect(r.Method).To(Equal(http.MethodPost))
				Expect(r.URL.Path).To(Equal("/upload"))
				Expect(r.ContentLength).To(BeNumerically(">", len(content)))
				Expect(r.Header.Get(requestid.Header)).NotTo(BeEmpty())

				f, h, err := r.FormFile("apk")
				Expect(err).To(BeNil())
				defer f.Close()
				Expect(h.Filename).To(Equal("app.apk"))
				Expect(h.Header.Get("Content-Type")).To(Equal("application/vnd.android.package-archive"))
				got, err := io.ReadAll(f)
				Expect(err).To(BeNil())
				Expect(got).To(Equal(content))

				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"job_id":"abc","extra":1}`))
			}))

			var (
				mu    sync.Mutex
				calls []progressCall
			)
			t := client.NewTransport(server.URL, client.WithProgressInterval(time.Hour))
			resp, err := t.Upload(ctx, newPayload(), func(loaded, total int64, _ time.Time) {
				mu.Lock()
				defer mu.Unlock()
				calls = append(calls, progressCall{loaded, total})
			})
			Expect(err).To(BeNil())
			Expect(resp.JobID).To(Equal("abc"))
			Expect(string(resp.Raw)).To(MatchJSON(`{"job_id":"abc","extra":1}`))

			mu.Lock()
			defer mu.Unlock()
			Expect(calls).NotTo(BeEmpty())
			last := calls[len(calls)-1]
			Expect(last.loaded).To(Equal(last.total))
			Expect(last.total).To(BeNumerically(">", len(content)))
		})

		It("uses the configured field name", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				defer GinkgoRecover()
				_, _, err := r.FormFile("file")
				Expect(err).To(BeNil())
				_, _ = w.Write([]byte(`{"job_id":"abc"}`))
			}))

			t := client.NewTransport(server.URL, client.WithFieldName("file"))
			resp, err := t.Upload(ctx, newPayload(), nil)
			Expect(err).To(BeNil())
			Expect(resp.JobID).To(Equal("abc"))
		})

		It("treats an empty body as an empty object", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.Copy(io.Discard, r.Body)
				w.WriteHeader(http.StatusOK)
			}))

			resp, err := client.NewTransport(server.URL).Upload(ctx, newPayload(), nil)
			Expect(err).To(BeNil())
			Expect(resp.JobID).To(BeEmpty())
			Expect(string(resp.Raw)).To(Equal("{}"))
		})

		It("fails on a non-2xx answer", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.Copy(io.Discard, r.Body)
				http.Error(w, "too large", http.StatusRequestEntityTooLarge)
			}))

			_, err := client.NewTransport(server.URL).Upload(ctx, newPayload(), nil)
			var te *client.TransportError
			Expect(errors.As(err, &te)).To(BeTrue())
			Expect(te.Op).To(Equal(client.OpUpload))
			Expect(te.StatusCode).To(Equal(http.StatusRequestEntityTooLarge))
			Expect(te.Body).To(ContainSubstring("too large"))
		})

		It("fails on an unreadable body", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.Copy(io.Discard, r.Body)
				_, _ = w.Write([]byte("<html>"))
			}))

			_, err := client.NewTransport(server.URL).Upload(ctx, newPayload(), nil)
			var te *client.TransportError
			Expect(errors.As(err, &te)).To(BeTrue())
			Expect(te.StatusCode).To(Equal(http.StatusOK))
			Expect(te.Err).NotTo(BeNil())
		})

		It("reports network failures", func() {
			server = httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
			url := server.URL
			server.Close()
			server = nil

			_, err := client.NewTransport(url).Upload(ctx, newPayload(), nil)
			Expect(client.IsTransportError(err)).To(BeTrue())
			Expect(errors.Is(err, client.ErrAborted)).To(BeFalse())
		})

		It("aborts when the context is cancelled", func() {
			release := make(chan struct{})
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				<-release
			}))
			defer close(release)

			cctx, cancel := context.WithCancel(ctx)
			go func() {
				time.Sleep(20 * time.Millisecond)
				cancel()
			}()
			_, err := client.NewTransport(server.URL).Upload(cctx, newPayload(), nil)
			Expect(errors.Is(err, client.ErrAborted)).To(BeTrue())
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
			Expect(client.IsTransportError(err)).To(BeFalse())
		})
	})

	Describe("PollStatus", func() {
		It("reads the job status", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				defer GinkgoRecover()
				Expect(r.Method).To(Equal(http.MethodGet))
				Expect(r.URL.Path).To(Equal("/result/abc"))
				Expect(r.Header.Get("Cache-Control")).To(Equal("no-store"))
				_, _ = w.Write([]byte(`{"status":"processing","stage":"unpack","unknown":[1,2]}`))
			}))

			s, err := client.NewTransport(server.URL + "/").PollStatus(ctx, "abc")
			Expect(err).To(BeNil())
			Expect(s.Status).To(Equal(client.StatusProcessing))
			Expect(s.Stage).To(Equal("unpack"))
			Expect(s.Result).To(BeNil())
			Expect(string(s.Raw)).To(ContainSubstring("unknown"))
		})

		It("falls back to the nested progress stage", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"status":"running","progress":{"stage":"dex"}}`))
			}))

			s, err := client.NewTransport(server.URL).PollStatus(ctx, "abc")
			Expect(err).To(BeNil())
			Expect(s.Stage).To(Equal("dex"))
		})

		It("returns the result of a completed job", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"status":"complete","result":{"ok":true}}`))
			}))

			s, err := client.NewTransport(server.URL).PollStatus(ctx, "abc")
			Expect(err).To(BeNil())
			Expect(string(s.ResultPayload())).To(MatchJSON(`{"ok":true}`))
		})

		It("uses the whole snapshot when the result is null", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"status":"complete","result":null}`))
			}))

			s, err := client.NewTransport(server.URL).PollStatus(ctx, "abc")
			Expect(err).To(BeNil())
			Expect(s.Result).To(BeNil())
			Expect(string(s.ResultPayload())).To(MatchJSON(`{"status":"complete","result":null}`))
		})

		It("escapes the job id", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				defer GinkgoRecover()
				Expect(r.URL.EscapedPath()).To(Equal("/result/a%2Fb"))
				_, _ = w.Write([]byte(`{"status":"queued"}`))
			}))

			_, err := client.NewTransport(server.URL).PollStatus(ctx, "a/b")
			Expect(err).To(BeNil())
		})

		DescribeTable("transient failures",
			func(status int, body string) {
				server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(status)
					_, _ = w.Write([]byte(body))
				}))

				_, err := client.NewTransport(server.URL).PollStatus(ctx, "abc")
				var te *client.TransportError
				Expect(errors.As(err, &te)).To(BeTrue())
				Expect(te.Op).To(Equal(client.OpPoll))
				Expect(te.Transient()).To(BeTrue())
			},
			Entry("bad gateway", http.StatusBadGateway, "upstream down"),
			Entry("not found", http.StatusNotFound, "{}"),
			Entry("unreadable body", http.StatusOK, "not json"),
		)
	})

	Describe("Health", func() {
		It("reports the service status", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				defer GinkgoRecover()
				Expect(r.URL.Path).To(Equal("/health"))
				_, _ = w.Write([]byte(`{"status":"ok"}`))
			}))

			report, err := client.NewTransport(server.URL).Health(ctx)
			Expect(err).To(BeNil())
			Expect(report.Status).To(Equal("ok"))
			Expect(report.Code).To(Equal(http.StatusOK))
		})

		It("reports non-2xx answers as unhealthy", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			}))

			report, err := client.NewTransport(server.URL).Health(ctx)
			Expect(err).To(BeNil())
			Expect(report.Status).To(Equal("unhealthy"))
			Expect(report.Code).To(Equal(http.StatusServiceUnavailable))
		})

		It("reports unknown when the body has no status", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("pong"))
			}))

			report, err := client.NewTransport(server.URL).Health(ctx)
			Expect(err).To(BeNil())
			Expect(report.Status).To(Equal("unknown"))
		})
	})
})
