package cli

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/imposteroid/apkscan/internal/analysis"
	"github.com/imposteroid/apkscan/internal/payload"
	"github.com/imposteroid/apkscan/pkg/requestid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/pflag"
)

func writeAPK(path string) {
	f, err := os.Create(path)
	Expect(err).To(BeNil())
	defer f.Close()
	zw := zip.NewWriter(f)
	w, err := zw.Create("AndroidManifest.xml")
	Expect(err).To(BeNil())
	_, err = w.Write(bytes.Repeat([]byte("<manifest/>"), 100))
	Expect(err).To(BeNil())
	Expect(zw.Close()).To(Succeed())
}

// fakeService answers like the analysis service: it accepts one upload and
// reports the scripted statuses in order, repeating the last one.
type fakeService struct {
	uploadStatus int
	statuses     []string
	polls        atomic.Int32
	requestIDs   chan string
}

func (f *fakeService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		f.requestIDs <- r.Header.Get(requestid.Header)
		if _, _, err := r.FormFile("apk"); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if f.uploadStatus != 0 {
			w.WriteHeader(f.uploadStatus)
			return
		}
		_, _ = w.Write([]byte(`{"job_id":"job-1"}`))
	})
	mux.HandleFunc("/result/job-1", func(w http.ResponseWriter, r *http.Request) {
		i := int(f.polls.Add(1)) - 1
		if i >= len(f.statuses) {
			i = len(f.statuses) - 1
		}
		_, _ = w.Write([]byte(f.statuses[i]))
	})
	return mux
}

var _ = Describe("analyze", func() {
	var (
		dir     string
		apkPath string
		service *fakeService
		server  *httptest.Server
		stdout  *bytes.Buffer
		stderr  *bytes.Buffer
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		apkPath = filepath.Join(dir, "app.apk")
		writeAPK(apkPath)

		GinkgoT().Setenv("APKSCAN_POLL_INTERVAL", "10ms")
		GinkgoT().Setenv("APKSCAN_RETRY_INTERVAL", "5ms")
		GinkgoT().Setenv("APKSCAN_POLL_TIMEOUT", "2s")

		service = &fakeService{
			statuses: []string{
				`{"status":"queued"}`,
				`{"status":"processing","progress":{"stage":"unpack"}}`,
				`{"status":"complete","result":{"verdict":"clean","score":3}}`,
			},
			requestIDs: make(chan string, 10),
		}
		server = httptest.NewServer(service.handler())
		stdout = &bytes.Buffer{}
		stderr = &bytes.Buffer{}
	})

	AfterEach(func() {
		server.Close()
	})

	newOptions := func(flags ...string) *AnalyzeOptions {
		o := DefaultAnalyzeOptions()
		o.stdout = stdout
		o.progress = stderr
		o.ConfigFilePath = filepath.Join(dir, "client.yaml")
		fs := pflag.NewFlagSet("analyze", pflag.ContinueOnError)
		o.Bind(fs)
		Expect(fs.Parse(append([]string{"--server-url", server.URL}, flags...))).To(Succeed())
		Expect(o.Complete(nil, nil)).To(Succeed())
		Expect(o.Validate([]string{apkPath})).To(Succeed())
		return o
	}

	It("prints the result as json", func() {
		o := newOptions()
		Expect(o.Run(context.Background(), []string{apkPath})).To(Succeed())

		Expect(stdout.String()).To(MatchJSON(`{"verdict":"clean","score":3}`))
		Expect(stderr.String()).To(ContainSubstring("Queued as job job-1"))
		Expect(stderr.String()).To(ContainSubstring("Processing:"))
		Expect(stderr.String()).To(ContainSubstring("Analysis complete"))
		Expect(<-service.requestIDs).NotTo(BeEmpty())
	})

	It("writes yaml to the output file and events to the event file", func() {
		out := filepath.Join(dir, "result.yaml")
		eventsFile := filepath.Join(dir, "events.jsonl")
		o := newOptions("-o", "yaml", "--output-file", out, "--events-file", eventsFile, "--quiet")
		Expect(o.Run(context.Background(), []string{apkPath})).To(Succeed())

		Expect(stdout.Len()).To(BeZero())
		Expect(stderr.Len()).To(BeZero())
		data, err := os.ReadFile(out)
		Expect(err).To(BeNil())
		Expect(string(data)).To(ContainSubstring("verdict: clean"))

		f, err := os.Open(eventsFile)
		Expect(err).To(BeNil())
		defer f.Close()
		var lines int
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			lines++
		}
		// uploading, queued, processing, complete, result
		Expect(lines).To(Equal(5))
	})

	It("fails with the upload error", func() {
		service.uploadStatus = http.StatusInternalServerError
		o := newOptions("--skip-health-check")

		err := o.Run(context.Background(), []string{apkPath})
		var aerr *analysis.Error
		Expect(errors.As(err, &aerr)).To(BeTrue())
		Expect(aerr.Kind).To(Equal(analysis.ErrorKindUploadTransport))
		Expect(aerr.Message).To(Equal("Upload failed: service returned status 500"))
		Expect(stdout.Len()).To(BeZero())
	})

	It("reports a failed job", func() {
		service.statuses = []string{`{"status":"failed","message":"corrupt archive"}`}
		o := newOptions()

		err := o.Run(context.Background(), []string{apkPath})
		Expect(err).To(MatchError("corrupt archive"))
		Expect(stderr.String()).To(ContainSubstring("Analysis failed after"))
	})

	It("refuses files that are not packages", func() {
		txt := filepath.Join(dir, "notes.txt")
		Expect(os.WriteFile(txt, []byte("hello"), 0600)).To(Succeed())
		o := newOptions()

		err := o.Run(context.Background(), []string{txt})
		Expect(errors.Is(err, payload.ErrNotAPK)).To(BeTrue())
		Expect(service.requestIDs).NotTo(Receive())
	})

	It("rejects unknown output formats", func() {
		o := DefaultAnalyzeOptions()
		o.Output = "xml"
		Expect(o.Validate([]string{apkPath})).NotTo(Succeed())
	})
})

var _ = Describe("status and health", func() {
	var (
		server *httptest.Server
		stdout *bytes.Buffer
	)

	BeforeEach(func() {
		service := &fakeService{statuses: []string{`{"status":"processing","stage":"dex","extra":true}`}, requestIDs: make(chan string, 1)}
		server = httptest.NewServer(service.handler())
		stdout = &bytes.Buffer{}
	})

	AfterEach(func() {
		server.Close()
	})

	It("prints one job status as a table", func() {
		o := DefaultStatusOptions()
		o.stdout = stdout
		o.ServerUrl = server.URL
		Expect(o.Complete(nil, nil)).To(Succeed())
		Expect(o.Run(context.Background(), []string{"job-1"})).To(Succeed())

		Expect(stdout.String()).To(ContainSubstring("STATUS"))
		Expect(stdout.String()).To(ContainSubstring("processing"))
		Expect(stdout.String()).To(ContainSubstring("dex"))
	})

	It("prints the raw status as yaml", func() {
		o := DefaultStatusOptions()
		o.stdout = stdout
		o.ServerUrl = server.URL
		o.Output = yamlFormat
		Expect(o.Complete(nil, nil)).To(Succeed())
		Expect(o.Run(context.Background(), []string{"job-1"})).To(Succeed())
		Expect(stdout.String()).To(ContainSubstring("extra: true"))
	})

	It("reports the service health", func() {
		o := DefaultHealthOptions()
		o.stdout = stdout
		o.ServerUrl = server.URL
		Expect(o.Complete(nil, nil)).To(Succeed())
		Expect(o.Run(context.Background(), nil)).To(Succeed())
		Expect(stdout.String()).To(ContainSubstring("ok (HTTP 200)"))
	})
})

var _ = Describe("login", func() {
	It("stores the server and uses it afterwards", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "client.yaml")

		login := DefaultLoginOptions()
		login.stdout = io.Discard
		login.ConfigFilePath = path
		Expect(login.Complete(nil, nil)).To(Succeed())
		Expect(login.Run(context.Background(), []string{"https://scan.example.com"})).To(Succeed())

		o := DefaultGlobalOptions()
		o.ConfigFilePath = path
		server, err := o.Server()
		Expect(err).To(BeNil())
		Expect(server).To(Equal("https://scan.example.com"))

		o.ServerUrl = "http://override:8080"
		server, err = o.Server()
		Expect(err).To(BeNil())
		Expect(server).To(Equal("http://override:8080"))
	})

	It("falls back to the environment", func() {
		GinkgoT().Setenv("APKSCAN_SERVER_URL", "http://from-env:9000")
		o := DefaultGlobalOptions()
		o.ConfigFilePath = filepath.Join(GinkgoT().TempDir(), "absent.yaml")
		Expect(o.Complete(nil, nil)).To(Succeed())
		server, err := o.Server()
		Expect(err).To(BeNil())
		Expect(server).To(Equal("http://from-env:9000"))
	})
})
