package config_test

import (
	"time"

	"github.com/imposteroid/apkscan/internal/config"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("config", func() {
	It("loads defaults", func() {
		c, err := config.Load()
		Expect(err).To(BeNil())
		Expect(c.Service.ServerUrl).To(Equal("https://fakeapk.onrender.com"))
		Expect(c.Service.HTTPTimeout).To(Equal(50 * time.Second))
		Expect(c.Upload.FieldName).To(Equal("apk"))
		Expect(c.Upload.MaxPayloadSize).To(Equal(int64(200 * 1024 * 1024)))
		Expect(c.Upload.ProgressInterval).To(Equal(100 * time.Millisecond))
		Expect(c.Polling.Interval).To(Equal(2 * time.Second))
		Expect(c.Polling.RetryInterval).To(Equal(1500 * time.Millisecond))
		Expect(c.Polling.Timeout).To(Equal(120 * time.Second))
		Expect(c.Polling.Jitter).To(BeZero())
		Expect(c.LogLevel).To(Equal("info"))
	})

	It("reads overrides from the environment", func() {
		GinkgoT().Setenv("APKSCAN_SERVER_URL", "http://localhost:9000")
		GinkgoT().Setenv("APKSCAN_POLL_TIMEOUT", "30s")
		GinkgoT().Setenv("APKSCAN_POLL_JITTER", "250ms")

		c, err := config.Load()
		Expect(err).To(BeNil())
		Expect(c.Service.ServerUrl).To(Equal("http://localhost:9000"))
		Expect(c.Polling.Timeout).To(Equal(30 * time.Second))
		Expect(c.Polling.Jitter).To(Equal(250 * time.Millisecond))
	})

	DescribeTable("rejects invalid values",
		func(key, value string) {
			GinkgoT().Setenv(key, value)
			_, err := config.Load()
			Expect(err).NotTo(BeNil())
		},
		Entry("server url", "APKSCAN_SERVER_URL", "not a url"),
		Entry("poll interval", "APKSCAN_POLL_INTERVAL", "0s"),
		Entry("max payload size", "APKSCAN_MAX_PAYLOAD_SIZE", "-1"),
		Entry("unparsable duration", "APKSCAN_POLL_TIMEOUT", "soon"),
	)
})
