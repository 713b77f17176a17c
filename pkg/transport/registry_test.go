package transport_test

import (
	"errors"

	"github.com/killallgit/skillstream/pkg/config"
	"github.com/killallgit/skillstream/pkg/transport"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Registry", func() {
	DescribeTable("ResolveRuntime",
		func(runtime, expected string) {
			Expect(transport.ResolveRuntime(runtime)).To(Equal(expected))
		},
		Entry("empty defaults to web", "", "web"),
		Entry("web", "web", "web"),
		Entry("extension", "extension", "extension"),
		Entry("extension variant", "extension-sidepanel", "extension"),
		Entry("case insensitive", " Extension-CSUI ", "extension"),
		Entry("unknown passes through", "desktop", "desktop"),
	)

	It("builds the transport for the configured runtime", func() {
		registry := transport.NewRegistry()
		Expect(registry.Names()).To(Equal([]string{"extension", "web"}))

		web, err := registry.New(&config.Config{Runtime: "web"})
		Expect(err).ToNot(HaveOccurred())
		Expect(web.Name()).To(Equal(config.RuntimeWeb))

		ext, err := registry.New(&config.Config{Runtime: "extension-sidepanel"})
		Expect(err).ToNot(HaveOccurred())
		Expect(ext.Name()).To(Equal(config.RuntimeExtension))
	})

	It("rejects unknown runtimes", func() {
		_, err := transport.New(&config.Config{Runtime: "desktop"})
		Expect(errors.Is(err, transport.ErrUnknownRuntime)).To(BeTrue())
	})
})
