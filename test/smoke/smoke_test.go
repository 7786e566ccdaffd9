//go:build smoke

package smoke_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/bacalhau-project/vmcheck/pkg/config"
	"github.com/bacalhau-project/vmcheck/pkg/smoke"
)

var _ = Describe("SSH connectivity", func() {
	It("runs the check command on the VM", func(ctx SpecContext) {
		cfg, err := opts.Config()
		Expect(err).NotTo(HaveOccurred())

		result, err := smoke.CheckConnectivity(ctx, cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Output).To(ContainSubstring(config.DefaultExpectedOutput))
	}, SpecTimeout(time.Minute))
})

var _ = Describe("ssh service", Ordered, func() {
	var host smoke.ServiceInspector

	BeforeAll(func(ctx SpecContext) {
		h, closeHost, err := opts.Host(ctx)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(closeHost)
		host = h
	}, NodeTimeout(time.Minute))

	It("is running", func(ctx SpecContext) {
		state, err := host.ServiceStatus(ctx, config.DefaultService)
		Expect(err).NotTo(HaveOccurred())
		Expect(state.Running).To(BeTrue())
	}, SpecTimeout(30*time.Second))

	It("is enabled", func(ctx SpecContext) {
		state, err := host.ServiceStatus(ctx, config.DefaultService)
		Expect(err).NotTo(HaveOccurred())
		Expect(state.Enabled).To(BeTrue())
	}, SpecTimeout(30*time.Second))

	It("passes the combined check", func(ctx SpecContext) {
		_, err := smoke.CheckService(ctx, host, config.DefaultService)
		Expect(err).NotTo(HaveOccurred())
	}, SpecTimeout(30*time.Second))
})
